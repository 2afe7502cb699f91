package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"checkpoint-gate/internal/actuator"
	"checkpoint-gate/internal/config"
	"checkpoint-gate/internal/db"
	"checkpoint-gate/internal/hardware"
	apphttp "checkpoint-gate/internal/http"
	"checkpoint-gate/internal/metrics"
	"checkpoint-gate/internal/pipeline"
	"checkpoint-gate/internal/repository"
	"checkpoint-gate/internal/service"
	"checkpoint-gate/internal/stream"
	"checkpoint-gate/internal/vision"
	"checkpoint-gate/internal/vision/opencv"
	"checkpoint-gate/internal/vision/tesseract"
)

var (
	_ service.Store      = (*repository.GateRepository)(nil)
	_ actuator.ActionLog = (*repository.GateRepository)(nil)
	_ actuator.Observer  = (*metrics.Metrics)(nil)
	_ pipeline.Observer  = (*metrics.Metrics)(nil)
)

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	board, err := openBoard(cfg.Hardware, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := board.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to release hardware")
		}
	}()

	conn, err := db.Open(cfg.Database, log, repository.Models()...)
	if err != nil {
		return err
	}
	defer db.Close(conn)
	repo := repository.NewGateRepository(conn)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs := metrics.New(reg)

	barrier := actuator.New(board.Servo, repo, actuatorConfig(cfg.Gate), log, actuator.WithObserver(obs))
	if cfg.Gate.HomeOnStart {
		if err := barrier.Home(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to home gate")
		}
	}
	svc := service.NewGateService(repo, barrier, cfg.Checkpoint.Name, log)

	detector, closeDetector, err := openDetector(cfg.Detector)
	if err != nil {
		return err
	}
	defer closeDetector()

	reader, err := tesseract.NewReader(tesseract.Config{Language: cfg.OCR.Language, Whitelist: cfg.OCR.Whitelist})
	if err != nil {
		return err
	}
	defer reader.Close()

	hub := stream.NewHub()
	defer hub.Close()

	p := pipeline.New(pipelineConfig(cfg), pipeline.Deps{
		Source:    opencv.CaptureOpener{URL: cfg.Camera.URL},
		Sensor:    board.Sensor,
		Detector:  detector,
		Reader:    reader,
		Encoder:   opencv.Annotator{},
		Publisher: hub,
		Handler:   svc,
		Observer:  obs,
		OnOpen:    func() { hub.SetErr(nil) },
	}, log)

	router := apphttp.NewRouter(apphttp.NewHandler(svc, hub, cfg, log), reg, log)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("checkpoint", cfg.Checkpoint.Name).Str("camera", cfg.Camera.URL).Msg("checkpoint running")
	err = apphttp.Serve(ctx, srv, log,
		func(ctx context.Context) {
			if err := barrier.Run(ctx); err != nil {
				log.Error().Err(err).Msg("gate worker stopped")
			}
		},
		func(ctx context.Context) {
			runPipeline(ctx, p, hub, cfg.Camera.ReopenInterval, log)
		},
	)
	log.Info().Msg("checkpoint stopped")
	return err
}

// runPipeline keeps the camera loop alive, reopening the source after
// failures or end of stream.
func runPipeline(ctx context.Context, p *pipeline.Pipeline, hub *stream.Hub, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	for {
		err := p.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, pipeline.ErrSourceUnavailable):
			hub.SetErr(err)
			log.Error().Err(err).Dur("retry_in", interval).Msg("camera unavailable")
		case err != nil:
			log.Error().Err(err).Dur("retry_in", interval).Msg("pipeline stopped")
		default:
			log.Info().Dur("retry_in", interval).Msg("stream ended")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func openBoard(cfg config.HardwareConfig, log zerolog.Logger) (*hardware.Board, error) {
	switch cfg.Backend {
	case "gpio":
		b, err := hardware.OpenGPIO(hardware.GPIOConfig{
			ServoPin:     cfg.ServoPin,
			SensorPin:    cfg.SensorPin,
			ActiveLow:    cfg.SensorActive == "low",
			PWMFrequency: cfg.PWMFrequency,
		})
		if err != nil {
			return nil, err
		}
		return b.Board(), nil
	case "serial":
		b, err := hardware.OpenSerial(hardware.SerialConfig{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: cfg.Serial.ReadTimeout,
		})
		if err != nil {
			return nil, err
		}
		return b.Board(), nil
	case "simulated":
		sim := hardware.NewSimulated()
		sim.SetPresent(true)
		log.Warn().Msg("using simulated hardware, the barrier will not move")
		return sim.Board(), nil
	default:
		return nil, fmt.Errorf("unsupported hardware backend %q", cfg.Backend)
	}
}

func openDetector(cfg config.DetectorConfig) (vision.Detector, func(), error) {
	switch cfg.Backend {
	case "yolo":
		d, err := opencv.NewYOLODetector(opencv.YOLOConfig{
			ModelPath:     cfg.Model,
			InputSize:     cfg.InputSize,
			ConfThreshold: cfg.ConfThreshold,
			NMSThreshold:  cfg.NMSThreshold,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	case "contour":
		return opencv.NewContourDetector(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported detector backend %q", cfg.Backend)
	}
}

func actuatorConfig(cfg config.GateConfig) actuator.Config {
	return actuator.Config{
		OpenAngle:   cfg.OpenAngle,
		RestAngle:   cfg.RestAngle,
		ClosedAngle: cfg.ClosedAngle,
		Hold:        cfg.Hold,
		Settle:      cfg.Settle,
		StepTimeout: cfg.StepTimeout,
		QueueSize:   cfg.QueueSize,
	}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		FrameSkip:     cfg.Camera.FrameSkip,
		Width:         cfg.Camera.Width,
		Height:        cfg.Camera.Height,
		OCRThreshold:  cfg.OCR.Threshold,
		MinLength:     cfg.OCR.MinLength,
		Capacity:      cfg.Consensus.Capacity,
		MinConfidence: cfg.Consensus.MinConfidence,
	}
}
