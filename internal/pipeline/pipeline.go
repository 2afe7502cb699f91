// Package pipeline runs the sequential frame loop of one camera: sampling,
// presence gating, detection, OCR, normalization, consensus and resolution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/hardware"
	"checkpoint-gate/internal/plate"
	"checkpoint-gate/internal/vision"
)

var (
	ErrSourceUnavailable = errors.New("frame source unavailable")
	ErrAlreadyRunning    = errors.New("pipeline already running")
)

type Config struct {
	FrameSkip     int
	Width         int
	Height        int
	OCRThreshold  uint8
	MinLength     int
	Capacity      int
	MinConfidence float64
}

func DefaultConfig() Config {
	return Config{
		FrameSkip:     2,
		Width:         640,
		Height:        480,
		OCRThreshold:  vision.DefaultThreshold,
		MinLength:     plate.ShortLength,
		Capacity:      plate.DefaultCapacity,
		MinConfidence: 0.3,
	}
}

// ResolutionHandler decides what happens to a resolved plate.
type ResolutionHandler interface {
	HandleResolution(ctx context.Context, resolved gate.ResolvedPlate) (gate.Decision, error)
}

type Publisher interface {
	Publish(frame []byte)
}

type Observer interface {
	Frame(stage string)
	Detections(n int)
	PerceptionError(stage string)
	Resolution(outcome string)
}

type nopObserver struct{}

func (nopObserver) Frame(string) {}
func (nopObserver) Detections(int) {}
func (nopObserver) PerceptionError(string) {}
func (nopObserver) Resolution(string) {}

// Deps are the collaborators of a pipeline. Encoder and Publisher may be
// nil when no live view is served. OnOpen, when set, runs each time the
// source opens.
type Deps struct {
	Source    vision.SourceOpener
	Sensor    hardware.PresenceSensor
	Detector  vision.Detector
	Reader    vision.Reader
	Encoder   vision.Encoder
	Publisher Publisher
	Handler   ResolutionHandler
	Observer  Observer
	OnOpen    func()
}

type Pipeline struct {
	deps       Deps
	cfg        Config
	aggregator *plate.Aggregator
	log        zerolog.Logger
	running    atomic.Bool
}

func New(cfg Config, deps Deps, log zerolog.Logger) *Pipeline {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = DefaultConfig().Width, DefaultConfig().Height
	}
	if cfg.FrameSkip < 0 {
		cfg.FrameSkip = 0
	}
	return &Pipeline{
		deps:       deps,
		cfg:        cfg,
		aggregator: plate.NewAggregator(cfg.Capacity, cfg.MinConfidence),
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Run opens the source and processes frames until ctx is done or the
// stream ends. Open failures wrap ErrSourceUnavailable. Consensus state
// survives across runs of the same Pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	src, err := p.deps.Source.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			p.log.Warn().Err(err).Msg("failed to close frame source")
		}
	}()
	p.log.Info().Int("frame_skip", p.cfg.FrameSkip).Msg("frame source opened")
	if p.deps.OnOpen != nil {
		p.deps.OnOpen()
	}

	var index int64
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		img, err := src.Read()
		if errors.Is(err, io.EOF) {
			p.log.Info().Int64("frames", index).Msg("end of stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame %d: %w", index, err)
		}
		p.deps.Observer.Frame("read")

		frame := gate.Frame{Index: index, Image: img}
		index++

		if frame.Index%int64(p.cfg.FrameSkip+1) != 0 {
			p.deps.Observer.Frame("skipped")
			continue
		}
		if !p.deps.Sensor.IsPresent() {
			p.deps.Observer.Frame("absent")
			continue
		}
		p.processFrame(ctx, frame)
		p.deps.Observer.Frame("processed")
	}
}

func (p *Pipeline) processFrame(ctx context.Context, frame gate.Frame) {
	resized := vision.Resize(frame.Image, p.cfg.Width, p.cfg.Height)

	detections, err := p.deps.Detector.Detect(ctx, resized)
	if err != nil {
		p.deps.Observer.PerceptionError("detect")
		p.log.Warn().Err(err).Int64("frame", frame.Index).Msg("detection failed")
		return
	}
	p.deps.Observer.Detections(len(detections))

	overlays := make([]vision.Overlay, 0, len(detections))
	for _, det := range detections {
		box := vision.ClampBox(det.Box, resized.Bounds())
		if box.Empty() {
			continue
		}
		label := p.readPlate(ctx, resized, box, frame.Index)
		overlays = append(overlays, vision.Overlay{Box: box, Label: label})
	}

	p.publish(resized, overlays, frame.Index)
}

// readPlate OCRs one detection and feeds a compliant read to the
// aggregator. It returns the text to draw on the live view.
func (p *Pipeline) readPlate(ctx context.Context, img image.Image, box gate.Box, frameIndex int64) string {
	crop, ok := vision.CropForOCR(img, box, p.cfg.OCRThreshold)
	if !ok {
		return ""
	}

	candidates, err := p.deps.Reader.Read(ctx, crop)
	if err != nil {
		p.deps.Observer.PerceptionError("ocr")
		p.log.Warn().Err(err).Int64("frame", frameIndex).Msg("ocr failed")
		return ""
	}
	for i := range candidates {
		candidates[i].FrameIndex = frameIndex
	}

	selected, ok := plate.SelectCandidate(candidates, p.cfg.MinLength)
	if !ok {
		if len(candidates) > 0 {
			return candidates[0].Text
		}
		return ""
	}
	p.log.Debug().
		Str("plate", selected.Plate).
		Float64("confidence", selected.Confidence).
		Int64("frame", frameIndex).
		Msg("plate read")

	if resolved, done := p.aggregator.Add(selected); done {
		p.resolve(ctx, resolved)
	}
	return selected.Plate
}

func (p *Pipeline) resolve(ctx context.Context, resolved gate.ResolvedPlate) {
	p.log.Info().
		Str("plate", resolved.Plate).
		Strs("samples", resolved.Samples).
		Ints("votes", resolved.Votes).
		Msg("probable plate")

	decision, err := p.deps.Handler.HandleResolution(ctx, resolved)
	switch {
	case err != nil:
		p.deps.Observer.Resolution("error")
		p.log.Error().Err(err).Str("plate", resolved.Plate).Msg("failed to handle resolution")
	case decision.Approved:
		p.deps.Observer.Resolution("approved")
	case decision.Vehicle == nil:
		p.deps.Observer.Resolution("unknown")
	default:
		p.deps.Observer.Resolution("denied")
	}
}

func (p *Pipeline) publish(img image.Image, overlays []vision.Overlay, frameIndex int64) {
	if p.deps.Encoder == nil || p.deps.Publisher == nil {
		return
	}
	jpeg, err := p.deps.Encoder.Encode(img, overlays)
	if err != nil {
		p.deps.Observer.PerceptionError("encode")
		p.log.Warn().Err(err).Int64("frame", frameIndex).Msg("failed to encode frame")
		return
	}
	p.deps.Publisher.Publish(jpeg)
}

// Pending reports buffered samples per plate length.
func (p *Pipeline) Pending() map[int]int {
	return p.aggregator.Pending()
}
