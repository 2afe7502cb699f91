// Package actuator runs the barrier open/hold/rest sequence. A single worker
// serves a bounded trigger queue and every hardware write goes through one
// exclusion slot.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/hardware"
)

var (
	ErrInvalidAngle   = errors.New("invalid angle")
	ErrBusy           = errors.New("gate busy")
	ErrStepTimeout    = errors.New("drive step timed out")
	ErrAlreadyRunning = errors.New("gate worker already running")
)

const (
	MinAngle = 0
	MaxAngle = 180
)

type State int32

const (
	StateClosed State = iota
	StateOpening
	StateHolding
	StateResting
	StateFault
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateHolding:
		return "holding"
	case StateResting:
		return "resting"
	case StateFault:
		return "fault"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Config struct {
	OpenAngle   int
	RestAngle   int
	ClosedAngle int
	Hold        time.Duration
	Settle      time.Duration
	StepTimeout time.Duration
	QueueSize   int
}

func DefaultConfig() Config {
	return Config{
		OpenAngle:   180,
		RestAngle:   80,
		ClosedAngle: 80,
		Hold:        5 * time.Second,
		Settle:      200 * time.Millisecond,
		StepTimeout: 3 * time.Second,
		QueueSize:   1,
	}
}

// Request asks for one full open/hold/rest sequence.
type Request struct {
	VehicleID *uuid.UUID
	Plate     string
	Source    string
}

// Observer receives actuator telemetry.
type Observer interface {
	GateState(state string)
	Sequence(result string, elapsed time.Duration)
	TriggerRejected()
}

type nopObserver struct{}

func (nopObserver) GateState(string) {}
func (nopObserver) Sequence(string, time.Duration) {}
func (nopObserver) TriggerRejected() {}

type Option func(*Gate)

func WithObserver(o Observer) Option {
	return func(g *Gate) { g.obs = o }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

type Gate struct {
	servo   hardware.Servo
	actions ActionLog
	cfg     Config
	log     zerolog.Logger
	obs     Observer
	now     func() time.Time

	hw      chan struct{}
	queue   chan Request
	state   atomic.Int32
	running atomic.Bool
}

func New(servo hardware.Servo, actions ActionLog, cfg Config, log zerolog.Logger, opts ...Option) *Gate {
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultConfig().StepTimeout
	}
	g := &Gate{
		servo:   servo,
		actions: actions,
		cfg:     cfg,
		log:     log.With().Str("component", "gate").Logger(),
		obs:     nopObserver{},
		now:     time.Now,
		hw:      make(chan struct{}, 1),
		queue:   make(chan Request, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.setState(StateClosed)
	return g
}

func (g *Gate) State() State {
	return State(g.state.Load())
}

// Pending returns the number of queued requests not yet started.
func (g *Gate) Pending() int {
	return len(g.queue)
}

func (g *Gate) setState(s State) {
	g.state.Store(int32(s))
	g.obs.GateState(s.String())
}

// Trigger queues one sequence. It never blocks: a full queue returns ErrBusy.
func (g *Gate) Trigger(req Request) error {
	select {
	case g.queue <- req:
		g.log.Debug().Str("plate", req.Plate).Str("source", req.Source).Msg("gate sequence queued")
		return nil
	default:
		g.obs.TriggerRejected()
		g.log.Warn().
			Str("plate", req.Plate).
			Str("source", req.Source).
			Str("state", g.State().String()).
			Msg("gate busy, trigger rejected")
		return ErrBusy
	}
}

// Run serves the trigger queue until ctx is done. Only one worker may run.
func (g *Gate) Run(ctx context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer g.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-g.queue:
			start := g.now()
			result := "completed"
			if err := g.runSequence(ctx, req); err != nil {
				result = "failed"
			}
			g.obs.Sequence(result, g.now().Sub(start))
		}
	}
}

// Home drives the barrier to the closed angle, e.g. at startup.
func (g *Gate) Home(ctx context.Context) error {
	stepCtx, cancel := context.WithTimeout(ctx, g.cfg.StepTimeout)
	defer cancel()
	return g.SetAngle(stepCtx, g.cfg.ClosedAngle)
}

func (g *Gate) runSequence(ctx context.Context, req Request) error {
	log := g.log.With().Str("plate", req.Plate).Str("source", req.Source).Logger()
	if req.VehicleID != nil {
		log = log.With().Str("vehicle_id", req.VehicleID.String()).Logger()
	}

	openedAt := g.now()
	g.setState(StateOpening)
	if err := g.drive(ctx, g.cfg.OpenAngle); err != nil {
		return g.abort(log, err)
	}
	log.Info().Int("angle", g.cfg.OpenAngle).Msg("gate opened")

	g.setState(StateHolding)
	hold := time.NewTimer(g.cfg.Hold)
	select {
	case <-hold.C:
	case <-ctx.Done():
		hold.Stop()
		return g.abort(log, ctx.Err())
	}

	g.setState(StateResting)
	if err := g.drive(ctx, g.cfg.RestAngle); err != nil {
		return g.abort(log, err)
	}
	closedAt := g.now()
	g.setState(StateClosed)
	log.Info().Int("angle", g.cfg.RestAngle).Msg("gate closed")

	g.record(ctx, log, gate.ActuationEvent{VehicleID: req.VehicleID, Action: gate.ActionGateOpened, Timestamp: openedAt})
	g.record(ctx, log, gate.ActuationEvent{VehicleID: req.VehicleID, Action: gate.ActionGateClosed, Timestamp: closedAt})
	return nil
}

// abort forces the barrier back to the rest angle after a failed step.
func (g *Gate) abort(log zerolog.Logger, cause error) error {
	log.Error().Err(cause).Str("state", g.State().String()).Msg("gate sequence failed, forcing rest")
	g.setState(StateResting)

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.StepTimeout)
	defer cancel()
	if err := g.SetAngle(ctx, g.cfg.RestAngle); err != nil {
		g.setState(StateFault)
		log.Error().Err(err).Msg("forced rest failed")
		return errors.Join(cause, err)
	}
	g.setState(StateClosed)
	return cause
}

func (g *Gate) record(ctx context.Context, log zerolog.Logger, ev gate.ActuationEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.actions.Append(ctx, ev); err != nil {
		log.Error().Err(err).Str("action", string(ev.Action)).Msg("failed to append actuation event")
	}
}

func (g *Gate) drive(ctx context.Context, angle int) error {
	stepCtx, cancel := context.WithTimeout(ctx, g.cfg.StepTimeout)
	defer cancel()
	return g.SetAngle(stepCtx, angle)
}

// SetAngle validates angle, then pulses the servo to it, waits the settle
// delay and stops pulsing. Out-of-range angles never reach the hardware.
func (g *Gate) SetAngle(ctx context.Context, angle int) error {
	if angle < MinAngle || angle > MaxAngle {
		g.log.Error().Int("angle", angle).Msg("invalid angle, must be between 0 and 180")
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidAngle, angle, MinAngle, MaxAngle)
	}
	duty := hardware.AngleToDuty(angle)

	return g.withHardware(ctx, func() error {
		if err := g.servo.SetDuty(duty); err != nil {
			return fmt.Errorf("drive to %d: %w", angle, err)
		}
		time.Sleep(g.cfg.Settle)
		if err := g.servo.Stop(); err != nil {
			return fmt.Errorf("stop pulse: %w", err)
		}
		return nil
	})
}

// withHardware runs fn while holding the hardware slot. If ctx ends first
// the caller gets ErrStepTimeout; the slot stays held until fn returns.
func (g *Gate) withHardware(ctx context.Context, fn func() error) error {
	select {
	case g.hw <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for hardware: %v", ErrStepTimeout, ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-g.hw }()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStepTimeout, ctx.Err())
	}
}
