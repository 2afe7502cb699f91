package hardware

import (
	"sync"
	"sync/atomic"
)

// Write is one recorded servo call on a Simulated board.
type Write struct {
	Duty float64
	Stop bool
}

// Simulated is an in-memory board for dry runs and tests.
type Simulated struct {
	present atomic.Bool
	reads   atomic.Int64

	mu     sync.Mutex
	writes []Write
	// Hook, when set, runs before every servo write is recorded.
	Hook func(Write) error
}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Board() *Board {
	return NewBoard(s, s, nil)
}

func (s *Simulated) SetPresent(present bool) {
	s.present.Store(present)
}

func (s *Simulated) IsPresent() bool {
	s.reads.Add(1)
	return s.present.Load()
}

// Reads returns how many times the sensor was polled.
func (s *Simulated) Reads() int64 {
	return s.reads.Load()
}

func (s *Simulated) SetDuty(percent float64) error {
	if err := validateDuty(percent); err != nil {
		return err
	}
	return s.record(Write{Duty: percent})
}

func (s *Simulated) Stop() error {
	return s.record(Write{Stop: true})
}

func (s *Simulated) record(w Write) error {
	if s.Hook != nil {
		if err := s.Hook(w); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.writes = append(s.writes, w)
	s.mu.Unlock()
	return nil
}

func (s *Simulated) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

var _ PresenceSensor = (*Simulated)(nil)
var _ Servo = (*Simulated)(nil)
