package actuator

import (
	"context"
	"sync"

	"checkpoint-gate/internal/domain/gate"
)

// ActionLog is the append-only sink for actuation events.
type ActionLog interface {
	Append(ctx context.Context, ev gate.ActuationEvent) error
}

type MemoryLog struct {
	mu     sync.Mutex
	events []gate.ActuationEvent
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, ev gate.ActuationEvent) error {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLog) Events() []gate.ActuationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]gate.ActuationEvent, len(l.events))
	copy(out, l.events)
	return out
}

var _ ActionLog = (*MemoryLog)(nil)
