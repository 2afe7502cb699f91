// Package hardware owns the presence sensor and the barrier servo of one
// checkpoint. A Board is created once and passed explicitly to the
// pipeline and the actuator.
package hardware

import (
	"errors"
	"fmt"
	"io"
)

// PresenceSensor reports whether an object is in front of the gate. It
// must be cheap and must not block.
type PresenceSensor interface {
	IsPresent() bool
}

// Servo drives the barrier motor with a PWM duty cycle in percent.
type Servo interface {
	SetDuty(percent float64) error
	// Stop ends pulsing so the motor is not held or jittering.
	Stop() error
}

type Board struct {
	Sensor PresenceSensor
	Servo  Servo
	closer io.Closer
}

func NewBoard(sensor PresenceSensor, servo Servo, closer io.Closer) *Board {
	return &Board{Sensor: sensor, Servo: servo, closer: closer}
}

func (b *Board) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

var ErrInvalidDuty = errors.New("invalid duty cycle")

func validateDuty(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %.2f", ErrInvalidDuty, percent)
	}
	return nil
}

// AngleToDuty maps a servo angle in degrees to a duty cycle percentage.
func AngleToDuty(angle int) float64 {
	return float64(angle)/18 + 2
}
