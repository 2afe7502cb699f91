package hardware

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

type GPIOConfig struct {
	ServoPin  string
	SensorPin string
	// ActiveLow is true for IR modules that pull the line low on detection.
	ActiveLow    bool
	PWMFrequency int
}

// GPIOBoard drives a servo and reads an IR sensor on Raspberry Pi header pins.
type GPIOBoard struct {
	mu        sync.Mutex
	servo     gpio.PinIO
	sensor    gpio.PinIO
	active    gpio.Level
	frequency physic.Frequency
}

func OpenGPIO(cfg GPIOConfig) (*GPIOBoard, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init gpio host: %w", err)
	}

	servo := gpioreg.ByName(cfg.ServoPin)
	if servo == nil {
		return nil, fmt.Errorf("servo pin %s not found", cfg.ServoPin)
	}
	sensor := gpioreg.ByName(cfg.SensorPin)
	if sensor == nil {
		return nil, fmt.Errorf("sensor pin %s not found", cfg.SensorPin)
	}

	pull, active := gpio.PullDown, gpio.High
	if cfg.ActiveLow {
		pull, active = gpio.PullUp, gpio.Low
	}
	if err := sensor.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure sensor pin %s: %w", cfg.SensorPin, err)
	}
	if err := servo.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure servo pin %s: %w", cfg.ServoPin, err)
	}

	freq := cfg.PWMFrequency
	if freq <= 0 {
		freq = 50
	}

	return &GPIOBoard{
		servo:     servo,
		sensor:    sensor,
		active:    active,
		frequency: physic.Frequency(freq) * physic.Hertz,
	}, nil
}

func (b *GPIOBoard) Board() *Board {
	return NewBoard(b, b, b)
}

func (b *GPIOBoard) IsPresent() bool {
	return b.sensor.Read() == b.active
}

func (b *GPIOBoard) SetDuty(percent float64) error {
	if err := validateDuty(percent); err != nil {
		return err
	}
	duty := gpio.Duty(percent / 100 * float64(gpio.DutyMax))

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.servo.PWM(duty, b.frequency)
}

func (b *GPIOBoard) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.servo.Out(gpio.Low)
}

func (b *GPIOBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.servo.Halt(), b.sensor.Halt())
}

var _ PresenceSensor = (*GPIOBoard)(nil)
var _ Servo = (*GPIOBoard)(nil)
