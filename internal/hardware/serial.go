package hardware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialPorter is the subset of a serial port the controller needs.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
	ResetInputBuffer() error
}

var (
	ErrControllerReply = errors.New("unexpected controller reply")
	ErrReplyTimeout    = errors.New("timed out waiting for reply")
)

type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// SerialBoard talks to a microcontroller that owns the servo and the IR
// sensor. The line protocol is:
//
//	PWM <duty>  -> OK
//	STOP        -> OK
//	IR?         -> IR=0 | IR=1
type SerialBoard struct {
	mu      sync.Mutex
	port    SerialPorter
	timeout time.Duration
	pending []byte
}

func OpenSerial(cfg SerialConfig) (*SerialBoard, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}
	return NewSerialBoard(port, timeout), nil
}

func NewSerialBoard(port SerialPorter, timeout time.Duration) *SerialBoard {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &SerialBoard{port: port, timeout: timeout}
}

func (b *SerialBoard) Board() *Board {
	return NewBoard(b, b, b)
}

// IsPresent reports false when the controller does not answer in time.
func (b *SerialBoard) IsPresent() bool {
	reply, err := b.command("IR?", isSensorReply)
	if err != nil {
		return false
	}
	return reply == "IR=1"
}

func (b *SerialBoard) SetDuty(percent float64) error {
	if err := validateDuty(percent); err != nil {
		return err
	}
	return b.expectOK(fmt.Sprintf("PWM %.2f", percent))
}

func (b *SerialBoard) Stop() error {
	return b.expectOK("STOP")
}

func (b *SerialBoard) Close() error {
	return b.port.Close()
}

func (b *SerialBoard) expectOK(cmd string) error {
	reply, err := b.command(cmd, func(line string) bool { return !isSensorReply(line) })
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w to %q: %q", ErrControllerReply, cmd, reply)
	}
	return nil
}

func isSensorReply(line string) bool {
	return strings.HasPrefix(line, "IR=")
}

// command sends cmd and returns the first reply accepted by match. Input
// left over from earlier commands, such as a reply that arrived after its
// deadline, is discarded before writing, and lines match rejects are
// skipped.
func (b *SerialBoard) command(cmd string, match func(string) bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = b.pending[:0]
	if err := b.port.ResetInputBuffer(); err != nil {
		return "", fmt.Errorf("flush before %q: %w", cmd, err)
	}

	line := cmd + "\n"
	n, err := b.port.Write([]byte(line))
	if err != nil {
		return "", fmt.Errorf("write %q: %w", cmd, err)
	}
	if n != len(line) {
		return "", fmt.Errorf("write %q: short write %d of %d", cmd, n, len(line))
	}

	deadline := time.Now().Add(b.timeout)
	for {
		reply, err := b.readLine(deadline)
		if err != nil {
			return "", err
		}
		if match(reply) {
			return reply, nil
		}
	}
}

// readLine returns the next newline-terminated reply. Ports opened with a
// read timeout return (0, nil) when idle, so the deadline bounds the loop.
func (b *SerialBoard) readLine(deadline time.Time) (string, error) {
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(b.pending, '\n'); i >= 0 {
			reply := strings.TrimSpace(string(b.pending[:i]))
			b.pending = b.pending[i+1:]
			return reply, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("controller reply: %w", ErrReplyTimeout)
		}
		n, err := b.port.Read(buf)
		if n > 0 {
			b.pending = append(b.pending, buf[:n]...)
		}
		if err != nil {
			return "", fmt.Errorf("read controller reply: %w", err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

var _ PresenceSensor = (*SerialBoard)(nil)
var _ Servo = (*SerialBoard)(nil)
