package gpio

import (
	"log/slog"
	"sync"

	"github.com/cjeanneret/PiLapse/internal/logging"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool, log *slog.Logger) (Driver, error) {
	log = logging.Component(log, "gpio")
	if mock {
		log.Info("using mock GPIO driver")
		return NewMockDriver(log), nil
	}
	return NewRPiRealDriver(log)
}

// MockDriver keeps pin levels in memory and logs every operation.
type MockDriver struct {
	mu     sync.Mutex
	log    *slog.Logger
	levels map[int]Level
	writes int
	closed bool
}

// NewMockDriver returns an in-memory driver.
func NewMockDriver(log *slog.Logger) *MockDriver {
	if log == nil {
		log = logging.Discard()
	}
	return &MockDriver{log: log, levels: make(map[int]Level)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	m.log.Debug("setup pin", "pin", pin, "mode", mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Debug("write pin", "pin", pin, "level", level)
	m.levels[pin] = level
	m.writes++
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Debug("close (mock)")
	m.closed = true
	return nil
}

// Writes returns how many WritePin calls were made.
func (m *MockDriver) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Closed reports whether Close was called.
func (m *MockDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
