package drivers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hubertat/hwkit/pins"
	"github.com/pkg/errors"
)

const mockDriverName = "mock_driver"

// MockIoDriver is an in-memory board with digital and analog pins. It backs
// the mock command and tests.
type MockIoDriver struct {
	BoardName string `json:"board" yaml:"board"`

	mu      sync.Mutex
	modes   map[uint8]pins.Mode
	states  map[uint8]bool
	analog  map[uint8]uint16
	monitor io.Writer
	ready   bool
}

func (md *MockIoDriver) Open(ctx context.Context) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.init()
	md.ready = true
	return nil
}

// caller holds lock
func (md *MockIoDriver) init() {
	if md.modes == nil {
		md.modes = make(map[uint8]pins.Mode)
		md.states = make(map[uint8]bool)
		md.analog = make(map[uint8]uint16)
	}
}

func (md *MockIoDriver) Close() error {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.ready = false
	return nil
}

func (md *MockIoDriver) String() string {
	return mockDriverName
}

// Board resolves BoardName, falling back to the permissive host board.
func (md *MockIoDriver) Board() pins.Board {
	if md.BoardName == "" {
		return pins.Host
	}
	b, err := pins.BoardByName(md.BoardName)
	if err != nil {
		return pins.Host
	}
	return b
}

func (md *MockIoDriver) IsReady() bool {
	md.mu.Lock()
	defer md.mu.Unlock()

	return md.ready
}

func (md *MockIoDriver) ConfigurePin(pin uint8, mode pins.Mode) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if !md.ready {
		return ErrNotReady
	}
	md.modes[pin] = mode
	if mode == pins.InputPullup {
		md.states[pin] = true
	}
	return nil
}

// PinMode reports the last mode applied to pin.
func (md *MockIoDriver) PinMode(pin uint8) pins.Mode {
	md.mu.Lock()
	defer md.mu.Unlock()

	return md.modes[pin]
}

func (md *MockIoDriver) DigitalRead(pin uint8) (bool, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	if !md.ready {
		return false, ErrNotReady
	}
	return md.states[pin], nil
}

func (md *MockIoDriver) DigitalWrite(pin uint8, state bool) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if !md.ready {
		return ErrNotReady
	}
	if !md.modes[pin].IsOutput() {
		return errors.Errorf("mock pin %d is not configured as output", pin)
	}
	if md.monitor != nil && state != md.states[pin] {
		fmt.Fprintf(md.monitor, "[pin %d] state changed to %v\n", pin, state)
	}
	md.states[pin] = state
	return nil
}

// SetInput simulates an external level on pin.
func (md *MockIoDriver) SetInput(pin uint8, state bool) {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.init()
	md.states[pin] = state
}

// SetAnalog sets the value ReadAnalog returns for pin.
func (md *MockIoDriver) SetAnalog(pin uint8, value uint16) {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.init()
	md.analog[pin] = value
}

func (md *MockIoDriver) ReadAnalog(pin uint8) (uint16, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	if !md.ready {
		return 0, ErrNotReady
	}
	return md.analog[pin], nil
}

// MonitorStateChanges writes a line to writer on every output change.
func (md *MockIoDriver) MonitorStateChanges(writer io.Writer) {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.monitor = writer
}
