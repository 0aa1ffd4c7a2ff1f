package drivers

import (
	"context"

	"github.com/hubertat/hwkit/pins"
	"github.com/pkg/errors"
)

var (
	ErrNotReady        = errors.New("driver not open")
	ErrUnsupportedMode = errors.New("pin mode not supported by driver")
)

// Device is anything that owns a set of pins and can be opened and closed.
// Every device gets its own pin registry built from Board.
type Device interface {
	Open(ctx context.Context) error
	Close() error
	String() string
	IsReady() bool
	Board() pins.Board
}

// IoDriver is a digital GPIO backend. It applies electrical modes on behalf
// of a pins.Registry and drives or samples configured pins.
type IoDriver interface {
	Device
	pins.Driver
	DigitalRead(pin uint8) (bool, error)
	DigitalWrite(pin uint8, state bool) error
}

// AnalogDriver samples analog-capable pins. It satisfies
// sensors.AnalogReader.
type AnalogDriver interface {
	Device
	ReadAnalog(pin uint8) (uint16, error)
}

func MapAllIoDrivers() map[string]IoDriver {
	drivers := []IoDriver{
		&GpIO{},
		&McpIO{},
		&MockIoDriver{},
	}

	mapped := make(map[string]IoDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}

func MapAllAnalogDrivers() map[string]AnalogDriver {
	drivers := []AnalogDriver{
		&Mcp3008{},
		&MockIoDriver{},
	}

	mapped := make(map[string]AnalogDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}

func unsupported(driver string, pin uint8, mode pins.Mode) error {
	return errors.Wrapf(ErrUnsupportedMode, "%s cannot set pin %d to %s", driver, pin, mode)
}
