package drivers

import (
	"context"
	"sync"

	"github.com/hubertat/hwkit/pins"
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
)

const mcpioDriverName = "mcpio"

// McpIO drives the 16 pins of an MCP23017 I2C port expander. The chip has
// pull-ups only.
type McpIO struct {
	BusNo         uint8 `json:"bus_no" yaml:"bus_no"`
	DevNo         uint8 `json:"dev_no" yaml:"dev_no"`
	InvertInputs  bool  `json:"invert_inputs" yaml:"invert_inputs"`
	InvertOutputs bool  `json:"invert_outputs" yaml:"invert_outputs"`

	mu      sync.Mutex
	device  *mcp23017.Device
	outputs map[uint8]bool
	isReady bool
}

func (mcp *McpIO) Open(ctx context.Context) (err error) {
	mcp.mu.Lock()
	defer mcp.mu.Unlock()

	mcp.device, err = mcp23017.Open(mcp.BusNo, mcp.DevNo)
	if err != nil {
		return errors.Wrapf(err, "failed to open mcp23017 (bus %d, dev %d)", mcp.BusNo, mcp.DevNo)
	}
	mcp.outputs = make(map[uint8]bool)
	mcp.isReady = true
	return nil
}

func (mcp *McpIO) ConfigurePin(pin uint8, mode pins.Mode) (err error) {
	mcp.mu.Lock()
	defer mcp.mu.Unlock()

	if !mcp.isReady {
		return ErrNotReady
	}

	switch mode {
	case pins.Input, pins.InputPullup:
		err = mcp.device.PinMode(pin, mcp23017.INPUT)
		if err != nil {
			return
		}
		err = mcp.device.SetPullUp(pin, mode == pins.InputPullup)
	case pins.Output:
		err = mcp.device.PinMode(pin, mcp23017.OUTPUT)
		if err == nil {
			mcp.outputs[pin] = true
		}
	default:
		return unsupported(mcpioDriverName, pin, mode)
	}

	return errors.Wrapf(err, "mcp23017 pin %d", pin)
}

func (mcp *McpIO) DigitalRead(pin uint8) (state bool, err error) {
	mcp.mu.Lock()
	defer mcp.mu.Unlock()

	if !mcp.isReady {
		return false, ErrNotReady
	}

	raw, err := mcp.device.DigitalRead(pin)
	if err != nil {
		return
	}

	state = bool(raw)
	if mcp.outputs[pin] {
		if mcp.InvertOutputs {
			state = !state
		}
	} else if mcp.InvertInputs {
		state = !state
	}
	return
}

func (mcp *McpIO) DigitalWrite(pin uint8, state bool) error {
	mcp.mu.Lock()
	defer mcp.mu.Unlock()

	if !mcp.isReady || !mcp.outputs[pin] {
		return errors.Errorf("mcp23017 pin %d is not configured as output", pin)
	}
	if mcp.InvertOutputs {
		state = !state
	}

	return mcp.device.DigitalWrite(pin, mcp23017.PinLevel(state))
}

func (mcp *McpIO) String() string {
	return mcpioDriverName
}

func (mcp *McpIO) Board() pins.Board {
	return pins.MCP23017
}

func (mcp *McpIO) IsReady() bool {
	mcp.mu.Lock()
	defer mcp.mu.Unlock()

	return mcp.isReady
}

func (mcp *McpIO) Close() error {
	mcp.mu.Lock()
	defer mcp.mu.Unlock()

	if !mcp.isReady {
		return nil
	}
	for pin := range mcp.outputs {
		mcp.device.DigitalWrite(pin, mcp23017.PinLevel(mcp.InvertOutputs))
	}
	mcp.isReady = false
	return mcp.device.Close()
}
