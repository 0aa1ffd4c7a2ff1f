package drivers

import (
	"context"
	"sync"

	"github.com/hubertat/hwkit/pins"
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const gpioDriverName = "gpio"

// GpIO drives Raspberry Pi header pins (BCM numbering) through /dev/gpiomem.
type GpIO struct {
	InvertInputs  bool `json:"invert_inputs" yaml:"invert_inputs"`
	InvertOutputs bool `json:"invert_outputs" yaml:"invert_outputs"`

	mu      sync.Mutex
	outputs map[uint8]bool
	isReady bool
}

func (gp *GpIO) Open(ctx context.Context) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if err := rpio.Open(); err != nil {
		return errors.Wrap(err, "failed to open gpio driver")
	}
	gp.outputs = make(map[uint8]bool)
	gp.isReady = true
	return nil
}

func (gp *GpIO) ConfigurePin(pin uint8, mode pins.Mode) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if !gp.isReady {
		return ErrNotReady
	}

	p := rpio.Pin(pin)
	switch mode {
	case pins.Input:
		p.Input()
		p.PullOff()
	case pins.InputPullup:
		p.Input()
		p.PullUp()
	case pins.InputPulldown:
		p.Input()
		p.PullDown()
	case pins.Output:
		p.Output()
		gp.outputs[pin] = true
	default:
		return unsupported(gpioDriverName, pin, mode)
	}

	return nil
}

func (gp *GpIO) DigitalRead(pin uint8) (state bool, err error) {
	if !gp.IsReady() {
		return false, ErrNotReady
	}

	state = rpio.Pin(pin).Read() == rpio.High
	if gp.isOutput(pin) {
		if gp.InvertOutputs {
			state = !state
		}
	} else if gp.InvertInputs {
		state = !state
	}
	return
}

func (gp *GpIO) DigitalWrite(pin uint8, state bool) error {
	if !gp.isOutput(pin) {
		return errors.Errorf("gpio pin %d is not configured as output", pin)
	}

	if gp.InvertOutputs {
		state = !state
	}
	if state {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}

	return nil
}

func (gp *GpIO) isOutput(pin uint8) bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.isReady && gp.outputs[pin]
}

func (gp *GpIO) String() string {
	return gpioDriverName
}

func (gp *GpIO) Board() pins.Board {
	return pins.RaspberryPi
}

func (gp *GpIO) IsReady() bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.isReady
}

// Close drives every output to its inactive level and releases the memory
// mapping.
func (gp *GpIO) Close() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if !gp.isReady {
		return nil
	}
	for pin := range gp.outputs {
		if gp.InvertOutputs {
			rpio.Pin(pin).High()
		} else {
			rpio.Pin(pin).Low()
		}
	}
	gp.isReady = false
	return rpio.Close()
}
