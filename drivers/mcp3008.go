package drivers

import (
	"context"
	"sync"

	"github.com/hubertat/hwkit/pins"
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const (
	mcp3008DriverName = "mcp3008"

	mcp3008Channels     = 8
	mcp3008DefaultSpeed = 1350000
)

// Mcp3008 reads the 8-channel 10-bit MCP3008 converter over the Raspberry Pi
// SPI0 bus. Pin numbers are converter channels.
type Mcp3008 struct {
	ChipSelect uint8 `json:"chip_select" yaml:"chip_select"`
	SpeedHz    int   `json:"speed_hz" yaml:"speed_hz"`

	mu      sync.Mutex
	isReady bool
}

func (adc *Mcp3008) Open(ctx context.Context) error {
	adc.mu.Lock()
	defer adc.mu.Unlock()

	if err := rpio.Open(); err != nil {
		return errors.Wrap(err, "failed to open gpio memory for spi")
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return errors.Wrap(err, "failed to begin spi0")
	}

	speed := adc.SpeedHz
	if speed <= 0 {
		speed = mcp3008DefaultSpeed
	}
	rpio.SpiSpeed(speed)
	rpio.SpiChipSelect(adc.ChipSelect)

	adc.isReady = true
	return nil
}

func (adc *Mcp3008) ReadAnalog(pin uint8) (uint16, error) {
	adc.mu.Lock()
	defer adc.mu.Unlock()

	if !adc.isReady {
		return 0, ErrNotReady
	}
	if pin >= mcp3008Channels {
		return 0, errors.Wrapf(pins.ErrOutOfRange, "mcp3008 channel %d", pin)
	}

	frame := mcp3008Request(pin)
	rpio.SpiExchange(frame)
	return mcp3008Decode(frame), nil
}

// mcp3008Request builds a single-ended conversion request: start bit, then
// SGL/DIFF=1 and the channel in the top nibble of the second byte.
func mcp3008Request(channel uint8) []byte {
	return []byte{0x01, (0x08 | channel) << 4, 0x00}
}

func mcp3008Decode(frame []byte) uint16 {
	return uint16(frame[1]&0x03)<<8 | uint16(frame[2])
}

func (adc *Mcp3008) String() string {
	return mcp3008DriverName
}

func (adc *Mcp3008) Board() pins.Board {
	return pins.MCP3008
}

func (adc *Mcp3008) IsReady() bool {
	adc.mu.Lock()
	defer adc.mu.Unlock()

	return adc.isReady
}

func (adc *Mcp3008) Close() error {
	adc.mu.Lock()
	defer adc.mu.Unlock()

	if !adc.isReady {
		return nil
	}
	adc.isReady = false
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}
