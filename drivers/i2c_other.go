//go:build !linux

package drivers

import "github.com/pkg/errors"

// I2CBus is only available on Linux.
type I2CBus struct{}

func OpenI2C(busNo uint8) (*I2CBus, error) {
	return nil, errors.Errorf("i2c bus %d: i2c-dev is only supported on linux", busNo)
}

func (bus *I2CBus) Tx(addr uint16, w, r []byte) error {
	return errors.New("i2c not supported")
}

func (bus *I2CBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return bus.Tx(uint16(addr), nil, nil)
}

func (bus *I2CBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return bus.Tx(uint16(addr), nil, nil)
}

func (bus *I2CBus) Close() error {
	return nil
}
