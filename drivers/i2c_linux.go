package drivers

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ioctl request selecting the slave address on an i2c-dev file descriptor.
const i2cSlave = 0x0703

// I2CBus is a Linux /dev/i2c-N adapter. It implements the tinygo drivers
// I2C interface so tinygo device drivers run on a Linux host.
type I2CBus struct {
	mu   sync.Mutex
	fd   int
	addr uint16
	path string
}

func OpenI2C(busNo uint8) (*I2CBus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", busNo)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return &I2CBus{fd: fd, path: path, addr: 0xFFFF}, nil
}

// caller holds lock
func (bus *I2CBus) selectAddr(addr uint16) error {
	if bus.addr == addr {
		return nil
	}
	if err := unix.IoctlSetInt(bus.fd, i2cSlave, int(addr)); err != nil {
		return errors.Wrapf(err, "%s: select address 0x%02x", bus.path, addr)
	}
	bus.addr = addr
	return nil
}

// Tx writes w and then reads len(r) bytes from the device at addr.
func (bus *I2CBus) Tx(addr uint16, w, r []byte) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if err := bus.selectAddr(addr); err != nil {
		return err
	}
	if len(w) > 0 {
		if _, err := unix.Write(bus.fd, w); err != nil {
			return errors.Wrapf(err, "%s: write to 0x%02x", bus.path, addr)
		}
	}
	if len(r) > 0 {
		if _, err := unix.Read(bus.fd, r); err != nil {
			return errors.Wrapf(err, "%s: read from 0x%02x", bus.path, addr)
		}
	}
	return nil
}

func (bus *I2CBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return bus.Tx(uint16(addr), []byte{reg}, buf)
}

func (bus *I2CBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return bus.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func (bus *I2CBus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	return unix.Close(bus.fd)
}
