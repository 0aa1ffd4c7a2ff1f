package display

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hubertat/hwkit/pins"
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"
)

const (
	Columns = 16
	Rows    = 2

	DefaultAddress uint8 = 0x27
)

var (
	ErrInvalidConfig  = errors.New("lcd pins not reserved")
	ErrNotFound       = errors.New("lcd not responding on i2c bus")
	ErrNotInitialized = errors.New("lcd not initialized")
	ErrInvalidRow     = errors.New("lcd row out of range")
)

var blankLine = []byte(strings.Repeat(" ", Columns))

// LCD1602 is a 16x2 character display behind a PCF8574 I2C backpack. The
// SDA and SCL pins are held in the registry for the lifetime of the value.
type LCD1602 struct {
	mu sync.Mutex

	reg  *pins.Registry
	bus  drivers.I2C
	sda  uint8
	scl  uint8
	addr uint8

	dev    hd44780i2c.Device
	valid  bool
	ready  bool
	logger *log.Logger
}

type Option func(*LCD1602)

func WithAddress(addr uint8) Option {
	return func(l *LCD1602) {
		if addr != 0 {
			l.addr = addr
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *LCD1602) {
		l.logger = logger
	}
}

// NewLCD1602 reserves sda and scl. If either is taken neither stays
// reserved and the returned display reports an invalid configuration.
func NewLCD1602(reg *pins.Registry, bus drivers.I2C, sda, scl uint8, opts ...Option) (*LCD1602, error) {
	l := &LCD1602{
		reg:  reg,
		bus:  bus,
		sda:  sda,
		scl:  scl,
		addr: DefaultAddress,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "lcd",
			Level:  log.GetLevel(),
		})
	}

	if err := reg.Reserve(sda); err != nil {
		return l, errors.Wrapf(err, "lcd sda pin %d", sda)
	}
	if err := reg.Reserve(scl); err != nil {
		reg.Release(sda)
		return l, errors.Wrapf(err, "lcd scl pin %d", scl)
	}

	l.valid = true
	return l, nil
}

// ValidConfiguration reports whether both bus pins are reserved. It says
// nothing about Begin.
func (l *LCD1602) ValidConfiguration() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.valid
}

func (l *LCD1602) probe() error {
	if err := l.bus.Tx(uint16(l.addr), nil, make([]byte, 1)); err != nil {
		return errors.Wrapf(ErrNotFound, "address 0x%02x: %v", l.addr, err)
	}
	return nil
}

// Begin checks the backpack answers, then initializes the controller in
// 4-bit mode, clears the screen and turns on the backlight.
func (l *LCD1602) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.valid || l.bus == nil {
		return ErrInvalidConfig
	}
	if err := l.probe(); err != nil {
		l.logger.Warn("lcd probe failed", "addr", l.addr, "err", err)
		return err
	}

	l.dev = hd44780i2c.New(l.bus, l.addr)
	if err := l.dev.Configure(hd44780i2c.Config{Width: Columns, Height: Rows}); err != nil {
		return errors.Wrap(err, "failed to configure lcd")
	}
	l.dev.ClearDisplay()
	l.dev.BacklightOn(true)

	l.ready = true
	l.logger.Debug("lcd ready", "addr", l.addr, "sda", l.sda, "scl", l.scl)
	return nil
}

func (l *LCD1602) IsReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.ready
}

func (l *LCD1602) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return ErrNotInitialized
	}
	l.dev.ClearDisplay()
	return nil
}

// PrintLine blanks row and writes text from its first column. Text longer
// than the display is cut.
func (l *LCD1602) PrintLine(row uint8, text string) error {
	if row >= Rows {
		return errors.Wrapf(ErrInvalidRow, "row %d", row)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return ErrNotInitialized
	}

	l.dev.SetCursor(0, row)
	l.dev.Print(blankLine)
	l.dev.SetCursor(0, row)
	l.dev.Print([]byte(fitLine(text)))
	return nil
}

func fitLine(text string) string {
	if len(text) > Columns {
		return text[:Columns]
	}
	return text
}

// Close turns the backlight off and releases the bus pins.
func (l *LCD1602) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ready {
		l.dev.BacklightOn(false)
		l.ready = false
	}
	if l.valid {
		l.reg.Release(l.sda)
		l.reg.Release(l.scl)
		l.valid = false
	}
	return nil
}
