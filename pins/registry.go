package pins

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

var (
	ErrOutOfRange   = errors.New("pin out of range")
	ErrPinInUse     = errors.New("pin already in use")
	ErrModeConflict = errors.New("pin already configured with a different mode")
	ErrUnsupported  = errors.New("mode not supported by board")
	ErrInvalidMode  = errors.New("invalid pin mode")
)

// Driver applies an electrical mode to a physical pin. Implementations live
// in the drivers package.
type Driver interface {
	ConfigurePin(pin uint8, mode Mode) error
}

// Reservation is a single entry of the registry listing.
type Reservation struct {
	Pin  uint8
	Mode Mode
}

// Registry arbitrates exclusive ownership and configured mode of every pin
// on one board. A pin reports Free until it is explicitly configured, and
// always after it is released.
type Registry struct {
	mu     sync.Mutex
	board  Board
	mask   uint64
	modes  [MaxSupportedPins]Mode
	driver Driver
	logger *log.Logger
}

type Option func(*Registry)

// WithDriver makes the registry apply electrical modes through d once a
// reservation succeeds.
func WithDriver(d Driver) Option {
	return func(r *Registry) {
		r.driver = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

func NewRegistry(board Board, opts ...Option) (*Registry, error) {
	if err := board.validate(); err != nil {
		return nil, err
	}

	r := &Registry{board: board}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "pins",
			Level:  log.GetLevel(),
		})
	}

	return r, nil
}

func (r *Registry) Board() Board {
	return r.board
}

func (r *Registry) inRange(pin uint8) bool {
	return pin < r.board.MaxPins
}

func (r *Registry) used(pin uint8) bool {
	return r.mask&(uint64(1)<<pin) != 0
}

// caller holds lock
func (r *Registry) reserve(pin uint8) error {
	if !r.inRange(pin) {
		r.logger.Warn("cannot reserve pin", "pin", pin, "err", ErrOutOfRange)
		return errors.Wrapf(ErrOutOfRange, "pin %d (board %s has %d)", pin, r.board.Name, r.board.MaxPins)
	}
	if r.used(pin) {
		r.logger.Warn("cannot reserve pin", "pin", pin, "err", ErrPinInUse)
		return errors.Wrapf(ErrPinInUse, "pin %d", pin)
	}

	r.mask |= uint64(1) << pin
	return nil
}

// caller holds lock
func (r *Registry) release(pin uint8) {
	if !r.inRange(pin) {
		return
	}
	r.mask &^= uint64(1) << pin
	r.modes[pin] = Free
}

// Reserve marks pin as owned without touching its electrical mode.
func (r *Registry) Reserve(pin uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.reserve(pin)
}

// Release frees pin. Out-of-range and already free pins are ignored.
func (r *Registry) Release(pin uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.release(pin)
}

// caller holds lock
func (r *Registry) apply(pin uint8, mode Mode) error {
	if err := r.reserve(pin); err != nil {
		return err
	}
	r.modes[pin] = mode

	if r.driver != nil {
		if err := r.driver.ConfigurePin(pin, mode); err != nil {
			r.release(pin)
			r.logger.Error("driver refused pin mode", "pin", pin, "mode", mode, "err", err)
			return errors.Wrapf(err, "failed to configure pin %d as %s", pin, mode)
		}
	}

	return nil
}

// configure reserves pin with mode, or accepts an existing reservation that
// already carries the same mode. A conflicting reservation is never
// overwritten.
func (r *Registry) configure(pin uint8, mode Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inRange(pin) && r.used(pin) {
		if r.modes[pin] != mode {
			r.logger.Warn("pin mode conflict", "pin", pin, "current", r.modes[pin], "requested", mode)
			return errors.Wrapf(ErrModeConflict, "pin %d is %s, requested %s", pin, r.modes[pin], mode)
		}
		return nil
	}

	return r.apply(pin, mode)
}

// ConfigureOutput reserves pin as a push-pull or open-drain output.
func (r *Registry) ConfigureOutput(pin uint8, openDrain bool) error {
	if !r.inRange(pin) {
		return errors.Wrapf(ErrOutOfRange, "pin %d", pin)
	}

	mode := Output
	if openDrain {
		if !r.board.OpenDrain {
			r.logger.Warn("open-drain not supported", "board", r.board.Name, "pin", pin)
			return errors.Wrapf(ErrUnsupported, "open-drain on board %s", r.board.Name)
		}
		mode = OutputOpenDrain
	}

	return r.configure(pin, mode)
}

// ConfigureInput reserves pin as an input with the requested pull.
func (r *Registry) ConfigureInput(pin uint8, pullup, pulldown bool) error {
	if pullup && pulldown {
		r.logger.Warn("cannot enable both pull-up and pull-down", "pin", pin)
		return errors.Wrapf(ErrInvalidMode, "pin %d: pull-up and pull-down requested together", pin)
	}
	if !r.inRange(pin) {
		return errors.Wrapf(ErrOutOfRange, "pin %d", pin)
	}

	mode := Input
	switch {
	case pullup:
		mode = InputPullup
	case pulldown:
		if !r.board.Pulldown {
			r.logger.Warn("pull-down not supported", "board", r.board.Name, "pin", pin)
			return errors.Wrapf(ErrUnsupported, "pull-down on board %s", r.board.Name)
		}
		mode = InputPulldown
	}

	return r.configure(pin, mode)
}

// Claim reserves pin exclusively and configures it with mode in one step.
// Unlike ConfigureInput/ConfigureOutput it fails on any existing
// reservation, including one with the same mode; peripherals use it so two
// of them can never share a pin.
func (r *Registry) Claim(pin uint8, mode Mode) error {
	switch mode {
	case Free:
		return r.Reserve(pin)
	case InputPulldown:
		if !r.board.Pulldown {
			return errors.Wrapf(ErrUnsupported, "pull-down on board %s", r.board.Name)
		}
	case OutputOpenDrain:
		if !r.board.OpenDrain {
			return errors.Wrapf(ErrUnsupported, "open-drain on board %s", r.board.Name)
		}
	case Input, InputPullup, Output:
	default:
		return errors.Wrapf(ErrInvalidMode, "mode %d", mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apply(pin, mode)
}

// Mode returns the configured mode, Free for unknown pins.
func (r *Registry) Mode(pin uint8) Mode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inRange(pin) {
		return Free
	}
	return r.modes[pin]
}

func (r *Registry) IsUsed(pin uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.inRange(pin) && r.used(pin)
}

func (r *Registry) IsAnalogCapable(pin uint8) bool {
	return r.inRange(pin) && contains(r.board.AnalogPins, pin)
}

func (r *Registry) IsDigitalCapable(pin uint8) bool {
	return r.inRange(pin)
}

func (r *Registry) IsPWMCapable(pin uint8) bool {
	return r.inRange(pin) && contains(r.board.PWMPins, pin)
}

// Reserved lists reserved pins by increasing index.
func (r *Registry) Reserved() (list []Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pin := uint8(0); pin < r.board.MaxPins; pin++ {
		if r.used(pin) {
			list = append(list, Reservation{Pin: pin, Mode: r.modes[pin]})
		}
	}
	return
}

// Dump writes the reserved pins and their modes to w.
func (r *Registry) Dump(w io.Writer) {
	fmt.Fprintf(w, "[pins] reserved pins (%s):\n", r.board.Name)

	list := r.Reserved()
	if len(list) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, res := range list {
		fmt.Fprintf(w, "  pin %d - %s\n", res.Pin, res.label())
	}
}

func (res Reservation) label() string {
	if res.Mode == Free {
		return "RESERVED"
	}
	return res.Mode.String()
}
