package actuators

import (
	"context"
	"math"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hubertat/hwkit/pins"
	"github.com/pkg/errors"
)

var (
	ErrNotInitialized    = errors.New("pump not initialized")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrExceedsMaxRunTime = errors.New("duration exceeds max run time")
	ErrNotCalibrated     = errors.New("pump not calibrated")
	ErrBusy              = errors.New("pump already dispensing")
)

const DefaultMaxRunTime = 30 * time.Second

// OutputWriter drives a configured digital output.
type OutputWriter interface {
	DigitalWrite(pin uint8, state bool) error
}

// Pump drives a DC peristaltic pump through an H-bridge: pin1 high and pin2
// low runs it forward, both low stops it.
type Pump struct {
	mu sync.Mutex

	reg  *pins.Registry
	out  OutputWriter
	pin1 uint8
	pin2 uint8

	maxRunTime time.Duration
	mlPerMs    float64

	valid  bool
	active bool
	stopAt time.Time

	now    func() time.Time
	logger *log.Logger
}

type Option func(*Pump)

func WithMaxRunTime(d time.Duration) Option {
	return func(p *Pump) {
		if d > 0 {
			p.maxRunTime = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Pump) {
		p.logger = l
	}
}

// WithClock replaces time.Now for the non-blocking dispense deadline.
func WithClock(now func() time.Time) Option {
	return func(p *Pump) {
		p.now = now
	}
}

func NewPump(reg *pins.Registry, out OutputWriter, pin1, pin2 uint8, opts ...Option) *Pump {
	p := &Pump{
		reg:        reg,
		out:        out,
		pin1:       pin1,
		pin2:       pin2,
		maxRunTime: DefaultMaxRunTime,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "pump",
			Level:  log.GetLevel(),
		})
	}

	return p
}

// Begin claims both pins as outputs and leaves the pump stopped. If the
// second pin cannot be claimed the first one is released.
func (p *Pump) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pin1 == p.pin2 {
		return errors.Errorf("pump pins must differ (both %d)", p.pin1)
	}
	if err := p.reg.Claim(p.pin1, pins.Output); err != nil {
		return errors.Wrapf(err, "pump pin %d", p.pin1)
	}
	if err := p.reg.Claim(p.pin2, pins.Output); err != nil {
		p.reg.Release(p.pin1)
		return errors.Wrapf(err, "pump pin %d", p.pin2)
	}

	p.valid = true
	if err := p.stop(); err != nil {
		p.valid = false
		p.reg.Release(p.pin1)
		p.reg.Release(p.pin2)
		return err
	}
	return nil
}

// caller holds lock
func (p *Pump) drive(in1, in2 bool) error {
	if !p.valid {
		return ErrNotInitialized
	}
	if err := p.out.DigitalWrite(p.pin1, in1); err != nil {
		return errors.Wrapf(err, "pump pin %d", p.pin1)
	}
	if err := p.out.DigitalWrite(p.pin2, in2); err != nil {
		return errors.Wrapf(err, "pump pin %d", p.pin2)
	}
	return nil
}

// caller holds lock
func (p *Pump) start() error {
	if err := p.drive(true, false); err != nil {
		return err
	}
	p.active = true
	return nil
}

// caller holds lock
func (p *Pump) stop() error {
	p.stopAt = time.Time{}
	if err := p.drive(false, false); err != nil {
		return err
	}
	p.active = false
	return nil
}

func (p *Pump) TurnOn() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopAt = time.Time{}
	return p.start()
}

func (p *Pump) TurnOff() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stop()
}

// caller holds lock
func (p *Pump) checkDuration(d time.Duration) error {
	if !p.valid {
		return ErrNotInitialized
	}
	if d <= 0 {
		return ErrInvalidDuration
	}
	if d > p.maxRunTime {
		return errors.Wrapf(ErrExceedsMaxRunTime, "%s > %s", d, p.maxRunTime)
	}
	if p.active {
		return ErrBusy
	}
	return nil
}

// DispenseFor runs the pump for d and blocks until it is stopped again.
// Cancelling ctx stops the pump early and returns the context error.
func (p *Pump) DispenseFor(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	if err := p.checkDuration(d); err != nil {
		p.mu.Unlock()
		return err
	}
	if err := p.start(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	p.logger.Debug("dispensing", "pins", []uint8{p.pin1, p.pin2}, "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	var cancelled error
	select {
	case <-timer.C:
	case <-ctx.Done():
		cancelled = ctx.Err()
	}

	if err := p.TurnOff(); err != nil {
		return err
	}
	return cancelled
}

// StartDispenseFor turns the pump on and returns immediately. Update stops
// it once d has elapsed.
func (p *Pump) StartDispenseFor(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkDuration(d); err != nil {
		return err
	}
	if err := p.start(); err != nil {
		return err
	}
	p.stopAt = p.now().Add(d)
	return nil
}

// Update stops a non-blocking dispense whose deadline has passed.
func (p *Pump) Update(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || p.stopAt.IsZero() || now.Before(p.stopAt) {
		return nil
	}
	return p.stop()
}

// RecordCalibration stores the flow rate measured by running the pump for d
// and collecting ml millilitres.
func (p *Pump) RecordCalibration(ml uint32, d time.Duration) error {
	if ml == 0 {
		return errors.New("calibration volume must be positive")
	}
	if d < time.Millisecond {
		return ErrInvalidDuration
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.mlPerMs = float64(ml) / float64(d.Milliseconds())
	return nil
}

// DurationFor converts a volume into run time using the recorded flow rate.
func (p *Pump) DurationFor(ml uint32) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mlPerMs <= 0 {
		return 0, ErrNotCalibrated
	}
	ms := math.Round(float64(ml) / p.mlPerMs)
	return time.Duration(ms) * time.Millisecond, nil
}

func (p *Pump) DispenseML(ctx context.Context, ml uint32) error {
	d, err := p.DurationFor(ml)
	if err != nil {
		return err
	}
	return p.DispenseFor(ctx, d)
}

func (p *Pump) SetMaxRunTime(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidDuration
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.maxRunTime = d
	return nil
}

func (p *Pump) MaxRunTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.maxRunTime
}

func (p *Pump) MlPerMs() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mlPerMs
}

func (p *Pump) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active
}

func (p *Pump) IsValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.valid
}

func (p *Pump) IsCalibrated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mlPerMs > 0
}

func (p *Pump) Pins() (uint8, uint8) {
	return p.pin1, p.pin2
}

// Close stops the pump and releases both pins.
func (p *Pump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid {
		return nil
	}
	err := p.stop()
	p.valid = false
	p.reg.Release(p.pin1)
	p.reg.Release(p.pin2)
	return err
}
