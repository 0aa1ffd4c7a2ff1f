package sensors

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hubertat/hwkit/internal/mathx"
	"github.com/hubertat/hwkit/pins"
	"github.com/hubertat/hwkit/storage"
	"github.com/pkg/errors"
)

var (
	ErrNotInitialized     = errors.New("sensor not initialized")
	ErrNoSamples          = errors.New("sample count must be positive")
	ErrNoStorage          = errors.New("no storage attached")
	ErrNoCalibration      = errors.New("no calibration stored")
	ErrInvalidCalibration = errors.New("invalid calibration")
)

const (
	DefaultSampleDelay = 10 * time.Millisecond
	DefaultAnalogMax   = 1023
)

// SoilSensor is a capacitive soil moisture probe on one analog pin. It turns
// raw converter readings into a 0..100 moisture percentage using a dry/wet
// calibration that can be persisted in a storage region.
type SoilSensor struct {
	mu sync.Mutex

	reg *pins.Registry
	adc AnalogReader
	pin uint8

	ready bool
	cal   Calibration

	backend storage.Backend
	key     uint16

	sampleDelay time.Duration
	analogMax   int
	logger      *log.Logger
}

type Option func(*SoilSensor)

func WithSampleDelay(d time.Duration) Option {
	return func(s *SoilSensor) {
		s.sampleDelay = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *SoilSensor) {
		s.logger = l
	}
}

// WithAnalogMax sets the full-scale converter reading used by the
// uncalibrated percentage mapping.
func WithAnalogMax(max int) Option {
	return func(s *SoilSensor) {
		if max > 0 {
			s.analogMax = max
		}
	}
}

func NewSoilSensor(reg *pins.Registry, adc AnalogReader, pin uint8, opts ...Option) *SoilSensor {
	s := &SoilSensor{
		reg:         reg,
		adc:         adc,
		pin:         pin,
		cal:         DefaultCalibration(),
		sampleDelay: DefaultSampleDelay,
		analogMax:   DefaultAnalogMax,
	}
	if reg != nil {
		s.analogMax = reg.Board().FullScale()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "soil",
			Level:  log.GetLevel(),
		})
	}

	return s
}

func (s *SoilSensor) Pin() uint8 {
	return s.pin
}

func (s *SoilSensor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ready
}

// AttachStorage records where the calibration lives. Nothing is read or
// written until Load/Save is called.
func (s *SoilSensor) AttachStorage(backend storage.Backend, key uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backend = backend
	s.key = key
}

// Begin claims the pin as an input and resolves the active calibration.
// A valid explicit calibration wins and is persisted; otherwise a stored
// record is loaded; otherwise the sensor stays uncalibrated.
func (s *SoilSensor) Begin(explicit Calibration) error {
	if s.adc == nil {
		return errors.New("no analog reader")
	}
	if s.reg == nil {
		return errors.New("no pin registry")
	}
	if err := s.reg.Claim(s.pin, pins.Input); err != nil {
		return errors.Wrapf(err, "soil sensor on pin %d", s.pin)
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	if explicit.Valid() {
		s.SetCalibration(explicit.DryRaw, explicit.WetRaw, false)
		if err := s.SaveCalibration(); err != nil && !errors.Is(err, ErrNoStorage) {
			s.logger.Warn("failed to persist explicit calibration", "pin", s.pin, "err", err)
		}
		s.logger.Info("using explicit calibration", "pin", s.pin, "calibration", explicit)
		return nil
	}

	if err := s.LoadCalibration(); err != nil {
		s.logger.Debug("no stored calibration", "pin", s.pin, "err", err)
		s.mu.Lock()
		s.cal = DefaultCalibration()
		s.mu.Unlock()
		return nil
	}

	s.logger.Info("loaded calibration", "pin", s.pin, "calibration", s.Calibration())
	return nil
}

// Close releases the pin. The sensor must be started again with Begin.
func (s *SoilSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}
	s.ready = false
	s.reg.Release(s.pin)
	return nil
}

func (s *SoilSensor) ReadRaw() (int, error) {
	if !s.Ready() {
		return 0, ErrNotInitialized
	}

	v, err := s.adc.ReadAnalog(s.pin)
	if err != nil {
		return 0, errors.Wrapf(err, "read pin %d", s.pin)
	}
	return int(v), nil
}

// ReadAveraged returns the truncated mean of samples readings spaced by the
// sample delay.
func (s *SoilSensor) ReadAveraged(samples int) (int, error) {
	if !s.Ready() {
		return 0, ErrNotInitialized
	}
	if samples <= 0 {
		return 0, ErrNoSamples
	}

	var sum int64
	for i := 0; i < samples; i++ {
		if i > 0 && s.sampleDelay > 0 {
			time.Sleep(s.sampleDelay)
		}
		v, err := s.ReadRaw()
		if err != nil {
			return 0, err
		}
		sum += int64(v)
	}

	return int(sum / int64(samples)), nil
}

// ReadPercent maps a raw reading onto 0..100 where 100 is the wet end.
// Without a valid calibration the full converter range is used.
func (s *SoilSensor) ReadPercent() (int, error) {
	raw, err := s.ReadRaw()
	if err != nil {
		return 0, err
	}

	return s.Percent(raw), nil
}

// Percent converts raw with the active calibration.
func (s *SoilSensor) Percent(raw int) int {
	s.mu.Lock()
	cal := s.cal
	full := s.analogMax
	s.mu.Unlock()

	if !cal.Valid() {
		return mathx.Clamp(mathx.Map(raw, 0, full, 0, 100), 0, 100)
	}

	dry, wet := int(cal.DryRaw), int(cal.WetRaw)
	raw = mathx.Clamp(raw, mathx.Min(dry, wet), mathx.Max(dry, wet))
	return mathx.Clamp(mathx.Map(raw, wet, dry, 100, 0), 0, 100)
}

// SetCalibration replaces the active calibration without validating it.
// With persist set and storage attached the record is saved as well.
func (s *SoilSensor) SetCalibration(dry, wet int16, persist bool) error {
	s.mu.Lock()
	s.cal = NewCalibration(dry, wet)
	attached := s.backend != nil
	s.mu.Unlock()

	if persist && attached {
		return s.SaveCalibration()
	}
	return nil
}

func (s *SoilSensor) HasCalibration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cal.Valid()
}

func (s *SoilSensor) Calibration() Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cal
}

// LoadCalibration replaces the active calibration with the stored record.
// On any failure the active calibration is left untouched.
func (s *SoilSensor) LoadCalibration() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return ErrNoStorage
	}
	if !s.backend.IsUsed(s.key, CalibrationSize) {
		return ErrNoCalibration
	}

	buf := make([]byte, CalibrationSize)
	if err := s.backend.Read(s.key, buf); err != nil {
		return errors.Wrapf(err, "read calibration at %d", s.key)
	}

	var cal Calibration
	if err := cal.UnmarshalBinary(buf); err != nil {
		return err
	}
	if !cal.Valid() {
		return errors.Wrapf(ErrInvalidCalibration, "stored record %s", describe(cal))
	}

	s.cal = cal
	return nil
}

// SaveCalibration writes the active calibration into the storage region.
func (s *SoilSensor) SaveCalibration() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return ErrNoStorage
	}
	if !s.cal.Valid() {
		return errors.Wrapf(ErrInvalidCalibration, "refusing to save %s", describe(s.cal))
	}

	buf, _ := s.cal.MarshalBinary()
	if err := s.backend.Write(s.key, buf); err != nil {
		return errors.Wrapf(err, "write calibration at %d", s.key)
	}
	return nil
}

// ClearCalibration resets to the uncalibrated default and erases the stored
// record if storage is attached.
func (s *SoilSensor) ClearCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cal = DefaultCalibration()
	if s.backend == nil {
		return
	}
	if err := s.backend.Clear(s.key, CalibrationSize); err != nil {
		s.logger.Warn("failed to erase stored calibration", "key", s.key, "err", err)
	}
}

func describe(c Calibration) string {
	return fmt.Sprintf("dry=%d wet=%d", c.DryRaw, c.WetRaw)
}
