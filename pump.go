package hwkit

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/hwkit/actuators"
)

// Pump is a configured dosing pump. CalibrationMl collected over
// CalibrationMs gives its flow rate.
type Pump struct {
	Name           string `json:"name" yaml:"name"`
	DriverName     string `json:"driver" yaml:"driver"`
	Pin1           uint8  `json:"pin1" yaml:"pin1"`
	Pin2           uint8  `json:"pin2" yaml:"pin2"`
	MaxRunTime     string `json:"max_run_time" yaml:"max_run_time"`
	CalibrationMl  uint32 `json:"calibration_ml" yaml:"calibration_ml"`
	CalibrationMs  uint32 `json:"calibration_ms" yaml:"calibration_ms"`
	DisableHomekit bool   `json:"disable_homekit" yaml:"disable_homekit"`

	pump   *actuators.Pump
	logger *log.Logger

	hk    *accessory.Switch
	state bool

	lock sync.Mutex
}

func (p *Pump) GetDriverName() string {
	return p.DriverName
}

func (p *Pump) GetUniqueId() uint64 {
	hash := fnv.New64()
	hash.Write([]byte("Pump_" + p.Name))
	return hash.Sum64()
}

func (p *Pump) Init(d *device, logger *log.Logger) error {
	if d.io == nil {
		return errors.Errorf("pump %s: driver %s has no digital outputs", p.Name, d.dev)
	}

	p.logger = logger.WithPrefix("pump/" + p.Name)
	opts := []actuators.Option{actuators.WithLogger(p.logger)}
	if len(p.MaxRunTime) > 0 {
		maxRun, err := time.ParseDuration(p.MaxRunTime)
		if err != nil {
			return errors.Wrapf(err, "pump %s: invalid max_run_time", p.Name)
		}
		opts = append(opts, actuators.WithMaxRunTime(maxRun))
	}

	p.pump = actuators.NewPump(d.registry, d.io, p.Pin1, p.Pin2, opts...)
	if err := p.pump.Begin(); err != nil {
		return errors.Wrapf(err, "failed to start pump %s", p.Name)
	}

	if p.CalibrationMl > 0 && p.CalibrationMs > 0 {
		span := time.Duration(p.CalibrationMs) * time.Millisecond
		if err := p.pump.RecordCalibration(p.CalibrationMl, span); err != nil {
			return errors.Wrapf(err, "pump %s calibration", p.Name)
		}
	}

	if !p.DisableHomekit {
		p.initHk()
	}
	return nil
}

func (p *Pump) initHk() {
	info := accessory.Info{
		Name:         p.Name,
		SerialNumber: fmt.Sprintf("pump:%s:%02d-%02d", p.DriverName, p.Pin1, p.Pin2),
	}
	p.hk = accessory.NewSwitch(info)
	p.hk.Switch.On.OnValueRemoteUpdate(p.SetValue)
}

func (p *Pump) Actuator() *actuators.Pump {
	return p.pump
}

// SetValue switches the pump from HomeKit. Turning it on starts a dispense
// limited by the max run time.
func (p *Pump) SetValue(on bool) {
	var err error
	if on {
		err = p.pump.StartDispenseFor(p.pump.MaxRunTime())
	} else {
		err = p.pump.TurnOff()
	}
	if err != nil {
		p.logger.Error("failed to switch pump", "on", on, "err", err)
	}
}

// Dispense starts a non-blocking run of d, or of the time needed for ml when
// d is zero.
func (p *Pump) Dispense(d time.Duration, ml uint32) (time.Duration, error) {
	if d == 0 && ml > 0 {
		var err error
		d, err = p.pump.DurationFor(ml)
		if err != nil {
			return 0, err
		}
	}
	if err := p.pump.StartDispenseFor(d); err != nil {
		return 0, err
	}
	p.logger.Info("dispensing", "duration", d, "ml", ml)
	return d, nil
}

// DispenseBlocking runs the pump for d and waits for it to stop.
func (p *Pump) DispenseBlocking(ctx context.Context, d time.Duration) error {
	return p.pump.DispenseFor(ctx, d)
}

// Sync stops an expired dispense and mirrors the state to HomeKit.
func (p *Pump) Sync(now time.Time) error {
	if p.pump == nil {
		return nil
	}
	if err := p.pump.Update(now); err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	active := p.pump.IsActive()
	if active != p.state && p.hk != nil {
		p.hk.Switch.On.SetValue(active)
	}
	p.state = active
	return nil
}

func (p *Pump) GetHk() *accessory.A {
	if p.hk == nil {
		return nil
	}
	return p.hk.A
}

func (p *Pump) Close() error {
	if p.pump == nil {
		return nil
	}
	return p.pump.Close()
}
