package hwkit

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/hwkit/sensors"
	"github.com/hubertat/hwkit/storage"
	"github.com/hubertat/hwkit/telemetry"
)

const defaultSamples = 4

// MoistureSensor is a configured soil sensor. DryRaw and WetRaw, when both
// set and valid, override any stored calibration.
type MoistureSensor struct {
	Name           string  `json:"name" yaml:"name"`
	DriverName     string  `json:"driver" yaml:"driver"`
	Pin            uint8   `json:"pin" yaml:"pin"`
	DryRaw         *int16  `json:"dry_raw,omitempty" yaml:"dry_raw,omitempty"`
	WetRaw         *int16  `json:"wet_raw,omitempty" yaml:"wet_raw,omitempty"`
	StorageKey     *uint16 `json:"storage_key,omitempty" yaml:"storage_key,omitempty"`
	Samples        int     `json:"samples" yaml:"samples"`
	DisableHomekit bool    `json:"disable_homekit" yaml:"disable_homekit"`

	sensor *sensors.SoilSensor

	last    telemetry.Reading
	lastErr error

	hk       *accessory.A
	humidity *characteristic.CurrentRelativeHumidity
	fault    *characteristic.StatusFault

	lock sync.Mutex
}

// storageKey defaults to consecutive, non-overlapping records. The record
// must fit into a region of size bytes.
func (ms *MoistureSensor) storageKey(index, size int) (uint16, error) {
	key := index * sensors.CalibrationSize
	if ms.StorageKey != nil {
		key = int(*ms.StorageKey)
	}
	if key+sensors.CalibrationSize > size {
		return 0, errors.Wrapf(storage.ErrOutOfRange, "sensor %s: calibration at %d does not fit %d bytes", ms.Name, key, size)
	}
	return uint16(key), nil
}

func (ms *MoistureSensor) GetDriverName() string {
	return ms.DriverName
}

func (ms *MoistureSensor) GetUniqueId() uint64 {
	hash := fnv.New64()
	hash.Write([]byte("MoistureSensor_" + ms.Name))
	return hash.Sum64()
}

func (ms *MoistureSensor) Init(d *device, store storage.Backend, key uint16, logger *log.Logger) error {
	if d.analog == nil {
		return errors.Errorf("sensor %s: driver %s has no analog inputs", ms.Name, d.dev)
	}

	ms.sensor = sensors.NewSoilSensor(d.registry, d.analog, ms.Pin,
		sensors.WithLogger(logger.WithPrefix("soil/"+ms.Name)),
		sensors.WithAnalogMax(d.dev.Board().FullScale()))
	if store != nil {
		ms.sensor.AttachStorage(store, key)
	}

	if err := ms.sensor.Begin(ms.explicitCalibration(logger)); err != nil {
		return errors.Wrapf(err, "failed to start sensor %s", ms.Name)
	}

	if !ms.DisableHomekit {
		ms.initHk()
	}
	return nil
}

// explicitCalibration is the configured record, or the uncalibrated default
// unless both ends are given.
func (ms *MoistureSensor) explicitCalibration(logger *log.Logger) sensors.Calibration {
	if ms.DryRaw == nil || ms.WetRaw == nil {
		if ms.DryRaw != nil || ms.WetRaw != nil {
			logger.Warn("ignoring partial calibration, both dry_raw and wet_raw are needed", "sensor", ms.Name)
		}
		return sensors.DefaultCalibration()
	}
	return sensors.NewCalibration(*ms.DryRaw, *ms.WetRaw)
}

func (ms *MoistureSensor) initHk() {
	info := accessory.Info{
		Name:         ms.Name,
		SerialNumber: fmt.Sprintf("soil:%s:%02d", ms.DriverName, ms.Pin),
	}
	ms.hk = accessory.New(info, accessory.TypeSensor)

	svc := service.NewHumiditySensor()
	ms.humidity = svc.CurrentRelativeHumidity

	ms.fault = characteristic.NewStatusFault()
	ms.fault.SetValue(characteristic.StatusFaultNoFault)
	svc.AddC(ms.fault.C)

	ms.hk.AddS(svc.S)
}

func (ms *MoistureSensor) Sensor() *sensors.SoilSensor {
	return ms.sensor
}

// Read samples the probe without touching the cached reading.
func (ms *MoistureSensor) Read() (telemetry.Reading, error) {
	if ms.sensor == nil {
		return telemetry.Reading{}, errors.Wrapf(sensors.ErrNotInitialized, "sensor %s", ms.Name)
	}

	samples := ms.Samples
	if samples <= 0 {
		samples = defaultSamples
	}
	raw, err := ms.sensor.ReadAveraged(samples)
	if err != nil {
		return telemetry.Reading{}, errors.Wrapf(err, "sensor %s", ms.Name)
	}

	return telemetry.Reading{
		Sensor:     ms.Name,
		Pin:        ms.Pin,
		Raw:        raw,
		Percent:    ms.sensor.Percent(raw),
		Calibrated: ms.sensor.HasCalibration(),
		Time:       time.Now(),
	}, nil
}

// Sync reads the sensor, caches the reading and updates HomeKit.
func (ms *MoistureSensor) Sync() (telemetry.Reading, error) {
	reading, err := ms.Read()

	ms.lock.Lock()
	defer ms.lock.Unlock()

	ms.lastErr = err
	if err == nil {
		ms.last = reading
	}

	if ms.hk != nil {
		if err != nil {
			ms.fault.SetValue(characteristic.StatusFaultGeneralFault)
		} else {
			ms.fault.SetValue(characteristic.StatusFaultNoFault)
			ms.humidity.SetValue(float64(reading.Percent))
		}
	}

	return reading, err
}

// Last returns the most recent successful reading.
func (ms *MoistureSensor) Last() (telemetry.Reading, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.last.Time.IsZero() {
		if ms.lastErr != nil {
			return telemetry.Reading{}, ms.lastErr
		}
		return telemetry.Reading{}, errors.Errorf("sensor %s never synced", ms.Name)
	}
	return ms.last, nil
}

func (ms *MoistureSensor) GetHk() *accessory.A {
	return ms.hk
}

func (ms *MoistureSensor) Close() error {
	if ms.sensor == nil {
		return nil
	}
	return ms.sensor.Close()
}
