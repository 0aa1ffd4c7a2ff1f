package hwkit

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	tinydrivers "tinygo.org/x/drivers"

	"github.com/hubertat/hwkit/display"
	"github.com/hubertat/hwkit/drivers"
	"github.com/hubertat/hwkit/mqtt"
	"github.com/hubertat/hwkit/pins"
	"github.com/hubertat/hwkit/storage"
	"github.com/hubertat/hwkit/telemetry"
)

const (
	defaultKitName      = "hwkit"
	defaultSchedule     = "@every 1m"
	defaultTickInterval = 250 * time.Millisecond
)

// HwKit wires drivers, pin registries, calibration storage, moisture sensors,
// pumps and the status display together. It is built directly from the
// configuration file.
type HwKit struct {
	Name     string `json:"name" yaml:"name"`
	LogLevel string `json:"log_level" yaml:"log_level"`

	Storage storage.Config `json:"storage" yaml:"storage"`

	Gpio       *drivers.GpIO         `json:"gpio,omitempty" yaml:"gpio,omitempty"`
	Mcp23017   *drivers.McpIO        `json:"mcp23017,omitempty" yaml:"mcp23017,omitempty"`
	Mcp3008    *drivers.Mcp3008      `json:"mcp3008,omitempty" yaml:"mcp3008,omitempty"`
	FakeDriver *drivers.MockIoDriver `json:"mock,omitempty" yaml:"mock,omitempty"`

	Sensors []*MoistureSensor `json:"sensors" yaml:"sensors"`
	Pumps   []*Pump           `json:"pumps" yaml:"pumps"`
	Lcd     *Lcd              `json:"lcd,omitempty" yaml:"lcd,omitempty"`

	Schedule string `json:"schedule" yaml:"schedule"`

	HkPin       string `json:"hk_pin" yaml:"hk_pin"`
	HkDirectory string `json:"hk_directory" yaml:"hk_directory"`
	HkAddress   string `json:"hk_address" yaml:"hk_address"`
	HkDebug     bool   `json:"hk_debug" yaml:"hk_debug"`

	MqttBroker string `json:"mqtt_broker" yaml:"mqtt_broker"`
	MqttPrefix string `json:"mqtt_prefix" yaml:"mqtt_prefix"`

	Influx *telemetry.InfluxConfig `json:"influx,omitempty" yaml:"influx,omitempty"`

	HttpAddress string `json:"http_address" yaml:"http_address"`
	HttpToken   string `json:"http_token" yaml:"http_token"`

	devices    map[string]*device
	store      storage.Backend
	lcd        *display.LCD1602
	lcdBus     io.Closer
	prom       *telemetry.PromSink
	sinks      telemetry.Multi
	mqttClient *mqtt.MqttClient
	scheduler  *cron.Cron
	logger     *log.Logger

	openI2C func(bus uint8) (tinydrivers.I2C, error)

	syncLock sync.Mutex
}

// device is one opened driver together with the registry of its pins.
type device struct {
	dev      drivers.Device
	io       drivers.IoDriver
	analog   drivers.AnalogDriver
	registry *pins.Registry
}

func (hk *HwKit) kitLogger() *log.Logger {
	if hk.logger == nil {
		hk.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: hk.kitName(),
			Level:  log.GetLevel(),
		})
	}
	return hk.logger
}

func (hk *HwKit) kitName() string {
	if len(hk.Name) > 0 {
		return hk.Name
	}
	return defaultKitName
}

func (hk *HwKit) configuredDevices() (list []drivers.Device) {
	if hk.Gpio != nil {
		list = append(list, hk.Gpio)
	}
	if hk.Mcp23017 != nil {
		list = append(list, hk.Mcp23017)
	}
	if hk.Mcp3008 != nil {
		list = append(list, hk.Mcp3008)
	}
	if hk.FakeDriver != nil {
		list = append(list, hk.FakeDriver)
	}
	return
}

// InitDrivers opens every configured driver and builds a pin registry for
// each of them.
func (hk *HwKit) InitDrivers(ctx context.Context) error {
	hk.devices = make(map[string]*device)

	for _, dev := range hk.configuredDevices() {
		if err := dev.Open(ctx); err != nil {
			return errors.Wrapf(err, "failed to open %s driver", dev)
		}

		d := &device{dev: dev}
		opts := []pins.Option{pins.WithLogger(hk.kitLogger().WithPrefix("pins/" + dev.String()))}
		if io, ok := dev.(drivers.IoDriver); ok {
			d.io = io
			opts = append(opts, pins.WithDriver(io))
		}
		if analog, ok := dev.(drivers.AnalogDriver); ok {
			d.analog = analog
		}

		reg, err := pins.NewRegistry(dev.Board(), opts...)
		if err != nil {
			return errors.Wrapf(err, "failed to create pin registry for %s", dev)
		}
		d.registry = reg
		hk.devices[dev.String()] = d

		hk.kitLogger().Debug("driver ready", "driver", dev, "board", dev.Board().Name)
	}

	return nil
}

func (hk *HwKit) findDevice(name string) (*device, error) {
	for key, d := range hk.devices {
		if strings.EqualFold(key, name) {
			return d, nil
		}
	}
	return nil, errors.Errorf("driver %s not set up", name)
}

// Registry returns the pin registry of the named driver.
func (hk *HwKit) Registry(driverName string) (*pins.Registry, error) {
	d, err := hk.findDevice(driverName)
	if err != nil {
		return nil, err
	}
	return d.registry, nil
}

func (hk *HwKit) initStorage() (err error) {
	hk.store, err = storage.Open(hk.Storage)
	if err != nil {
		return errors.Wrap(err, "failed to open calibration storage")
	}
	hk.kitLogger().Debug("calibration storage ready", "kind", hk.Storage.Kind, "size", hk.store.Size())
	return nil
}

// InitIos starts sensors and pumps against the opened drivers.
func (hk *HwKit) InitIos() error {
	names := map[string]bool{}

	for i, ms := range hk.Sensors {
		if names["sensor:"+ms.Name] {
			return errors.Errorf("duplicate sensor name %q", ms.Name)
		}
		names["sensor:"+ms.Name] = true

		d, err := hk.findDevice(ms.DriverName)
		if err != nil {
			return errors.Wrapf(err, "sensor %s", ms.Name)
		}
		size := storage.MaxSize
		if hk.store != nil {
			size = hk.store.Size()
		}
		key, err := ms.storageKey(i, size)
		if err != nil {
			return err
		}
		if err := ms.Init(d, hk.store, key, hk.kitLogger()); err != nil {
			return err
		}
	}

	for _, p := range hk.Pumps {
		if names["pump:"+p.Name] {
			return errors.Errorf("duplicate pump name %q", p.Name)
		}
		names["pump:"+p.Name] = true

		d, err := hk.findDevice(p.DriverName)
		if err != nil {
			return errors.Wrapf(err, "pump %s", p.Name)
		}
		if err := p.Init(d, hk.kitLogger()); err != nil {
			return err
		}
	}

	return nil
}

// initLcd is best effort: a missing display never stops the kit.
func (hk *HwKit) initLcd() {
	if hk.Lcd == nil {
		return
	}

	d, err := hk.findDevice(hk.Lcd.DriverName)
	if err != nil {
		hk.kitLogger().Warn("lcd disabled", "err", err)
		return
	}

	opener := hk.openI2C
	if opener == nil {
		opener = func(bus uint8) (tinydrivers.I2C, error) {
			return drivers.OpenI2C(bus)
		}
	}
	bus, err := opener(hk.Lcd.Bus)
	if err != nil {
		hk.kitLogger().Warn("lcd disabled", "err", err)
		return
	}
	closeBus := func() {
		if closer, ok := bus.(io.Closer); ok {
			closer.Close()
		}
	}

	lcd, err := display.NewLCD1602(d.registry, bus, hk.Lcd.Sda, hk.Lcd.Scl,
		display.WithAddress(hk.Lcd.Address),
		display.WithLogger(hk.kitLogger().WithPrefix("lcd")))
	if err != nil {
		closeBus()
		hk.kitLogger().Warn("lcd disabled", "err", err)
		return
	}
	if err := lcd.Begin(); err != nil {
		lcd.Close()
		closeBus()
		hk.kitLogger().Warn("lcd disabled", "err", err)
		return
	}

	hk.lcd = lcd
	if closer, ok := bus.(io.Closer); ok {
		hk.lcdBus = closer
	}
	lcd.PrintLine(0, hk.kitName())
	lcd.PrintLine(1, "starting...")
}

func (hk *HwKit) initSinks() {
	hk.prom = telemetry.NewPromSink()
	hk.sinks = telemetry.Multi{hk.prom}

	if hk.Influx != nil {
		hk.sinks = append(hk.sinks, telemetry.NewInfluxSink(*hk.Influx))
	}
}

// Init prepares the whole kit: storage, drivers, sensors, pumps, display and
// telemetry sinks. MQTT and HomeKit are started separately.
func (hk *HwKit) Init(ctx context.Context) error {
	if len(hk.LogLevel) > 0 {
		level, err := log.ParseLevel(hk.LogLevel)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", hk.LogLevel)
		}
		hk.kitLogger().SetLevel(level)
	}

	if err := hk.initStorage(); err != nil {
		return err
	}
	if err := hk.InitDrivers(ctx); err != nil {
		return err
	}
	if err := hk.InitIos(); err != nil {
		return err
	}
	hk.initLcd()
	hk.initSinks()

	return nil
}

func (hk *HwKit) FindSensor(name string) *MoistureSensor {
	for _, ms := range hk.Sensors {
		if strings.EqualFold(ms.Name, name) {
			return ms
		}
	}
	return nil
}

func (hk *HwKit) FindPump(name string) *Pump {
	for _, p := range hk.Pumps {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// Sync samples every sensor, publishes the readings and refreshes the
// display. Errors of single sensors or sinks do not stop the others.
func (hk *HwKit) Sync(ctx context.Context) error {
	hk.syncLock.Lock()
	defer hk.syncLock.Unlock()

	var errs []error
	var lines []string

	for _, ms := range hk.Sensors {
		reading, err := ms.Sync()
		if err != nil {
			errs = append(errs, err)
			lines = append(lines, fmt.Sprintf("%s: err", ms.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d%%", ms.Name, reading.Percent))

		if hk.sinks != nil {
			if err := hk.sinks.Publish(ctx, reading); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if hk.lcd != nil {
		for row := 0; row < display.Rows && row < len(lines); row++ {
			hk.lcd.PrintLine(uint8(row), lines[row])
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), "sync failed")
	}
	return nil
}

// StartScheduler runs Sync on the cron schedule (robfig/cron syntax,
// including @every descriptors).
func (hk *HwKit) StartScheduler(ctx context.Context) error {
	schedule := hk.Schedule
	if len(schedule) == 0 {
		schedule = defaultSchedule
	}

	hk.scheduler = cron.New()
	_, err := hk.scheduler.AddFunc(schedule, func() {
		if err := hk.Sync(ctx); err != nil {
			hk.kitLogger().Error("scheduled sync failed", "err", err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q", schedule)
	}

	hk.scheduler.Start()
	hk.kitLogger().Info("sensor sync scheduled", "schedule", schedule)
	return nil
}

// StartTicker drives the pumps' non-blocking dispense deadlines until ctx is
// done.
func (hk *HwKit) StartTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, p := range hk.Pumps {
				if err := p.Sync(now); err != nil {
					hk.kitLogger().Error("pump sync failed", "pump", p.Name, "err", err)
				}
			}
		}
	}
}

func (hk *HwKit) Close() (err error) {
	var errs []error

	if hk.scheduler != nil {
		<-hk.scheduler.Stop().Done()
	}
	if hk.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, hk.mqttClient.Disconnect(ctx))
		cancel()
	}
	for _, p := range hk.Pumps {
		errs = append(errs, p.Close())
	}
	for _, ms := range hk.Sensors {
		errs = append(errs, ms.Close())
	}
	if hk.lcd != nil {
		errs = append(errs, hk.lcd.Close())
	}
	if hk.lcdBus != nil {
		errs = append(errs, hk.lcdBus.Close())
		hk.lcdBus = nil
	}
	for _, s := range hk.sinks {
		if closer, ok := s.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	for _, d := range hk.devices {
		errs = append(errs, d.dev.Close())
	}
	if closer, ok := hk.store.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	return stderrors.Join(errs...)
}

// PrintPinStatus writes the reservations of every driver's registry.
func (hk *HwKit) PrintPinStatus(writer io.Writer) {
	names := make([]string, 0, len(hk.devices))
	for name := range hk.devices {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== active drivers ===")
	for _, name := range names {
		fmt.Fprintf(writer, "| driver: %s\n", name)
		hk.devices[name].registry.Dump(writer)
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
