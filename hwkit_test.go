package hwkit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	tinydrivers "tinygo.org/x/drivers"

	"github.com/hubertat/hwkit/drivers"
	"github.com/hubertat/hwkit/pins"
	"github.com/hubertat/hwkit/storage"
)

type fakeBus struct {
	mu     sync.Mutex
	writes int
	closed int
	absent bool
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed++
	return nil
}

func (b *fakeBus) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.absent {
		return errors.New("nack")
	}
	if len(w) > 0 {
		b.writes++
	}
	return nil
}

func (b *fakeBus) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.writes
}

// newMockKit returns a kit on an Uno-shaped mock driver with two sensors,
// one pump and an LCD on A4/A5.
func newMockKit(t testing.TB, bus *fakeBus) *HwKit {
	t.Helper()

	hk := &HwKit{
		Name:       "test kit",
		FakeDriver: &drivers.MockIoDriver{BoardName: "uno"},
		Sensors: []*MoistureSensor{
			{Name: "basil", DriverName: "mock_driver", Pin: 14, Samples: 1},
			{Name: "mint", DriverName: "mock_driver", Pin: 15, Samples: 1, DryRaw: rawValue(800), WetRaw: rawValue(400)},
		},
		Pumps: []*Pump{
			{Name: "main", DriverName: "mock_driver", Pin1: 8, Pin2: 9, MaxRunTime: "5s", CalibrationMl: 10, CalibrationMs: 1000},
		},
		Lcd: &Lcd{DriverName: "mock_driver", Sda: 18, Scl: 19},

		logger: log.New(io.Discard),
		openI2C: func(uint8) (tinydrivers.I2C, error) {
			return bus, nil
		},
	}
	return hk
}

func rawValue(v int16) *int16 {
	return &v
}

func initMockKit(t testing.TB, bus *fakeBus) *HwKit {
	t.Helper()

	hk := newMockKit(t, bus)
	if err := hk.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { hk.Close() })
	return hk
}

func assertErrIs(t testing.TB, got, want error) {
	t.Helper()

	if !errors.Is(got, want) {
		t.Errorf("got error %v want %v", got, want)
	}
}

func TestInitReservesPins(t *testing.T) {
	hk := initMockKit(t, &fakeBus{})

	reg, err := hk.Registry("mock_driver")
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}

	want := map[uint8]pins.Mode{
		8:  pins.Output,
		9:  pins.Output,
		14: pins.Input,
		15: pins.Input,
		18: pins.Free,
		19: pins.Free,
	}
	list := reg.Reserved()
	if len(list) != len(want) {
		t.Fatalf("got %d reservations want %d: %+v", len(list), len(want), list)
	}
	for _, res := range list {
		if mode, ok := want[res.Pin]; !ok || mode != res.Mode {
			t.Errorf("pin %d reserved as %s", res.Pin, res.Mode)
		}
	}

	if _, err := hk.Registry("gpio"); err == nil {
		t.Error("expected error for driver that is not configured")
	}
}

func TestInitRejectsSharedPins(t *testing.T) {
	cases := []struct {
		name   string
		modify func(hk *HwKit)
	}{
		{"sensor on pump pin", func(hk *HwKit) { hk.Sensors[0].Pin = 8 }},
		{"two sensors on one pin", func(hk *HwKit) { hk.Sensors[1].Pin = 14 }},
		{"duplicate sensor name", func(hk *HwKit) { hk.Sensors[1].Name = "basil" }},
		{"unknown driver", func(hk *HwKit) { hk.Pumps[0].DriverName = "gpio" }},
		{"pin out of range", func(hk *HwKit) { hk.Sensors[0].Pin = 20 }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hk := newMockKit(t, &fakeBus{})
			c.modify(hk)

			err := hk.Init(context.Background())
			defer hk.Close()
			if err == nil {
				t.Error("expected Init to fail")
			}
		})
	}

	t.Run("pin conflict is a pin error", func(t *testing.T) {
		hk := newMockKit(t, &fakeBus{})
		hk.Sensors[0].Pin = 9

		err := hk.Init(context.Background())
		defer hk.Close()
		assertErrIs(t, err, pins.ErrPinInUse)
	})
}

func TestLcdIsBestEffort(t *testing.T) {
	t.Run("display missing", func(t *testing.T) {
		bus := &fakeBus{absent: true}
		hk := initMockKit(t, bus)
		if hk.lcd != nil {
			t.Error("lcd should be disabled when the bus does not answer")
		}
		if bus.closeCount() != 1 {
			t.Errorf("bus closed %d times want 1", bus.closeCount())
		}

		reg, _ := hk.Registry("mock_driver")
		if reg.IsUsed(18) || reg.IsUsed(19) {
			t.Error("failed lcd kept its pins")
		}
	})

	t.Run("lcd pins taken", func(t *testing.T) {
		bus := &fakeBus{}
		hk := newMockKit(t, bus)
		hk.Lcd.Sda = 14

		if err := hk.Init(context.Background()); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer hk.Close()
		if hk.lcd != nil {
			t.Error("lcd should be disabled when its pins are taken")
		}
		if bus.closeCount() != 1 {
			t.Errorf("bus closed %d times want 1", bus.closeCount())
		}
	})
}

func TestCloseReleasesLcdBus(t *testing.T) {
	bus := &fakeBus{}
	hk := newMockKit(t, bus)
	if err := hk.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if bus.closeCount() != 0 {
		t.Fatal("bus of a working display closed during Init")
	}

	if err := hk.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if bus.closeCount() != 1 {
		t.Errorf("bus closed %d times want 1", bus.closeCount())
	}
}

func TestSync(t *testing.T) {
	bus := &fakeBus{}
	hk := initMockKit(t, bus)
	hk.FakeDriver.SetAnalog(14, 512)
	hk.FakeDriver.SetAnalog(15, 600)

	before := bus.writeCount()
	if err := hk.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if bus.writeCount() == before {
		t.Error("Sync did not refresh the display")
	}

	cases := []struct {
		sensor     string
		raw        int
		percent    int
		calibrated bool
	}{
		{"basil", 512, 50, false},
		{"mint", 600, 50, true},
	}
	for _, c := range cases {
		t.Run(c.sensor, func(t *testing.T) {
			reading, err := hk.FindSensor(c.sensor).Last()
			if err != nil {
				t.Fatalf("Last failed: %v", err)
			}
			if reading.Raw != c.raw || reading.Percent != c.percent || reading.Calibrated != c.calibrated {
				t.Errorf("got %+v", reading)
			}
			if reading.Sensor != c.sensor {
				t.Errorf("reading labelled %q", reading.Sensor)
			}
		})
	}
}

func TestSyncUpdatesHomeKit(t *testing.T) {
	hk := initMockKit(t, &fakeBus{})
	hk.FakeDriver.SetAnalog(15, 500)

	if err := hk.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	ms := hk.FindSensor("mint")
	if got := ms.humidity.Value(); got != 75 {
		t.Errorf("humidity = %v want 75", got)
	}

	acc := hk.GetHkAccessories("test")
	if len(acc) != 3 {
		t.Fatalf("got %d accessories want 3", len(acc))
	}
	ids := map[uint64]bool{}
	for _, a := range acc {
		ids[a.Id] = true
	}
	if len(ids) != 3 {
		t.Error("accessory ids are not unique")
	}
}

func TestCalibrationSurvivesRestart(t *testing.T) {
	store := storage.Config{Kind: "file", Path: t.TempDir() + "/eeprom.bin", Size: 64}

	hk := newMockKit(t, &fakeBus{})
	hk.Storage = store
	if err := hk.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := hk.FindSensor("basil").Sensor().SetCalibration(900, 300, true); err != nil {
		t.Fatalf("SetCalibration failed: %v", err)
	}
	hk.Close()

	hk = newMockKit(t, &fakeBus{})
	hk.Storage = store
	if err := hk.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer hk.Close()

	cal := hk.FindSensor("basil").Sensor().Calibration()
	if cal.DryRaw != 900 || cal.WetRaw != 300 {
		t.Errorf("got %s after restart", cal)
	}

	// mint's explicit config landed in the next record
	cal = hk.FindSensor("mint").Sensor().Calibration()
	if cal.DryRaw != 800 || cal.WetRaw != 400 {
		t.Errorf("got %s for mint", cal)
	}
}

func TestPartialCalibrationKeepsStoredRecord(t *testing.T) {
	store := storage.Config{Kind: "file", Path: t.TempDir() + "/eeprom.bin", Size: 64}

	hk := newMockKit(t, &fakeBus{})
	hk.Storage = store
	if err := hk.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := hk.FindSensor("basil").Sensor().SetCalibration(900, 300, true); err != nil {
		t.Fatalf("SetCalibration failed: %v", err)
	}
	hk.Close()

	cases := []struct {
		name     string
		dry, wet *int16
	}{
		{"dry only", rawValue(850), nil},
		{"wet only", nil, rawValue(0)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hk := newMockKit(t, &fakeBus{})
			hk.Storage = store
			hk.Sensors[0].DryRaw = c.dry
			hk.Sensors[0].WetRaw = c.wet
			if err := hk.Init(context.Background()); err != nil {
				t.Fatalf("Init failed: %v", err)
			}
			defer hk.Close()

			s := hk.FindSensor("basil").Sensor()
			if cal := s.Calibration(); cal.DryRaw != 900 || cal.WetRaw != 300 {
				t.Errorf("got %s want stored 900/300", cal)
			}
			if err := s.LoadCalibration(); err != nil {
				t.Fatalf("LoadCalibration failed: %v", err)
			}
			if cal := s.Calibration(); cal.DryRaw != 900 || cal.WetRaw != 300 {
				t.Errorf("stored record overwritten: %s", cal)
			}
		})
	}
}

func TestStorageKeyMustFit(t *testing.T) {
	hk := newMockKit(t, &fakeBus{})
	hk.Storage = storage.Config{Size: 16}
	key := uint16(12)
	hk.Sensors[0].StorageKey = &key

	err := hk.Init(context.Background())
	defer hk.Close()
	assertErrIs(t, err, storage.ErrOutOfRange)

	ms := &MoistureSensor{Name: "last"}
	if got, err := ms.storageKey(2, 18); err != nil || got != 12 {
		t.Errorf("storageKey(2, 18) = %d, %v", got, err)
	}
	if _, err := ms.storageKey(3, 18); err == nil {
		t.Error("record past the end accepted")
	}
	if _, err := ms.storageKey(storage.MaxSize/6, storage.MaxSize); err == nil {
		t.Error("key beyond uint16 accepted")
	}
}

func TestPumpDeadline(t *testing.T) {
	hk := initMockKit(t, &fakeBus{})
	p := hk.FindPump("main")

	d, err := p.Dispense(0, 5)
	if err != nil {
		t.Fatalf("Dispense failed: %v", err)
	}
	if d != 500*time.Millisecond {
		t.Errorf("5ml took %s want 500ms", d)
	}
	if on, _ := hk.FakeDriver.DigitalRead(8); !on {
		t.Error("pump pin 1 not driven")
	}

	if err := p.Sync(time.Now()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !p.Actuator().IsActive() || !p.hk.Switch.On.Value() {
		t.Error("pump should still run before its deadline")
	}

	if err := p.Sync(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if p.Actuator().IsActive() || p.hk.Switch.On.Value() {
		t.Error("pump should stop after its deadline")
	}
}

func TestPrintPinStatus(t *testing.T) {
	hk := initMockKit(t, &fakeBus{})

	buf := &bytes.Buffer{}
	hk.PrintPinStatus(buf)
	out := buf.String()

	for _, want := range []string{
		"| driver: mock_driver",
		"[pins] reserved pins (uno):",
		"pin 8 - OUTPUT",
		"pin 14 - INPUT",
		"pin 18 - RESERVED",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	hk := initMockKit(t, &fakeBus{})
	hk.Schedule = "every now and then"

	if err := hk.StartScheduler(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
