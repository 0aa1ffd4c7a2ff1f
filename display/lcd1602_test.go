package display

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/hubertat/hwkit/pins"
)

type fakeBus struct {
	mu      sync.Mutex
	present map[uint16]bool
	writes  map[uint16]int
}

func newFakeBus(addrs ...uint16) *fakeBus {
	b := &fakeBus{present: map[uint16]bool{}, writes: map[uint16]int{}}
	for _, a := range addrs {
		b.present[a] = true
	}
	return b
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.present[addr] {
		return errors.New("nack")
	}
	if len(w) > 0 {
		b.writes[addr]++
	}
	return nil
}

func (b *fakeBus) writeCount(addr uint16) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.writes[addr]
}

func newTestRegistry(t testing.TB) *pins.Registry {
	t.Helper()

	r, err := pins.NewRegistry(pins.ArduinoUno, pins.WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func newTestLCD(t testing.TB, reg *pins.Registry, bus *fakeBus, opts ...Option) (*LCD1602, error) {
	t.Helper()

	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	return NewLCD1602(reg, bus, 18, 19, opts...)
}

func TestLCDReservesPins(t *testing.T) {
	reg := newTestRegistry(t)

	lcd, err := newTestLCD(t, reg, newFakeBus(0x27))
	if err != nil {
		t.Fatalf("NewLCD1602 failed: %v", err)
	}
	if !reg.IsUsed(18) || !reg.IsUsed(19) {
		t.Error("bus pins not reserved")
	}
	if !lcd.ValidConfiguration() {
		t.Error("configuration should be valid")
	}

	lcd.Close()
	if reg.IsUsed(18) || reg.IsUsed(19) {
		t.Error("Close did not release bus pins")
	}
}

func TestLCDRollsBackPartialReservation(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Reserve(19)

	lcd, err := newTestLCD(t, reg, newFakeBus(0x27))
	if !errors.Is(err, pins.ErrPinInUse) {
		t.Errorf("got %v want ErrPinInUse", err)
	}
	if reg.IsUsed(18) {
		t.Error("sda left reserved")
	}
	if lcd.ValidConfiguration() {
		t.Error("configuration should be invalid")
	}
	if err := lcd.Begin(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Begin got %v", err)
	}

	lcd.Close()
	if !reg.IsUsed(19) {
		t.Error("Close released a pin it never owned")
	}
}

func TestLCDBegin(t *testing.T) {
	t.Run("absent device", func(t *testing.T) {
		lcd, _ := newTestLCD(t, newTestRegistry(t), newFakeBus())
		if err := lcd.Begin(); !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v want ErrNotFound", err)
		}
		if lcd.IsReady() {
			t.Error("lcd ready without device")
		}
	})

	t.Run("custom address", func(t *testing.T) {
		bus := newFakeBus(0x3F)
		lcd, _ := newTestLCD(t, newTestRegistry(t), bus, WithAddress(0x3F))
		if err := lcd.Begin(); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if bus.writeCount(0x3F) == 0 {
			t.Error("no initialization traffic")
		}
	})
}

func TestLCDPrintLine(t *testing.T) {
	bus := newFakeBus(0x27)
	lcd, _ := newTestLCD(t, newTestRegistry(t), bus)

	if err := lcd.PrintLine(0, "hello"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("PrintLine before Begin: got %v", err)
	}
	if err := lcd.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	before := bus.writeCount(0x27)
	if err := lcd.PrintLine(1, "Soil: 42%"); err != nil {
		t.Fatalf("PrintLine failed: %v", err)
	}
	if bus.writeCount(0x27) <= before {
		t.Error("PrintLine wrote nothing")
	}

	if err := lcd.PrintLine(2, "x"); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("row 2: got %v", err)
	}
	if err := lcd.Clear(); err != nil {
		t.Errorf("Clear failed: %v", err)
	}
}

func TestFitLine(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"short":                     "short",
		"exactly sixteen!":          "exactly sixteen!",
		"this line is far too long": "this line is far",
	}
	for in, want := range cases {
		if got := fitLine(in); got != want {
			t.Errorf("fitLine(%q) = %q want %q", in, got, want)
		}
	}
}
