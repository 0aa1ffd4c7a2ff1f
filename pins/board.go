package pins

import (
	"strings"

	"github.com/pkg/errors"
)

// MaxSupportedPins is the widest board a Registry can track.
const MaxSupportedPins = 64

const defaultAnalogMax = 1023

// Board describes what a target can do. It carries no wiring choices, only
// capabilities the registry and sensors consult.
type Board struct {
	Name       string
	MaxPins    uint8
	AnalogPins []uint8
	PWMPins    []uint8

	// Pull-down inputs and open-drain outputs are optional on most cores.
	Pulldown  bool
	OpenDrain bool

	// AnalogMax is the nominal full-scale raw ADC reading.
	AnalogMax int
}

func (b Board) analogMax() int {
	if b.AnalogMax <= 0 {
		return defaultAnalogMax
	}
	return b.AnalogMax
}

// FullScale returns the nominal maximum raw analog reading of the board.
func (b Board) FullScale() int {
	return b.analogMax()
}

func (b Board) validate() error {
	if b.MaxPins == 0 {
		return errors.Errorf("board %q declares no pins", b.Name)
	}
	if b.MaxPins > MaxSupportedPins {
		return errors.Errorf("board %q declares %d pins, registry supports at most %d", b.Name, b.MaxPins, MaxSupportedPins)
	}
	return nil
}

func contains(set []uint8, pin uint8) bool {
	for _, p := range set {
		if p == pin {
			return true
		}
	}
	return false
}

func pinRange(from, to uint8) (pins []uint8) {
	for p := from; p <= to; p++ {
		pins = append(pins, p)
	}
	return
}

var (
	// ArduinoUno is the classic ATmega328P Uno: D0..D13, A0..A5 as 14..19.
	ArduinoUno = Board{
		Name:       "uno",
		MaxPins:    20,
		AnalogPins: pinRange(14, 19),
		PWMPins:    []uint8{3, 5, 6, 9, 10, 11},
		AnalogMax:  1023,
	}

	// UnoR4 covers the Uno R4 Minima and WiFi.
	UnoR4 = Board{
		Name:       "uno_r4",
		MaxPins:    20,
		AnalogPins: pinRange(14, 19),
		PWMPins:    []uint8{3, 5, 6, 9, 10, 11},
		AnalogMax:  1023,
	}

	ESP32 = Board{
		Name:       "esp32",
		MaxPins:    40,
		AnalogPins: []uint8{0, 2, 4, 12, 13, 14, 15, 25, 26, 27, 32, 33, 34, 35, 36, 37, 38, 39},
		PWMPins:    []uint8{0, 1, 2, 3, 4, 5, 12, 13, 14, 15, 16, 17, 18, 19, 21, 22, 23, 25, 26, 27, 32, 33},
		Pulldown:   true,
		OpenDrain:  true,
		AnalogMax:  4095,
	}

	// RaspberryPi uses BCM numbering; analog input goes through an external ADC.
	RaspberryPi = Board{
		Name:      "rpi",
		MaxPins:   28,
		PWMPins:   []uint8{12, 13, 18, 19},
		Pulldown:  true,
		AnalogMax: 1023,
	}

	MCP23017 = Board{
		Name:    "mcp23017",
		MaxPins: 16,
	}

	// MCP3008 is the 8-channel 10-bit SPI converter; pins are its channels.
	MCP3008 = Board{
		Name:       "mcp3008",
		MaxPins:    8,
		AnalogPins: pinRange(0, 7),
		AnalogMax:  1023,
	}

	// Host is a permissive descriptor for running on a development machine
	// against the mock driver.
	Host = Board{
		Name:       "host",
		MaxPins:    64,
		AnalogPins: pinRange(0, 7),
		PWMPins:    pinRange(0, 15),
		Pulldown:   true,
		OpenDrain:  true,
		AnalogMax:  1023,
	}
)

// Boards lists the built-in descriptors.
func Boards() []Board {
	return []Board{ArduinoUno, UnoR4, ESP32, RaspberryPi, MCP23017, MCP3008, Host}
}

// BoardByName looks up a built-in descriptor (case-insensitive).
func BoardByName(name string) (Board, error) {
	for _, b := range Boards() {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return Board{}, errors.Errorf("unknown board %q", name)
}
