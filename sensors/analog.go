package sensors

import (
	"fmt"
	"io"
)

// AnalogReader samples an analog-capable pin. The drivers package provides
// implementations backed by real converters and a mock.
type AnalogReader interface {
	ReadAnalog(pin uint8) (uint16, error)
}

// AnalogSensor is the capability set shared by analog sensors.
type AnalogSensor interface {
	Ready() bool
	ReadRaw() (int, error)
	ReadPercent() (int, error)
}

// LogRaw writes "label: value" for a single raw reading. Nothing is written
// when the sensor is not ready or the read fails.
func LogRaw(w io.Writer, s AnalogSensor, label string) {
	if !s.Ready() {
		return
	}
	value, err := s.ReadRaw()
	if err != nil {
		return
	}
	if label == "" {
		label = "Raw"
	}
	fmt.Fprintf(w, "%s: %d\n", label, value)
}

// LogPercent writes "label: value%" for a single percentage reading.
func LogPercent(w io.Writer, s AnalogSensor, label string) {
	if !s.Ready() {
		return
	}
	value, err := s.ReadPercent()
	if err != nil {
		return
	}
	if label == "" {
		label = "Percent"
	}
	fmt.Fprintf(w, "%s: %d%%\n", label, value)
}
