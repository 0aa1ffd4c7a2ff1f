package sensors

import (
	"bytes"
	"testing"
)

func TestCalibrationValid(t *testing.T) {
	cases := []struct {
		name string
		cal  Calibration
		want bool
	}{
		{"default", DefaultCalibration(), false},
		{"zero", Calibration{}, false},
		{"equal", NewCalibration(500, 500), false},
		{"negative wet", NewCalibration(500, -3), false},
		{"dry above wet", NewCalibration(800, 400), true},
		{"dry below wet", NewCalibration(200, 500), true},
		{"zero wet", NewCalibration(800, 0), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cal.Valid(); got != c.want {
				t.Errorf("Valid() = %v want %v", got, c.want)
			}
		})
	}
}

func TestCalibrationLayout(t *testing.T) {
	buf, err := NewCalibration(800, 400).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	want := []byte{0x20, 0x03, 0x90, 0x01, CalibrationVersion, 0x00}
	if !bytes.Equal(buf, want) {
		t.Errorf("got % x want % x", buf, want)
	}

	var def Calibration
	if err := def.UnmarshalBinary([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x00}); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if def != DefaultCalibration() {
		t.Errorf("got %+v want default", def)
	}

	if err := def.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Error("short record accepted")
	}
}
