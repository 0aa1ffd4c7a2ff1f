package sensors

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// CalibrationSize is the number of bytes a Calibration occupies in storage.
	CalibrationSize = 6

	CalibrationVersion uint8 = 1

	unsetRaw int16 = -1
)

// Calibration is the dry/wet raw-reading pair used to normalize a soil
// sensor. It is stored as dry, wet (int16 little endian), version and one
// padding byte.
type Calibration struct {
	DryRaw  int16 `json:"dry_raw" yaml:"dry_raw"`
	WetRaw  int16 `json:"wet_raw" yaml:"wet_raw"`
	Version uint8 `json:"version" yaml:"version"`
}

// DefaultCalibration is the explicitly unset record.
func DefaultCalibration() Calibration {
	return Calibration{DryRaw: unsetRaw, WetRaw: unsetRaw, Version: CalibrationVersion}
}

// NewCalibration builds a current-version record from a dry/wet pair.
func NewCalibration(dry, wet int16) Calibration {
	return Calibration{DryRaw: dry, WetRaw: wet, Version: CalibrationVersion}
}

func (c Calibration) Valid() bool {
	return c.DryRaw >= 0 && c.WetRaw >= 0 && c.DryRaw != c.WetRaw
}

func (c Calibration) String() string {
	if !c.Valid() {
		return "uncalibrated"
	}
	return fmt.Sprintf("dry=%d wet=%d (v%d)", c.DryRaw, c.WetRaw, c.Version)
}

func (c Calibration) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CalibrationSize)
	binary.LittleEndian.PutUint16(buf[0:], uint16(c.DryRaw))
	binary.LittleEndian.PutUint16(buf[2:], uint16(c.WetRaw))
	buf[4] = c.Version
	return buf, nil
}

func (c *Calibration) UnmarshalBinary(data []byte) error {
	if len(data) < CalibrationSize {
		return errors.Errorf("calibration record needs %d bytes, got %d", CalibrationSize, len(data))
	}
	c.DryRaw = int16(binary.LittleEndian.Uint16(data[0:]))
	c.WetRaw = int16(binary.LittleEndian.Uint16(data[2:]))
	c.Version = data[4]
	return nil
}
