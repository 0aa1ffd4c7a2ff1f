package hwkit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Lcd places the status display on a driver's SDA/SCL pins and an i2c-dev
// bus.
type Lcd struct {
	DriverName string `json:"driver" yaml:"driver"`
	Bus        uint8  `json:"bus" yaml:"bus"`
	Sda        uint8  `json:"sda" yaml:"sda"`
	Scl        uint8  `json:"scl" yaml:"scl"`
	Address    uint8  `json:"address" yaml:"address"`
}

// LoadConfig reads a kit definition. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON.
func LoadConfig(path string) (*HwKit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read config file %s", path)
	}

	hk := &HwKit{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, hk)
	default:
		err = json.Unmarshal(data, hk)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	if err := hk.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return hk, nil
}

// Validate checks the parts of the configuration that do not need hardware.
func (hk *HwKit) Validate() error {
	if len(hk.configuredDevices()) == 0 {
		return errors.New("no driver configured")
	}
	if len(hk.HkPin) > 0 && len(hk.HkPin) != 8 {
		return errors.Errorf("hk_pin must have 8 digits, got %q", hk.HkPin)
	}

	for i, ms := range hk.Sensors {
		if len(ms.Name) == 0 {
			return errors.Errorf("sensor #%d has no name", i)
		}
		if len(ms.DriverName) == 0 {
			return errors.Errorf("sensor %s has no driver", ms.Name)
		}
	}
	for i, p := range hk.Pumps {
		if len(p.Name) == 0 {
			return errors.Errorf("pump #%d has no name", i)
		}
		if len(p.DriverName) == 0 {
			return errors.Errorf("pump %s has no driver", p.Name)
		}
		if p.Pin1 == p.Pin2 {
			return errors.Errorf("pump %s uses pin %d twice", p.Name, p.Pin1)
		}
	}

	return nil
}
