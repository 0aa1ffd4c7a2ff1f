package telemetry

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
)

// Reading is one sample of a moisture sensor.
type Reading struct {
	Sensor     string    `json:"sensor"`
	Pin        uint8     `json:"pin"`
	Raw        int       `json:"raw"`
	Percent    int       `json:"percent"`
	Calibrated bool      `json:"calibrated"`
	Time       time.Time `json:"time"`
}

// Sink receives readings for export.
type Sink interface {
	Publish(ctx context.Context, r Reading) error
}

// Multi fans a reading out to every sink. All sinks are tried; their errors
// are joined.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, r Reading) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Wrapf(stderrors.Join(errs...), "%d of %d sinks failed", len(errs), len(m))
}
