package telemetry

import (
	"context"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
)

const DefaultMeasurement = "soil_moisture"

// PointWriter is the part of the InfluxDB blocking write API the sink uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxConfig struct {
	Host         string `json:"host" yaml:"host"`
	Organization string `json:"organization" yaml:"organization"`
	Bucket       string `json:"bucket" yaml:"bucket"`
	Measurement  string `json:"measurement" yaml:"measurement"`
	Token        string `json:"token" yaml:"token"`
}

// InfluxSink writes one point per reading, tagged with sensor name and pin.
type InfluxSink struct {
	writer      PointWriter
	measurement string
	close       func()
}

func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.Host, cfg.Token)
	sink := NewInfluxSinkWithWriter(client.WriteAPIBlocking(cfg.Organization, cfg.Bucket), cfg.Measurement)
	sink.close = client.Close
	return sink
}

func NewInfluxSinkWithWriter(w PointWriter, measurement string) *InfluxSink {
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	return &InfluxSink{writer: w, measurement: measurement}
}

func (is *InfluxSink) Point(r Reading) *write.Point {
	return influxdb2.NewPoint(is.measurement,
		map[string]string{
			"sensor": r.Sensor,
			"pin":    strconv.Itoa(int(r.Pin)),
		},
		map[string]interface{}{
			"raw":        r.Raw,
			"percent":    r.Percent,
			"calibrated": r.Calibrated,
		},
		r.Time)
}

func (is *InfluxSink) Publish(ctx context.Context, r Reading) error {
	if err := is.writer.WritePoint(ctx, is.Point(r)); err != nil {
		return errors.Wrapf(err, "influx write %s", r.Sensor)
	}
	return nil
}

func (is *InfluxSink) Close() error {
	if is.close != nil {
		is.close()
	}
	return nil
}
