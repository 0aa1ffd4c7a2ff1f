package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var sample = Reading{
	Sensor:     "bed1",
	Pin:        14,
	Raw:        600,
	Percent:    50,
	Calibrated: true,
	Time:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (fp *fakePublisher) Publish(topic string, payload []byte) error {
	fp.topic = topic
	fp.payload = payload
	return fp.err
}

type fakeWriter struct {
	points []*write.Point
}

func (fw *fakeWriter) WritePoint(ctx context.Context, point ...*write.Point) error {
	fw.points = append(fw.points, point...)
	return nil
}

type failingSink struct{ err error }

func (fs failingSink) Publish(ctx context.Context, r Reading) error { return fs.err }

func TestMqttSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := &MqttSink{Publisher: pub, Prefix: "garden/"}

	if err := sink.Publish(context.Background(), sample); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if pub.topic != "garden/bed1" {
		t.Errorf("topic %q", pub.topic)
	}

	var got Reading
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if !got.Time.Equal(sample.Time) {
		t.Errorf("time %s want %s", got.Time, sample.Time)
	}
	got.Time = sample.Time
	if got != sample {
		t.Errorf("got %+v want %+v", got, sample)
	}

	if (&MqttSink{}).Topic("x") != DefaultTopicPrefix+"/x" {
		t.Error("default prefix not applied")
	}
}

func TestInfluxSink(t *testing.T) {
	fw := &fakeWriter{}
	sink := NewInfluxSinkWithWriter(fw, "")

	if err := sink.Publish(context.Background(), sample); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(fw.points) != 1 {
		t.Fatalf("wrote %d points", len(fw.points))
	}

	line := write.PointToLineProtocol(fw.points[0], time.Second)
	for _, part := range []string{"soil_moisture,", "pin=14", "sensor=bed1", "percent=50i", "raw=600i", "calibrated=true", "1714564800"} {
		if !strings.Contains(line, part) {
			t.Errorf("line %q missing %q", line, part)
		}
	}
}

func TestPromSink(t *testing.T) {
	ps := NewPromSink()
	if err := ps.Publish(context.Background(), sample); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if v := testutil.ToFloat64(ps.percent.WithLabelValues("bed1", "14")); v != 50 {
		t.Errorf("percent gauge %v", v)
	}
	if v := testutil.ToFloat64(ps.raw.WithLabelValues("bed1", "14")); v != 600 {
		t.Errorf("raw gauge %v", v)
	}

	rec := httptest.NewRecorder()
	ps.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `hwkit_soil_moisture_percent{pin="14",sensor="bed1"} 50`) {
		t.Errorf("metrics output:\n%s", body)
	}
}

func TestMulti(t *testing.T) {
	pub := &fakePublisher{}
	boom := errors.New("broker down")
	multi := Multi{failingSink{boom}, &MqttSink{Publisher: pub}}

	err := multi.Publish(context.Background(), sample)
	if !errors.Is(err, boom) {
		t.Errorf("got %v want wrapped %v", err, boom)
	}
	if pub.topic == "" {
		t.Error("later sink skipped after a failure")
	}

	if err := (Multi{}).Publish(context.Background(), sample); err != nil {
		t.Errorf("empty Multi: %v", err)
	}
}
