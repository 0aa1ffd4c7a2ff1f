package telemetry

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromSink keeps the latest reading of every sensor in gauges.
type PromSink struct {
	registry *prometheus.Registry
	raw      *prometheus.GaugeVec
	percent  *prometheus.GaugeVec
	updated  *prometheus.GaugeVec
}

func NewPromSink() *PromSink {
	labels := []string{"sensor", "pin"}
	ps := &PromSink{
		registry: prometheus.NewRegistry(),
		raw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hwkit",
			Name:      "soil_raw",
			Help:      "Last raw analog reading of a soil sensor.",
		}, labels),
		percent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hwkit",
			Name:      "soil_moisture_percent",
			Help:      "Last moisture percentage of a soil sensor.",
		}, labels),
		updated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hwkit",
			Name:      "soil_last_reading_seconds",
			Help:      "Unix time of the last soil sensor reading.",
		}, labels),
	}
	ps.registry.MustRegister(ps.raw, ps.percent, ps.updated)
	return ps
}

func (ps *PromSink) Publish(ctx context.Context, r Reading) error {
	pin := strconv.Itoa(int(r.Pin))
	ps.raw.WithLabelValues(r.Sensor, pin).Set(float64(r.Raw))
	ps.percent.WithLabelValues(r.Sensor, pin).Set(float64(r.Percent))
	ps.updated.WithLabelValues(r.Sensor, pin).Set(float64(r.Time.Unix()))
	return nil
}

// Registry exposes the collector registry so callers can add their own.
func (ps *PromSink) Registry() *prometheus.Registry {
	return ps.registry
}

func (ps *PromSink) Handler() http.Handler {
	return promhttp.HandlerFor(ps.registry, promhttp.HandlerOpts{})
}
