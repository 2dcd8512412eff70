// Package observability exposes Prometheus metrics and OpenTelemetry tracing
// for lap runs.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/laptime/internal/laps"
)

// LapCollector bundles the Prometheus metrics recorded while telemetry files
// are segmented into laps.
type LapCollector struct {
	gatherer prometheus.Gatherer

	Samples      *prometheus.CounterVec
	Laps         *prometheus.CounterVec
	Runs         *prometheus.CounterVec
	RunDurations prometheus.Histogram
	FastestLap   *prometheus.GaugeVec
}

// NewLapCollector registers lap metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewLapCollector(reg prometheus.Registerer) (*LapCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	samples, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laptime_samples_total",
		Help: "Telemetry samples fed to the segmentation engine, labeled by outcome.",
	}, []string{"outcome"}), "laptime_samples_total")
	if err != nil {
		return nil, err
	}

	lapsTotal, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laptime_laps_total",
		Help: "Laps emitted, labeled by kind (complete or partial).",
	}, []string{"kind"}), "laptime_laps_total")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laptime_runs_total",
		Help: "Telemetry files processed, labeled by status.",
	}, []string{"status"}), "laptime_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "laptime_run_duration_seconds",
		Help:    "Wall time to load, segment and store one telemetry file.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}), "laptime_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	fastest, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "laptime_fastest_lap_seconds",
		Help: "Fastest complete lap of the most recent run of each file.",
	}, []string{"run"}), "laptime_fastest_lap_seconds")
	if err != nil {
		return nil, err
	}

	return &LapCollector{
		gatherer:     gatherer,
		Samples:      samples,
		Laps:         lapsTotal,
		Runs:         runs,
		RunDurations: durations,
		FastestLap:   fastest,
	}, nil
}

// ObserveOutcome counts one engine outcome. Safe on a nil collector.
func (c *LapCollector) ObserveOutcome(out laps.Outcome) {
	if c == nil {
		return
	}
	c.Samples.WithLabelValues(out.Kind.String()).Inc()
}

// ObserveTable records the laps of a finished run.
func (c *LapCollector) ObserveTable(run string, table *laps.LapTable) {
	if c == nil || table == nil {
		return
	}
	for _, rec := range table.All() {
		kind := "complete"
		if rec.Partial {
			kind = "partial"
		}
		c.Laps.WithLabelValues(kind).Inc()
	}
	if best, ok := table.Fastest(); ok {
		c.FastestLap.WithLabelValues(run).Set(best.Total)
	}
}

// ObserveRun records the status and wall time of one processed file.
func (c *LapCollector) ObserveRun(status string, seconds float64) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(status).Inc()
	c.RunDurations.Observe(seconds)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LapCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
