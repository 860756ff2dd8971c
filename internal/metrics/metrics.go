// Package metrics exports monitor counters and gauges to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

const namespace = "envmon"

// Outcome labels for SampleTicks
const (
	OutcomeStored      = "stored"
	OutcomeReadFailed  = "read_failed"
	OutcomeWriteFailed = "write_failed"
)

var (
	// SampleTicks counts sampling attempts by outcome
	SampleTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_ticks_total",
			Help:      "Total number of sampling attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SensorReadDuration measures a full read of the sensor array
	SensorReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sensor_read_duration_seconds",
			Help:      "Duration of a composite sensor read in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// ConsecutiveFailures is the current run of failed sampling attempts
	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_consecutive_failures",
			Help:      "Number of consecutive failed sampling attempts",
		},
	)

	// PublishErrors counts failed publications by publisher
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of failed sample publications",
		},
		[]string{"publisher"},
	)

	// Reading holds the last stored value of each channel
	Reading = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Last stored reading per channel",
		},
		[]string{"channel"},
	)

	// LastSampleTimestamp is the Unix time of the last stored sample
	LastSampleTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sample_timestamp_seconds",
			Help:      "Unix time of the last stored sample",
		},
	)

	// ActiveSessions is the number of open display sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_active_sessions",
			Help:      "Number of open display sessions",
		},
	)

	// SamplesPushed counts samples appended to display windows
	SamplesPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_samples_pushed_total",
			Help:      "Total number of samples pushed to display windows",
		},
	)

	// RequestsTotal counts HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration measures HTTP request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route", "method"},
	)
)

// ObserveSample updates the per-channel gauges from a freshly stored sample
func ObserveSample(s sample.Sample) {
	Reading.WithLabelValues("temperature_f").Set(s.TemperatureF)
	Reading.WithLabelValues("humidity_pct").Set(s.HumidityPct)
	Reading.WithLabelValues("pressure_hpa").Set(s.PressureHPa)
	Reading.WithLabelValues("eco2_ppm").Set(float64(s.ECO2PPM))
	Reading.WithLabelValues("tvoc_ppb").Set(float64(s.TVOCPPB))
	Reading.WithLabelValues("illuminance_lux").Set(s.IlluminanceLux)
	Reading.WithLabelValues("uv_index").Set(float64(s.UVIndex))
	LastSampleTimestamp.Set(float64(s.Timestamp.UnixNano()) / float64(time.Second))
}
