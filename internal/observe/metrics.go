// Package observe provides the daemon's observability primitives:
// OpenTelemetry metrics, a Prometheus exporter bridge, and HTTP middleware
// for the optional metrics/health listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the /metrics endpoint when the listener is enabled. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all daemon metrics.
const meterName = "github.com/voiceinput/voiceinput"

// Metrics holds all OpenTelemetry metric instruments for the daemon.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecordingDuration tracks the length of accepted recordings.
	RecordingDuration metric.Float64Histogram

	// TranscriptionDuration tracks the transcription service round trip.
	TranscriptionDuration metric.Float64Histogram

	// Recordings counts finished recordings. Use with attribute:
	//   attribute.String("outcome", "ok"|"too_short"|"error")
	Recordings metric.Int64Counter

	// Transcriptions counts transcription attempts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("outcome", "ok"|"empty"|"error")
	Transcriptions metric.Int64Counter

	// Insertions counts text insertions into the focused window. Use with
	// attribute: attribute.String("outcome", "ok"|"error")
	Insertions metric.Int64Counter

	// Notifications counts desktop notifications by urgency.
	Notifications metric.Int64Counter

	// InFlight tracks transcription tasks currently running.
	InFlight metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request latency on the metrics/health
	// listener. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// recording lengths and transcription round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("voiceinput.recording.duration",
		metric.WithDescription("Length of accepted recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("voiceinput.transcription.duration",
		metric.WithDescription("Latency of the transcription service round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Recordings, err = m.Int64Counter("voiceinput.recordings",
		metric.WithDescription("Total finished recordings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Transcriptions, err = m.Int64Counter("voiceinput.transcriptions",
		metric.WithDescription("Total transcription attempts by provider and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Insertions, err = m.Int64Counter("voiceinput.insertions",
		metric.WithDescription("Total text insertions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("voiceinput.notifications",
		metric.WithDescription("Total desktop notifications by urgency."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.InFlight, err = m.Int64UpDownCounter("voiceinput.transcriptions.in_flight",
		metric.WithDescription("Transcription tasks currently running."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceinput.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRecording records one finished recording: the outcome counter and,
// for accepted recordings, the duration histogram.
func (m *Metrics) RecordRecording(ctx context.Context, outcome string, seconds float64) {
	m.Recordings.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
	if seconds > 0 {
		m.RecordingDuration.Record(ctx, seconds)
	}
}

// RecordTranscription records one transcription attempt with its round-trip
// time.
func (m *Metrics) RecordTranscription(ctx context.Context, provider, outcome string, seconds float64) {
	m.Transcriptions.Add(ctx, 1,
		metric.WithAttributes(
			Attr("provider", provider),
			Attr("outcome", outcome),
		),
	)
	if seconds > 0 {
		m.TranscriptionDuration.Record(ctx, seconds)
	}
}

// RecordInsertion records one text insertion attempt.
func (m *Metrics) RecordInsertion(ctx context.Context, outcome string) {
	m.Insertions.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordNotification records one desktop notification.
func (m *Metrics) RecordNotification(ctx context.Context, urgency string) {
	m.Notifications.Add(ctx, 1, metric.WithAttributes(Attr("urgency", urgency)))
}

// AddInFlight adjusts the in-flight transcription gauge by delta.
func (m *Metrics) AddInFlight(ctx context.Context, delta int64) {
	m.InFlight.Add(ctx, delta)
}
