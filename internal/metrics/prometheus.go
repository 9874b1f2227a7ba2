package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the storyreel client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsCancelled prometheus.Counter
	DeviceErrors        prometheus.Counter
	FramesCaptured      prometheus.Counter
	RecordingDuration   prometheus.Histogram
	RecordingSize       prometheus.Histogram

	// Run metrics
	RunsSubmitted      prometheus.Counter
	RunsSucceeded      prometheus.Counter
	RunsFailed         *prometheus.CounterVec
	ActiveRuns         prometheus.Gauge
	SubmissionDuration prometheus.Histogram

	// Log polling metrics
	LogFetches       prometheus.Counter
	LogFetchErrors   prometheus.Counter
	LogFetchDuration prometheus.Histogram

	// Status API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_recordings_started_total",
			Help: "Total number of microphone recordings started",
		}),
		RecordingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_recordings_completed_total",
			Help: "Total number of recordings finalized into a WAV asset",
		}),
		RecordingsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_recordings_cancelled_total",
			Help: "Total number of recordings discarded without output",
		}),
		DeviceErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_capture_device_errors_total",
			Help: "Total number of failures to acquire the capture device",
		}),
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_capture_frames_total",
			Help: "Total number of audio frames delivered by the capture tap",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyreel_recording_duration_seconds",
			Help:    "Duration of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		RecordingSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyreel_recording_size_bytes",
			Help:    "Size of encoded WAV recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),

		// Run metrics
		RunsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_runs_submitted_total",
			Help: "Total number of generation runs submitted",
		}),
		RunsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_runs_succeeded_total",
			Help: "Total number of generation runs that produced a video",
		}),
		RunsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_runs_failed_total",
			Help: "Total number of failed generation runs",
		}, []string{"kind"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storyreel_active_runs",
			Help: "Number of generation runs currently in flight",
		}),
		SubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyreel_submission_duration_seconds",
			Help:    "Time from submission until the service answered",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		// Log polling metrics
		LogFetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_log_fetches_total",
			Help: "Total number of run log fetches issued",
		}),
		LogFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyreel_log_fetch_errors_total",
			Help: "Total number of run log fetches that failed or were malformed",
		}),
		LogFetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyreel_log_fetch_duration_seconds",
			Help:    "Duration of run log fetches",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),

		// Status API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_http_requests_total",
			Help: "Total number of status API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyreel_http_request_duration_seconds",
			Help:    "Duration of status API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyreel_http_errors_total",
			Help: "Total number of status API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRecordingStarted increments the recordings started counter
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordRecordingCompleted records a finalized recording
func (m *Metrics) RecordRecordingCompleted(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.RecordingsCompleted.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.RecordingSize.Observe(float64(sizeBytes))
}

// RecordRecordingCancelled increments the recordings cancelled counter
func (m *Metrics) RecordRecordingCancelled() {
	if m == nil {
		return
	}
	m.RecordingsCancelled.Inc()
}

// RecordDeviceError increments the device errors counter
func (m *Metrics) RecordDeviceError() {
	if m == nil {
		return
	}
	m.DeviceErrors.Inc()
}

// RecordFrame increments the captured frames counter
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
}

// RecordRunSubmitted marks a run as submitted and in flight
func (m *Metrics) RecordRunSubmitted() {
	if m == nil {
		return
	}
	m.RunsSubmitted.Inc()
	m.ActiveRuns.Inc()
}

// RecordRunSucceeded records a successful run
func (m *Metrics) RecordRunSucceeded(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsSucceeded.Inc()
	m.ActiveRuns.Dec()
	m.SubmissionDuration.Observe(durationSeconds)
}

// RecordRunFailed records a failed run by error kind
func (m *Metrics) RecordRunFailed(kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsFailed.WithLabelValues(kind).Inc()
	m.ActiveRuns.Dec()
	m.SubmissionDuration.Observe(durationSeconds)
}

// RecordLogFetch records one log fetch and whether it produced an update
func (m *Metrics) RecordLogFetch(ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LogFetches.Inc()
	if !ok {
		m.LogFetchErrors.Inc()
	}
	m.LogFetchDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records a status API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records a status API error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
