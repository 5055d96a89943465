package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice training service
type Metrics struct {
	// WebSocket message metrics
	MessagesReceived  prometheus.Counter
	MessagesProcessed prometheus.Counter
	DecodeErrors      prometheus.Counter
	ActiveConnections prometheus.Gauge

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Audio buffering metrics
	SegmentsBuffered prometheus.Counter
	AudioBytes       prometheus.Counter
	SegmentSize      prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionSkips     prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// WebSocket message metrics
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_messages_received_total",
			Help: "Total number of WebSocket messages received",
		}),
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_messages_processed_total",
			Help: "Total number of WebSocket messages successfully processed",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_decode_errors_total",
			Help: "Total number of message decode errors",
		}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vt_active_connections",
			Help: "Current number of open WebSocket connections",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vt_active_sessions",
			Help: "Current number of active transcription sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_session_duration_seconds",
			Help:    "Duration of transcription sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Audio buffering metrics
		SegmentsBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_segments_buffered_total",
			Help: "Total number of audio segments buffered",
		}),
		AudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_audio_bytes_total",
			Help: "Total number of audio bytes received",
		}),
		SegmentSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_segment_size_bytes",
			Help:    "Size of buffered audio segments in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~1MB
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vt_transcription_skips_total",
			Help: "Total number of transcription triggers skipped because one was in flight",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordMessageReceived increments the messages received counter
func (m *Metrics) RecordMessageReceived() {
	m.MessagesReceived.Inc()
}

// RecordMessageProcessed increments the messages processed counter
func (m *Metrics) RecordMessageProcessed() {
	m.MessagesProcessed.Inc()
}

// RecordDecodeError increments the decode errors counter
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// SetActiveConnections sets the current number of open connections
func (m *Metrics) SetActiveConnections(count int) {
	m.ActiveConnections.Set(float64(count))
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionDestroyed increments the sessions destroyed counter and records duration
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	m.SessionsDestroyed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSegmentBuffered records a buffered audio segment
func (m *Metrics) RecordSegmentBuffered(sizeBytes int) {
	m.SegmentsBuffered.Inc()
	m.AudioBytes.Add(float64(sizeBytes))
	m.SegmentSize.Observe(float64(sizeBytes))
}

// RecordAudioBytes adds to the total audio bytes counter
func (m *Metrics) RecordAudioBytes(sizeBytes int) {
	m.AudioBytes.Add(float64(sizeBytes))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionSkip increments the skipped trigger counter
func (m *Metrics) RecordTranscriptionSkip() {
	m.TranscriptionSkips.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
