package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming service
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionDuration prometheus.Histogram
	SessionActive   prometheus.Gauge
	Speaking        prometheus.Gauge

	// Capture metrics
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesEvicted  prometheus.Counter
	CaptureErrors  prometheus.Counter
	FrameBytes     prometheus.Histogram

	// Audio metrics
	AudioChunksSent     prometheus.Counter
	AudioChunksReceived prometheus.Counter
	PlaybackErrors      prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics on the given registerer. Tests pass a
// private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_sessions_started_total",
			Help: "Total number of sessions successfully started",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_sessions_failed_total",
			Help: "Total number of session starts that failed",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_sessions_stopped_total",
			Help: "Total number of sessions stopped",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talkstream_session_duration_seconds",
			Help:    "Duration of completed sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "talkstream_session_active",
			Help: "Whether a session is currently active (0 or 1)",
		}),
		Speaking: factory.NewGauge(prometheus.GaugeOpts{
			Name: "talkstream_speaking",
			Help: "Whether the model voice is currently audible (0 or 1)",
		}),

		// Capture metrics
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_frames_captured_total",
			Help: "Total number of frames captured",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_frames_sent_total",
			Help: "Total number of frames sent to the model",
		}),
		FramesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_frames_evicted_total",
			Help: "Total number of frames evicted from the queue under backpressure",
		}),
		CaptureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_capture_errors_total",
			Help: "Total number of frame capture failures",
		}),
		FrameBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talkstream_frame_size_bytes",
			Help:    "Size of encoded frames in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Audio metrics
		AudioChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_audio_chunks_sent_total",
			Help: "Total number of microphone chunks sent",
		}),
		AudioChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_audio_chunks_received_total",
			Help: "Total number of model audio chunks received",
		}),
		PlaybackErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkstream_playback_errors_total",
			Help: "Total number of playback failures",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talkstream_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talkstream_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talkstream_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionStarted marks a session as active
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// RecordSessionFailed increments the failed session counter
func (m *Metrics) RecordSessionFailed() {
	m.SessionsFailed.Inc()
}

// RecordSessionStopped marks the session as finished and records duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	m.SessionsStopped.Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.SessionActive.Set(0)
	m.Speaking.Set(0)
}

// SetSpeaking updates the speaking gauge
func (m *Metrics) SetSpeaking(speaking bool) {
	if speaking {
		m.Speaking.Set(1)
	} else {
		m.Speaking.Set(0)
	}
}

// RecordFrameCaptured records a captured frame
func (m *Metrics) RecordFrameCaptured(sizeBytes int) {
	m.FramesCaptured.Inc()
	m.FrameBytes.Observe(float64(sizeBytes))
}

// RecordFrameSent increments the frames sent counter
func (m *Metrics) RecordFrameSent() {
	m.FramesSent.Inc()
}

// RecordFrameEvicted increments the eviction counter
func (m *Metrics) RecordFrameEvicted() {
	m.FramesEvicted.Inc()
}

// RecordCaptureError increments the capture error counter
func (m *Metrics) RecordCaptureError() {
	m.CaptureErrors.Inc()
}

// RecordAudioChunkSent increments the outbound audio counter
func (m *Metrics) RecordAudioChunkSent() {
	m.AudioChunksSent.Inc()
}

// RecordAudioChunkReceived increments the inbound audio counter
func (m *Metrics) RecordAudioChunkReceived() {
	m.AudioChunksReceived.Inc()
}

// RecordPlaybackError increments the playback error counter
func (m *Metrics) RecordPlaybackError() {
	m.PlaybackErrors.Inc()
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
