// Package metrics defines the Prometheus instrumentation for the
// segmentation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the segmentation engine.
type Metrics struct {
	// Capture / queue metrics
	BlocksCaptured prometheus.Counter
	BlocksDropped  prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Frame metrics
	FramesProcessed  prometheus.Counter
	SpeechFrames     prometheus.Counter
	ClassifierErrors prometheus.Counter

	// Utterance metrics
	UtterancesStarted prometheus.Counter
	UtterancesEmitted prometheus.Counter
	UtteranceDuration prometheus.Histogram
	UtteranceSize     prometheus.Histogram

	// Callback metrics
	CallbackPanics prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		BlocksCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_blocks_captured_total",
			Help: "Total number of audio blocks received from the capture device",
		}),
		BlocksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_blocks_dropped_total",
			Help: "Total number of audio blocks dropped by the sample queue",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "segmenter_queue_depth",
			Help: "Current number of blocks waiting in the sample queue",
		}),

		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_frames_processed_total",
			Help: "Total number of fixed-length frames classified",
		}),
		SpeechFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		ClassifierErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_classifier_errors_total",
			Help: "Total number of classifier failures treated as non-speech",
		}),

		UtterancesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_utterances_started_total",
			Help: "Total number of speech-start transitions",
		}),
		UtterancesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_utterances_emitted_total",
			Help: "Total number of finished utterances delivered to the caller",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmenter_utterance_duration_seconds",
			Help:    "Duration of emitted utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to ~1 minute
		}),
		UtteranceSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmenter_utterance_size_bytes",
			Help:    "Encoded container size of emitted utterances",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		CallbackPanics: promauto.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_callback_panics_total",
			Help: "Total number of recovered panics in user callbacks",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "segmenter_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "segmenter_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordBlockCaptured increments the captured blocks counter and updates
// the queue depth gauge.
func (m *Metrics) RecordBlockCaptured(queueDepth int) {
	m.BlocksCaptured.Inc()
	m.QueueDepth.Set(float64(queueDepth))
}

// RecordBlockDropped increments the dropped blocks counter.
func (m *Metrics) RecordBlockDropped() {
	m.BlocksDropped.Inc()
}

// RecordFrame increments frames processed and optionally speech frames.
func (m *Metrics) RecordFrame(isSpeech bool) {
	m.FramesProcessed.Inc()
	if isSpeech {
		m.SpeechFrames.Inc()
	}
}

// RecordClassifierError increments the classifier error counter.
func (m *Metrics) RecordClassifierError() {
	m.ClassifierErrors.Inc()
}

// RecordUtteranceStarted increments the speech-start counter.
func (m *Metrics) RecordUtteranceStarted() {
	m.UtterancesStarted.Inc()
}

// RecordUtteranceEmitted records a finished utterance.
func (m *Metrics) RecordUtteranceEmitted(durationSeconds float64, sizeBytes int) {
	m.UtterancesEmitted.Inc()
	m.UtteranceDuration.Observe(durationSeconds)
	m.UtteranceSize.Observe(float64(sizeBytes))
}

// RecordCallbackPanic increments the recovered callback panic counter.
func (m *Metrics) RecordCallbackPanic() {
	m.CallbackPanics.Inc()
}

// RecordHTTPRequest records a handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
