package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio upload service
type Metrics struct {
	// Upload pipeline metrics
	Uploads          *prometheus.CounterVec
	UploadSize       prometheus.Histogram
	PipelineDuration prometheus.Histogram
	CleanupFailures  prometheus.Counter

	// Transcoding metrics
	ConversionDuration *prometheus.HistogramVec
	ArtifactDuration   prometheus.Histogram

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_uploads_total",
			Help: "Total number of uploads by pipeline outcome",
		}, []string{"outcome"}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_upload_size_bytes",
			Help:    "Size of uploaded original files",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 9), // 16KB to ~1GB
		}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_pipeline_duration_seconds",
			Help:    "End to end duration of the upload pipeline",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3 minutes
		}),
		CleanupFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_original_cleanup_failures_total",
			Help: "Total number of originals that could not be deleted after conversion",
		}),

		ConversionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audio_conversion_duration_seconds",
			Help:    "Duration of ffmpeg conversions",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"outcome"}),
		ArtifactDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_artifact_duration_seconds",
			Help:    "Playback length of converted artifacts",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),

		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_provider_requests_total",
			Help: "Total number of transcription provider calls",
		}, []string{"operation", "outcome"}),
		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audio_provider_request_duration_seconds",
			Help:    "Duration of transcription provider calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordUpload records a finished pipeline run
func (m *Metrics) RecordUpload(outcome string, sizeBytes int64, durationSeconds float64) {
	m.Uploads.WithLabelValues(outcome).Inc()
	m.UploadSize.Observe(float64(sizeBytes))
	m.PipelineDuration.Observe(durationSeconds)
}

// RecordRejectedUpload counts a request that never reached the pipeline
func (m *Metrics) RecordRejectedUpload() {
	m.Uploads.WithLabelValues("rejected").Inc()
}

// RecordCleanupFailure increments the original-file cleanup failure counter
func (m *Metrics) RecordCleanupFailure() {
	m.CleanupFailures.Inc()
}

// RecordConversion records an ffmpeg run and, on success, the artifact length
func (m *Metrics) RecordConversion(success bool, durationSeconds, artifactSeconds float64) {
	if !success {
		m.ConversionDuration.WithLabelValues("failure").Observe(durationSeconds)
		return
	}
	m.ConversionDuration.WithLabelValues("success").Observe(durationSeconds)
	m.ArtifactDuration.Observe(artifactSeconds)
}

// RecordProviderCall records a call to the transcription provider
func (m *Metrics) RecordProviderCall(operation string, success bool, durationSeconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ProviderRequests.WithLabelValues(operation, outcome).Inc()
	m.ProviderDuration.WithLabelValues(operation).Observe(durationSeconds)
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
