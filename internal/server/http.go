package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/skypro1111/audio-upload-service/internal/config"
	"github.com/skypro1111/audio-upload-service/internal/metrics"
	"github.com/skypro1111/audio-upload-service/internal/pipeline"
	"github.com/skypro1111/audio-upload-service/internal/storage"
	"github.com/skypro1111/audio-upload-service/internal/transcode"
	"github.com/skypro1111/audio-upload-service/internal/transcription"
)

const (
	uploadField  = "file"
	staticPrefix = "/uploads/"
)

// Caller visible error messages. Details stay in the server log.
const (
	msgNoFile           = "No file uploaded"
	msgTooLarge         = "File too large"
	msgStoreFailed      = "Failed to store file"
	msgConvertFailed    = "Failed to convert file"
	msgProviderFailed   = "Failed to upload to AssemblyAI"
	msgMethodNotAllowed = "Method not allowed"
)

var errNoFile = errors.New("no file field in request")

// ProviderStats exposes transcription client counters
type ProviderStats interface {
	GetStats() transcription.ClientStats
}

// HTTPServer serves the upload API, the stored artifacts and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	store    *storage.Local
	pipeline *pipeline.Pipeline
	provider ProviderStats
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	// Server state
	startTime time.Time
	stats     uploadStats
}

type uploadStats struct {
	total            atomic.Uint64
	succeeded        atomic.Uint64
	rejected         atomic.Uint64
	conversionFailed atomic.Uint64
	providerFailed   atomic.Uint64
	storageFailed    atomic.Uint64
}

// UploadResponse is the body of a successful POST /upload
type UploadResponse struct {
	Success      bool   `json:"success"`
	TranscriptID string `json:"transcript_id"`
	MP3URL       string `json:"mp3_url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPServer creates a new HTTP API server. provider, m and gatherer may be nil.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, store *storage.Local,
	pipe *pipeline.Pipeline, provider ProviderStats, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		store:     store,
		pipeline:  pipe,
		provider:  provider,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler(mux)

	// Write timeout stays off by default: a response is held until
	// conversion and both provider calls finish.
	h.server = &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.GetReadTimeoutDuration(),
		WriteTimeout:      cfg.HTTP.GetWriteTimeoutDuration(),
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/upload", h.withMetrics("/upload", h.handleUpload))
	mux.Handle(staticPrefix, h.withMetrics("/uploads/{file}", h.handleStatic()))

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the fully wrapped router
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	if h.metrics == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleUpload implements POST /upload
func (h *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: msgMethodNotAllowed})
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	logger := h.logger.With(slog.String("request_id", requestID))

	if limit := h.config.Storage.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	h.stats.total.Add(1)
	logger.Debug("Pipeline state", slog.String("state", string(pipeline.StateReceived)))

	upload, err := h.receiveFile(r)
	if err != nil {
		h.rejectUpload(w, logger, err)
		return
	}

	logger.Info("File uploaded",
		slog.String("original_name", upload.OriginalName),
		slog.String("mime_type", upload.MimeType),
		slog.Int64("size", upload.Size),
	)

	// A client disconnect must not abort a run that has already started.
	ctx := pipeline.WithRequestID(context.WithoutCancel(r.Context()), requestID)
	result, err := h.pipeline.Process(ctx, upload)
	if err != nil {
		if errors.Is(err, transcode.ErrConversion) {
			h.stats.conversionFailed.Add(1)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgConvertFailed})
			return
		}
		h.stats.providerFailed.Add(1)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgProviderFailed})
		return
	}

	mp3URL, err := h.publicURL(r, result.Artifact.Path)
	if err != nil {
		logger.Error("Failed to build artifact URL", slog.String("error", err.Error()))
		h.stats.storageFailed.Add(1)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgStoreFailed})
		return
	}

	h.stats.succeeded.Add(1)
	writeJSON(w, http.StatusOK, UploadResponse{
		Success:      true,
		TranscriptID: result.Job.ID,
		MP3URL:       mp3URL,
	})
}

func (h *HTTPServer) rejectUpload(w http.ResponseWriter, logger *slog.Logger, err error) {
	if h.metrics != nil {
		h.metrics.RecordRejectedUpload()
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		h.stats.rejected.Add(1)
		logger.Warn("Upload exceeds size limit", slog.Int64("limit", maxErr.Limit))
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: msgTooLarge})
	case errors.Is(err, errNoFile), errors.Is(err, storage.ErrEmptyName):
		h.stats.rejected.Add(1)
		logger.Info("Upload rejected", slog.String("reason", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgNoFile})
	default:
		h.stats.storageFailed.Add(1)
		logger.Error("Failed to store upload", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgStoreFailed})
	}
}

// receiveFile streams the first "file" part straight into storage. Nothing is
// written when the request carries no such part.
func (h *HTTPServer) receiveFile(r *http.Request) (*storage.UploadedFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFile
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", errNoFile, err)
		}

		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		upload, err := h.store.Save(part.FileName(), partContentType(part), part)
		part.Close()
		return upload, err
	}
}

func partContentType(part *multipart.Part) string {
	if ct := part.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// publicURL maps a stored path to the URL it is served under
func (h *HTTPServer) publicURL(r *http.Request, path string) (string, error) {
	name, err := h.store.PublicName(path)
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(h.config.HTTP.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}
		base = scheme + "://" + r.Host
	}

	return base + staticPrefix + url.PathEscape(name), nil
}

// handleStatic serves stored files under /uploads/ without directory listings
func (h *HTTPServer) handleStatic() http.HandlerFunc {
	files := http.StripPrefix(strings.TrimSuffix(staticPrefix, "/"), http.FileServer(http.Dir(h.store.Root())))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "audio-upload-service",
			"version": "1.0.0",
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"uploads": map[string]interface{}{
			"total":             h.stats.total.Load(),
			"succeeded":         h.stats.succeeded.Load(),
			"rejected":          h.stats.rejected.Load(),
			"conversion_failed": h.stats.conversionFailed.Load(),
			"provider_failed":   h.stats.providerFailed.Load(),
			"storage_failed":    h.stats.storageFailed.Load(),
		},
	}
	if h.provider != nil {
		stats["transcription"] = h.provider.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Audio Upload Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":               "API documentation",
			"POST /upload":        "Upload an audio file (multipart field 'file')",
			"GET /uploads/{file}": "Download a converted file",
			"GET /health":         "Service health check",
			"GET /stats":          "Upload and provider statistics",
			"GET /metrics":        "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
