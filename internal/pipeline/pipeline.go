package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/skypro1111/audio-upload-service/internal/metrics"
	"github.com/skypro1111/audio-upload-service/internal/storage"
	"github.com/skypro1111/audio-upload-service/internal/transcode"
	"github.com/skypro1111/audio-upload-service/internal/transcription"
)

// State is a step of one pipeline run
type State string

const (
	StateReceived   State = "received"
	StateStored     State = "stored"
	StateConverting State = "converting"
	StateConverted  State = "converted"
	StateUploading  State = "uploading"
	StateSubmitted  State = "submitted"
	StateResponded  State = "responded"
)

// Outcome labels used for logging and metrics
const (
	OutcomeSuccess          = "success"
	OutcomeConversionFailed = "conversion_failed"
	OutcomeProviderFailed   = "provider_failed"
)

type requestIDKey struct{}

// WithRequestID tags ctx so that pipeline logs carry the caller's request id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Store is the part of the upload directory the pipeline needs
type Store interface {
	ConvertedPath(ext string) string
	Remove(path string) error
}

// Transcriber submits converted audio to the transcription provider
type Transcriber interface {
	Upload(ctx context.Context, audio io.Reader) (string, error)
	CreateTranscript(ctx context.Context, audioURL string) (*transcription.JobReference, error)
}

// Result is what a successful run hands back to the caller
type Result struct {
	Job      *transcription.JobReference
	Artifact *transcode.ConvertedArtifact
}

// Pipeline converts a stored upload and submits it for transcription
type Pipeline struct {
	store       Store
	transcoder  transcode.Transcoder
	transcriber Transcriber
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a pipeline. m may be nil.
func New(store Store, transcoder transcode.Transcoder, transcriber Transcriber, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		transcoder:  transcoder,
		transcriber: transcriber,
		metrics:     m,
		logger:      logger,
	}
}

// Process runs convert, delete original, upload and submit for a file that is
// already stored. Each step blocks until done and nothing is retried. Errors
// wrap transcode.ErrConversion or transcription.ErrProvider.
func (p *Pipeline) Process(ctx context.Context, upload *storage.UploadedFile) (*Result, error) {
	start := time.Now()
	logger := p.logger.With(
		slog.String("original_name", upload.OriginalName),
		slog.String("path", upload.Path),
	)
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		logger = logger.With(slog.String("request_id", id))
	}
	logger.Debug("Pipeline state", slog.String("state", string(StateStored)))

	result, outcome, err := p.run(ctx, upload, logger)

	logger.Debug("Pipeline state",
		slog.String("state", string(StateResponded)),
		slog.String("outcome", outcome),
	)
	if p.metrics != nil {
		p.metrics.RecordUpload(outcome, upload.Size, time.Since(start).Seconds())
	}
	return result, err
}

func (p *Pipeline) run(ctx context.Context, upload *storage.UploadedFile, logger *slog.Logger) (*Result, string, error) {
	dst := p.store.ConvertedPath("mp3")
	logger.Debug("Pipeline state",
		slog.String("state", string(StateConverting)),
		slog.String("output", dst),
	)

	convStart := time.Now()
	artifact, err := p.transcoder.Transcode(ctx, upload.Path, dst)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordConversion(false, time.Since(convStart).Seconds(), 0)
		}
		logger.Error("Error during conversion", slog.String("error", err.Error()))
		return nil, OutcomeConversionFailed, err
	}
	if p.metrics != nil {
		p.metrics.RecordConversion(true, time.Since(convStart).Seconds(), artifact.Duration.Seconds())
	}

	logger.Info("Conversion to MP3 completed",
		slog.String("output", artifact.Path),
		slog.Int64("size", artifact.Size),
		slog.Duration("duration", artifact.Duration),
		slog.Duration("took", time.Since(convStart)),
	)
	logger.Debug("Pipeline state", slog.String("state", string(StateConverted)))

	if err := p.store.Remove(upload.Path); err != nil {
		if p.metrics != nil {
			p.metrics.RecordCleanupFailure()
		}
		logger.Warn("Error removing original file", slog.String("error", err.Error()))
	}

	logger.Debug("Pipeline state", slog.String("state", string(StateUploading)))
	job, err := p.submit(ctx, artifact.Path)
	if err != nil {
		logger.Error("Error uploading to transcription provider",
			slog.String("artifact", artifact.Path),
			slog.String("error", err.Error()),
		)
		return nil, OutcomeProviderFailed, err
	}

	logger.Info("Transcript requested",
		slog.String("transcript_id", job.ID),
		slog.String("status", job.Status),
	)
	logger.Debug("Pipeline state", slog.String("state", string(StateSubmitted)))

	return &Result{Job: job, Artifact: artifact}, OutcomeSuccess, nil
}

// submit streams the artifact to the provider and creates the transcript job
func (p *Pipeline) submit(ctx context.Context, path string) (*transcription.JobReference, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open artifact: %v", transcription.ErrProvider, err)
	}
	defer file.Close()

	callStart := time.Now()
	audioURL, err := p.transcriber.Upload(ctx, file)
	p.recordCall("upload", err, callStart)
	if err != nil {
		return nil, err
	}

	callStart = time.Now()
	job, err := p.transcriber.CreateTranscript(ctx, audioURL)
	p.recordCall("transcript", err, callStart)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (p *Pipeline) recordCall(operation string, err error, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordProviderCall(operation, err == nil, time.Since(start).Seconds())
	}
}
