package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID        string    `json:"id"`
	AudioURL  string    `json:"audio_url"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type provider struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string

	mu          sync.Mutex
	uploads     map[string]int64
	transcripts map[string]transcriptResponse
}

func (p *provider) authorized(w http.ResponseWriter, r *http.Request) bool {
	if p.apiKey == "" || r.Header.Get("Authorization") == p.apiKey {
		return true
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authentication error, API token missing/invalid"})
	return false
}

func (p *provider) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !p.authorized(w, r) {
		return
	}

	size, err := io.Copy(io.Discard, r.Body)
	if err != nil {
		http.Error(w, "Error reading audio", http.StatusBadRequest)
		return
	}
	if size == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Upload body is empty"})
		return
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.uploads[id] = size
	p.mu.Unlock()

	p.logger.Info("Upload received",
		slog.String("upload_id", id),
		slog.Int64("size", size),
		slog.String("content_type", r.Header.Get("Content-Type")),
	)

	writeJSON(w, http.StatusOK, uploadResponse{UploadURL: p.baseURL + "/upload/" + id})
}

func (p *provider) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !p.authorized(w, r) {
		return
	}

	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AudioURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio_url is required"})
		return
	}

	resp := transcriptResponse{
		ID:        uuid.NewString(),
		AudioURL:  req.AudioURL,
		Status:    "queued",
		CreatedAt: time.Now(),
	}
	p.mu.Lock()
	p.transcripts[resp.ID] = resp
	p.mu.Unlock()

	p.logger.Info("Transcript queued",
		slog.String("transcript_id", resp.ID),
		slog.String("audio_url", resp.AudioURL),
	)

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	baseURL := flag.String("base-url", "http://localhost:9000", "Base URL used in returned upload_url values")
	apiKey := flag.String("api-key", "", "Expected Authorization header, empty accepts any")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	p := &provider{
		logger:      logger,
		baseURL:     *baseURL,
		apiKey:      *apiKey,
		uploads:     make(map[string]int64),
		transcripts: make(map[string]transcriptResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", p.handleUpload)
	mux.HandleFunc("/v2/transcript", p.handleTranscript)

	logger.Info("Fake transcription provider starting",
		slog.String("address", *addr),
		slog.String("hint", "set ASSEMBLYAI_ENDPOINT=http://localhost"+*addr),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
