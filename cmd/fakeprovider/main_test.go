package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skypro1111/audio-upload-service/internal/transcription"
)

func newTestProvider(apiKey string) (*provider, *httptest.Server) {
	p := &provider{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		apiKey:      apiKey,
		uploads:     make(map[string]int64),
		transcripts: make(map[string]transcriptResponse),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", p.handleUpload)
	mux.HandleFunc("/v2/transcript", p.handleTranscript)
	srv := httptest.NewServer(mux)
	p.baseURL = srv.URL
	return p, srv
}

func TestClientRoundTrip(t *testing.T) {
	p, srv := newTestProvider("secret")
	defer srv.Close()

	client, err := transcription.NewClient(transcription.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	audioURL, err := client.Upload(context.Background(), strings.NewReader("mp3 bytes"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if !strings.HasPrefix(audioURL, srv.URL+"/upload/") {
		t.Errorf("Unexpected upload url %s", audioURL)
	}

	job, err := client.CreateTranscript(context.Background(), audioURL)
	if err != nil {
		t.Fatalf("CreateTranscript failed: %v", err)
	}
	if job.ID == "" || job.Status != "queued" {
		t.Errorf("Unexpected job %+v", job)
	}

	if len(p.uploads) != 1 || len(p.transcripts) != 1 {
		t.Errorf("Expected one upload and one transcript, got %d and %d", len(p.uploads), len(p.transcripts))
	}
}

func TestRejectsWrongKey(t *testing.T) {
	_, srv := newTestProvider("secret")
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v2/upload", strings.NewReader("x"))
	req.Header.Set("Authorization", "wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestTranscriptRequiresAudioURL(t *testing.T) {
	_, srv := newTestProvider("")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v2/transcript", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}
