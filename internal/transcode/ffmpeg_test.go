package transcode

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skypro1111/audio-upload-service/internal/audiotest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBuildArgs(t *testing.T) {
	f := NewFFmpeg(Config{AudioBitrate: "128k"}, testLogger())
	args := strings.Join(f.buildArgs("in.m4a", "out.mp3"), " ")

	for _, want := range []string{"-y", "-i in.m4a", "-codec:a libmp3lame", "-b:a 128k", "-f mp3 out.mp3"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected args to contain %q, got %q", want, args)
		}
	}
	if !strings.HasSuffix(args, "out.mp3") {
		t.Errorf("Expected destination to be last, got %q", args)
	}

	f = NewFFmpeg(Config{}, testLogger())
	if strings.Contains(strings.Join(f.buildArgs("a", "b"), " "), "-b:a") {
		t.Errorf("Expected no bitrate flag when unset")
	}
	if f.config.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default binary ffmpeg, got %s", f.config.FFmpegPath)
	}
}

func TestTranscodeMissingBinary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(src, audiotest.SineWAV(time.Second, 8000), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	f := NewFFmpeg(Config{FFmpegPath: filepath.Join(dir, "no-such-ffmpeg")}, testLogger())
	_, err := f.Transcode(context.Background(), src, filepath.Join(dir, "out.mp3"))
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("Expected ErrConversion, got %v", err)
	}
}

func TestProbeRejectsNonMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.mp3")
	if err := os.WriteFile(path, []byte("definitely not mpeg audio"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := ProbeMP3(path); err == nil {
		t.Errorf("Expected probe error for non-MP3 content")
	}
}

func TestTranscodeWithFFmpeg(t *testing.T) {
	f := NewFFmpeg(Config{AudioBitrate: "64k", Timeout: 30 * time.Second}, testLogger())
	if !f.Available() {
		t.Skip("Skipping test: ffmpeg binary not available")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "tone.wav")
	if err := os.WriteFile(src, audiotest.SineWAV(2*time.Second, 16000), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	dst := filepath.Join(dir, "tone.mp3")

	artifact, err := f.Transcode(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	if artifact.Format != "mp3" {
		t.Errorf("Expected format mp3, got %s", artifact.Format)
	}
	if artifact.Size == 0 {
		t.Errorf("Expected non-empty artifact")
	}
	if artifact.Duration < time.Second || artifact.Duration > 3*time.Second {
		t.Errorf("Expected duration close to 2s, got %v", artifact.Duration)
	}
}

func TestTranscodeCorruptInput(t *testing.T) {
	f := NewFFmpeg(Config{}, testLogger())
	if !f.Available() {
		t.Skip("Skipping test: ffmpeg binary not available")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "broken.m4a")
	if err := os.WriteFile(src, []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	_, err := f.Transcode(context.Background(), src, filepath.Join(dir, "out.mp3"))
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("Expected ErrConversion, got %v", err)
	}
}
