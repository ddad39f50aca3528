package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tcolgate/mp3"
)

// ErrConversion wraps every failure of the transcoding step
var ErrConversion = errors.New("conversion failed")

// ConvertedArtifact is the file produced by a successful transcode
type ConvertedArtifact struct {
	Path      string
	Format    string
	CreatedAt time.Time
	Size      int64
	Duration  time.Duration
}

// Transcoder converts a source audio file into the target format at dst
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) (*ConvertedArtifact, error)
}

// Config contains ffmpeg invocation settings
type Config struct {
	FFmpegPath   string
	AudioBitrate string
	Timeout      time.Duration // 0 disables
}

// FFmpeg transcodes audio to MP3 by running the ffmpeg binary
type FFmpeg struct {
	config Config
	logger *slog.Logger
}

// NewFFmpeg creates an ffmpeg backed transcoder
func NewFFmpeg(config Config, logger *slog.Logger) *FFmpeg {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	return &FFmpeg{config: config, logger: logger}
}

// Available reports whether the configured ffmpeg binary can be found
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.config.FFmpegPath)
	return err == nil
}

// Transcode runs ffmpeg and blocks until the MP3 at dst is complete and verified
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string) (*ConvertedArtifact, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	args := f.buildArgs(src, dst)
	f.logger.Debug("Running ffmpeg",
		slog.String("binary", f.config.FFmpegPath),
		slog.String("args", strings.Join(args, " ")),
	)

	cmd := exec.CommandContext(ctx, f.config.FFmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrConversion, err, strings.TrimSpace(string(out)))
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: generated file is empty", ErrConversion)
	}

	duration, err := ProbeMP3(dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}

	return &ConvertedArtifact{
		Path:      dst,
		Format:    "mp3",
		CreatedAt: info.ModTime(),
		Size:      info.Size(),
		Duration:  duration,
	}, nil
}

func (f *FFmpeg) buildArgs(src, dst string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vn", "-map_metadata", "-1",
		"-codec:a", "libmp3lame",
	}
	if f.config.AudioBitrate != "" {
		args = append(args, "-b:a", f.config.AudioBitrate)
	}
	return append(args, "-id3v2_version", "0", "-f", "mp3", dst)
}

// ProbeMP3 checks that path holds at least one decodable MPEG audio frame
// and returns the summed duration of all frames
func ProbeMP3(path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	return mp3Duration(file)
}

func mp3Duration(r io.Reader) (time.Duration, error) {
	dec := mp3.NewDecoder(r)

	var (
		frame    mp3.Frame
		skipped  int
		frames   int
		duration time.Duration
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if frames > 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return duration, nil
			}
			if frames == 0 {
				return 0, fmt.Errorf("failed to decode MP3 frame: %v", err)
			}
			return 0, err
		}
		frames++
		duration += frame.Duration()
	}
}

