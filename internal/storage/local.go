package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrEmptyName is returned when an upload carries no usable file name
var ErrEmptyName = errors.New("storage: empty file name")

// UploadedFile describes a client file persisted to the upload directory
type UploadedFile struct {
	OriginalName string
	Path         string
	MimeType     string
	Size         int64
}

// Stamper hands out strictly increasing millisecond stamps
type Stamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewStamper creates a stamper driven by the given clock
func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Next returns max(now, last+1) in Unix milliseconds
func (s *Stamper) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UnixMilli()
	if stamp <= s.last {
		stamp = s.last + 1
	}
	s.last = stamp
	return stamp
}

// Local stores uploads and converted artifacts in a single directory
type Local struct {
	root    string
	stamper *Stamper
}

// NewLocal returns a store rooted at dir
func NewLocal(dir string, stamper *Stamper) *Local {
	if stamper == nil {
		stamper = NewStamper(nil)
	}
	return &Local{root: dir, stamper: stamper}
}

// Root returns the storage directory
func (l *Local) Root() string {
	return l.root
}

// Prepare creates the storage directory if it is missing
func (l *Local) Prepare() error {
	if err := os.MkdirAll(l.root, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory %s: %w", l.root, err)
	}
	return nil
}

// Save streams r to <stamp>-<name> and returns the stored file. A partially
// written file is removed when the copy fails.
func (l *Local) Save(name, mimeType string, r io.Reader) (*UploadedFile, error) {
	safe := SanitizeFilename(name)
	if safe == "" {
		return nil, ErrEmptyName
	}

	path := filepath.Join(l.root, fmt.Sprintf("%d-%s", l.stamper.Next(), safe))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	size, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return &UploadedFile{
		OriginalName: name,
		Path:         path,
		MimeType:     mimeType,
		Size:         size,
	}, nil
}

// ConvertedPath allocates a fresh path for a converted artifact
func (l *Local) ConvertedPath(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return filepath.Join(l.root, fmt.Sprintf("%d-converted.%s", l.stamper.Next(), ext))
}

// Remove deletes a stored file
func (l *Local) Remove(path string) error {
	return os.Remove(path)
}

// Exists reports whether path is present on disk
func (l *Local) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PublicName returns the slash separated name of path relative to the root,
// as used in /uploads/<name> URLs
func (l *Local) PublicName(path string) (string, error) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside of %s", path, l.root)
	}
	return filepath.ToSlash(rel), nil
}

// SanitizeFilename reduces a client supplied name to a safe base name
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}

	safe := strings.ReplaceAll(name, " ", "_")
	return strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`/\:*?"<>|`, r) {
			return -1
		}
		return r
	}, safe)
}
