package inspection

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/framecheck/internal/report"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported video format")
	ErrTooLarge             = errors.New("video exceeds the maximum upload size")
	ErrDurationOutOfRange   = errors.New("video duration outside the accepted window")
	ErrNoFrames             = errors.New("could not extract frames from this video — check the codec")
)

// DefaultExtensions are the containers technicians upload.
var DefaultExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".webm", ".m4v"}

// Policy is the caller-side acceptance rule applied before extraction.
type Policy struct {
	Extensions map[string]bool
	MaxBytes   int64
	// MinDuration and MaxDuration bound the video length. Both zero disables the check.
	MinDuration time.Duration
	MaxDuration time.Duration
}

// DefaultPolicy accepts common containers up to 200 MiB lasting 20 to 40 seconds.
func DefaultPolicy() Policy {
	exts := make(map[string]bool, len(DefaultExtensions))
	for _, e := range DefaultExtensions {
		exts[e] = true
	}
	return Policy{
		Extensions:  exts,
		MaxBytes:    200 * 1024 * 1024,
		MinDuration: 20 * time.Second,
		MaxDuration: 40 * time.Second,
	}
}

// WithoutDurationCheck returns a copy of p that accepts any duration.
func (p Policy) WithoutDurationCheck() Policy {
	p.MinDuration, p.MaxDuration = 0, 0
	return p
}

// CheckFile validates the extension of name and the size in bytes.
func (p Policy) CheckFile(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if len(p.Extensions) > 0 && !p.Extensions[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return fmt.Errorf("%w: %.1f MB > %.1f MB", ErrTooLarge, mb(size), mb(p.MaxBytes))
	}
	return nil
}

// CheckDuration validates the video length in seconds.
func (p Policy) CheckDuration(seconds float64) error {
	if p.MinDuration == 0 && p.MaxDuration == 0 {
		return nil
	}
	d := time.Duration(seconds * float64(time.Second))
	if d < p.MinDuration || (p.MaxDuration > 0 && d > p.MaxDuration) {
		return fmt.Errorf("%w: %.1fs not in [%s, %s]", ErrDurationOutOfRange, seconds, p.MinDuration, p.MaxDuration)
	}
	return nil
}

// Materialize copies an uploaded stream to a temp file in dir, keeping the
// extension of name so decoders can sniff the container. The returned cleanup
// removes the file.
func Materialize(r io.Reader, name, dir string) (path string, cleanup func(), err error) {
	pattern := "upload-*" + strings.ToLower(filepath.Ext(report.SanitizeFilename(name)))
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup = func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

func mb(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
