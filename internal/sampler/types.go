package sampler

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Format identifies the compressed encoding of a frame payload.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
)

// Ext returns the file extension used when a frame is written to disk or an archive.
func (f Format) Ext() string {
	if f == PNG {
		return "png"
	}
	return "jpg"
}

// ParseFormat accepts "jpeg", "jpg" or "png" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg", "":
		return JPEG, nil
	case "png":
		return PNG, nil
	}
	return "", fmt.Errorf("unsupported frame format %q (use jpeg or png)", s)
}

// Strategy selects how sample positions are spaced and which seek is tried first.
type Strategy string

const (
	// ByIndex spaces samples over frame indices and seeks by index, falling back to a millisecond seek.
	ByIndex Strategy = "index"
	// ByTime spaces samples over the duration and seeks by millisecond, falling back to an index seek.
	ByTime Strategy = "time"
)

// ParseStrategy accepts "index" or "time".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "index", "":
		return ByIndex, nil
	case "time":
		return ByTime, nil
	}
	return "", fmt.Errorf("unsupported sampling strategy %q (use index or time)", s)
}

// ColorRGB is the channel order of every encoded frame.
const ColorRGB = "RGB"

// Defaults used when a Request leaves a field zero.
const (
	DefaultCount   = 10
	DefaultWidth   = 480
	DefaultQuality = 85
)

// ErrInvalidRequest is returned for requests no video could satisfy (count or width below 1).
var ErrInvalidRequest = errors.New("invalid extraction request")

// Metadata describes a video as reported by its source.
type Metadata struct {
	FrameRate   float64
	TotalFrames int
	Width       int
	Height      int
}

// Valid reports whether the metadata describes a readable video.
func (m Metadata) Valid() bool {
	return m.FrameRate > 0 && m.TotalFrames > 0
}

// Duration is TotalFrames / FrameRate in seconds, or 0 for unreadable metadata.
func (m Metadata) Duration() float64 {
	if !m.Valid() {
		return 0
	}
	return float64(m.TotalFrames) / m.FrameRate
}

// Decoded is a single frame materialized by a Source.
type Decoded struct {
	Image image.Image
	// Position is where the decoder actually landed, in seconds. Negative means unknown.
	Position float64
}

// Source is an open video handle. Implementations are used by one goroutine at a time.
type Source interface {
	Metadata() Metadata
	FrameAt(index int) (Decoded, error)
	FrameAtMillis(ms int64) (Decoded, error)
	Close() error
}

// Opener opens the video at path.
type Opener func(path string) (Source, error)

// Frame is one sampled, normalized and encoded frame.
type Frame struct {
	Index      int
	Timestamp  float64
	Width      int
	Height     int
	Data       []byte
	Format     Format
	ColorOrder string
}

// Result is the outcome of one extraction. Frames may hold fewer entries than requested.
type Result struct {
	Frames   []Frame
	Duration float64
}

// Empty reports whether no frame was produced.
func (r Result) Empty() bool {
	return len(r.Frames) == 0
}

// Request carries every parameter of an extraction call.
type Request struct {
	Path     string
	Count    int
	Width    int
	Format   Format
	Quality  int
	Strategy Strategy

	// OnSample, if set, is called after each sample position is visited.
	OnSample func(done, total int)
}

func (r Request) withDefaults() (Request, error) {
	if r.Count < 1 {
		return r, fmt.Errorf("%w: frame count must be >= 1, got %d", ErrInvalidRequest, r.Count)
	}
	if r.Width < 1 {
		return r, fmt.Errorf("%w: width must be >= 1, got %d", ErrInvalidRequest, r.Width)
	}
	if r.Format == "" {
		r.Format = JPEG
	}
	if r.Format != JPEG && r.Format != PNG {
		return r, fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, r.Format)
	}
	if r.Quality <= 0 || r.Quality > 100 {
		r.Quality = DefaultQuality
	}
	if r.Strategy == "" {
		r.Strategy = ByIndex
	}
	return r, nil
}
