package types

import (
	"fmt"
	"time"

	"github.com/andresmejia3/framecheck/internal/sampler"
	"github.com/google/uuid"
)

// Params are the extraction settings that, together with the video content, determine a result.
type Params struct {
	Count    int
	Width    int
	Format   sampler.Format
	Quality  int
	Strategy sampler.Strategy
}

// Key is the cache key for these settings.
func (p Params) Key() string {
	return fmt.Sprintf("n=%d;w=%d;f=%s;q=%d;s=%s", p.Count, p.Width, p.Format, p.Quality, p.Strategy)
}

// Request builds the sampler request for path.
func (p Params) Request(path string) sampler.Request {
	return sampler.Request{
		Path:     path,
		Count:    p.Count,
		Width:    p.Width,
		Format:   p.Format,
		Quality:  p.Quality,
		Strategy: p.Strategy,
	}
}

// Inspection is one processed inspection video.
type Inspection struct {
	ID         uuid.UUID
	Technician string
	Serial     string
	Contract   string
	VideoName  string
	VideoID    string // sha256 of the video content
	SizeBytes  int64
	Params     Params
	CreatedAt  time.Time
	// FrameCount is the number of frames produced, also set when Result.Frames is not loaded.
	FrameCount int
	Result     sampler.Result
	// Cached is true when Result was served from a previous run on the same content.
	Cached bool
	// SourceID is the inspection that owns the frame payloads of a cached record.
	// uuid.Nil when the record owns its frames.
	SourceID uuid.UUID
}

// VideoTask represents a single video sent to a batch engine.
type VideoTask struct {
	Index int
	Path  string
}
