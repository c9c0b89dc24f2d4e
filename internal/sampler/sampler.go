package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sort"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

var errNoData = errors.New("decoder returned no image")

// Sampler picks evenly spaced frames out of a video and encodes them.
// It holds no per-call state; one Sampler may serve concurrent Extract calls
// as long as the Opener hands out independent sources.
type Sampler struct {
	open   Opener
	logger *zap.Logger
	encode func(w io.Writer, img image.Image, format Format, quality int) error
}

// New returns a Sampler that reads videos through open.
func New(open Opener, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{open: open, logger: logger, encode: encodeImage}
}

// Probe opens path only to read its metadata. ok is false for unreadable videos.
func (s *Sampler) Probe(path string) (meta Metadata, ok bool) {
	src, err := s.open(path)
	if err != nil {
		s.logger.Debug("probe: cannot open video", zap.String("path", path), zap.Error(err))
		return Metadata{}, false
	}
	defer s.release(src)

	meta = src.Metadata()
	return meta, meta.Valid()
}

// Extract samples req.Count frames from req.Path.
//
// An unreadable video yields an empty Result and a nil error. Samples that
// cannot be decoded or encoded are dropped; the remaining frames keep a dense
// 1..N index. The error is non-nil only for an invalid request or a cancelled
// context, and in the latter case the partial result must be discarded.
func (s *Sampler) Extract(ctx context.Context, req Request) (Result, error) {
	req, err := req.withDefaults()
	if err != nil {
		return Result{}, err
	}

	log := s.logger.With(zap.String("path", req.Path))

	src, err := s.open(req.Path)
	if err != nil {
		log.Warn("video could not be opened", zap.Error(err))
		return Result{}, nil
	}
	defer s.release(src)

	meta := src.Metadata()
	if !meta.Valid() {
		log.Warn("video metadata is unusable",
			zap.Float64("fps", meta.FrameRate),
			zap.Int("total_frames", meta.TotalFrames),
		)
		return Result{}, nil
	}
	duration := meta.Duration()

	targets := plan(meta, req.Count, req.Strategy)
	frames := make([]Frame, 0, len(targets))

	for i, p := range targets {
		if err := ctx.Err(); err != nil {
			return Result{Frames: frames, Duration: duration}, err
		}

		if d, ok := s.decode(src, meta, p, req.Strategy, log); ok {
			f, err := s.render(d, req)
			if err != nil {
				log.Debug("sample skipped: encode failed", zap.Int("sample", i), zap.Error(err))
			} else {
				frames = append(frames, f)
			}
		}

		if req.OnSample != nil {
			req.OnSample(i+1, len(targets))
		}
	}

	// A fallback seek may land slightly off its neighbours; keep timestamps ascending.
	sort.SliceStable(frames, func(a, b int) bool {
		return frames[a].Timestamp < frames[b].Timestamp
	})
	for i := range frames {
		frames[i].Index = i + 1
	}

	log.Debug("frames extracted",
		zap.Int("requested", req.Count),
		zap.Int("produced", len(frames)),
		zap.Float64("duration", duration),
	)

	return Result{Frames: frames, Duration: duration}, nil
}

// decode tries the strategy's primary seek, then the other one once.
func (s *Sampler) decode(src Source, meta Metadata, p position, strategy Strategy, log *zap.Logger) (Decoded, bool) {
	byIndex := func() (Decoded, float64, error) {
		d, err := src.FrameAt(p.index)
		return d, float64(p.index) / meta.FrameRate, err
	}
	byMillis := func() (Decoded, float64, error) {
		ms := p.millis()
		d, err := src.FrameAtMillis(ms)
		return d, float64(ms) / 1000, err
	}

	attempts := []func() (Decoded, float64, error){byIndex, byMillis}
	if strategy == ByTime {
		attempts[0], attempts[1] = byMillis, byIndex
	}

	for n, attempt := range attempts {
		d, requested, err := attempt()
		if err == nil && (d.Image == nil || d.Image.Bounds().Empty()) {
			err = errNoData
		}
		if err != nil {
			log.Debug("seek failed",
				zap.Int("frame_index", p.index),
				zap.Int64("millis", p.millis()),
				zap.Bool("fallback", n > 0),
				zap.Error(err),
			)
			continue
		}
		if d.Position < 0 {
			d.Position = requested
		}
		return d, true
	}
	return Decoded{}, false
}

// render converts to RGB, bounds the width and encodes.
func (s *Sampler) render(d Decoded, req Request) (Frame, error) {
	img := imaging.Clone(d.Image)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w > req.Width {
		h = scaledHeight(w, h, req.Width)
		w = req.Width
		img = imaging.Resize(img, w, h, imaging.Box)
	}

	var buf bytes.Buffer
	if err := s.encode(&buf, img, req.Format, req.Quality); err != nil {
		return Frame{}, err
	}
	if buf.Len() == 0 {
		return Frame{}, fmt.Errorf("%s encoder produced no bytes", req.Format)
	}

	return Frame{
		Timestamp:  round2(d.Position),
		Width:      w,
		Height:     h,
		Data:       buf.Bytes(),
		Format:     req.Format,
		ColorOrder: ColorRGB,
	}, nil
}

func (s *Sampler) release(src Source) {
	if err := src.Close(); err != nil {
		s.logger.Debug("closing video source failed", zap.Error(err))
	}
}

func encodeImage(w io.Writer, img image.Image, format Format, quality int) error {
	if format == PNG {
		return imaging.Encode(w, img, imaging.PNG)
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}
