package inspection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/framecheck/internal/report"
	"github.com/andresmejia3/framecheck/internal/sampler"
	"github.com/andresmejia3/framecheck/internal/types"
	"github.com/andresmejia3/framecheck/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Extractor is the frame sampler as seen by the service.
type Extractor interface {
	Probe(path string) (sampler.Metadata, bool)
	Extract(ctx context.Context, req sampler.Request) (sampler.Result, error)
}

// Store persists inspections and serves previously extracted frames.
type Store interface {
	SaveInspection(ctx context.Context, in types.Inspection) error
	FindCachedResult(ctx context.Context, videoID string, params types.Params) (types.Inspection, bool, error)
}

// Submission is one video handed in by a technician.
type Submission struct {
	Path string
	// Name is the original upload name; defaults to the base of Path.
	Name       string
	Technician string
	Serial     string
	Contract   string
	Params     types.Params

	OnSample func(done, total int)
}

// Service validates, samples, and records inspection videos.
type Service struct {
	extractor Extractor
	store     Store
	policy    Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the service. store may be nil, which disables caching and persistence.
func NewService(extractor Extractor, store Store, policy Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		extractor: extractor,
		store:     store,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Run processes one submission. A video that yields no frames fails with ErrNoFrames.
func (s *Service) Run(ctx context.Context, sub Submission) (types.Inspection, error) {
	name := sub.Name
	if name == "" {
		name = filepath.Base(sub.Path)
	}
	log := s.logger.With(zap.String("video", name))

	info, err := os.Stat(sub.Path)
	if err != nil {
		return types.Inspection{}, fmt.Errorf("access video: %w", err)
	}
	if info.IsDir() {
		return types.Inspection{}, fmt.Errorf("%s is a directory, expected a video file", sub.Path)
	}
	if err := s.policy.CheckFile(name, info.Size()); err != nil {
		return types.Inspection{}, err
	}

	meta, ok := s.extractor.Probe(sub.Path)
	if !ok {
		log.Warn("video metadata unreadable")
		return types.Inspection{}, ErrNoFrames
	}
	if err := s.policy.CheckDuration(meta.Duration()); err != nil {
		return types.Inspection{}, err
	}

	videoID, err := utils.GenerateVideoID(sub.Path)
	if err != nil {
		return types.Inspection{}, fmt.Errorf("generate video id: %w", err)
	}

	in := types.Inspection{
		ID:         uuid.New(),
		Technician: sub.Technician,
		Serial:     sub.Serial,
		Contract:   sub.Contract,
		VideoName:  name,
		VideoID:    videoID,
		SizeBytes:  info.Size(),
		Params:     sub.Params,
		CreatedAt:  s.now(),
	}

	if cached, found := s.lookup(ctx, videoID, sub.Params, log); found {
		in.Result = cached.Result
		in.Cached = true
		in.SourceID = cached.SourceID
		if in.SourceID == uuid.Nil {
			in.SourceID = cached.ID
		}
	} else {
		req := sub.Params.Request(sub.Path)
		req.OnSample = sub.OnSample
		in.Result, err = s.extractor.Extract(ctx, req)
		if err != nil {
			return types.Inspection{}, err
		}
	}

	if in.Result.Empty() {
		return types.Inspection{}, ErrNoFrames
	}
	in.FrameCount = len(in.Result.Frames)

	if s.store != nil {
		if err := s.store.SaveInspection(ctx, in); err != nil {
			return types.Inspection{}, fmt.Errorf("persist inspection: %w", err)
		}
	}

	log.Debug("inspection recorded",
		zap.String("id", in.ID.String()),
		zap.Int("frames", in.FrameCount),
		zap.Bool("cached", in.Cached),
	)
	return in, nil
}

func (s *Service) lookup(ctx context.Context, videoID string, params types.Params, log *zap.Logger) (types.Inspection, bool) {
	if s.store == nil {
		return types.Inspection{}, false
	}
	cached, found, err := s.store.FindCachedResult(ctx, videoID, params)
	if err != nil {
		// A broken cache only costs a re-extraction.
		log.Warn("cache lookup failed", zap.Error(err))
		return types.Inspection{}, false
	}
	return cached, found
}

// Package writes the inspection archive to outputPath. videoPath is bundled
// under the sanitized upload name unless it is empty.
func (s *Service) Package(ctx context.Context, in types.Inspection, videoPath, outputPath string) error {
	b := report.Bundle{
		Details: report.Details{
			Technician:  in.Technician,
			Serial:      in.Serial,
			Contract:    in.Contract,
			VideoName:   in.VideoName,
			SizeBytes:   in.SizeBytes,
			GeneratedAt: s.now(),
		},
		Result:    in.Result,
		VideoPath: videoPath,
	}
	if err := report.CreateArchive(ctx, outputPath, b); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	s.logger.Debug("archive written", zap.String("path", outputPath), zap.Int("frames", len(in.Result.Frames)))
	return nil
}
