package inspection

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/framecheck/internal/sampler"
	"github.com/andresmejia3/framecheck/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeExtractor struct {
	meta     sampler.Metadata
	probeOK  bool
	result   sampler.Result
	err      error
	extracts int
	lastReq  sampler.Request
}

func (f *fakeExtractor) Probe(path string) (sampler.Metadata, bool) {
	return f.meta, f.probeOK
}

func (f *fakeExtractor) Extract(ctx context.Context, req sampler.Request) (sampler.Result, error) {
	f.extracts++
	f.lastReq = req
	if req.OnSample != nil {
		req.OnSample(1, 1)
	}
	return f.result, f.err
}

type fakeStore struct {
	saved    []types.Inspection
	cached   map[string]types.Inspection
	findErr  error
	saveErr  error
	lookedUp []string
}

func (s *fakeStore) SaveInspection(ctx context.Context, in types.Inspection) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, in)
	return nil
}

func (s *fakeStore) FindCachedResult(ctx context.Context, videoID string, params types.Params) (types.Inspection, bool, error) {
	s.lookedUp = append(s.lookedUp, videoID+"|"+params.Key())
	if s.findErr != nil {
		return types.Inspection{}, false, s.findErr
	}
	in, ok := s.cached[videoID+"|"+params.Key()]
	return in, ok, nil
}

func thirtySeconds() sampler.Metadata {
	return sampler.Metadata{FrameRate: 30, TotalFrames: 900, Width: 1920, Height: 1080}
}

func twoFrames() sampler.Result {
	return sampler.Result{
		Duration: 30,
		Frames: []sampler.Frame{
			{Index: 1, Timestamp: 0, Data: []byte{1}, Format: sampler.JPEG},
			{Index: 2, Timestamp: 29.97, Data: []byte{2}, Format: sampler.JPEG},
		},
	}
}

func writeVideo(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func defaultParams() types.Params {
	return types.Params{Count: 10, Width: 480, Format: sampler.JPEG, Quality: 85, Strategy: sampler.ByIndex}
}

func TestPolicy_CheckFile(t *testing.T) {
	p := DefaultPolicy()

	assert.NoError(t, p.CheckFile("pump.MP4", 1024))
	assert.NoError(t, p.CheckFile("clip.webm", 200*1024*1024))
	assert.ErrorIs(t, p.CheckFile("notes.txt", 10), ErrUnsupportedExtension)
	assert.ErrorIs(t, p.CheckFile("noext", 10), ErrUnsupportedExtension)
	assert.ErrorIs(t, p.CheckFile("big.mp4", 200*1024*1024+1), ErrTooLarge)
}

func TestPolicy_CheckDuration(t *testing.T) {
	p := DefaultPolicy()

	assert.NoError(t, p.CheckDuration(20))
	assert.NoError(t, p.CheckDuration(30))
	assert.NoError(t, p.CheckDuration(40))
	assert.ErrorIs(t, p.CheckDuration(19.9), ErrDurationOutOfRange)
	assert.ErrorIs(t, p.CheckDuration(40.5), ErrDurationOutOfRange)

	open := p.WithoutDurationCheck()
	assert.NoError(t, open.CheckDuration(3))
	assert.NoError(t, open.CheckDuration(3600))
	// The original is untouched
	assert.Error(t, p.CheckDuration(3))
}

func TestMaterialize(t *testing.T) {
	dir := t.TempDir()
	path, cleanup, err := Materialize(strings.NewReader("video bytes"), "My Clip.MOV", dir)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".mov", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("connection reset") }

func TestMaterialize_ReadErrorLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Materialize(failingReader{}, "clip.mp4", dir)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_ExtractsAndPersists(t *testing.T) {
	ex := &fakeExtractor{meta: thirtySeconds(), probeOK: true, result: twoFrames()}
	st := &fakeStore{}
	svc := NewService(ex, st, DefaultPolicy(), nil)

	var progress int
	path := writeVideo(t, "upload-123.mp4", "content-a")
	in, err := svc.Run(context.Background(), Submission{
		Path:       path,
		Name:       "pump.mp4",
		Technician: "Ana",
		Serial:     "SN-1",
		Contract:   "CT-2",
		Params:     defaultParams(),
		OnSample:   func(done, total int) { progress = done },
	})
	require.NoError(t, err)

	assert.Equal(t, 1, ex.extracts)
	assert.Equal(t, path, ex.lastReq.Path)
	assert.Equal(t, 10, ex.lastReq.Count)
	assert.Equal(t, 1, progress)

	assert.Equal(t, "pump.mp4", in.VideoName)
	assert.Equal(t, "Ana", in.Technician)
	assert.Equal(t, 2, in.FrameCount)
	assert.Len(t, in.VideoID, 64)
	assert.False(t, in.Cached)
	assert.NotEqual(t, [16]byte{}, [16]byte(in.ID))

	require.Len(t, st.saved, 1)
	assert.Equal(t, in.ID, st.saved[0].ID)
}

func TestRun_ServesCachedFrames(t *testing.T) {
	ex := &fakeExtractor{meta: thirtySeconds(), probeOK: true}
	st := &fakeStore{cached: map[string]types.Inspection{}}
	svc := NewService(ex, st, DefaultPolicy(), nil)

	path := writeVideo(t, "pump.mp4", "content-b")
	first, err := svc.Run(context.Background(), Submission{Path: path, Params: defaultParams()})
	assert.ErrorIs(t, err, ErrNoFrames, "extractor returns nothing yet")
	assert.Empty(t, first.ID)

	earlier := uuid.New()
	st.cached[st.lookedUp[0]] = types.Inspection{ID: earlier, Result: twoFrames()}
	in, err := svc.Run(context.Background(), Submission{Path: path, Params: defaultParams()})
	require.NoError(t, err)

	assert.True(t, in.Cached)
	assert.Equal(t, 1, ex.extracts, "cache hit must not re-extract")
	assert.Equal(t, 2, in.FrameCount)
	assert.NotEqual(t, earlier, in.ID)
	require.Len(t, st.saved, 1)
	assert.Equal(t, earlier, st.saved[0].SourceID, "cached record points at the frames it reuses")

	// A hit on a record that is itself cached keeps pointing at the frame owner
	owner := uuid.New()
	st.cached[st.lookedUp[0]] = types.Inspection{ID: uuid.New(), SourceID: owner, Result: twoFrames()}
	_, err = svc.Run(context.Background(), Submission{Path: path, Params: defaultParams()})
	require.NoError(t, err)
	require.Len(t, st.saved, 2)
	assert.Equal(t, owner, st.saved[1].SourceID)
}

func TestRun_QuietAtInfoLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ex := &fakeExtractor{meta: thirtySeconds(), probeOK: true, result: twoFrames()}
	svc := NewService(ex, &fakeStore{}, DefaultPolicy(), zap.New(core))

	_, err := svc.Run(context.Background(), Submission{Path: writeVideo(t, "a.mp4", "x"), Params: defaultParams()})
	require.NoError(t, err)
	assert.Zero(t, logs.Len(), "a successful run must not interleave with terminal output")
}

func TestRun_CacheErrorFallsBackToExtraction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ex := &fakeExtractor{meta: thirtySeconds(), probeOK: true, result: twoFrames()}
	st := &fakeStore{findErr: errors.New("connection refused")}
	svc := NewService(ex, st, DefaultPolicy(), zap.New(core))

	_, err := svc.Run(context.Background(), Submission{Path: writeVideo(t, "a.mp4", "x"), Params: defaultParams()})
	require.NoError(t, err)
	assert.Equal(t, 1, ex.extracts)
	assert.Equal(t, 1, logs.FilterMessage("cache lookup failed").Len())
}

func TestRun_WithoutStore(t *testing.T) {
	ex := &fakeExtractor{meta: thirtySeconds(), probeOK: true, result: twoFrames()}
	svc := NewService(ex, nil, DefaultPolicy(), nil)

	in, err := svc.Run(context.Background(), Submission{Path: writeVideo(t, "a.mkv", "x"), Params: defaultParams()})
	require.NoError(t, err)
	assert.Equal(t, "a.mkv", in.VideoName)
}

func TestRun_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		policy  Policy
		meta    sampler.Metadata
		probeOK bool
		result  sampler.Result
		wantErr error
	}{
		{
			name: "unsupported extension", file: "a.txt", policy: DefaultPolicy(),
			meta: thirtySeconds(), probeOK: true, result: twoFrames(), wantErr: ErrUnsupportedExtension,
		},
		{
			name: "too large", file: "a.mp4", policy: Policy{MaxBytes: 1},
			meta: thirtySeconds(), probeOK: true, result: twoFrames(), wantErr: ErrTooLarge,
		},
		{
			name: "too short", file: "a.mp4", policy: DefaultPolicy(),
			meta: sampler.Metadata{FrameRate: 30, TotalFrames: 300}, probeOK: true, result: twoFrames(), wantErr: ErrDurationOutOfRange,
		},
		{
			name: "unreadable", file: "a.mp4", policy: DefaultPolicy(),
			probeOK: false, wantErr: ErrNoFrames,
		},
		{
			name: "zero frames", file: "a.mp4", policy: DefaultPolicy(),
			meta: thirtySeconds(), probeOK: true, result: sampler.Result{Duration: 30}, wantErr: ErrNoFrames,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExtractor{meta: tt.meta, probeOK: tt.probeOK, result: tt.result}
			st := &fakeStore{}
			svc := NewService(ex, st, tt.policy, nil)

			_, err := svc.Run(context.Background(), Submission{Path: writeVideo(t, tt.file, "xx"), Params: defaultParams()})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, st.saved, "rejected videos are never persisted")
		})
	}
}

func TestRun_ShortVideoAcceptedWithoutDurationCheck(t *testing.T) {
	ex := &fakeExtractor{meta: sampler.Metadata{FrameRate: 30, TotalFrames: 90}, probeOK: true, result: twoFrames()}
	svc := NewService(ex, nil, DefaultPolicy().WithoutDurationCheck(), nil)

	_, err := svc.Run(context.Background(), Submission{Path: writeVideo(t, "a.mp4", "x"), Params: defaultParams()})
	assert.NoError(t, err)
}

func TestRun_PropagatesCancellation(t *testing.T) {
	ex := &fakeExtractor{meta: thirtySeconds(), probeOK: true, result: twoFrames(), err: context.Canceled}
	st := &fakeStore{}
	svc := NewService(ex, st, DefaultPolicy(), nil)

	_, err := svc.Run(context.Background(), Submission{Path: writeVideo(t, "a.mp4", "x"), Params: defaultParams()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.saved)
}

func TestRun_SaveFailure(t *testing.T) {
	ex := &fakeExtractor{meta: thirtySeconds(), probeOK: true, result: twoFrames()}
	svc := NewService(ex, &fakeStore{saveErr: errors.New("disk full")}, DefaultPolicy(), nil)

	_, err := svc.Run(context.Background(), Submission{Path: writeVideo(t, "a.mp4", "x"), Params: defaultParams()})
	assert.ErrorContains(t, err, "persist inspection")
}

func TestRun_MissingFile(t *testing.T) {
	svc := NewService(&fakeExtractor{}, nil, DefaultPolicy(), nil)
	_, err := svc.Run(context.Background(), Submission{Path: "/does/not/exist.mp4"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPackage(t *testing.T) {
	svc := NewService(&fakeExtractor{}, nil, DefaultPolicy(), nil)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	video := writeVideo(t, "upload-1.mp4", "video bytes")
	in := types.Inspection{Serial: "SN-9", VideoName: "pump check.mp4", FrameCount: 2, Result: twoFrames()}
	out := filepath.Join(t.TempDir(), "out.zip")

	require.NoError(t, svc.Package(context.Background(), in, video, out))

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"report.txt", "pump_check.mp4", "frame_01.jpg", "frame_02.jpg"}, names)
}
