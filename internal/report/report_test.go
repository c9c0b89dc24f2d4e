package report

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/framecheck/internal/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() sampler.Result {
	return sampler.Result{
		Duration: 30,
		Frames: []sampler.Frame{
			{Index: 1, Timestamp: 0, Data: []byte{0xFF, 0xD8, 1}, Format: sampler.JPEG},
			{Index: 2, Timestamp: 15, Data: []byte{0xFF, 0xD8, 2}, Format: sampler.JPEG},
			{Index: 3, Timestamp: 29.97, Data: []byte{0xFF, 0xD8, 3}, Format: sampler.JPEG},
		},
	}
}

func TestCaption(t *testing.T) {
	tests := []struct {
		frame sampler.Frame
		want  string
	}{
		{sampler.Frame{Index: 1, Timestamp: 0}, "Frame 1 — t=0s"},
		{sampler.Frame{Index: 4, Timestamp: 3.5}, "Frame 4 — t=3.5s"},
		{sampler.Frame{Index: 10, Timestamp: 29.97}, "Frame 10 — t=29.97s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Caption(tt.frame))
	}
}

func TestFrameLine(t *testing.T) {
	assert.Equal(t, "Frame 01 | t=0s", FrameLine(sampler.Frame{Index: 1}))
	assert.Equal(t, "Frame 10 | t=29.97s", FrameLine(sampler.Frame{Index: 10, Timestamp: 29.97}))
}

func TestText_UsesProducedCount(t *testing.T) {
	d := Details{
		Technician:  "Ana Souza",
		Serial:      "SN-0042",
		Contract:    "CT-7",
		VideoName:   "pump.mp4",
		SizeBytes:   3 * megabyte,
		GeneratedAt: time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC),
	}
	text := Text(d, sampleResult())

	assert.Contains(t, text, "Technician: Ana Souza")
	assert.Contains(t, text, "Serial Number: SN-0042")
	assert.Contains(t, text, "Contract: CT-7")
	assert.Contains(t, text, "Video File: pump.mp4")
	assert.Contains(t, text, "File Size: 3.0 MB")
	assert.Contains(t, text, "Duration: 30.0 seconds")
	assert.Contains(t, text, "Frames Extracted: 3\n")
	assert.Contains(t, text, "Generated: 01/03/2026 14:05:00")
	assert.Contains(t, text, "Frame 02 | t=15s\n")
	assert.Contains(t, text, "APPROVAL:")
	assert.Equal(t, len(checklist), strings.Count(text, "[ ] ")-2)
}

func TestText_EmptyFieldsShowDash(t *testing.T) {
	text := Text(Details{}, sampler.Result{})
	assert.Contains(t, text, "Technician: -")
	assert.NotContains(t, text, "FRAMES:")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"pump inspection.mp4", "pump_inspection.mp4"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\ana\vídeo final.mov`, "vdeo_final.mov"},
		{".hidden.mp4", "hidden.mp4"},
		{"...", "video"},
		{"", "video"},
		{"/", "video"},
		{"ok-name_1.MKV", "ok-name_1.MKV"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "SanitizeFilename(%q)", tt.in)
	}
}

func TestArchiveName(t *testing.T) {
	at := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "SN_42_20260301_140509.zip", ArchiveName("SN 42", at))
	assert.Equal(t, "inspection_20260301_140509.zip", ArchiveName("  ", at))
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = body
	}
	return out
}

func TestWriteArchive(t *testing.T) {
	video := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(video, []byte("video bytes"), 0644))

	res := sampleResult()
	var buf bytes.Buffer
	err := WriteArchive(context.Background(), &buf, Bundle{
		Details:   Details{Serial: "SN-1", VideoName: "my pump.mp4"},
		Result:    res,
		VideoPath: video,
	})
	require.NoError(t, err)

	entries := readZip(t, buf.Bytes())
	require.Len(t, entries, 5)
	assert.Contains(t, string(entries[ReportName]), "Serial Number: SN-1")
	assert.Equal(t, []byte("video bytes"), entries["my_pump.mp4"])
	for _, f := range res.Frames {
		assert.Equal(t, f.Data, entries[FrameName(f)])
	}
	assert.Contains(t, entries, "frame_03.jpg")
}

func TestWriteArchive_WithoutVideo(t *testing.T) {
	res := sampleResult()
	res.Frames[0].Format = sampler.PNG

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(context.Background(), &buf, Bundle{Result: res}))

	entries := readZip(t, buf.Bytes())
	assert.Len(t, entries, 4)
	assert.Contains(t, entries, "frame_01.png")
}

func TestWriteArchive_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := WriteArchive(ctx, &buf, Bundle{Result: sampleResult()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateArchive_RemovesPartialFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out.zip")

	err := CreateArchive(context.Background(), out, Bundle{Result: sampleResult(), VideoPath: "/does/not/exist.mp4"})
	require.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, CreateArchive(context.Background(), out, Bundle{Result: sampleResult()}))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
