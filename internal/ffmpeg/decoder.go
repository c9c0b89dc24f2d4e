package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"sync"

	"github.com/andresmejia3/framecheck/internal/sampler"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrClosed is returned by a Decoder after Close.
var ErrClosed = errors.New("decoder is closed")

var (
	showinfoPTS  = regexp.MustCompile(`n:\s*\d+\s+pts:\s*-?\d+\s+pts_time:(-?[0-9.]+)`)
	showinfoSize = regexp.MustCompile(`\ss:(\d+)x(\d+)`)
)

// Decoder reads single frames from one video file. Each read runs its own
// ffmpeg process that decodes one frame to packed RGB on a pipe, so the only
// state held between reads is the probed metadata.
type Decoder struct {
	path string
	info Info

	mu     sync.Mutex
	closed bool
}

// Open probes path and returns a Decoder for it. It satisfies sampler.Opener.
func Open(path string) (sampler.Source, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}
	return &Decoder{path: path, info: info}, nil
}

// Metadata implements sampler.Source.
func (d *Decoder) Metadata() sampler.Metadata {
	return sampler.Metadata{
		FrameRate:   d.info.FrameRate,
		TotalFrames: d.info.TotalFrames,
		Width:       d.info.Width,
		Height:      d.info.Height,
	}
}

// FrameAt decodes the first frame whose decode index is >= index.
func (d *Decoder) FrameAt(index int) (sampler.Decoded, error) {
	if index < 0 {
		return sampler.Decoded{}, fmt.Errorf("negative frame index %d", index)
	}
	stream := ffmpeg.Input(d.path).
		Filter("select", ffmpeg.Args{fmt.Sprintf("gte(n,%d)", index)}).
		Filter("showinfo", ffmpeg.Args{})

	dec, err := d.grab(stream, 0)
	if err != nil {
		return sampler.Decoded{}, fmt.Errorf("frame %d: %w", index, err)
	}
	return dec, nil
}

// FrameAtMillis seeks to ms and decodes the first frame at or after it.
func (d *Decoder) FrameAtMillis(ms int64) (sampler.Decoded, error) {
	if ms < 0 {
		return sampler.Decoded{}, fmt.Errorf("negative offset %dms", ms)
	}
	seek := float64(ms) / 1000
	stream := ffmpeg.Input(d.path, ffmpeg.KwArgs{"ss": strconv.FormatFloat(seek, 'f', 3, 64)}).
		Filter("showinfo", ffmpeg.Args{})

	// Input seeking restarts timestamps at the seek point.
	dec, err := d.grab(stream, seek)
	if err != nil {
		return sampler.Decoded{}, fmt.Errorf("offset %dms: %w", ms, err)
	}
	return dec, nil
}

// Close implements sampler.Source.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}

func (d *Decoder) grab(stream *ffmpeg.Stream, offset float64) (sampler.Decoded, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return sampler.Decoded{}, ErrClosed
	}

	var stdout, stderr bytes.Buffer
	err := stream.
		Output("pipe:", ffmpeg.KwArgs{"vframes": 1, "format": "rawvideo", "pix_fmt": "rgb24"}).
		WithOutput(&stdout, &stderr).
		Run()
	if err != nil {
		return sampler.Decoded{}, fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return sampler.Decoded{}, errors.New("ffmpeg produced no frame")
	}

	pos, w, h, ok := parseShowinfo(stderr.String())
	if !ok {
		pos = -1
	} else {
		pos += offset
	}
	if w == 0 || h == 0 {
		w, h = d.info.Width, d.info.Height
	}

	img, err := rgbImage(stdout.Bytes(), w, h)
	if err != nil {
		return sampler.Decoded{}, err
	}
	return sampler.Decoded{Image: img, Position: pos}, nil
}

// parseShowinfo pulls the presentation time and size of the first frame out of showinfo logs.
func parseShowinfo(log string) (pts float64, width, height int, ok bool) {
	m := showinfoPTS.FindStringSubmatch(log)
	if m == nil {
		return 0, 0, 0, false
	}
	pts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, 0, false
	}
	if s := showinfoSize.FindStringSubmatch(log); s != nil {
		width, _ = strconv.Atoi(s[1])
		height, _ = strconv.Atoi(s[2])
	}
	return pts, width, height, true
}

// rgbImage wraps a packed rgb24 buffer holding at least one w*h frame.
func rgbImage(buf []byte, w, h int) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("unknown frame size %dx%d", w, h)
	}
	need := w * h * 3
	if len(buf) < need {
		return nil, fmt.Errorf("short frame: got %d bytes, want %d for %dx%d", len(buf), need, w, h)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < need; i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img, nil
}

func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
