package ffmpeg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func init() {
	ffmpeg.LogCompiledCommand = false
}

// ErrNoVideoStream is returned when ffprobe finds no video stream in the container.
var ErrNoVideoStream = errors.New("no video stream found")

// Info is what ffprobe reports about the first video stream.
type Info struct {
	FrameRate   float64
	TotalFrames int
	Width       int
	Height      int
	Duration    float64
	Codec       string
	SizeBytes   int64
}

type probeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		CodecName     string `json:"codec_name"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		Duration      string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe reads stream metadata with ffprobe.
//
// The frame count comes from container metadata when present. Containers that
// do not store it (mkv, webm) fall back to counting packets, and as a last
// resort to duration * rate.
func Probe(path string) (Info, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	if info.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return Info{}, fmt.Errorf("%s is empty", path)
	}

	// 1. Fast path: container metadata
	out, err := ffmpeg.Probe(path, ffmpeg.KwArgs{"v": "error", "select_streams": "v:0"})
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe: %w", err)
	}
	res, err := parseProbe(out)
	if err != nil {
		return Info{}, err
	}
	if res.TotalFrames > 0 {
		return res, nil
	}

	// 2. Slow path: count packets
	out, err = ffmpeg.Probe(path, ffmpeg.KwArgs{"v": "error", "select_streams": "v:0", "count_packets": ""})
	if err == nil {
		if counted, err := parseProbe(out); err == nil && counted.TotalFrames > 0 {
			return counted, nil
		}
	}

	// 3. Estimate
	if res.Duration > 0 && res.FrameRate > 0 {
		res.TotalFrames = int(math.Round(res.Duration * res.FrameRate))
	}
	return res, nil
}

func parseProbe(raw string) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Info{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		info := Info{
			Width:  s.Width,
			Height: s.Height,
			Codec:  s.CodecName,
		}

		info.FrameRate = parseRate(s.AvgFrameRate)
		if info.FrameRate <= 0 {
			info.FrameRate = parseRate(s.RFrameRate)
		}

		if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
			info.TotalFrames = n
		} else if n, err := strconv.Atoi(s.NbReadPackets); err == nil && n > 0 {
			info.TotalFrames = n
		}

		info.Duration = parseFloat(s.Duration)
		if info.Duration <= 0 {
			info.Duration = parseFloat(out.Format.Duration)
		}
		info.SizeBytes, _ = strconv.ParseInt(out.Format.Size, 10, 64)
		return info, nil
	}
	return Info{}, ErrNoVideoStream
}

// parseRate turns ffprobe rationals ("30000/1001", "25/1", "0/0") into frames per second.
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	if !found {
		return parseFloat(num)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
