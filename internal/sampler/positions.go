package sampler

import "math"

// position is one sample target expressed both ways so either seek can be tried.
type position struct {
	index   int
	seconds float64
}

func (p position) millis() int64 {
	return int64(math.Round(p.seconds * 1000))
}

// plan returns count non-decreasing sample positions spanning the whole video.
func plan(meta Metadata, count int, strategy Strategy) []position {
	if !meta.Valid() || count < 1 {
		return nil
	}
	last := meta.TotalFrames - 1
	out := make([]position, count)

	switch strategy {
	case ByTime:
		duration := meta.Duration()
		for i := range out {
			sec := float64(i) * duration / float64(count)
			idx := int(math.Round(sec * meta.FrameRate))
			if idx > last {
				idx = last
			}
			out[i] = position{index: idx, seconds: sec}
		}
	default:
		for i := range out {
			idx := 0
			if count > 1 {
				idx = int(math.Round(float64(i) * float64(last) / float64(count-1)))
			}
			out[i] = position{index: idx, seconds: float64(idx) / meta.FrameRate}
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func scaledHeight(width, height, targetWidth int) int {
	h := int(math.Round(float64(height) * float64(targetWidth) / float64(width)))
	if h < 1 {
		return 1
	}
	return h
}
