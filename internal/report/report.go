package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/andresmejia3/framecheck/internal/sampler"
)

const megabyte = 1024 * 1024

// Details identifies the inspection a report is written for.
type Details struct {
	Technician  string
	Serial      string
	Contract    string
	VideoName   string
	SizeBytes   int64
	GeneratedAt time.Time
}

var checklist = []string{
	"Equipment clearly visible in the video",
	"All main components identified",
	"Image quality adequate for analysis",
	"Appropriate duration (20-40 seconds)",
	"Correct filming angles",
	"Adequate lighting",
	"Correct focus in all frames",
	"No visual obstructions",
	"Components in correct position",
	"Equipment in final assembly state",
}

// Caption is the label shown under a frame.
func Caption(f sampler.Frame) string {
	return fmt.Sprintf("Frame %d — t=%ss", f.Index, formatSeconds(f.Timestamp))
}

// FrameLine is the per-frame line of the text report.
func FrameLine(f sampler.Frame) string {
	return fmt.Sprintf("Frame %02d | t=%ss", f.Index, formatSeconds(f.Timestamp))
}

// Text renders the plain-text inspection report. The frame count is always
// the number of frames actually produced.
func Text(d Details, res sampler.Result) string {
	generated := d.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	var b strings.Builder
	b.WriteString("TECHNICAL VIDEO INSPECTION REPORT\n")
	b.WriteString("=================================\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format("02/01/2006 15:04:05"))

	b.WriteString("BASIC INFORMATION:\n")
	fmt.Fprintf(&b, "- Technician: %s\n", orDash(d.Technician))
	fmt.Fprintf(&b, "- Serial Number: %s\n", orDash(d.Serial))
	fmt.Fprintf(&b, "- Contract: %s\n", orDash(d.Contract))
	fmt.Fprintf(&b, "- Video File: %s\n\n", orDash(d.VideoName))

	b.WriteString("TECHNICAL ANALYSIS:\n")
	fmt.Fprintf(&b, "- File Size: %.1f MB\n", float64(d.SizeBytes)/megabyte)
	fmt.Fprintf(&b, "- Duration: %.1f seconds\n", res.Duration)
	fmt.Fprintf(&b, "- Frames Extracted: %d\n\n", len(res.Frames))

	if len(res.Frames) > 0 {
		b.WriteString("FRAMES:\n")
		for _, f := range res.Frames {
			b.WriteString(FrameLine(f))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString("VERIFICATION CHECKLIST:\n")
	for _, item := range checklist {
		fmt.Fprintf(&b, "[ ] %s\n", item)
	}

	b.WriteString("\nTECHNICAL NOTES:\n")
	for i := 0; i < 3; i++ {
		b.WriteString("_________________________________\n")
	}

	b.WriteString("\nAPPROVAL:\n")
	b.WriteString("[ ] Equipment APPROVED for next stage\n")
	b.WriteString("[ ] Equipment REJECTED - requires corrections\n\n")
	b.WriteString("Technician Signature: _______________\n\n")
	b.WriteString("Date: _______________\n")
	return b.String()
}

// formatSeconds prints a two-decimal timestamp without trailing zeros (15, 3.5, 29.97).
func formatSeconds(s float64) string {
	out := fmt.Sprintf("%.2f", s)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, ".")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
