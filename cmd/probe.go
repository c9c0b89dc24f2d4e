package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/andresmejia3/framecheck/internal/ffmpeg"
	"github.com/andresmejia3/framecheck/internal/inspection"
	"github.com/andresmejia3/framecheck/internal/utils"
	"github.com/spf13/cobra"
)

var (
	probeInput        string
	probeSkipDuration bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show video metadata and whether it would be accepted",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := ffmpeg.Probe(probeInput)
		if err != nil {
			return fail("Failed to probe video", err)
		}
		policy := buildPolicy(Options{SkipDurationCheck: probeSkipDuration}, Cfg)
		if !printProbe(cmd.OutOrStdout(), filepath.Base(probeInput), info, policy) {
			return fail("Video would be rejected", nil)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVarP(&probeInput, "input", "i", "", "Path to video")
	probeCmd.Flags().BoolVar(&probeSkipDuration, "skip-duration-check", false, "Ignore the duration window")
	probeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(probeCmd)
}

// printProbe reports the metadata and the policy verdict. It returns false when the video would be rejected.
func printProbe(w io.Writer, name string, info ffmpeg.Info, policy inspection.Policy) bool {
	// The sampler derives duration from the frame count, so the verdict does too
	duration := 0.0
	if info.FrameRate > 0 {
		duration = float64(info.TotalFrames) / info.FrameRate
	}

	fmt.Fprintf(w, "File:        %s\n", name)
	fmt.Fprintf(w, "Size:        %s\n", utils.FmtSize(info.SizeBytes))
	fmt.Fprintf(w, "Codec:       %s\n", info.Codec)
	fmt.Fprintf(w, "Resolution:  %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(w, "Frame rate:  %.3f fps\n", info.FrameRate)
	fmt.Fprintf(w, "Frames:      %d\n", info.TotalFrames)
	fmt.Fprintf(w, "Duration:    %s (%.2fs)\n", utils.FmtTime(duration), duration)

	err := policy.CheckFile(name, info.SizeBytes)
	if err == nil {
		if info.FrameRate <= 0 || info.TotalFrames <= 0 {
			err = inspection.ErrNoFrames
		} else {
			err = policy.CheckDuration(duration)
		}
	}
	if err != nil {
		fmt.Fprintf(w, "Verdict:     ❌ rejected (%v)\n", err)
		return false
	}
	fmt.Fprintf(w, "Verdict:     ✅ accepted\n")
	return true
}
