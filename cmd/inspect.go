package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/framecheck/internal/config"
	"github.com/andresmejia3/framecheck/internal/ffmpeg"
	"github.com/andresmejia3/framecheck/internal/inspection"
	"github.com/andresmejia3/framecheck/internal/report"
	"github.com/andresmejia3/framecheck/internal/sampler"
	"github.com/andresmejia3/framecheck/internal/types"
	"github.com/andresmejia3/framecheck/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const megabyte = 1024 * 1024

var inspectOpts Options

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Sample frames from an inspection video and package them with a report",
	Example: "  framecheck inspect -i pump.mp4 --technician Ana --serial SN-1\n" +
		"  cat upload.bin | framecheck inspect -i - --name pump.mp4 --technician Ana --serial SN-1",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyConfigDefaults(cmd.Flags().Changed, &inspectOpts, Cfg)
		return runInspect(cmd, inspectOpts)
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectOpts.InputPath, "input", "i", "", "Path to video, or - to read it from stdin")
	inspectCmd.Flags().StringVar(&inspectOpts.InputName, "name", "", "Original file name of a video read from stdin")
	inspectCmd.Flags().StringVarP(&inspectOpts.OutputPath, "output", "o", "", "Archive path (default: <output dir>/<serial>_<time>.zip)")
	addInspectorFlags(inspectCmd, &inspectOpts)
	addSamplingFlags(inspectCmd, &inspectOpts)

	inspectCmd.MarkFlagRequired("input")
	inspectCmd.MarkFlagRequired("technician")
	inspectCmd.MarkFlagRequired("serial")
	rootCmd.AddCommand(inspectCmd)
}

func addInspectorFlags(c *cobra.Command, o *Options) {
	c.Flags().StringVar(&o.Technician, "technician", "", "Technician responsible for the inspection")
	c.Flags().StringVar(&o.Serial, "serial", "", "Equipment serial number")
	c.Flags().StringVar(&o.Contract, "contract", "", "Contract reference")
}

func addSamplingFlags(c *cobra.Command, o *Options) {
	c.Flags().IntVarP(&o.FrameCount, "frames", "n", sampler.DefaultCount, "Number of frames to sample")
	c.Flags().IntVarP(&o.MaxWidth, "width", "w", sampler.DefaultWidth, "Maximum frame width in pixels (aspect ratio is kept)")
	c.Flags().StringVar(&o.Format, "format", string(sampler.JPEG), "Frame encoding (jpeg, png)")
	c.Flags().IntVar(&o.Quality, "quality", sampler.DefaultQuality, "JPEG quality (1-100)")
	c.Flags().StringVar(&o.Strategy, "strategy", string(sampler.ByIndex), "Sampling strategy: index (seek by frame, fall back to time) or time (the reverse)")
	c.Flags().BoolVar(&o.NoVideo, "no-video", false, "Do not bundle the source video in the archive")
	c.Flags().BoolVar(&o.SkipDurationCheck, "skip-duration-check", false, "Accept videos outside the configured duration window")
}

// applyConfigDefaults fills every sampling option the user did not set on the command line from cfg.
func applyConfigDefaults(changed func(string) bool, o *Options, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if !changed("frames") {
		o.FrameCount = cfg.FrameCount
	}
	if !changed("width") {
		o.MaxWidth = cfg.MaxWidth
	}
	if !changed("format") {
		o.Format = cfg.Format
	}
	if !changed("quality") {
		o.Quality = cfg.Quality
	}
	if !changed("strategy") {
		o.Strategy = cfg.Strategy
	}
	if !changed("engines") {
		o.NumEngines = cfg.NumEngines
	}
}

// buildParams validates the sampling options.
func buildParams(o Options) (types.Params, error) {
	format, err := sampler.ParseFormat(o.Format)
	if err != nil {
		return types.Params{}, err
	}
	strategy, err := sampler.ParseStrategy(o.Strategy)
	if err != nil {
		return types.Params{}, err
	}
	if o.FrameCount < 1 {
		return types.Params{}, fmt.Errorf("frames must be >= 1, got %d", o.FrameCount)
	}
	if o.MaxWidth < 1 {
		return types.Params{}, fmt.Errorf("width must be >= 1, got %d", o.MaxWidth)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return types.Params{}, fmt.Errorf("quality must be between 1 and 100, got %d", o.Quality)
	}
	return types.Params{
		Count:    o.FrameCount,
		Width:    o.MaxWidth,
		Format:   format,
		Quality:  o.Quality,
		Strategy: strategy,
	}, nil
}

func buildPolicy(o Options, cfg *config.Config) inspection.Policy {
	p := inspection.DefaultPolicy()
	if cfg != nil {
		p = inspection.Policy{
			Extensions:  cfg.ExtensionSet(),
			MaxBytes:    int64(cfg.MaxUploadMB) * megabyte,
			MinDuration: cfg.MinDuration,
			MaxDuration: cfg.MaxDuration,
		}
	}
	if o.SkipDurationCheck {
		p = p.WithoutDurationCheck()
	}
	return p
}

func newService(policy inspection.Policy) *inspection.Service {
	smp := sampler.New(ffmpeg.Open, Log)
	// A nil *store.Store must not become a non-nil interface
	var st inspection.Store
	if DB != nil {
		st = DB
	}
	return inspection.NewService(smp, st, policy, Log)
}

// validateInspectFlags ensures all CLI arguments are valid before starting heavy processes.
func validateInspectFlags(opts *Options) error {
	if opts.InputPath == stdinPath {
		if strings.TrimSpace(opts.InputName) == "" {
			return errors.New("--name is required when reading the video from stdin")
		}
	} else {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("input file does not exist: %w", err)
			}
			return fmt.Errorf("unable to access input file: %w", err)
		}
		if info.IsDir() {
			return errors.New("input path is a directory, expected a video file")
		}
	}
	if strings.TrimSpace(opts.Technician) == "" {
		return errors.New("technician name is required")
	}
	if strings.TrimSpace(opts.Serial) == "" {
		return errors.New("serial number is required")
	}
	return nil
}

// stdinPath is the --input value that reads the upload from standard input.
const stdinPath = "-"

// openInput resolves the video to inspect and the name it is reported under.
// For stdinPath the upload is copied from r into tempDir; cleanup removes the copy.
func openInput(r io.Reader, opts Options, tempDir string) (path, name string, cleanup func(), err error) {
	if opts.InputPath != stdinPath {
		return opts.InputPath, filepath.Base(opts.InputPath), func() {}, nil
	}
	name = strings.TrimSpace(opts.InputName)
	path, cleanup, err = inspection.Materialize(r, name, tempDir)
	if err != nil {
		return "", "", nil, err
	}
	return path, name, cleanup, nil
}

func runInspect(cmd *cobra.Command, opts Options) error {
	if err := validateInspectFlags(&opts); err != nil {
		return fail("Invalid arguments", err)
	}
	params, err := buildParams(opts)
	if err != nil {
		return fail("Invalid sampling options", err)
	}

	tempDir := ""
	if Cfg != nil {
		tempDir = Cfg.TempDir
	}
	path, name, cleanup, err := openInput(cmd.InOrStdin(), opts, tempDir)
	if err != nil {
		return fail("Failed to read video from stdin", err)
	}
	defer cleanup()

	ctx := cmd.Context()
	svc := newService(buildPolicy(opts, Cfg))

	fmt.Fprintf(os.Stderr, "📼 Inspecting %s (serial %s)\n", name, opts.Serial)
	if DB == nil {
		fmt.Fprintf(os.Stderr, "⚠️  No database configured. Results will not be cached.\n")
	}

	bar := progressbar.NewOptions(params.Count,
		progressbar.OptionSetDescription("🎞️  Sampling frames"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	in, err := svc.Run(ctx, inspection.Submission{
		Path:       path,
		Name:       name,
		Technician: opts.Technician,
		Serial:     opts.Serial,
		Contract:   opts.Contract,
		Params:     params,
		OnSample:   func(done, total int) { bar.Set(done) },
	})
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fail(failureContext(err), err)
	}

	printSummary(os.Stderr, in)

	out := opts.OutputPath
	if out == "" {
		out = filepath.Join(Cfg.OutputDir, report.ArchiveName(opts.Serial, in.CreatedAt))
	}
	videoPath := path
	if opts.NoVideo {
		videoPath = ""
	}
	if err := svc.Package(ctx, in, videoPath, out); err != nil {
		return fail("Failed to write archive", err)
	}

	fmt.Fprintf(os.Stderr, "📦 Archive written: %s\n", out)
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// failureContext turns pipeline errors into the headline shown to the technician.
func failureContext(err error) string {
	switch {
	case errors.Is(err, inspection.ErrNoFrames):
		return "Could not extract frames from this video (check the codec)"
	case errors.Is(err, inspection.ErrUnsupportedExtension):
		return "Unsupported video format"
	case errors.Is(err, inspection.ErrTooLarge):
		return "Video is too large"
	case errors.Is(err, inspection.ErrDurationOutOfRange):
		return "Video duration is outside the accepted window"
	}
	return "Inspection failed"
}

// printSummary renders the captions and duration of a finished inspection.
func printSummary(w io.Writer, in types.Inspection) {
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "📋 INSPECTION SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "👷 Technician: %s\n", in.Technician)
	fmt.Fprintf(w, "🔢 Serial:     %s\n", in.Serial)
	if in.Contract != "" {
		fmt.Fprintf(w, "📄 Contract:   %s\n", in.Contract)
	}
	fmt.Fprintf(w, "🎬 Video:      %s (%s)\n", in.VideoName, utils.FmtSize(in.SizeBytes))
	fmt.Fprintf(w, "⏱️  Duration:   %s (%.1fs)\n", utils.FmtTime(in.Result.Duration), in.Result.Duration)
	fmt.Fprintf(w, "🖼️  Frames:     %d of %d requested", len(in.Result.Frames), in.Params.Count)
	if in.Cached {
		fmt.Fprintf(w, " (from cache)")
	}
	fmt.Fprintln(w)
	for _, f := range in.Result.Frames {
		fmt.Fprintf(w, "   %s  %dx%d\n", report.Caption(f), f.Width, f.Height)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}
