package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/framecheck/internal/inspection"
	"github.com/andresmejia3/framecheck/internal/report"
	"github.com/andresmejia3/framecheck/internal/types"
	"github.com/andresmejia3/framecheck/internal/utils"
	"github.com/andresmejia3/framecheck/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var batchOpts Options

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect every video in a directory with parallel engines",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyConfigDefaults(cmd.Flags().Changed, &batchOpts, Cfg)
		if !cmd.Flags().Changed("output") && Cfg != nil {
			batchOpts.OutputPath = Cfg.OutputDir
		}
		return runBatch(cmd, batchOpts)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOpts.InputDir, "dir", "d", "", "Directory of videos")
	batchCmd.Flags().StringVarP(&batchOpts.OutputPath, "output", "o", "", "Directory for the archives (default: FRAMECHECK_OUTPUT_DIR)")
	batchCmd.Flags().IntVarP(&batchOpts.NumEngines, "engines", "e", 2, "Number of parallel engine workers")
	addInspectorFlags(batchCmd, &batchOpts)
	addSamplingFlags(batchCmd, &batchOpts)

	batchCmd.MarkFlagRequired("dir")
	batchCmd.MarkFlagRequired("technician")
	rootCmd.AddCommand(batchCmd)
}

// collectVideos lists the files in dir whose extension is accepted, sorted by name.
func collectVideos(dir string, exts map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(exts) > 0 && !exts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// serialFor falls back to the file name when no serial was given for the batch.
func serialFor(serial, path string) string {
	if strings.TrimSpace(serial) != "" {
		return serial
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// batchArchiveName keeps the extension so clip.mp4 and clip.mov do not collide.
func batchArchiveName(path string) string {
	return report.SanitizeFilename(filepath.Base(path)) + ".zip"
}

func runBatch(cmd *cobra.Command, opts Options) error {
	info, err := os.Stat(opts.InputDir)
	if err != nil {
		return fail("Unable to access input directory", err)
	}
	if !info.IsDir() {
		return fail("Input path is not a directory", nil)
	}
	if strings.TrimSpace(opts.Technician) == "" {
		return fail("Invalid arguments", fmt.Errorf("technician name is required"))
	}
	params, err := buildParams(opts)
	if err != nil {
		return fail("Invalid sampling options", err)
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}

	policy := buildPolicy(opts, Cfg)
	files, err := collectVideos(opts.InputDir, policy.Extensions)
	if err != nil {
		return fail("Failed to list videos", err)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "No videos found in %s\n", opts.InputDir)
		return nil
	}
	if err := os.MkdirAll(opts.OutputPath, 0755); err != nil {
		return fail("Failed to create output directory", err)
	}

	svc := newService(policy)
	fmt.Fprintf(os.Stderr, "📂 Found %d videos\n", len(files))
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Worker Engines...\n", opts.NumEngines)

	job := func(ctx context.Context, task types.VideoTask) (types.Inspection, error) {
		in, err := svc.Run(ctx, inspection.Submission{
			Path:       task.Path,
			Technician: opts.Technician,
			Serial:     serialFor(opts.Serial, task.Path),
			Contract:   opts.Contract,
			Params:     params,
		})
		if err != nil {
			return types.Inspection{}, err
		}
		videoPath := task.Path
		if opts.NoVideo {
			videoPath = ""
		}
		out := filepath.Join(opts.OutputPath, batchArchiveName(task.Path))
		return in, svc.Package(ctx, in, videoPath, out)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("🔍 Inspecting videos"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	var outcomes []worker.Outcome
	worker.NewPool(opts.NumEngines, job, Log).Run(cmd.Context(), files, func(o worker.Outcome) {
		outcomes = append(outcomes, o)
		bar.Add(1)
	})
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	failed := printBatchSummary(os.Stderr, outcomes)
	fmt.Fprintf(os.Stderr, "\n🏁 Batch Complete. %d succeeded, %d failed.\n", len(outcomes)-failed, failed)
	if failed > 0 {
		return fail(fmt.Sprintf("%d of %d videos failed", failed, len(outcomes)), nil)
	}
	return nil
}

// printBatchSummary writes one row per video and returns how many failed.
func printBatchSummary(out io.Writer, outcomes []worker.Outcome) int {
	failed := 0
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VIDEO\tFRAMES\tDURATION\tSTATUS")
	fmt.Fprintln(w, "-----\t------\t--------\t------")
	for _, o := range outcomes {
		name := filepath.Base(o.Task.Path)
		if o.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\t-\t-\t❌ %s: %v\n", name, failureContext(o.Err), o.Err)
			continue
		}
		status := "✅ ok"
		if o.Inspection.Cached {
			status = "✅ cached"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", name, o.Inspection.FrameCount, utils.FmtTime(o.Inspection.Result.Duration), status)
	}
	w.Flush()
	return failed
}
