package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/framecheck/internal/types"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored inspections",
	RunE: func(cmd *cobra.Command, args []string) error {
		if DB == nil {
			return fail("Cannot list inspections", errNoDatabase)
		}
		inspections, err := DB.ListInspections(cmd.Context())
		if err != nil {
			return fail("Failed to list inspections", err)
		}
		printInspections(cmd.OutOrStdout(), inspections)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printInspections(out io.Writer, inspections []types.Inspection) {
	if len(inspections) == 0 {
		fmt.Fprintln(out, "No inspections found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSERIAL\tTECHNICIAN\tVIDEO\tFRAMES\tDURATION\tCREATED")
	fmt.Fprintln(w, "--\t------\t----------\t-----\t------\t--------\t-------")

	for _, in := range inspections {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1fs\t%s\n",
			in.ID.String()[:8], in.Serial, in.Technician, in.VideoName,
			in.FrameCount, in.Result.Duration, in.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
