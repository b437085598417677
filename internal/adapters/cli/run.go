package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dietinsights/internal/pipeline"
	"dietinsights/pkg/domain"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Normalize the raw dataset and rebuild the cache artifact",
		Long: `Runs the pipeline once. With --file the CSV is uploaded as the new raw
dataset first; otherwise the stored raw dataset is used.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			var (
				rep pipeline.Report
				err error
			)
			if file != "" {
				data, readErr := os.ReadFile(file)
				if readErr != nil {
					return fmt.Errorf("read %s: %w", file, readErr)
				}
				rep, err = a.svc.Ingest(cmd.Context(), data)
			} else {
				rep, err = a.svc.RunPipeline(cmd.Context())
			}
			if asJSON {
				if jerr := writeJSON(cmd.OutOrStdout(), rep); jerr != nil {
					return jerr
				}
				return err
			}
			if err != nil {
				return err
			}
			printReport(cmd, rep)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "raw CSV to upload before running")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, rep pipeline.Report) {
	out := cmd.OutOrStdout()
	n := rep.Normalize
	renderTable(out, []string{"Metric", "Value"}, [][]string{
		{"Run", rep.RunID},
		{"Input rows", strconv.Itoa(n.InputRows)},
		{"Output rows", strconv.Itoa(rep.Rows)},
		{"Empty rows removed", strconv.Itoa(n.EmptyRowsRemoved)},
		{"Duplicates removed", strconv.Itoa(n.DuplicatesRemoved)},
		{"Invalid diets removed", strconv.Itoa(n.InvalidDietRemoved)},
		{"Coercion failures", perColumn(n.CoercionFailures)},
		{"Fill mode", n.Mode},
		{"Source digest", rep.Digest},
		{"Duration", rep.Duration.String()},
	})
}

// perColumn renders counts in macro column order, e.g. "Protein(g)=1 Fat(g)=2".
func perColumn(counts map[string]int) string {
	parts := make([]string, 0, len(domain.MacroColumns))
	for _, col := range domain.MacroColumns {
		if n := counts[col]; n > 0 {
			parts = append(parts, col+"="+strconv.Itoa(n))
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}
