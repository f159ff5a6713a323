package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gwr-cli/internal/model"
	"github.com/sells-group/gwr-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect model run history",
	Long:  "Commands for listing, viewing, and summarizing stored model runs. Requires store.driver to be sqlite or postgres.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List model runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		datasetPath, _ := cmd.Flags().GetString("dataset")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:  model.RunStatus(status),
			Dataset: datasetPath,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs locations --

var runsLocationsCmd = &cobra.Command{
	Use:   "locations <run-id>",
	Short: "Print the per-location coefficients of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs locations")
		}
		locs, err := st.GetLocations(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs locations")
		}

		formatLocations(cmd.OutOrStdout(), run.Config.Independent, locs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("dataset", "", "filter by dataset path")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsLocationsCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Running    int
	AvgDurSecs float64
	// Bandwidths counts complete runs per selected bandwidth.
	Bandwidths map[float64]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), Bandwidths: make(map[float64]int)}

	var totalDur time.Duration
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			s.Bandwidths[r.Bandwidth]++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if s.Complete > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(s.Complete)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATASET\tKERNEL\tSTATUS\tBANDWIDTH\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t------\t---------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		ds := filepath.Base(r.Config.Dataset)
		if len(ds) > 30 {
			ds = ds[:27] + "..."
		}

		bw := ""
		if r.Status == model.RunStatusComplete {
			bw = strconv.FormatFloat(r.Bandwidth, 'f', -1, 64)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			ds,
			kernelLabel(r.Config),
			r.Status,
			bw,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatLocations writes one row per location with its coefficients.
func formatLocations(out io.Writer, independent []string, locs []model.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"INDEX", "X", "Y", "INTERCEPT"}
	for _, name := range independent {
		header = append(header, strings.ToUpper(name))
	}
	header = append(header, "RESIDUAL", "LOCAL_R2")
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, l := range locs {
		row := []string{strconv.Itoa(l.Index), formatFloat(l.X), formatFloat(l.Y)}
		for _, p := range l.Params {
			row = append(row, formatFloat(p))
		}
		row = append(row, formatFloat(l.Residual), formatFloat(l.LocalR2))
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if len(s.Bandwidths) == 1 {
		for bw := range s.Bandwidths {
			_, _ = fmt.Fprintf(w, "Bandwidth:\t%s\n", strconv.FormatFloat(bw, 'f', -1, 64))
		}
	} else if len(s.Bandwidths) > 1 {
		_, _ = fmt.Fprintf(w, "Distinct bandwidths:\t%d\n", len(s.Bandwidths))
	}
	_ = w.Flush()
}

func kernelLabel(c model.RunConfig) string {
	if c.Fixed {
		return "fixed " + c.Kernel
	}
	return "adaptive " + c.Kernel
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
