package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/dataset"
	"github.com/sells-group/gwr-cli/internal/pipeline"
	"github.com/sells-group/gwr-cli/internal/report"
	"github.com/sells-group/gwr-cli/internal/store"
)

var (
	runData        string
	runOut         string
	runBandwidth   float64
	runKernel      string
	runFixed       bool
	runCriterion   string
	runXLSX        string
	runSummaryYAML string
	runShpOut      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fit the model and render the coefficient and residual maps",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyModelFlags(cmd)
		if runOut != "" {
			cfg.Render.OutputDir = runOut
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		p := pipeline.New(cfg, cmd.OutOrStdout(), pipelineOptions(st, runData, runBandwidth)...)
		out, err := p.Run(ctx)
		if err != nil {
			return err
		}

		return writeExports(out)
	},
}

// applyModelFlags copies explicitly set model flags over the configuration.
func applyModelFlags(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("kernel"); f != nil && f.Changed {
		cfg.Model.Kernel = runKernel
	}
	if f := cmd.Flags().Lookup("fixed"); f != nil && f.Changed {
		cfg.Model.Fixed = runFixed
	}
	if f := cmd.Flags().Lookup("criterion"); f != nil && f.Changed {
		cfg.Model.Criterion = runCriterion
	}
}

func pipelineOptions(st store.Store, data string, bw float64) []pipeline.Option {
	var opts []pipeline.Option
	if st != nil {
		opts = append(opts, pipeline.WithStore(st))
	}
	if data != "" {
		opts = append(opts, pipeline.WithDataPath(data))
	}
	if bw > 0 {
		opts = append(opts, pipeline.WithBandwidth(bw))
	}
	return opts
}

// writeExports writes the optional XLSX, YAML and shapefile outputs.
func writeExports(out *pipeline.Outcome) error {
	columns := append([]string{cfg.Model.Dependent}, out.Features.Mapping.Columns()...)

	if runXLSX != "" {
		if err := report.WriteXLSX(runXLSX, out.Records, columns, out.Report); err != nil {
			return err
		}
		zap.L().Info("wrote workbook", zap.String("path", runXLSX))
	}

	if runSummaryYAML != "" {
		if err := writeSummaryYAML(runSummaryYAML, out); err != nil {
			return err
		}
		zap.L().Info("wrote summary", zap.String("path", runSummaryYAML))
	}

	if runShpOut != "" {
		if err := os.MkdirAll(filepath.Dir(runShpOut), 0o755); err != nil {
			return eris.Wrap(err, "run: create shapefile dir")
		}
		if err := dataset.Write(runShpOut, out.Records); err != nil {
			return err
		}
		zap.L().Info("wrote shapefile", zap.String("path", runShpOut))
	}
	return nil
}

func writeSummaryYAML(path string, out *pipeline.Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "run: create summary file")
	}
	if err := report.WriteSummaryYAML(f, out.Results, out.Global, out.Features.Mapping); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "run: close summary file")
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runData, "data", "", "input shapefile (default from config)")
	cmd.Flags().StringVar(&runKernel, "kernel", "bisquare", "kernel: gaussian, bisquare or exponential")
	cmd.Flags().BoolVar(&runFixed, "fixed", false, "use a fixed distance bandwidth instead of adaptive neighbours")
	cmd.Flags().StringVar(&runCriterion, "criterion", "AICc", "bandwidth selection criterion: AICc, AIC, BIC or CV")
}

func init() {
	addModelFlags(runCmd)
	runCmd.Flags().StringVar(&runOut, "out", "", "map output directory (default from config)")
	runCmd.Flags().Float64Var(&runBandwidth, "bw", 0, "fit at this bandwidth and skip the search")
	runCmd.Flags().StringVar(&runXLSX, "xlsx", "", "write records and diagnostics to an XLSX workbook")
	runCmd.Flags().StringVar(&runSummaryYAML, "summary-yaml", "", "write the model summary as YAML")
	runCmd.Flags().StringVar(&runShpOut, "shp-out", "", "write the records with model columns as a shapefile")
	rootCmd.AddCommand(runCmd)
}
