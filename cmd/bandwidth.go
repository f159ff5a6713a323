package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/gwr-cli/internal/pipeline"
)

var bandwidthCmd = &cobra.Command{
	Use:   "bandwidth",
	Short: "Search for the optimal bandwidth without fitting the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyModelFlags(cmd)
		if err := cfg.Validate("bandwidth"); err != nil {
			return err
		}

		p := pipeline.New(cfg, cmd.OutOrStdout(), pipelineOptions(nil, runData, 0)...)
		prep, err := p.Prepare(ctx)
		if err != nil {
			return err
		}
		_, err = p.SelectBandwidth(ctx, prep)
		return err
	},
}

func init() {
	addModelFlags(bandwidthCmd)
	rootCmd.AddCommand(bandwidthCmd)
}
