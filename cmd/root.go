package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/config"
	"github.com/sells-group/gwr-cli/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gwr-cli",
	Short: "Geographically weighted regression of Chicago crime",
	Long:  "Loads the Chicago community area shapefile, fits a geographically weighted regression of crime counts on socioeconomic predictors, and maps the local coefficients and residuals.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// initStore opens the configured run store. It returns a nil Store when
// persistence is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
