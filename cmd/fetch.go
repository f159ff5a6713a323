package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/config"
	"github.com/sells-group/gwr-cli/internal/fetcher"
)

var fetchURL string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the dataset into the data directory",
	Long:  "Downloads a zipped or bare shapefile over HTTP(S) or FTP into the configured data directory. Unchanged HTTP archives are not downloaded again.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if fetchURL != "" {
			cfg.Data.URL = fetchURL
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		dataPath, err := cfg.DataPath()
		if err != nil {
			return err
		}
		destDir := filepath.Dir(dataPath)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return eris.Wrap(err, "fetch: create data dir")
		}

		client := fetcher.New(fetchOptions(cfg.Fetch))
		start := time.Now()
		shp, err := client.Fetch(ctx, cfg.Data.URL, destDir)
		if err != nil {
			return err
		}

		zap.L().Info("fetch: dataset ready",
			zap.String("url", cfg.Data.URL),
			zap.String("path", shp),
			zap.Duration("elapsed", time.Since(start)),
		)
		if filepath.Base(shp) != filepath.Base(dataPath) {
			zap.L().Warn("fetch: downloaded shapefile differs from data.file",
				zap.String("downloaded", filepath.Base(shp)),
				zap.String("configured", filepath.Base(dataPath)),
			)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), shp)
		return nil
	},
}

// fetchOptions maps the fetch configuration onto both transports.
func fetchOptions(c config.FetchConfig) fetcher.Options {
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	return fetcher.Options{
		HTTP: fetcher.HTTPOptions{
			UserAgent:  c.UserAgent,
			Timeout:    timeout,
			MaxRetries: c.MaxRetries,
		},
		FTP: fetcher.FTPOptions{Timeout: timeout},
	}
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "dataset URL (default from config data.url)")
	rootCmd.AddCommand(fetchCmd)
}
