package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/pipeline"
	"github.com/sells-group/gwr-cli/internal/render"
	"github.com/sells-group/gwr-cli/internal/server"
)

var (
	servePort      int
	serveData      string
	serveBandwidth float64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Fit the model once and serve its summary and maps over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		// Maps are rendered on request rather than written to disk.
		cfg.Render.OutputDir = ""
		p := pipeline.New(cfg, cmd.OutOrStdout(), pipelineOptions(st, serveData, serveBandwidth)...)
		out, err := p.Run(ctx)
		if err != nil {
			return err
		}

		cache := render.NewMapCache(cfg.Server.CacheEntries, time.Duration(cfg.Server.CacheTTLSecs)*time.Second)
		s := server.New(server.Result{
			RunID:     out.RunID,
			Records:   out.Records,
			Summary:   out.Summary,
			Report:    out.Report,
			Maps:      p.Maps(out.Records),
			Rendering: p.RenderOptions(),
		}, cache)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           s.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("run_id", out.RunID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveData, "data", "", "input shapefile (default from config)")
	serveCmd.Flags().Float64Var(&serveBandwidth, "bw", 0, "fit at this bandwidth and skip the search")
	rootCmd.AddCommand(serveCmd)
}
