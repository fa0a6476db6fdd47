package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"paimon-mirror/metrics"
	"paimon-mirror/proxy"
	"paimon-mirror/replication"
)

var (
	noProxy       bool
	noReplication bool
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Replicate the configured tables and serve them over the Postgres protocol",
	Args:  cobra.NoArgs,
	RunE:  runMirror,
}

func init() {
	mirrorCmd.Flags().BoolVar(&noProxy, "no-proxy", false, "do not start the query proxy")
	mirrorCmd.Flags().BoolVar(&noReplication, "no-replication", false, "do not start replication")
	rootCmd.AddCommand(mirrorCmd)
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, fsys, err := openStorage(ctx)
	if err != nil {
		return err
	}
	logger := slog.Default()

	g, gCtx := errgroup.WithContext(ctx)

	if !noReplication {
		replicator, err := replication.NewReplicator(ctx, cfg, fsys, logger)
		if err != nil {
			return fmt.Errorf("creating replicator: %w", err)
		}
		g.Go(func() error {
			return replicator.Start(gCtx)
		})
	}

	if !noProxy {
		dbProxy, err := proxy.NewDuckDBProxy(ctx, cfg, fsys, logger)
		if err != nil {
			return fmt.Errorf("creating proxy: %w", err)
		}
		g.Go(func() error {
			return dbProxy.Start(gCtx)
		})
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		g.Go(func() error {
			logger.Info("metrics server started", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("mirror started", "tables", len(cfg.Tables), "storage", cfg.Storage.Type)
	err = g.Wait()
	logger.Info("mirror stopped")
	return err
}
