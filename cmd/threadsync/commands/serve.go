package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vdavid/threadsync/internal/mailsync"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync all active accounts periodically",
	Long: `Sync every active account now and then once per THREADSYNC_SYNC_INTERVAL,
with at most THREADSYNC_SYNC_CONCURRENCY accounts at a time. Metrics are
served on THREADSYNC_METRICS_ADDR under /metrics.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler := mailsync.NewScheduler(a.orchestrator, a.store,
		a.cfg.SyncInterval, a.cfg.SyncConcurrency,
		mailsync.Options{MaxMessages: a.cfg.SyncBatchSize},
		a.logger.Named("scheduler"))

	a.logger.Info("Starting threadsync",
		zap.String("environment", a.cfg.Environment),
		zap.String("metrics_addr", a.cfg.MetricsAddr),
		zap.Duration("interval", a.cfg.SyncInterval),
		zap.Int("concurrency", a.cfg.SyncConcurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	a.logger.Info("Stopped threadsync")
	return err
}
