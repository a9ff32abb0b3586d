package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "trackbus/internal/http"
	"trackbus/internal/log"
	"trackbus/internal/middleware/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker and the HTTP API",
	Long: `Runs the tracker against the configured backend and serves the JSON API.
With the sqlite backend and AMQP_URL set, writes from other processes are
picked up through the change feed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerSecond = cfg.RateLimitRPS
	limits.Burst = cfg.RateLimitBurst

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Dependencies{
		Tracker:       a.tracker,
		Session:       a.tracker.Session(),
		Entries:       a.entries,
		Notifications: a.notifier,
		Metrics:       a.metrics.Handler(),
		Logger:        logger,
		RateLimit:     limits,
	})

	g, gctx := errgroup.WithContext(ctx)
	a.run(gctx, g)
	g.Go(func() error { return srv.Run(gctx) })

	logger.Info("Starting trackbus server",
		"addr", cfg.Addr(),
		"backend", cfg.DataBackend,
		"amqp_enabled", cfg.AMQPEnabled())

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
	return nil
}
