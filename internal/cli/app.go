package cli

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"trackbus/internal/backend"
	"trackbus/internal/log"
	"trackbus/internal/notify"
	"trackbus/internal/services"
	"trackbus/internal/session"
	"trackbus/internal/telemetry"
	"trackbus/internal/tracker"
)

// app is everything one process needs to follow and update the records.
type app struct {
	backend  *backend.BackendResult
	notifier *notify.Notifier
	metrics  *telemetry.Metrics
	tracker  *tracker.Tracker
	entries  *services.EntryService
}

func newApp(ctx context.Context) (*app, error) {
	res, err := backend.NewFactory(logger).CreateBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	notifier := notify.New(notify.WithLogger(logger))
	metrics := telemetry.New()
	opts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithObserver(metrics),
	}
	if cfg.InitialAuthToken != "" {
		opts = append(opts, tracker.WithInitialToken(cfg.InitialAuthToken))
	}
	tr := tracker.New(res.Source, session.NewJWTProvider(secret, cfg.SessionTTL), notifier, opts...)

	entries := services.NewEntryService(res.Source, notifier,
		services.WithReadiness(tr),
		services.WithRecorder(metrics),
		services.WithLogger(logger))

	return &app{
		backend:  res,
		notifier: notifier,
		metrics:  metrics,
		tracker:  tr,
		entries:  entries,
	}, nil
}

// run starts the tracker and the backend runners in g.
func (a *app) run(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return a.tracker.Run(ctx) })
	for _, r := range a.backend.Runners {
		g.Go(func() error {
			if err := r.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			return nil
		})
	}
}

// start runs the app in the background until the returned stop is called.
// It is meant for one-shot commands.
func (a *app) start(ctx context.Context) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.run(gctx, g)
	return func() error {
		cancel()
		err := g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return errors.Join(err, a.close())
	}
}

// waitLoaded waits for the session and a first snapshot of every collection.
func (a *app) waitLoaded(ctx context.Context) error {
	if err := a.tracker.WaitLoaded(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("records did not load in time (session %s)", a.tracker.Session().State())
		}
		return err
	}
	return nil
}

func (a *app) close() error {
	a.notifier.Close()
	if err := a.backend.Close(); err != nil {
		logger.Warn("Backend cleanup failed", log.FieldError, err)
		return err
	}
	return nil
}
