package backend

import (
	"context"
	"errors"
	"fmt"

	"trackbus/internal/amqp"
	"trackbus/internal/config"
	"trackbus/internal/log"
	"trackbus/internal/store/google"
	"trackbus/internal/store/memory"
	"trackbus/internal/store/sqlite"
	"trackbus/internal/worker"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{logger: log.OrDiscard(logger, log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg *config.Config) (*BackendResult, error) {
	if cfg == nil {
		return nil, errors.New("app config is nil")
	}
	switch bt := BackendType(cfg.DataBackend); bt {
	case SQLiteBackend:
		return f.createSQLiteBackend(cfg)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, cfg)
	case MemoryBackend:
		return f.createMemoryBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", bt)
	}
}

func (f *DefaultFactory) createSQLiteBackend(cfg *config.Config) (*BackendResult, error) {
	// The change feed is optional: without a broker, other processes'
	// writes still arrive through polling.
	var client *amqp.Client
	if cfg.AMQPEnabled() {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, amqp.WithLogger(f.logger))
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change feed", log.FieldError, err)
		} else {
			client = c
			f.logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"origin", client.Origin())
		}
	}

	opts := []sqlite.Option{
		sqlite.WithPollInterval(cfg.StorePollInterval),
		sqlite.WithLogger(f.logger),
	}
	if client != nil {
		opts = append(opts, sqlite.WithPublisher(client))
	}
	st, err := sqlite.Open(cfg.SQLiteDBPath, opts...)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	res := &BackendResult{
		Type:    SQLiteBackend,
		Source:  st,
		Runners: []Runner{{Name: "sqlite-poll", Run: st.Run}},
	}
	if client != nil {
		feed := worker.NewChangeFeed(client, st,
			worker.WithOrigin(client.Origin()),
			worker.WithLogger(f.logger))
		res.Runners = append(res.Runners, Runner{Name: "change-feed", Run: feed.Run})
	}
	res.Cleanup = func() error {
		var errs []error
		if client != nil {
			errs = append(errs, client.Close())
		}
		errs = append(errs, st.Close())
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"poll_interval", cfg.StorePollInterval,
		"amqp_enabled", client != nil)
	return res, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, cfg *config.Config) (*BackendResult, error) {
	creds, err := cfg.GoogleCredentials()
	if err != nil {
		return nil, err
	}
	st, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		PartnersSheet:   cfg.GooglePartnersSheet,
		ExpensesSheet:   cfg.GoogleExpensesSheet,
		SalesSheet:      cfg.GoogleSalesSheet,
		PollInterval:    cfg.StorePollInterval,
		CredentialsJSON: creds,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets store: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return &BackendResult{
		Type:    SheetsBackend,
		Source:  st,
		Runners: []Runner{{Name: "sheets-poll", Run: st.Run}},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(cfg *config.Config) (*BackendResult, error) {
	if cfg.SeedFile == "" {
		f.logger.Info("Initialized memory backend", "seeded", false)
		return &BackendResult{Type: MemoryBackend, Source: memory.New()}, nil
	}

	st, err := memory.NewFromFile(cfg.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}
	res := &BackendResult{Type: MemoryBackend, Source: st}
	if cfg.WatchSeed {
		path := cfg.SeedFile
		res.Runners = append(res.Runners, Runner{
			Name: "seed-watch",
			Run:  func(ctx context.Context) error { return st.Watch(ctx, path, f.logger) },
		})
	}

	f.logger.Info("Initialized memory backend", "seed_file", cfg.SeedFile, "watch", cfg.WatchSeed)
	return res, nil
}
