// Package sqlite is a record store on a local SQLite database. Several
// processes may share one database file; each learns about the others'
// writes through Refresh, driven by the record-changed feed or by polling.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"trackbus/internal/log"
	"trackbus/internal/store"
)

var _ store.Source = (*Store)(nil)

// Publisher announces a committed record to other processes.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, collection, id string) error
}

type Option func(*Store)

// WithPublisher announces every Add through p.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithPollInterval re-reads every subscribed collection on the interval while
// Run is active. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

type Store struct {
	db           *sql.DB
	publisher    Publisher
	pollInterval time.Duration
	logger       *log.Logger

	mu      sync.Mutex
	subs    map[store.Collection]map[uint64]*store.Subscription
	nextSub uint64

	// refreshMu serializes query-and-deliver per collection so snapshots
	// reach subscribers in the order they were read.
	refreshMu map[store.Collection]*sync.Mutex
	lastSum   map[store.Collection]uint64 // guarded by mu
}

// Open creates the database directory, runs migrations and opens the store.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:        db,
		subs:      make(map[store.Collection]map[uint64]*store.Subscription),
		refreshMu: make(map[store.Collection]*sync.Mutex),
		lastSum:   make(map[store.Collection]uint64),
	}
	for _, c := range store.Collections() {
		s.refreshMu[c] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDiscard(s.logger, log.ComponentStore)
	return s, nil
}

// Close closes every subscription and the database.
func (s *Store) Close() error {
	s.mu.Lock()
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.Close()
		}
	}
	s.subs = make(map[store.Collection]map[uint64]*store.Subscription)
	s.mu.Unlock()
	return s.db.Close()
}

// Subscribe registers the callbacks and delivers the current rows before
// returning.
func (s *Store) Subscribe(ctx context.Context, c store.Collection, onSnapshot store.SnapshotFunc, onError store.ErrorFunc) (store.Unsubscribe, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("subscribe %q: %w", c, store.ErrUnknownCollection)
	}
	sub := store.NewSubscription(onSnapshot, onError)

	s.mu.Lock()
	s.nextSub++
	key := s.nextSub
	if s.subs[c] == nil {
		s.subs[c] = make(map[uint64]*store.Subscription)
	}
	s.subs[c][key] = sub
	s.mu.Unlock()

	s.refresh(ctx, c, true)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[c], key)
			s.mu.Unlock()
			sub.Close()
		})
	}, nil
}

// Add inserts a record, pushes the new collection to local subscribers and
// announces the change to other processes.
func (s *Store) Add(ctx context.Context, c store.Collection, fields map[string]any) (string, error) {
	t, ok := tables[c]
	if !ok {
		return "", fmt.Errorf("add to %q: %w", c, store.ErrUnknownCollection)
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, t.insertSQL(), t.insertArgs(id, fields)...); err != nil {
		return "", store.Unavailable("insert "+t.name, err)
	}

	s.logger.InfoContext(ctx, "Record saved to SQLite", log.FieldCollection, c, log.FieldRecordID, id)

	s.refresh(ctx, c, true)

	if s.publisher != nil {
		if err := s.publisher.PublishRecordChanged(ctx, string(c), id); err != nil {
			// Other processes still catch up on their next poll.
			s.logger.WarnContext(ctx, "Failed to publish record change",
				log.FieldCollection, c, log.FieldRecordID, id, log.FieldError, err)
		}
	}
	return id, nil
}

// Refresh re-reads c and delivers it to every subscriber.
func (s *Store) Refresh(ctx context.Context, c store.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("refresh %q: %w", c, store.ErrUnknownCollection)
	}
	return s.refresh(ctx, c, true)
}

// Run polls subscribed collections until ctx is done. It returns at once
// when polling is disabled.
func (s *Store) Run(ctx context.Context) error {
	if s.pollInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, c := range store.Collections() {
				if s.subscribers(c) == 0 {
					continue
				}
				_ = s.refresh(ctx, c, false)
			}
		}
	}
}

func (s *Store) subscribers(c store.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[c])
}

// refresh reads c and hands the rows to subscribers. Unforced refreshes skip
// delivery when nothing changed since the last read.
func (s *Store) refresh(ctx context.Context, c store.Collection, force bool) error {
	mu := s.refreshMu[c]
	mu.Lock()
	defer mu.Unlock()

	records, err := s.list(ctx, c)

	s.mu.Lock()
	subs := make([]*store.Subscription, 0, len(s.subs[c]))
	for _, sub := range s.subs[c] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	if err != nil {
		err = store.Unavailable("read "+string(c), err)
		s.logger.WarnContext(ctx, "Collection read failed", log.FieldCollection, c, log.FieldError, err)
		s.mu.Lock()
		delete(s.lastSum, c)
		s.mu.Unlock()
		for _, sub := range subs {
			sub.Fail(err)
		}
		return err
	}

	sum := store.Fingerprint(records)
	s.mu.Lock()
	prev, seen := s.lastSum[c]
	s.lastSum[c] = sum
	s.mu.Unlock()
	if !force && seen && prev == sum {
		return nil
	}

	for _, sub := range subs {
		sub.Deliver(cloneAll(records))
	}
	return nil
}

func (s *Store) list(ctx context.Context, c store.Collection) ([]store.Record, error) {
	t := tables[c]
	rows, err := s.db.QueryContext(ctx, t.selectSQL())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var id string
		vals := make([]sql.NullString, len(t.columns))
		dest := make([]any, 0, len(vals)+1)
		dest = append(dest, &id)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		rec := store.Record{ID: id, Fields: make(map[string]any, len(t.columns))}
		for i, col := range t.columns {
			if vals[i].Valid && vals[i].String != "" {
				rec.Fields[col.field] = vals[i].String
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func cloneAll(in []store.Record) []store.Record {
	out := make([]store.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
