// Package google is a record store on a Google Sheets spreadsheet. Each
// collection is a tab whose first row holds field names.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"trackbus/internal/core"
	"trackbus/internal/log"
	"trackbus/internal/store"
)

var _ store.Source = (*Store)(nil)

// Config selects the spreadsheet and tabs.
type Config struct {
	SpreadsheetID   string
	PartnersSheet   string
	ExpensesSheet   string
	SalesSheet      string
	PollInterval    time.Duration
	RequestsPerSec  float64
	CredentialsJSON []byte
}

func (c Config) sheet(col store.Collection) string {
	switch col {
	case store.Partners:
		return c.PartnersSheet
	case store.Expenses:
		return c.ExpensesSheet
	case store.Sales:
		return c.SalesSheet
	}
	return ""
}

// valuesAPI is the subset of the Sheets values service the store needs.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
}

type sheetsValues struct {
	svc *gsheet.Service
}

func (v sheetsValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v sheetsValues) Append(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return err
}

type Store struct {
	cfg     Config
	values  valuesAPI
	limiter *rate.Limiter
	logger  *log.Logger

	mu      sync.Mutex
	subs    map[store.Collection]map[uint64]*store.Subscription
	nextSub uint64
	lastSum map[store.Collection]uint64

	refreshMu map[store.Collection]*sync.Mutex
}

// New connects to the Sheets API with service account credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if len(cfg.CredentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(cfg.CredentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newStore(cfg, sheetsValues{svc: svc}, logger), nil
}

func newStore(cfg Config, values valuesAPI, logger *log.Logger) *Store {
	if cfg.PartnersSheet == "" {
		cfg.PartnersSheet = "Partners"
	}
	if cfg.ExpensesSheet == "" {
		cfg.ExpensesSheet = "Expenses"
	}
	if cfg.SalesSheet == "" {
		cfg.SalesSheet = "Sales"
	}
	if cfg.RequestsPerSec <= 0 {
		// Sheets allows 60 reads per minute per user.
		cfg.RequestsPerSec = 1
	}
	s := &Store{
		cfg:       cfg,
		values:    values,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), len(store.Collections())),
		logger:    log.OrDiscard(logger, log.ComponentSheets),
		subs:      make(map[store.Collection]map[uint64]*store.Subscription),
		lastSum:   make(map[store.Collection]uint64),
		refreshMu: make(map[store.Collection]*sync.Mutex),
	}
	for _, c := range store.Collections() {
		s.refreshMu[c] = &sync.Mutex{}
	}
	return s
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

// Add appends a row in header order. A tab without a header row gets the
// default header first.
func (s *Store) Add(ctx context.Context, c store.Collection, fields map[string]any) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("add to %q: %w", c, store.ErrUnknownCollection)
	}
	tab := s.cfg.sheet(c)

	if err := s.limiter.Wait(ctx); err != nil {
		return "", store.Unavailable("add "+string(c), err)
	}
	head, err := s.values.Get(ctx, s.cfg.SpreadsheetID, tab+"!1:1")
	if err != nil {
		return "", store.Unavailable("read header "+tab, err)
	}

	var header []string
	var rows [][]any
	if len(head) > 0 && len(head[0]) > 0 {
		header = toStrings(head[0])
	} else {
		header = defaultHeader(c)
		rows = append(rows, toAny(header))
	}

	id := uuid.NewString()
	rows = append(rows, buildRow(header, id, fields))

	if err := s.limiter.Wait(ctx); err != nil {
		return "", store.Unavailable("add "+string(c), err)
	}
	if err := s.values.Append(ctx, s.cfg.SpreadsheetID, tab+"!A1", rows); err != nil {
		return "", store.Unavailable("append "+tab, err)
	}
	s.logger.InfoContext(ctx, "Row appended", log.FieldCollection, c, log.FieldRecordID, id, "sheet", tab)

	s.refresh(ctx, c, true)
	return id, nil
}

// Run polls subscribed collections until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Store) poll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range store.Collections() {
		s.mu.Lock()
		n := len(s.subs[c])
		s.mu.Unlock()
		if n == 0 {
			continue
		}
		g.Go(func() error {
			// Failures are reported to subscribers, not to the group.
			_ = s.refresh(gctx, c, false)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Store) refresh(ctx context.Context, c store.Collection, force bool) error {
	mu := s.refreshMu[c]
	mu.Lock()
	defer mu.Unlock()

	records, err := s.read(ctx, c)
	sum := store.Fingerprint(records)

	s.mu.Lock()
	subs := make([]*store.Subscription, 0, len(s.subs[c]))
	for _, sub := range s.subs[c] {
		subs = append(subs, sub)
	}
	prev, seen := s.lastSum[c]
	if err != nil {
		delete(s.lastSum, c)
	} else {
		s.lastSum[c] = sum
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WarnContext(ctx, "Sheet read failed", log.FieldCollection, c, log.FieldError, err)
		for _, sub := range subs {
			sub.Fail(err)
		}
		return err
	}
	if !force && seen && prev == sum {
		return nil
	}
	for _, sub := range subs {
		recs := make([]store.Record, len(records))
		for i, r := range records {
			recs[i] = r.Clone()
		}
		sub.Deliver(recs)
	}
	return nil
}

func (s *Store) read(ctx context.Context, c store.Collection) ([]store.Record, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, store.Unavailable("read "+string(c), err)
	}
	tab := s.cfg.sheet(c)
	values, err := s.values.Get(ctx, s.cfg.SpreadsheetID, tab)
	if err != nil {
		return nil, store.Unavailable("read "+tab, err)
	}
	return parseRows(values), nil
}

func defaultHeader(c store.Collection) []string {
	switch c {
	case store.Partners:
		return []string{"id", core.FieldName, core.FieldMoneyInvested, core.FieldInvestmentDate}
	case store.Expenses:
		return []string{"id", core.FieldTypeOfEntry, core.FieldTypeOfExpense, core.FieldDescription, core.FieldDate,
			core.FieldPerUnitCost, core.FieldQuantity, core.FieldTotalCost, core.FieldTimestamp}
	case store.Sales:
		return []string{"id", core.FieldTypeOfEntry, core.FieldTypeOfSale, core.FieldDescription, core.FieldDate,
			core.FieldPerUnitSalePrice, core.FieldQuantity, core.FieldTotalSalePrice, core.FieldTimestamp}
	}
	return []string{"id"}
}
