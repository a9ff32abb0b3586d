// Package records keeps a live, typed view of the partners, expenses and
// sales collections.
//
// Every snapshot and failure from the store is applied on the tracker's
// event loop through the dispatcher handed to Start. The current Snapshot is
// replaced wholesale and never mutated once published.
package records

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"trackbus/internal/core"
	"trackbus/internal/log"
	"trackbus/internal/notify"
	"trackbus/internal/store"
)

// ErrDataSourceUnavailable is matched by every *SourceError.
var ErrDataSourceUnavailable = errors.New("data source unavailable")

// SourceError reports that one collection could not be read.
type SourceError struct {
	Collection store.Collection
	Err        error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDataSourceUnavailable, e.Collection, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrDataSourceUnavailable, e.Err}
}

// Messages shown when a collection fails to load.
var loadFailedMessages = map[store.Collection]string{
	store.Partners: "Failed to load partner data.",
	store.Expenses: "Failed to load expense data.",
	store.Sales:    "Failed to load sales data.",
}

type State int32

const (
	StateInitializing State = iota
	StateSubscribed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSubscribed:
		return "subscribed"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Snapshot is the current content of all three collections.
type Snapshot struct {
	Partners []core.Partner
	Expenses []core.Expense
	Sales    []core.Sale
	// Loaded marks collections that delivered a snapshot or failed at
	// least once since Start.
	Loaded map[store.Collection]bool
}

// LoadedAll reports whether every collection has settled.
func (s Snapshot) LoadedAll() bool {
	for _, c := range store.Collections() {
		if !s.Loaded[c] {
			return false
		}
	}
	return true
}

// Dispatcher runs fn on the event loop.
type Dispatcher func(fn func())

type Hooks struct {
	// OnChange runs on the event loop after every applied snapshot or failure.
	OnChange func(Snapshot)
	// OnError runs on the event loop once per failure occurrence.
	OnError func(*SourceError)
}

type Adapter struct {
	source   store.Subscriber
	notifier notify.Publisher
	logger   *log.Logger
	hooks    Hooks

	snap  atomic.Pointer[Snapshot]
	state atomic.Int32
	gen   atomic.Uint64

	mu     sync.Mutex
	unsubs []store.Unsubscribe
}

func New(source store.Subscriber, notifier notify.Publisher, logger *log.Logger, hooks Hooks) *Adapter {
	a := &Adapter{
		source:   source,
		notifier: notifier,
		logger:   log.OrDiscard(logger, log.ComponentRecords),
		hooks:    hooks,
	}
	a.snap.Store(&Snapshot{Loaded: map[store.Collection]bool{}})
	return a
}

func (a *Adapter) State() State { return State(a.state.Load()) }

// Snapshot returns the current view. Callers must not modify it.
func (a *Adapter) Snapshot() Snapshot { return *a.snap.Load() }

// Start subscribes to every collection. Calling it while subscribed does
// nothing.
func (a *Adapter) Start(ctx context.Context, post Dispatcher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State() == StateSubscribed {
		return
	}

	gen := a.gen.Add(1)
	a.snap.Store(&Snapshot{Loaded: map[store.Collection]bool{}})
	a.state.Store(int32(StateSubscribed))

	for _, c := range store.Collections() {
		onSnapshot := func(recs []store.Record) {
			post(func() {
				if a.gen.Load() != gen {
					return
				}
				a.apply(c, recs)
			})
		}
		onError := func(err error) {
			post(func() {
				if a.gen.Load() != gen {
					return
				}
				a.fail(c, err)
			})
		}

		unsub, err := a.source.Subscribe(ctx, c, onSnapshot, onError)
		if err != nil {
			onError(err)
			continue
		}
		a.unsubs = append(a.unsubs, unsub)
		a.logger.Debug("Subscribed", log.FieldOperation, log.OpSubscribe, log.FieldCollection, c)
	}
}

// Stop tears down every subscription. Events already queued are dropped.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen.Add(1)
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	a.state.Store(int32(StateStopped))
}

func (a *Adapter) apply(c store.Collection, recs []store.Record) {
	next := a.next(c)
	switch c {
	case store.Partners:
		next.Partners = normalizeAll(a, c, recs, toPartner, func(p core.Partner) string { return p.ID })
	case store.Expenses:
		next.Expenses = normalizeAll(a, c, recs, toExpense, func(e core.Expense) string { return e.ID })
	case store.Sales:
		next.Sales = normalizeAll(a, c, recs, toSale, func(s core.Sale) string { return s.ID })
	}
	a.snap.Store(next)
	a.logger.Debug("Snapshot applied", log.FieldCollection, c, log.FieldRecords, len(recs))
	if a.hooks.OnChange != nil {
		a.hooks.OnChange(*next)
	}
}

func (a *Adapter) fail(c store.Collection, err error) {
	serr := &SourceError{Collection: c, Err: err}
	a.logger.Warn("Collection unavailable", log.FieldCollection, c, log.FieldError, err)
	if a.notifier != nil {
		a.notifier.Error(loadFailedMessages[c])
	}

	next := a.next(c)
	switch c {
	case store.Partners:
		next.Partners = nil
	case store.Expenses:
		next.Expenses = nil
	case store.Sales:
		next.Sales = nil
	}
	a.snap.Store(next)

	if a.hooks.OnError != nil {
		a.hooks.OnError(serr)
	}
	if a.hooks.OnChange != nil {
		a.hooks.OnChange(*next)
	}
}

// next copies the current snapshot and marks c as loaded.
func (a *Adapter) next(c store.Collection) *Snapshot {
	cur := a.snap.Load()
	next := *cur
	next.Loaded = maps.Clone(cur.Loaded)
	if next.Loaded == nil {
		next.Loaded = map[store.Collection]bool{}
	}
	next.Loaded[c] = true
	return &next
}

func normalizeAll[T any](a *Adapter, c store.Collection, recs []store.Record, conv func(store.Record) (T, []string), id func(T) string) []T {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, bad := conv(r)
		if len(bad) > 0 {
			a.logger.Debug("Defaulted malformed fields to zero",
				log.FieldCollection, c, log.FieldRecordID, r.ID, "fields", bad)
		}
		out = append(out, v)
	}
	return dedupe(out, id)
}
