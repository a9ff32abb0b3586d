// Package tracker runs the event loop that keeps the partner report current.
//
// Session transitions, collection snapshots and source failures are all
// applied on one goroutine, in the order they were posted. After every
// snapshot change the report is recomputed from scratch.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"trackbus/internal/allocation"
	"trackbus/internal/core"
	"trackbus/internal/log"
	"trackbus/internal/notify"
	"trackbus/internal/records"
	"trackbus/internal/session"
	"trackbus/internal/store"
)

// Observer receives tracker telemetry.
type Observer interface {
	ObserveReport(core.Report)
	ObserveCollection(collection string, records int)
	ObserveSourceError(collection string)
}

type Option func(*Tracker)

func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

// WithInitialToken signs the session in with token instead of anonymously.
func WithInitialToken(token string) Option {
	return func(t *Tracker) { t.initialToken = token }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

type Tracker struct {
	logger       *log.Logger
	observer     Observer
	initialToken string
	now          func() time.Time

	queue   *eventQueue
	records *records.Adapter
	session *session.Coordinator

	report atomic.Pointer[core.Report]
	runCtx context.Context

	mu        sync.Mutex
	listeners map[uint64]func(core.Report)
	nextKey   uint64

	loaded     chan struct{}
	loadedOnce sync.Once
}

func New(source store.Subscriber, provider session.Provider, notifier notify.Publisher, opts ...Option) *Tracker {
	t := &Tracker{
		now:       time.Now,
		queue:     newEventQueue(),
		listeners: make(map[uint64]func(core.Report)),
		loaded:    make(chan struct{}),
		runCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = log.OrDiscard(t.logger, log.ComponentTracker)

	t.records = records.New(source, notifier, t.logger, records.Hooks{
		OnChange: t.recompute,
		OnError: func(e *records.SourceError) {
			if t.observer != nil {
				t.observer.ObserveSourceError(string(e.Collection))
			}
		},
	})
	t.session = session.NewCoordinator(provider, notifier,
		session.WithInitialToken(t.initialToken),
		session.WithDispatcher(t.Post),
		session.WithLogger(t.logger),
		session.OnReady(func(*session.Identity) { t.records.Start(t.runCtx, t.Post) }),
		session.OnStop(t.records.Stop),
	)

	empty := allocation.Compute(nil, nil, nil)
	empty.ComputedAt = t.now()
	t.report.Store(&empty)
	return t
}

// Run starts the session and processes events until ctx is done, then tears
// the subscriptions down.
func (t *Tracker) Run(ctx context.Context) error {
	t.runCtx = ctx
	if err := t.session.Start(ctx); err != nil {
		return err
	}
	t.logger.Info("Tracker started", log.FieldOperation, log.OpStartup)

	for {
		select {
		case <-ctx.Done():
			t.session.Stop()
			t.logger.Info("Tracker stopped", log.FieldOperation, log.OpShutdown)
			return nil
		case <-t.queue.signal:
			for _, fn := range t.queue.take() {
				fn()
			}
		}
	}
}

// Post queues fn to run on the event loop.
func (t *Tracker) Post(fn func()) {
	t.queue.push(fn)
}

// Report returns the latest report.
func (t *Tracker) Report() core.Report {
	return *t.report.Load()
}

// Snapshot returns the current collection snapshots.
func (t *Tracker) Snapshot() records.Snapshot {
	return t.records.Snapshot()
}

func (t *Tracker) Session() *session.Coordinator {
	return t.session
}

// Ready reports whether the session is Ready.
func (t *Tracker) Ready() bool {
	return t.session.Ready()
}

// SeenAll reports whether every collection has delivered at least one
// snapshot or failed.
func (t *Tracker) SeenAll() bool {
	return t.records.Snapshot().LoadedAll()
}

// OnReport registers fn to run on the event loop after every recomputation.
func (t *Tracker) OnReport(fn func(core.Report)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextKey++
	key := t.nextKey
	t.listeners[key] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, key)
	}
}

// WaitLoaded blocks until the session is Ready and every collection has
// settled. It returns the session error when establishment fails.
func (t *Tracker) WaitLoaded(ctx context.Context) error {
	st, err := t.session.Wait(ctx)
	if err != nil {
		return err
	}
	if st != session.StateReady {
		return t.session.Err()
	}
	select {
	case <-t.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) recompute(snap records.Snapshot) {
	report := allocation.Compute(snap.Partners, snap.Sales, snap.Expenses)
	report.ComputedAt = t.now()
	t.report.Store(&report)

	t.logger.Debug("Report recomputed",
		log.FieldOperation, log.OpCompute,
		log.FieldPartners, len(report.Partners),
		log.FieldProfitLoss, report.OverallProfitLoss.StringFixed(2))

	if t.observer != nil {
		t.observer.ObserveReport(report)
		t.observer.ObserveCollection(string(store.Partners), len(snap.Partners))
		t.observer.ObserveCollection(string(store.Expenses), len(snap.Expenses))
		t.observer.ObserveCollection(string(store.Sales), len(snap.Sales))
	}

	t.mu.Lock()
	listeners := make([]func(core.Report), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(report)
	}

	if snap.LoadedAll() {
		t.loadedOnce.Do(func() { close(t.loaded) })
	}
}
