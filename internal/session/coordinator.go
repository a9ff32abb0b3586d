// Package session runs the session state machine that gates access to the
// record store.
//
//	Uninitialized -> Initializing -> Ready
//	                             \-> Failed
//
// There is no retry out of Failed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trackbus/internal/log"
	"trackbus/internal/notify"
)

var (
	ErrSessionEstablishmentFailed = errors.New("session establishment failed")
	ErrAlreadyStarted             = errors.New("session already started")
	ErrStopped                    = errors.New("session stopped before it settled")
)

// Shown when no identity could be established.
const establishFailedMessage = "Failed to connect to database. Please check configuration."

type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Option func(*Coordinator)

// WithInitialToken signs in with token instead of anonymously.
func WithInitialToken(token string) Option {
	return func(c *Coordinator) { c.initialToken = token }
}

// WithDispatcher runs state transitions and hooks through post. By default
// they run on whichever goroutine triggers them.
func WithDispatcher(post func(func())) Option {
	return func(c *Coordinator) { c.post = post }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// OnReady registers fn to run once the session becomes Ready.
func OnReady(fn func(*Identity)) Option {
	return func(c *Coordinator) { c.onReady = append(c.onReady, fn) }
}

// OnStop registers fn to run when a Ready session is stopped.
func OnStop(fn func()) Option {
	return func(c *Coordinator) { c.onStop = append(c.onStop, fn) }
}

type Coordinator struct {
	provider     Provider
	notifier     notify.Publisher
	logger       *log.Logger
	initialToken string
	post         func(func())
	onReady      []func(*Identity)
	onStop       []func()

	mu             sync.Mutex
	state          State
	identity       *Identity
	err            error
	stopped        bool
	done           chan struct{}
	doneOnce       sync.Once
	cancelIdentity func()
	cancelCtx      context.CancelFunc
}

func NewCoordinator(provider Provider, notifier notify.Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider: provider,
		notifier: notifier,
		post:     func(fn func()) { fn() },
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDiscard(c.logger, log.ComponentSession)
	return c
}

// Start moves the session to Initializing and waits, asynchronously, for the
// provider's ready signal.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized || c.stopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancelCtx = cancel
	c.state = StateInitializing
	c.mu.Unlock()

	c.logger.Info("Session initializing", log.FieldState, StateInitializing)

	cancelIdentity := c.provider.OnIdentity(func(id *Identity) {
		c.post(func() { c.handleIdentity(ctx, id) })
	})
	c.mu.Lock()
	c.cancelIdentity = cancelIdentity
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) handleIdentity(ctx context.Context, id *Identity) {
	if !c.initializing() {
		return
	}
	if id != nil {
		c.ready(id)
		return
	}
	go func() {
		id, err := c.provider.Establish(ctx, c.initialToken)
		c.post(func() {
			if err != nil {
				c.fail(err)
				return
			}
			c.ready(id)
		})
	}()
}

func (c *Coordinator) initializing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateInitializing && !c.stopped
}

func (c *Coordinator) ready(id *Identity) {
	c.mu.Lock()
	if c.state != StateInitializing || c.stopped {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.identity = id
	hooks := c.onReady
	c.mu.Unlock()

	c.logger.Info("Session ready", log.FieldState, StateReady, log.FieldSubject, id.Subject, "anonymous", id.Anonymous)
	for _, fn := range hooks {
		fn(id)
	}
	c.settle()
}

func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	if c.state != StateInitializing || c.stopped {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.err = fmt.Errorf("%w: %w", ErrSessionEstablishmentFailed, err)
	c.mu.Unlock()

	c.logger.Error("Session establishment failed", log.FieldState, StateFailed, log.FieldError, err)
	if c.notifier != nil {
		c.notifier.Error(establishFailedMessage)
	}
	c.settle()
}

// settle releases Wait.
func (c *Coordinator) settle() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Stop cancels pending establishment and, for a Ready session, runs the
// teardown hooks. Waiters blocked on an Initializing session are released.
// It is safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	wasReady := c.state == StateReady
	pending := c.state == StateInitializing
	cancelIdentity, cancelCtx := c.cancelIdentity, c.cancelCtx
	hooks := c.onStop
	c.mu.Unlock()

	if cancelIdentity != nil {
		cancelIdentity()
	}
	if cancelCtx != nil {
		cancelCtx()
	}
	if wasReady {
		for _, fn := range hooks {
			fn()
		}
	}
	if pending {
		// The session can no longer become Ready.
		c.settle()
	}
	c.logger.Info("Session stopped", log.FieldOperation, log.OpShutdown)
}

// Wait blocks until the session is Ready, with its hooks run, or Failed, or
// until ctx is done. A session stopped while Initializing returns ErrStopped.
func (c *Coordinator) Wait(ctx context.Context) (State, error) {
	select {
	case <-c.done:
		st := c.State()
		if st == StateInitializing {
			return st, ErrStopped
		}
		return st, c.Err()
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the established identity, or nil before Ready.
func (c *Coordinator) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Err returns the establishment failure, wrapping ErrSessionEstablishmentFailed.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ready reports whether the session is Ready.
func (c *Coordinator) Ready() bool {
	return c.State() == StateReady
}
