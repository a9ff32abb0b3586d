// Package notify holds the single transient message shown to the user.
//
// At most one notification is visible. A newer one replaces it and restarts
// the auto-dismiss timer.
package notify

import (
	"sync"
	"time"

	"trackbus/internal/log"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 3 * time.Second

type Notification struct {
	ID        uint64    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Publisher is what components need to raise notifications.
type Publisher interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

var _ Publisher = (*Notifier)(nil)

// Listener is told about every change. ok is false once the visible
// notification is dismissed.
type Listener func(n Notification, ok bool)

type Option func(*Notifier)

func WithTTL(d time.Duration) Option {
	return func(n *Notifier) { n.ttl = d }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

type Notifier struct {
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger

	// dispatch orders listener calls; mu guards state.
	dispatch sync.Mutex
	mu       sync.Mutex

	current   *Notification
	seq       uint64
	timer     *time.Timer
	listeners map[uint64]Listener
	nextKey   uint64
	closed    bool
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		ttl:       DefaultTTL,
		now:       time.Now,
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = log.OrDiscard(n.logger, log.ComponentNotify)
	return n
}

func (n *Notifier) Success(msg string) { n.Notify(KindSuccess, msg) }
func (n *Notifier) Error(msg string)   { n.Notify(KindError, msg) }
func (n *Notifier) Info(msg string)    { n.Notify(KindInfo, msg) }

// Notify makes msg the visible notification. Listeners must not call back
// into Notify.
func (n *Notifier) Notify(kind Kind, msg string) Notification {
	n.dispatch.Lock()
	defer n.dispatch.Unlock()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return Notification{}
	}
	n.seq++
	note := Notification{ID: n.seq, Kind: kind, Message: msg, CreatedAt: n.now()}
	n.current = &note
	if n.timer != nil {
		n.timer.Stop()
	}
	id := note.ID
	n.timer = time.AfterFunc(n.ttl, func() { n.expire(id) })
	listeners := n.snapshotListeners()
	n.mu.Unlock()

	if kind == KindError {
		n.logger.Warn("Error notification", log.FieldKind, kind, "message", msg)
	} else {
		n.logger.Debug("Notification", log.FieldKind, kind, "message", msg)
	}
	for _, l := range listeners {
		l(note, true)
	}
	return note
}

// Current returns the visible notification, if any.
func (n *Notifier) Current() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notification{}, false
	}
	return *n.current, true
}

// Dismiss hides the visible notification now.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	id := n.seq
	n.mu.Unlock()
	n.expire(id)
}

// Subscribe registers l until the returned cancel func is called.
func (n *Notifier) Subscribe(l Listener) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextKey++
	key := n.nextKey
	n.listeners[key] = l
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, key)
	}
}

// Close stops the timer and drops listeners. Later notifications are ignored.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.current = nil
	n.listeners = make(map[uint64]Listener)
}

// expire clears the notification with the given id if it is still visible.
func (n *Notifier) expire(id uint64) {
	n.dispatch.Lock()
	defer n.dispatch.Unlock()

	n.mu.Lock()
	if n.current == nil || n.current.ID != id {
		n.mu.Unlock()
		return
	}
	gone := *n.current
	n.current = nil
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	listeners := n.snapshotListeners()
	n.mu.Unlock()

	for _, l := range listeners {
		l(gone, false)
	}
}

func (n *Notifier) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		out = append(out, l)
	}
	return out
}
