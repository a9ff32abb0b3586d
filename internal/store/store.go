// Package store defines the port to the external real-time record store and
// the helpers shared by its adapters.
package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"sync"
)

// Collection names one of the three record sets the tracker follows.
type Collection string

const (
	Partners Collection = "partners"
	Expenses Collection = "expenses"
	Sales    Collection = "sales"
)

// Collections returns every collection in a fixed order.
func Collections() []Collection {
	return []Collection{Partners, Expenses, Sales}
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	return slices.Contains(Collections(), c)
}

var (
	// ErrUnavailable marks any failure to reach or read the store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrUnknownCollection is returned for collection names outside Collections.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Record is one raw document as held by the store. Field values are whatever
// the backend produces (strings, numbers, times); normalization happens in
// the records package.
type Record struct {
	ID     string
	Fields map[string]any
}

// Clone returns a deep copy of the field map.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields}
}

// Fingerprint hashes a record set so pollers can skip unchanged reads.
// Order matters.
func Fingerprint(records []Record) uint64 {
	h := fnv.New64a()
	for _, r := range records {
		fmt.Fprintf(h, "%s\x00", r.ID)
		for _, k := range slices.Sorted(maps.Keys(r.Fields)) {
			fmt.Fprintf(h, "%s=%v\x00", k, r.Fields[k])
		}
		h.Write([]byte{'\n'})
	}
	return h.Sum64()
}

type (
	// SnapshotFunc receives the full current set of a collection.
	SnapshotFunc func([]Record)
	// ErrorFunc receives a subscription failure. It is called once per
	// failure occurrence.
	ErrorFunc func(error)
	// Unsubscribe tears down a subscription. No callback fires after it
	// returns. It is safe to call more than once.
	Unsubscribe func()
)

// Ports implemented by store adapters.
type (
	Subscriber interface {
		// Subscribe delivers the whole collection right away and then after
		// every add, modify or remove.
		Subscribe(ctx context.Context, c Collection, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
	}

	Writer interface {
		// Add appends a record and returns the identity the store assigned.
		Add(ctx context.Context, c Collection, fields map[string]any) (id string, err error)
	}

	Source interface {
		Subscriber
		Writer
	}
)

// Unavailable wraps err so that it matches ErrUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// Subscription serializes callbacks for one subscriber and guarantees that
// none of them runs once Close has returned.
type Subscription struct {
	mu         sync.Mutex
	closed     bool
	failing    bool
	onSnapshot SnapshotFunc
	onError    ErrorFunc
}

// NewSubscription wraps the two callbacks. onError may be nil.
func NewSubscription(onSnapshot SnapshotFunc, onError ErrorFunc) *Subscription {
	return &Subscription{onSnapshot: onSnapshot, onError: onError}
}

// Deliver hands a snapshot to the subscriber and clears the failure state.
func (s *Subscription) Deliver(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.failing = false
	if s.onSnapshot != nil {
		s.onSnapshot(records)
	}
}

// Fail reports err unless the subscription is already in a failed state.
// A later Deliver re-arms reporting.
func (s *Subscription) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.failing {
		return
	}
	s.failing = true
	if s.onError != nil {
		s.onError(err)
	}
}

// Close stops further delivery. It waits for a callback in progress.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
