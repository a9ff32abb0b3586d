// Package memory is an in-process record store. It backs tests and local
// runs, seeding from a TOML file that can be watched for edits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"trackbus/internal/store"
)

var _ store.Source = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	data     map[store.Collection][]store.Record
	subs     map[store.Collection]map[uint64]*store.Subscription
	failures map[store.Collection]error
	writeErr error
	nextSub  uint64
}

func New() *Store {
	return &Store{
		data:     make(map[store.Collection][]store.Record),
		subs:     make(map[store.Collection]map[uint64]*store.Subscription),
		failures: make(map[store.Collection]error),
	}
}

// Subscribe delivers the current collection before returning.
func (s *Store) Subscribe(_ context.Context, c store.Collection, onSnapshot store.SnapshotFunc, onError store.ErrorFunc) (store.Unsubscribe, error) {
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
	if err := s.failures[c]; err != nil {
		sub.Fail(err)
	} else {
		sub.Deliver(s.copyLocked(c))
	}
	s.mu.Unlock()

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

// Add appends a record with a fresh UUID.
func (s *Store) Add(ctx context.Context, c store.Collection, fields map[string]any) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("add to %q: %w", c, store.ErrUnknownCollection)
	}
	if err := ctx.Err(); err != nil {
		return "", store.Unavailable("add "+string(c), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return "", store.Unavailable("add "+string(c), s.writeErr)
	}

	rec := store.Record{ID: uuid.NewString(), Fields: cloneFields(fields)}
	s.data[c] = append(s.data[c], rec)
	delete(s.failures, c)
	s.broadcastLocked(c)
	return rec.ID, nil
}

// Replace swaps the whole collection. Records without an ID get one.
func (s *Store) Replace(c store.Collection, records []store.Record) {
	next := make([]store.Record, 0, len(records))
	for _, r := range records {
		r = r.Clone()
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		next = append(next, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[c] = next
	delete(s.failures, c)
	s.broadcastLocked(c)
}

// Remove deletes the record with the given id, reporting whether it existed.
func (s *Store) Remove(c store.Collection, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.data[c]
	for i, r := range recs {
		if r.ID == id {
			s.data[c] = append(recs[:i:i], recs[i+1:]...)
			s.broadcastLocked(c)
			return true
		}
	}
	return false
}

// Fail puts a collection into the failed state and reports err to its
// subscribers. The next Add or Replace recovers it.
func (s *Store) Fail(c store.Collection, err error) {
	err = store.Unavailable("read "+string(c), err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[c] = err
	for _, sub := range s.subs[c] {
		sub.Fail(err)
	}
}

// SetWriteError makes every Add fail with err until cleared with nil.
func (s *Store) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Records returns a copy of the collection.
func (s *Store) Records(c store.Collection) []store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked(c)
}

func (s *Store) broadcastLocked(c store.Collection) {
	for _, sub := range s.subs[c] {
		sub.Deliver(s.copyLocked(c))
	}
}

func (s *Store) copyLocked(c store.Collection) []store.Record {
	out := make([]store.Record, 0, len(s.data[c]))
	for _, r := range s.data[c] {
		out = append(out, r.Clone())
	}
	return out
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
