// Package worker keeps a local record store current with writes made by
// other processes, as announced on the AMQP record-changed feed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trackbus/internal/amqp"
	"trackbus/internal/log"
	"trackbus/internal/store"
)

// Consumer delivers record-changed messages until ctx is done or the
// connection drops.
type Consumer interface {
	ConsumeRecordChanges(ctx context.Context, handler func(*amqp.RecordChangedMessage) error) error
}

// Refresher re-reads a collection and redelivers it to subscribers.
type Refresher interface {
	Refresh(ctx context.Context, c store.Collection) error
}

type Option func(*ChangeFeed)

// WithOrigin makes the feed ignore messages this process published itself.
func WithOrigin(origin string) Option {
	return func(f *ChangeFeed) { f.origin = origin }
}

func WithLogger(l *log.Logger) Option {
	return func(f *ChangeFeed) { f.logger = l }
}

// WithBackoff replaces the reconnect delay schedule.
func WithBackoff(backoff func(attempt int) time.Duration) Option {
	return func(f *ChangeFeed) { f.backoff = backoff }
}

type ChangeFeed struct {
	consumer  Consumer
	refresher Refresher
	origin    string
	backoff   func(int) time.Duration
	logger    *log.Logger
}

func NewChangeFeed(consumer Consumer, refresher Refresher, opts ...Option) *ChangeFeed {
	f := &ChangeFeed{
		consumer:  consumer,
		refresher: refresher,
		backoff:   amqp.ExponentialBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = log.OrDiscard(f.logger, log.ComponentWorker)
	return f
}

// Run consumes the feed until ctx is done. Connection failures are retried
// with backoff; after each reconnect every collection is refreshed to pick
// up changes announced while the feed was down. Any other consume error
// ends Run.
func (f *ChangeFeed) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := f.consumer.ConsumeRecordChanges(ctx, func(msg *amqp.RecordChangedMessage) error {
			attempt = 0
			return f.HandleRecordChanged(ctx, msg)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || !amqp.IsConnectionError(err) {
			return fmt.Errorf("consume record changes: %w", errOrClosed(err))
		}

		delay := f.backoff(attempt)
		attempt++
		f.logger.WarnContext(ctx, "Change feed disconnected, retrying",
			log.FieldError, err,
			"attempt", attempt,
			"delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		f.resync(ctx)
	}
}

// HandleRecordChanged refreshes the collection a message names. Messages
// from this process and messages for unknown collections are skipped.
func (f *ChangeFeed) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	if f.origin != "" && msg.Origin == f.origin {
		return nil
	}
	c := store.Collection(msg.Collection)
	if !c.Valid() {
		f.logger.WarnContext(ctx, "Ignoring record change for unknown collection",
			log.FieldCollection, msg.Collection,
			log.FieldRecordID, msg.ID)
		return nil
	}

	f.logger.DebugContext(ctx, "Refreshing collection",
		log.FieldCollection, msg.Collection,
		log.FieldRecordID, msg.ID,
		"origin", msg.Origin)
	if err := f.refresher.Refresh(ctx, c); err != nil {
		return fmt.Errorf("refresh %s: %w", c, err)
	}
	return nil
}

func (f *ChangeFeed) resync(ctx context.Context) {
	for _, c := range store.Collections() {
		if err := f.refresher.Refresh(ctx, c); err != nil {
			f.logger.ErrorContext(ctx, "Resync failed", log.FieldCollection, string(c), log.FieldError, err)
		}
	}
}

var errConsumerStopped = errors.New("consumer stopped")

func errOrClosed(err error) error {
	if err == nil {
		return errConsumerStopped
	}
	return err
}
