// Package audit records an append-only trail of registry activity. Recording
// is asynchronous and best-effort: a full buffer or a failing sink never
// blocks or fails the operation being audited.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, ev Event) error
	ListByFingerprint(ctx context.Context, fingerprint string, limit int) ([]Event, error)
}

// Publisher forwards audit events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

const (
	bufferSize   = 256
	drainTimeout = 5 * time.Second
)

// Trail fans events out to a store and an optional publisher from a single
// background worker.
type Trail struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Option configures a Trail.
type Option func(*Trail)

// WithPublisher attaches an external event bus.
func WithPublisher(p Publisher) Option {
	return func(t *Trail) { t.publisher = p }
}

// New constructs a Trail and starts its worker.
func New(store Store, logger *slog.Logger, opts ...Option) *Trail {
	t := &Trail{
		store:  store,
		logger: logger,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.run()
	return t
}

// Record enqueues an event, filling in ID and timestamp when absent. Events
// are dropped with a warning if the buffer is full.
func (t *Trail) Record(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	select {
	case t.events <- ev:
	default:
		t.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", ev.Action,
			"fingerprint", ev.Fingerprint,
		)
	}
}

// List returns the most recent events for a fingerprint.
func (t *Trail) List(ctx context.Context, fingerprint string, limit int) ([]Event, error) {
	return t.store.ListByFingerprint(ctx, fingerprint, limit)
}

// Close stops the worker after draining buffered events.
func (t *Trail) Close() {
	t.once.Do(func() {
		close(t.events)
		select {
		case <-t.done:
		case <-time.After(drainTimeout):
			t.logger.Warn("audit drain timed out")
		}
	})
}

func (t *Trail) run() {
	defer close(t.done)
	for ev := range t.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := t.store.Insert(ctx, ev); err != nil {
			t.logger.Error("audit insert failed", "action", ev.Action, "error", err)
		}
		if t.publisher != nil {
			if err := t.publisher.Publish(ctx, ev); err != nil {
				t.logger.Error("audit publish failed", "action", ev.Action, "error", err)
			}
		}
		cancel()
	}
}
