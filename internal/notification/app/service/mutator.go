package service

import (
	"context"
	"sync"
	"time"

	"github.com/coursehub/coursehub-client/internal/notification/store"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/platform/metrics"
)

// MutationConfirmer sends mutation confirmations to the server.
// Implemented by the API client.
type MutationConfirmer interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
}

// Mutator applies read/delete mutations to the store first and
// confirms with the server afterwards. Confirmations are
// fire-and-forget: callers never block on the network and failures
// are logged, not rolled back. The next successful reconcile corrects
// any divergence.
type Mutator struct {
	store     *store.Store
	confirmer MutationConfirmer
	logger    logger.Logger
	metrics   *metrics.Metrics

	confirmTimeout time.Duration
	wg             sync.WaitGroup
}

// NewMutator creates a mutation coordinator.
func NewMutator(st *store.Store, confirmer MutationConfirmer, log logger.Logger, m *metrics.Metrics) *Mutator {
	return &Mutator{
		store:          st,
		confirmer:      confirmer,
		logger:         log,
		metrics:        m,
		confirmTimeout: 15 * time.Second,
	}
}

// MarkAsRead flips the record to read and decrements the counter
// before the confirmation request is even issued.
func (m *Mutator) MarkAsRead(id string) {
	m.store.MarkRead(id)
	m.syncGauges()
	m.confirm("mark_read", func(ctx context.Context) error {
		return m.confirmer.MarkRead(ctx, id)
	})
}

// MarkAllAsRead flips every record to read and zeroes the counter.
func (m *Mutator) MarkAllAsRead() {
	m.store.MarkAllRead()
	m.syncGauges()
	m.confirm("mark_all_read", func(ctx context.Context) error {
		return m.confirmer.MarkAllRead(ctx)
	})
}

// DeleteNotification removes the record from the feed; the counter
// drops only when the record was unread.
func (m *Mutator) DeleteNotification(id string) {
	m.store.Delete(id)
	m.syncGauges()
	m.confirm("delete", func(ctx context.Context) error {
		return m.confirmer.Delete(ctx, id)
	})
}

// ClearAll empties the feed and zeroes the counter.
func (m *Mutator) ClearAll() {
	m.store.Clear()
	m.syncGauges()
	m.confirm("clear_all", func(ctx context.Context) error {
		return m.confirmer.ClearAll(ctx)
	})
}

// Wait blocks until outstanding confirmations finish. Used by
// shutdown and tests.
func (m *Mutator) Wait() {
	m.wg.Wait()
}

func (m *Mutator) confirm(op string, fn func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.confirmTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			// No rollback: the optimistic state stands and the next
			// reconcile overwrites any divergence.
			if m.metrics != nil {
				m.metrics.MutationsTotal.WithLabelValues(op, "error").Inc()
			}
			m.logger.Warn("mutation confirmation failed",
				"op", op,
				"error", err,
			)
			return
		}
		if m.metrics != nil {
			m.metrics.MutationsTotal.WithLabelValues(op, "ok").Inc()
		}
	}()
}

func (m *Mutator) syncGauges() {
	if m.metrics == nil {
		return
	}
	snap := m.store.Snapshot()
	m.metrics.UnreadCount.Set(float64(snap.UnreadCount))
	m.metrics.FeedSize.Set(float64(len(snap.Feed)))
}
