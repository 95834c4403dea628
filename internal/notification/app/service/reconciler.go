package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/coursehub/coursehub-client/internal/notification/adapters/api"
	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/notification/store"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/platform/metrics"
)

// FeedFetcher reads the authoritative feed. Implemented by the API
// client.
type FeedFetcher interface {
	FetchMy(ctx context.Context) (*model.Feed, error)
}

// SubscriptionResetter clears the per-session subscription flag.
type SubscriptionResetter interface {
	Reset()
}

// Reconciler fetches the authoritative notification list and fully
// replaces the store's state with it. Replace, not merge: a full
// replace retires any provisional record whose authoritative
// counterpart is present and silently drops provisional duplicates.
// No ordering is enforced across concurrent calls; whichever response
// resolves last wins.
type Reconciler struct {
	fetcher FeedFetcher
	store   *store.Store
	subs    SubscriptionResetter
	logger  logger.Logger
	metrics *metrics.Metrics

	fetchTimeout time.Duration
	torndown     atomic.Bool
}

// NewReconciler creates a reconciler.
func NewReconciler(
	fetcher FeedFetcher,
	st *store.Store,
	subs SubscriptionResetter,
	fetchTimeout time.Duration,
	log logger.Logger,
	m *metrics.Metrics,
) *Reconciler {
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	return &Reconciler{
		fetcher:      fetcher,
		store:        st,
		subs:         subs,
		logger:       log,
		metrics:      m,
		fetchTimeout: fetchTimeout,
	}
}

// Reconcile pulls the server's list and replaces local state. Network
// failures leave the store untouched: stale-but-available beats
// empty. An authentication failure clears the store and resets the
// subscription flag, since the session is effectively gone.
func (r *Reconciler) Reconcile(ctx context.Context, trigger TriggerSource) {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	start := time.Now()
	feed, err := r.fetcher.FetchMy(ctx)
	if r.metrics != nil {
		r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			r.count(trigger, "unauthorized")
			r.logger.Info("reconcile got 401, clearing feed", "trigger", trigger)
			r.store.Clear()
			if r.subs != nil {
				r.subs.Reset()
			}
			return
		}
		r.count(trigger, "error")
		r.logger.Warn("reconcile failed, keeping last known feed",
			"trigger", trigger,
			"error", err,
		)
		return
	}

	// A fetch started before teardown can resolve afterwards; drop it
	// instead of resurrecting state into a cleared store.
	if r.torndown.Load() {
		r.count(trigger, "dropped")
		return
	}

	r.store.Replace(feed.Data, feed.UnreadCount)
	r.count(trigger, "ok")
	if r.metrics != nil {
		r.metrics.UnreadCount.Set(float64(feed.UnreadCount))
		r.metrics.FeedSize.Set(float64(len(feed.Data)))
	}
	r.logger.Debug("feed replaced",
		"trigger", trigger,
		"records", len(feed.Data),
		"unread", feed.UnreadCount,
	)
}

// Teardown makes late responses no-ops. Called on logout.
func (r *Reconciler) Teardown() {
	r.torndown.Store(true)
}

// Arm re-enables reconciliation after a new login.
func (r *Reconciler) Arm() {
	r.torndown.Store(false)
}

func (r *Reconciler) count(trigger TriggerSource, result string) {
	if r.metrics != nil {
		r.metrics.ReconcilesTotal.WithLabelValues(string(trigger), result).Inc()
	}
}
