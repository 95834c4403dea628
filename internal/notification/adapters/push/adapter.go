// Package push receives notifications from the out-of-band delivery
// channel and feeds the in-memory store. Two receive paths exist: the
// foreground listener while the app is open, and the background agent
// while it is not.
package push

import (
	"time"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/notification/store"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/platform/metrics"
)

// RefreshRequester arms a delayed authoritative refresh. Implemented
// by the refresh scheduler.
type RefreshRequester interface {
	RequestRefreshAfter(delay time.Duration)
}

// PermissionChecker reports whether the user has granted alert
// permission for this session.
type PermissionChecker interface {
	Granted() bool
}

// Adapter is the foreground receive path. For every push it either
// drops the message (transient type or near-duplicate) or inserts a
// provisional record and arms a delayed reconcile.
type Adapter struct {
	store       *store.Store
	scheduler   RefreshRequester
	alerts      AlertSink
	permissions PermissionChecker
	logger      logger.Logger
	metrics     *metrics.Metrics

	dedupWindow time.Duration
	pushDelay   time.Duration
	now         func() time.Time
}

// Config holds the adapter timings.
type Config struct {
	// DedupWindow is the created_at distance within which two pushes
	// with identical title and message count as one delivery.
	DedupWindow time.Duration
	// PushDelay is how long after a push the authoritative refresh is
	// armed, long enough for the server to have persisted the record.
	PushDelay time.Duration
}

// NewAdapter creates the foreground receive path.
func NewAdapter(
	st *store.Store,
	scheduler RefreshRequester,
	alerts AlertSink,
	permissions PermissionChecker,
	log logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Adapter {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 2 * time.Second
	}
	if cfg.PushDelay <= 0 {
		cfg.PushDelay = 300 * time.Millisecond
	}
	return &Adapter{
		store:       st,
		scheduler:   scheduler,
		alerts:      alerts,
		permissions: permissions,
		logger:      log,
		metrics:     m,
		dedupWindow: cfg.DedupWindow,
		pushDelay:   cfg.PushDelay,
		now:         time.Now,
	}
}

// HandlePush processes one push message received while the app is
// open.
func (a *Adapter) HandlePush(msg model.PushMessage) {
	typ := msg.Type()
	if a.metrics != nil {
		a.metrics.PushesReceived.WithLabelValues(string(typ), "foreground").Inc()
	}

	if typ.Transient() {
		if a.metrics != nil {
			a.metrics.PushesTransient.Inc()
		}
		a.logger.Debug("transient push dropped", "type", typ)
		a.showAlert(msg)
		return
	}

	record := msg.Record(a.now())

	if a.store.HasNearDuplicate(record.Title, record.Message, record.CreatedAt, a.dedupWindow) {
		if a.metrics != nil {
			a.metrics.PushesDeduplicated.Inc()
		}
		a.logger.Debug("duplicate push dropped",
			"title", record.Title,
			"type", typ,
		)
		return
	}

	a.store.InsertProvisional(record)
	a.logger.Debug("provisional record inserted",
		"id", record.ID,
		"type", typ,
	)

	a.showAlert(msg)

	// Armed, not awaited: the provisional record stays visible until
	// the reconcile replaces it with the server's copy.
	a.scheduler.RequestRefreshAfter(a.pushDelay)
}

func (a *Adapter) showAlert(msg model.PushMessage) {
	if a.permissions != nil && !a.permissions.Granted() {
		return
	}
	if a.alerts == nil {
		return
	}
	if err := a.alerts.Show(msg.Notification.Title, msg.Notification.Body, msg.Data); err != nil {
		a.logger.Warn("failed to surface alert", "error", err)
	}
}
