package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coursehub/coursehub-client/internal/lifecycle"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
)

// TriggerSource labels which of the scheduler's triggers requested a
// reconcile.
type TriggerSource string

const (
	TriggerPush     TriggerSource = "push"
	TriggerInterval TriggerSource = "interval"
	TriggerVisible  TriggerSource = "visible"
	TriggerFocus    TriggerSource = "focus"
	TriggerInitial  TriggerSource = "initial"
)

// ReconcileRunner runs one authoritative fetch. Implemented by the
// Reconciler.
type ReconcileRunner interface {
	Reconcile(ctx context.Context, trigger TriggerSource)
}

// SchedulerSession gates the triggers: they are inert while the
// session is unauthenticated or on a public route.
type SchedulerSession interface {
	Active() bool
}

// RefreshScheduler decides when the reconciler pulls the
// authoritative list. Four triggers are armed independently with no
// shared debounce: the post-push delay, a fixed interval, the app
// becoming visible and the window regaining focus. Overlapping
// triggers may issue concurrent fetches.
type RefreshScheduler struct {
	reconciler ReconcileRunner
	session    SchedulerSession
	events     *lifecycle.Bus
	logger     logger.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	eventCh <-chan lifecycle.EventType
	stopCh  chan struct{}
}

// NewRefreshScheduler creates a scheduler wired to the lifecycle bus.
func NewRefreshScheduler(
	reconciler ReconcileRunner,
	session SchedulerSession,
	events *lifecycle.Bus,
	pollInterval time.Duration,
	log logger.Logger,
) *RefreshScheduler {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &RefreshScheduler{
		reconciler:   reconciler,
		session:      session,
		events:       events,
		logger:       log,
		pollInterval: pollInterval,
	}
}

// Start arms the periodic and lifecycle triggers. Idempotent.
func (s *RefreshScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.pollInterval)
	if _, err := c.AddFunc(spec, func() {
		s.fire(TriggerInterval)
	}); err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.eventCh = s.events.Subscribe()
	s.stopCh = make(chan struct{})
	s.running = true

	go s.eventLoop(s.eventCh, s.stopCh)

	s.logger.Debug("refresh scheduler started", "poll_interval", s.pollInterval.String())
	return nil
}

// Stop tears all triggers down. Delayed post-push timers already
// armed may still fire; they re-check the session before fetching.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.events.Unsubscribe(s.eventCh)
	close(s.stopCh)

	s.cron = nil
	s.eventCh = nil
	s.stopCh = nil
	s.running = false

	s.logger.Debug("refresh scheduler stopped")
}

// Running reports whether the triggers are armed.
func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RequestRefreshAfter arms a one-shot delayed reconcile. Used by the
// push adapter so a provisional record acquires its authoritative id
// without perceptible delay.
func (s *RefreshScheduler) RequestRefreshAfter(delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.fire(TriggerPush)
	})
}

// RequestRefresh issues an immediate reconcile.
func (s *RefreshScheduler) RequestRefresh(trigger TriggerSource) {
	s.fire(trigger)
}

func (s *RefreshScheduler) eventLoop(events <-chan lifecycle.EventType, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev {
			case lifecycle.EventVisible:
				s.fire(TriggerVisible)
			case lifecycle.EventFocus:
				s.fire(TriggerFocus)
			}
		}
	}
}

// fire runs one reconcile in its own goroutine. Concurrent fetches
// from near-simultaneous triggers are allowed; the reconciler's
// replace semantics mean the last response to land wins.
func (s *RefreshScheduler) fire(trigger TriggerSource) {
	if !s.session.Active() {
		return
	}
	go s.reconciler.Reconcile(context.Background(), trigger)
}
