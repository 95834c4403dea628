package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coursehub/coursehub-client/internal/lifecycle"
	"github.com/coursehub/coursehub-client/internal/notification/adapters/push"
	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/notification/store"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/session"
)

// ListenerRunner is the push channel connection loop.
type ListenerRunner interface {
	Run(ctx context.Context)
}

// Engine wires the sync components together and drives them from
// session and lifecycle events. It is also the push Handler: frames
// go to the foreground adapter while the app is open and to the
// background agent otherwise.
type Engine struct {
	session    *session.Manager
	events     *lifecycle.Bus
	store      *store.Store
	adapter    *push.Adapter
	background *push.BackgroundAgent
	listener   ListenerRunner
	scheduler  *RefreshScheduler
	reconciler *Reconciler
	mutator    *Mutator
	subs       *SubscriptionManager
	logger     logger.Logger

	foreground atomic.Bool

	mu             sync.Mutex
	cancelListener context.CancelFunc
}

// NewEngine assembles the engine. The listener may be nil when the
// runtime has no push channel; polling still works.
func NewEngine(
	sess *session.Manager,
	events *lifecycle.Bus,
	st *store.Store,
	adapter *push.Adapter,
	background *push.BackgroundAgent,
	listener ListenerRunner,
	scheduler *RefreshScheduler,
	reconciler *Reconciler,
	mutator *Mutator,
	subs *SubscriptionManager,
	log logger.Logger,
) *Engine {
	e := &Engine{
		session:    sess,
		events:     events,
		store:      st,
		adapter:    adapter,
		background: background,
		listener:   listener,
		scheduler:  scheduler,
		reconciler: reconciler,
		mutator:    mutator,
		subs:       subs,
		logger:     log,
	}
	e.foreground.Store(true)
	return e
}

// SetListener attaches the push channel loop. The listener needs the
// engine as its frame handler, so it is built after the engine and
// attached before Run.
func (e *Engine) SetListener(l ListenerRunner) {
	e.listener = l
}

// Store exposes the feed for read-only consumers (dashboards).
func (e *Engine) Store() *store.Store { return e.store }

// Mutator exposes the optimistic mutation operations.
func (e *Engine) Mutator() *Mutator { return e.mutator }

// Subscriptions exposes the subscription manager.
func (e *Engine) Subscriptions() *SubscriptionManager { return e.subs }

// HandlePush routes one push frame to the receive path matching the
// current app state.
func (e *Engine) HandlePush(msg model.PushMessage) {
	if e.foreground.Load() {
		e.adapter.HandlePush(msg)
		return
	}
	e.background.HandlePush(msg)
}

// Run reacts to session and lifecycle events until ctx is cancelled.
// If a session is already active when Run starts, sync begins
// immediately.
func (e *Engine) Run(ctx context.Context) {
	sessionCh := e.session.Subscribe()
	defer e.session.Unsubscribe(sessionCh)
	lifecycleCh := e.events.Subscribe()
	defer e.events.Unsubscribe(lifecycleCh)

	if e.session.Active() {
		e.onLogin(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			e.onLogout()
			return
		case ev, ok := <-sessionCh:
			if !ok {
				return
			}
			switch ev.Type {
			case session.EventLogin:
				e.onLogin(ctx)
			case session.EventLogout:
				e.onLogout()
			}
		case ev, ok := <-lifecycleCh:
			if !ok {
				return
			}
			switch ev {
			case lifecycle.EventForeground:
				e.foreground.Store(true)
			case lifecycle.EventBackground:
				e.foreground.Store(false)
			}
		}
	}
}

func (e *Engine) onLogin(ctx context.Context) {
	e.logger.Info("session active, starting notification sync", "user_id", e.session.UserID())

	e.reconciler.Arm()
	if err := e.scheduler.Start(); err != nil {
		e.logger.Error("failed to start refresh scheduler", "error", err)
	}
	e.scheduler.RequestRefresh(TriggerInitial)

	if e.listener != nil {
		listenerCtx, cancel := context.WithCancel(ctx)
		e.mu.Lock()
		if e.cancelListener != nil {
			e.cancelListener()
		}
		e.cancelListener = cancel
		e.mu.Unlock()
		go e.listener.Run(listenerCtx)
	}

	go func() {
		if _, err := e.subs.Request(ctx); err != nil {
			e.logger.Warn("push subscription not established, polling only",
				"error", err,
			)
		}
	}()
}

func (e *Engine) onLogout() {
	e.logger.Info("session ended, tearing down notification sync")

	e.mu.Lock()
	if e.cancelListener != nil {
		e.cancelListener()
		e.cancelListener = nil
	}
	e.mu.Unlock()

	e.scheduler.Stop()
	e.reconciler.Teardown()
	e.store.Clear()
	e.subs.Reset()
}
