// Package service implements the notification synchronization engine:
// subscription lifecycle, refresh scheduling, reconciliation and
// optimistic mutation over the in-memory store.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/platform/metrics"
)

// SubscriptionState tracks the push permission lifecycle within one
// session.
type SubscriptionState string

const (
	SubscriptionUnregistered SubscriptionState = "unregistered"
	SubscriptionRequesting   SubscriptionState = "requesting"
	SubscriptionGranted      SubscriptionState = "granted"
	SubscriptionDenied       SubscriptionState = "denied"
)

// PermissionResult is the outcome of a permission prompt.
type PermissionResult string

const (
	PermissionGranted PermissionResult = "granted"
	PermissionDenied  PermissionResult = "denied"
)

var (
	// ErrChannelUnavailable means push support is missing in this
	// runtime; the engine degrades to polling-only delivery.
	ErrChannelUnavailable = errors.New("subscription: push channel unavailable")
	// ErrNotAuthenticated means no session is active.
	ErrNotAuthenticated = errors.New("subscription: not authenticated")
)

// PermissionPrompter asks the user for push permission.
type PermissionPrompter interface {
	Prompt(ctx context.Context) (PermissionResult, error)
}

// ChannelTokenSource obtains a delivery channel token after permission
// is granted.
type ChannelTokenSource interface {
	ChannelToken(ctx context.Context) (string, error)
}

// TokenRegistrar registers the channel token with the server.
// Implemented by the notification API client.
type TokenRegistrar interface {
	RegisterPushToken(ctx context.Context, token string) error
}

// SessionState reports whether a session is active.
type SessionState interface {
	Authenticated() bool
}

// SubscriptionManager acquires push permission exactly once per
// session and registers the resulting channel token. The requested
// flag is the only cross-call shared state; it is reset on logout so
// the next login re-arms the prompt.
type SubscriptionManager struct {
	prompter  PermissionPrompter
	tokens    ChannelTokenSource
	registrar TokenRegistrar
	session   SessionState
	logger    logger.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	requested bool
	state     SubscriptionState
	token     string
}

// NewSubscriptionManager creates a subscription manager. prompter and
// tokens may be nil when the runtime has no push support.
func NewSubscriptionManager(
	prompter PermissionPrompter,
	tokens ChannelTokenSource,
	registrar TokenRegistrar,
	session SessionState,
	log logger.Logger,
	m *metrics.Metrics,
) *SubscriptionManager {
	return &SubscriptionManager{
		prompter:  prompter,
		tokens:    tokens,
		registrar: registrar,
		session:   session,
		logger:    log,
		metrics:   m,
		state:     SubscriptionUnregistered,
	}
}

// Request prompts for permission, obtains a channel token and
// registers it. A second call while a request is outstanding or
// already resolved is a no-op returning the token acquired so far.
func (s *SubscriptionManager) Request(ctx context.Context) (string, error) {
	if s.prompter == nil || s.tokens == nil {
		return "", ErrChannelUnavailable
	}
	if !s.session.Authenticated() {
		return "", ErrNotAuthenticated
	}

	s.mu.Lock()
	if s.requested {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.requested = true
	s.state = SubscriptionRequesting
	s.mu.Unlock()

	result, err := s.prompter.Prompt(ctx)
	if err != nil {
		s.reset()
		return "", err
	}

	if result == PermissionDenied {
		s.mu.Lock()
		s.state = SubscriptionDenied
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SubscriptionRequests.WithLabelValues("denied").Inc()
		}
		s.logger.Warn("push permission denied; re-enable notifications in your browser or OS settings to receive real-time updates")
		return "", nil
	}

	token, err := s.tokens.ChannelToken(ctx)
	if err != nil {
		s.reset()
		if s.metrics != nil {
			s.metrics.SubscriptionRequests.WithLabelValues("token_error").Inc()
		}
		return "", err
	}

	if err := s.registrar.RegisterPushToken(ctx, token); err != nil {
		// Registration failed: clear the flag so a later attempt can
		// retry within the same session.
		s.reset()
		if s.metrics != nil {
			s.metrics.SubscriptionRequests.WithLabelValues("register_error").Inc()
		}
		return "", err
	}

	s.mu.Lock()
	s.state = SubscriptionGranted
	s.token = token
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SubscriptionRequests.WithLabelValues("granted").Inc()
	}
	s.logger.Info("push channel registered")
	return token, nil
}

// Reset clears the requested flag, token and state. Called on logout
// and on an authentication failure during reconcile.
func (s *SubscriptionManager) Reset() {
	s.reset()
}

// State returns the current subscription state.
func (s *SubscriptionManager) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Granted reports whether alert permission is held. Satisfies the
// push adapter's PermissionChecker.
func (s *SubscriptionManager) Granted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SubscriptionGranted
}

func (s *SubscriptionManager) reset() {
	s.mu.Lock()
	s.requested = false
	s.state = SubscriptionUnregistered
	s.token = ""
	s.mu.Unlock()
}
