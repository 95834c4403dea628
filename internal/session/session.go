// Package session tracks the authenticated marketplace session the
// sync engine is scoped to.
package session

import (
	"errors"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// EventType marks a session state transition.
type EventType string

const (
	EventLogin  EventType = "login"
	EventLogout EventType = "logout"
)

// Event is delivered to subscribers on every transition.
type Event struct {
	Type   EventType
	UserID string
}

var ErrNotAuthenticated = errors.New("session: not authenticated")

// Claims are the bearer-token claims the engine cares about.
type Claims struct {
	UserID string `json:"sub"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager holds the bearer token and authentication state for the
// current session and fans out login/logout events. It also tracks
// whether the app currently sits on a public route, where all sync
// triggers must stay inert.
type Manager struct {
	mu          sync.RWMutex
	token       string
	userID      string
	publicRoute bool
	subscribers []chan Event
}

// NewManager creates an unauthenticated session manager.
func NewManager() *Manager {
	return &Manager{}
}

// Login stores the bearer token, extracts the user id from its claims
// and notifies subscribers. The token signature is not verified here;
// the server rejects bad tokens and the engine treats that as a
// logged-out session.
func (m *Manager) Login(token string) error {
	if token == "" {
		return ErrNotAuthenticated
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = token
	m.userID = claims.UserID
	m.mu.Unlock()

	m.publish(Event{Type: EventLogin, UserID: claims.UserID})
	return nil
}

// Logout clears the session and notifies subscribers.
func (m *Manager) Logout() {
	m.mu.Lock()
	userID := m.userID
	m.token = ""
	m.userID = ""
	m.mu.Unlock()

	m.publish(Event{Type: EventLogout, UserID: userID})
}

// Token returns the current bearer token, empty when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// UserID returns the authenticated user id, empty when logged out.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// Authenticated reports whether a session is active.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// SetPublicRoute records whether the app is on a public route.
func (m *Manager) SetPublicRoute(public bool) {
	m.mu.Lock()
	m.publicRoute = public
	m.mu.Unlock()
}

// Active reports whether sync triggers should run: an authenticated
// session on a non-public route.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && !m.publicRoute
}

// Subscribe returns a channel receiving login/logout events.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 4)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(sub)
			break
		}
	}
}

// publish sends under the lock so Unsubscribe cannot close a channel
// mid-send. The sends are non-blocking, so holding it is safe.
func (m *Manager) publish(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
