// Package server implements the development push simulator: the
// marketplace notification REST API over an in-memory table plus a
// WebSocket push gateway. It exists so the sync agent can be exercised
// end to end without the production backend.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // simulator only runs in development
	},
}

// Server holds the simulator state: per-user notification tables,
// registered push tokens and connected WebSocket clients.
type Server struct {
	secret []byte
	logger logger.Logger

	mu            sync.RWMutex
	notifications map[string][]model.Notification // userID -> newest-first
	pushTokens    map[string]string               // userID -> channel token
	clients       map[string][]*client            // userID -> connections
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a simulator server signing dev tokens with secret.
func New(secret string, log logger.Logger) *Server {
	return &Server{
		secret:        []byte(secret),
		logger:        log,
		notifications: make(map[string][]model.Notification),
		pushTokens:    make(map[string]string),
		clients:       make(map[string][]*client),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws/push", s.handlePushSocket).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/notifications/my", s.handleFetchMy).Methods("GET")
	api.HandleFunc("/notifications/read-all", s.handleMarkAllRead).Methods("PUT")
	api.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods("PUT")
	api.HandleFunc("/notifications/{id}", s.handleDelete).Methods("DELETE")
	api.HandleFunc("/notifications", s.handleClearAll).Methods("DELETE")
	api.HandleFunc("/auth/fcm-token", s.handleRegisterToken).Methods("PUT")

	return r
}

// IssueToken signs a dev bearer token for the given user.
func (s *Server) IssueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Seed inserts an authoritative record for the user without pushing.
func (s *Server) Seed(userID string, n model.Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.notifications[userID] = append([]model.Notification{n}, s.notifications[userID]...)
	s.mu.Unlock()
}

// Push persists an authoritative record (unless the type is
// transient) and delivers the push payload to every connection of the
// user. Returns the stored record id, empty for transient types.
func (s *Server) Push(userID string, msg model.PushMessage) string {
	var id string
	if !msg.Type().Transient() {
		n := msg.Record(time.Now())
		n.ID = uuid.New().String()
		id = n.ID
		s.mu.Lock()
		s.notifications[userID] = append([]model.Notification{n}, s.notifications[userID]...)
		s.mu.Unlock()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return id
	}

	// Send under the lock so readLoop cannot close a channel mid-send;
	// the sends are non-blocking.
	s.mu.RLock()
	for _, c := range s.clients[userID] {
		select {
		case c.send <- data:
		default:
		}
	}
	s.mu.RUnlock()
	return id
}

// Connected reports whether the user has at least one live push
// connection.
func (s *Server) Connected(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[userID]) > 0
}

// PushToken returns the channel token registered for the user.
func (s *Server) PushToken(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushTokens[userID]
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

func (s *Server) handleFetchMy(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	s.mu.RLock()
	feed := append([]model.Notification(nil), s.notifications[userID]...)
	s.mu.RUnlock()

	unread := 0
	for i := range feed {
		if !feed[i].IsRead {
			unread++
		}
	}

	writeJSON(w, http.StatusOK, model.Feed{
		Success:     true,
		Data:        feed,
		UnreadCount: unread,
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	found := false
	feed := s.notifications[userID]
	for i := range feed {
		if feed[i].ID == id {
			feed[i].IsRead = true
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "message": "notification not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	s.mu.Lock()
	feed := s.notifications[userID]
	for i := range feed {
		feed[i].IsRead = true
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	feed := s.notifications[userID]
	found := false
	for i := range feed {
		if feed[i].ID == id {
			s.notifications[userID] = append(feed[:i], feed[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "message": "notification not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	s.mu.Lock()
	delete(s.notifications, userID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var body struct {
		FCMToken string `json:"fcmToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FCMToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "fcmToken is required"})
		return
	}

	s.mu.Lock()
	s.pushTokens[userID] = body.FCMToken
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handlePushSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 32)}
	s.mu.Lock()
	s.clients[userID] = append(s.clients[userID], c)
	s.mu.Unlock()

	s.logger.Debug("push client connected", "user_id", userID)

	go s.writeLoop(c)
	s.readLoop(userID, c)
}

func (s *Server) writeLoop(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop drains the connection until it closes, then unregisters.
func (s *Server) readLoop(userID string, c *client) {
	defer func() {
		s.mu.Lock()
		conns := s.clients[userID]
		for i, cc := range conns {
			if cc == c {
				s.clients[userID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		// Closed under the lock: Push sends while holding it, so the
		// channel cannot be closed out from under a send.
		close(c.send)
		s.mu.Unlock()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

type contextKey string

const userKey contextKey = "userID"

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "unauthorized"})
			return
		}
		r = r.WithContext(contextWithUser(r.Context(), userID))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("missing subject")
	}
	return sub, nil
}
