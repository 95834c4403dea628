package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/platform/metrics"
)

// TokenSource supplies the bearer token used to authenticate the
// push channel.
type TokenSource interface {
	Token() string
}

// Handler consumes decoded push messages. The foreground Adapter and
// the BackgroundAgent both implement it.
type Handler interface {
	HandlePush(msg model.PushMessage)
}

// ListenerConfig holds the listener connection settings.
type ListenerConfig struct {
	GatewayURL       string
	HandshakeTimeout time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// Listener maintains a WebSocket connection to the push gateway and
// forwards every frame to its handler. It reconnects with capped
// backoff and stops when its context is cancelled.
type Listener struct {
	cfg     ListenerConfig
	tokens  TokenSource
	handler Handler
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewListener creates a push channel listener.
func NewListener(cfg ListenerConfig, tokens TokenSource, handler Handler, log logger.Logger, m *metrics.Metrics) *Listener {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Listener{
		cfg:     cfg,
		tokens:  tokens,
		handler: handler,
		logger:  log,
		metrics: m,
	}
}

// Run connects and reads until ctx is cancelled. Each connection
// failure backs off before redialing.
func (l *Listener) Run(ctx context.Context) {
	backoff := l.cfg.ReconnectMin

	for {
		if ctx.Err() != nil {
			return
		}

		err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("push channel disconnected",
				"error", err,
				"retry_in", backoff.String(),
			)
		}
		if l.metrics != nil {
			l.metrics.PushReconnects.Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > l.cfg.ReconnectMax {
			backoff = l.cfg.ReconnectMax
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: l.cfg.HandshakeTimeout,
	}

	header := http.Header{}
	if token := l.tokens.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := dialer.DialContext(ctx, l.cfg.GatewayURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	l.logger.Info("push channel connected", "gateway", l.cfg.GatewayURL)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg model.PushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn("malformed push frame dropped", "error", err)
			continue
		}
		l.handler.HandlePush(msg)
	}
}
