// Package main runs the notification sync agent: it keeps the local
// feed and unread counter consistent with the marketplace backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-client/internal/lifecycle"
	"github.com/coursehub/coursehub-client/internal/notification/adapters/api"
	"github.com/coursehub/coursehub-client/internal/notification/adapters/push"
	"github.com/coursehub/coursehub-client/internal/notification/app/service"
	"github.com/coursehub/coursehub-client/internal/notification/store"
	"github.com/coursehub/coursehub-client/internal/platform/config"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/platform/metrics"
	"github.com/coursehub/coursehub-client/internal/session"
)

func main() {
	cfg, err := config.Load("notifier")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger)
	log.Info("starting notification sync agent",
		"version", cfg.Version,
		"environment", cfg.Service.Environment,
	)

	m := metrics.New("coursehub_notifier")
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	sess := session.NewManager()
	events := lifecycle.NewBus()
	st := store.New()

	client := api.NewClient(cfg.API.BaseURL, sess, api.WithTimeout(cfg.API.Timeout))

	subs := service.NewSubscriptionManager(
		autoPrompter{},
		uuidTokenSource{},
		client,
		sess,
		log,
		m,
	)

	reconciler := service.NewReconciler(client, st, subs, cfg.Refresh.FetchTimeout, log, m)
	scheduler := service.NewRefreshScheduler(reconciler, sess, events, cfg.Refresh.PollInterval, log)

	alerts := push.NewLogAlertSink(log)
	adapter := push.NewAdapter(st, scheduler, alerts, subs, log, m, push.Config{
		DedupWindow: cfg.Refresh.DedupWindow,
		PushDelay:   cfg.Refresh.PushDelay,
	})

	background := push.NewBackgroundAgent(alerts, nil, log, m)
	if err := background.LoadChannelConfig(cfg.Push.ChannelConfigPath); err != nil {
		log.Warn("push channel config not loaded, background alerts disabled",
			"path", cfg.Push.ChannelConfigPath,
			"error", err,
		)
	}
	defer background.Close()

	mutator := service.NewMutator(st, client, log, m)

	engine := service.NewEngine(
		sess, events, st, adapter, background, nil,
		scheduler, reconciler, mutator, subs, log,
	)
	engine.SetListener(push.NewListener(push.ListenerConfig{
		GatewayURL:       cfg.Push.GatewayURL,
		HandshakeTimeout: cfg.Push.HandshakeTimeout,
		ReconnectMin:     cfg.Push.ReconnectMin,
		ReconnectMax:     cfg.Push.ReconnectMax,
	}, sess, engine, log, m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	// A bearer token handed to the agent starts the session right away.
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		if err := sess.Login(token); err != nil {
			log.Error("invalid AUTH_TOKEN", "error", err)
		}
	} else {
		log.Info("no AUTH_TOKEN set, waiting for login")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	sess.Logout()
	cancel()
	mutator.Wait()
	log.Info("agent stopped")
}

// autoPrompter grants permission without user interaction. The agent
// has no interactive surface; permission handling happens in the host
// shell when one exists.
type autoPrompter struct{}

func (autoPrompter) Prompt(ctx context.Context) (service.PermissionResult, error) {
	return service.PermissionGranted, nil
}

// uuidTokenSource mints a fresh channel token per session.
type uuidTokenSource struct{}

func (uuidTokenSource) ChannelToken(ctx context.Context) (string, error) {
	return uuid.New().String(), nil
}
