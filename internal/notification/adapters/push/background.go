package push

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/platform/metrics"
)

// ChannelConfig is the delivery channel configuration the background
// agent reads from a runtime file. The background execution context
// cannot see build-time environment injection, so the file is the
// boundary, not a fallback.
type ChannelConfig struct {
	ProjectID  string `json:"projectId"`
	SenderID   string `json:"senderId"`
	APIKey     string `json:"apiKey"`
	GatewayURL string `json:"gatewayUrl,omitempty"`
}

// BackgroundAgent is the receive path active while the app is not in
// the foreground. It only surfaces an OS-level alert from the payload
// and never touches the store, which lives in the foreground process.
type BackgroundAgent struct {
	alerts  AlertSink
	focus   func(url string)
	logger  logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	cfg     ChannelConfig
	cfgPath string
	watcher *fsnotify.Watcher
}

// NewBackgroundAgent creates the background receive path. focus is
// invoked on alert click to bring the app to the foreground at the
// given URL; it may be nil when the platform cannot do that.
func NewBackgroundAgent(alerts AlertSink, focus func(url string), log logger.Logger, m *metrics.Metrics) *BackgroundAgent {
	return &BackgroundAgent{
		alerts:  alerts,
		focus:   focus,
		logger:  log,
		metrics: m,
	}
}

// LoadChannelConfig reads the channel configuration file and starts
// watching it for changes so updates apply without a restart.
func (a *BackgroundAgent) LoadChannelConfig(path string) error {
	if err := a.readChannelConfig(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file on save, which
	// drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	a.mu.Lock()
	a.cfgPath = path
	a.watcher = watcher
	a.mu.Unlock()

	go a.watchLoop(watcher, path)
	return nil
}

// ChannelConfig returns the currently loaded channel configuration.
func (a *BackgroundAgent) ChannelConfig() ChannelConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Close stops the config watcher.
func (a *BackgroundAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		err := a.watcher.Close()
		a.watcher = nil
		return err
	}
	return nil
}

// HandlePush surfaces an OS-level alert for the payload. Transient or
// not, the background path never writes to the store; classification
// happens in the foreground once the feed is refetched.
func (a *BackgroundAgent) HandlePush(msg model.PushMessage) {
	if a.metrics != nil {
		a.metrics.PushesReceived.WithLabelValues(string(msg.Type()), "background").Inc()
	}

	if a.alerts != nil {
		if err := a.alerts.Show(msg.Notification.Title, msg.Notification.Body, msg.Data); err != nil {
			a.logger.Warn("failed to show background alert", "error", err)
		}
	}
}

// HandleClick reacts to the user clicking a background alert: it
// requests app focus at the payload URL when one is present.
func (a *BackgroundAgent) HandleClick(msg model.PushMessage) {
	if a.focus == nil {
		return
	}
	url := msg.URL()
	if url == "" {
		url = "/"
	}
	a.focus(url)
}

func (a *BackgroundAgent) readChannelConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg ChannelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()

	a.logger.Info("push channel config loaded",
		"path", path,
		"project_id", cfg.ProjectID,
	)
	return nil
}

func (a *BackgroundAgent) watchLoop(watcher *fsnotify.Watcher, path string) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				if err := a.readChannelConfig(path); err != nil {
					a.logger.Warn("failed to reload channel config", "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.logger.Warn("channel config watcher error", "error", err)
		}
	}
}
