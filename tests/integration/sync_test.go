package integration

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/coursehub/coursehub-client/internal/lifecycle"
	"github.com/coursehub/coursehub-client/internal/notification/adapters/api"
	"github.com/coursehub/coursehub-client/internal/notification/adapters/push"
	"github.com/coursehub/coursehub-client/internal/notification/app/service"
	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/notification/store"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/pushsim/server"
	"github.com/coursehub/coursehub-client/internal/session"
)

type grantingPrompter struct{}

func (grantingPrompter) Prompt(ctx context.Context) (service.PermissionResult, error) {
	return service.PermissionGranted, nil
}

type staticChannelToken string

func (s staticChannelToken) ChannelToken(ctx context.Context) (string, error) {
	return string(s), nil
}

// SyncTestSuite runs the whole engine against the push simulator: real
// HTTP, a real WebSocket channel and the production wiring.
type SyncTestSuite struct {
	suite.Suite

	sim    *server.Server
	ts     *httptest.Server
	sess   *session.Manager
	st     *store.Store
	engine *service.Engine
	cancel context.CancelFunc
}

func (s *SyncTestSuite) SetupTest() {
	log := logger.NewNop()

	s.sim = server.New("integration-secret", log)
	s.ts = httptest.NewServer(s.sim.Router())

	s.sess = session.NewManager()
	events := lifecycle.NewBus()
	s.st = store.New()

	client := api.NewClient(s.ts.URL, s.sess, api.WithTimeout(2*time.Second))

	subs := service.NewSubscriptionManager(
		grantingPrompter{},
		staticChannelToken("itest-channel-token"),
		client,
		s.sess,
		log,
		nil,
	)

	reconciler := service.NewReconciler(client, s.st, subs, 2*time.Second, log, nil)
	scheduler := service.NewRefreshScheduler(reconciler, s.sess, events, time.Hour, log)

	alerts := push.NewLogAlertSink(log)
	adapter := push.NewAdapter(s.st, scheduler, alerts, subs, log, nil, push.Config{
		DedupWindow: 2 * time.Second,
		PushDelay:   50 * time.Millisecond,
	})
	background := push.NewBackgroundAgent(alerts, nil, log, nil)

	mutator := service.NewMutator(s.st, client, log, nil)

	s.engine = service.NewEngine(
		s.sess, events, s.st, adapter, background, nil,
		scheduler, reconciler, mutator, subs, log,
	)
	s.engine.SetListener(push.NewListener(push.ListenerConfig{
		GatewayURL:   "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/push",
		ReconnectMin: 20 * time.Millisecond,
		ReconnectMax: 200 * time.Millisecond,
	}, s.sess, s.engine, log, nil))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.engine.Run(ctx)
}

func (s *SyncTestSuite) TearDownTest() {
	s.cancel()
	s.ts.Close()
}

func (s *SyncTestSuite) login(userID string) {
	token, err := s.sim.IssueToken(userID)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.sess.Login(token))
}

// waitForConnection blocks until the engine's push channel is attached
// to the simulator.
func (s *SyncTestSuite) waitForConnection(userID string) {
	require.Eventually(s.T(), func() bool {
		return s.sim.Connected(userID)
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *SyncTestSuite) TestInitialReconcileLoadsSeededFeed() {
	s.sim.Seed("u-1", model.Notification{Title: "seeded", Type: model.TypeCourseUpdated})
	s.login("u-1")

	require.Eventually(s.T(), func() bool {
		return s.st.Len() == 1 && s.st.UnreadCount() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *SyncTestSuite) TestPushConvergesToAuthoritativeRecord() {
	s.login("u-1")
	s.waitForConnection("u-1")

	s.sim.Push("u-1", model.PushMessage{
		Notification: model.PushNotification{Title: "Course sold", Body: "Your course was purchased"},
		Data:         map[string]string{"type": "course_purchased", "courseId": "c-9"},
	})

	// The frame lands as a provisional record first.
	require.Eventually(s.T(), func() bool {
		snap := s.st.Snapshot()
		return len(snap.Feed) >= 1 && snap.Feed[0].Title == "Course sold"
	}, 5*time.Second, 10*time.Millisecond)

	// The delayed refresh then swaps it for the server's copy.
	require.Eventually(s.T(), func() bool {
		snap := s.st.Snapshot()
		if len(snap.Feed) != 1 {
			return false
		}
		n := snap.Feed[0]
		return !n.Provisional() && n.Title == "Course sold" && snap.UnreadCount == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *SyncTestSuite) TestMutationConfirmedOnServer() {
	s.sim.Seed("u-1", model.Notification{ID: "n-1", Title: "a", Type: model.TypeCourseUpdated})
	s.login("u-1")

	require.Eventually(s.T(), func() bool { return s.st.Len() == 1 }, 5*time.Second, 20*time.Millisecond)

	s.engine.Mutator().MarkAsRead("n-1")
	s.Equal(0, s.st.UnreadCount(), "local state flips immediately")

	s.engine.Mutator().Wait()

	// The server copy was updated too, so a fresh fetch agrees.
	client := api.NewClient(s.ts.URL, s.sess)
	feed, err := client.FetchMy(context.Background())
	require.NoError(s.T(), err)
	s.Equal(0, feed.UnreadCount)
}

func (s *SyncTestSuite) TestSubscriptionRegistersChannelToken() {
	s.login("u-1")

	require.Eventually(s.T(), func() bool {
		return s.sim.PushToken("u-1") == "itest-channel-token"
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *SyncTestSuite) TestLogoutClearsLocalState() {
	s.sim.Seed("u-1", model.Notification{Title: "seeded", Type: model.TypeCourseUpdated})
	s.login("u-1")
	require.Eventually(s.T(), func() bool { return s.st.Len() == 1 }, 5*time.Second, 20*time.Millisecond)

	s.sess.Logout()

	require.Eventually(s.T(), func() bool {
		return s.st.Len() == 0 && s.st.UnreadCount() == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSyncTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(SyncTestSuite))
}
