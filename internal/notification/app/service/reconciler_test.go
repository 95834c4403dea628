package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-client/internal/notification/adapters/api"
	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/notification/store"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
)

type fakeFetcher struct {
	mu    sync.Mutex
	feed  *model.Feed
	err   error
	calls int
}

func (f *fakeFetcher) FetchMy(ctx context.Context) (*model.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.feed, nil
}

type fakeResetter struct {
	mu     sync.Mutex
	resets int
}

func (f *fakeResetter) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func authoritativeFeed() *model.Feed {
	return &model.Feed{
		Success: true,
		Data: []model.Notification{
			{ID: "42", Title: "Sold!", Message: "x", Type: model.TypeCoursePurchased, CreatedAt: time.Now()},
		},
		UnreadCount: 1,
	}
}

func TestReconcileReplacesWholesale(t *testing.T) {
	st := store.New()
	now := time.Now()
	// Provisional noise that must not survive the replace.
	st.InsertProvisional(model.Notification{ID: model.NewProvisionalID(now), Title: "Sold!", Message: "x", CreatedAt: now})
	st.InsertProvisional(model.Notification{ID: model.NewProvisionalID(now), Title: "stale", Message: "y", CreatedAt: now})

	r := NewReconciler(&fakeFetcher{feed: authoritativeFeed()}, st, &fakeResetter{}, time.Second, logger.NewNop(), nil)
	r.Reconcile(context.Background(), TriggerInterval)

	snap := st.Snapshot()
	require.Len(t, snap.Feed, 1)
	assert.Equal(t, "42", snap.Feed[0].ID)
	assert.False(t, snap.Feed[0].Provisional(), "provisional record must be retired by the replace")
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestReconcileNetworkFailureKeepsState(t *testing.T) {
	st := store.New()
	st.Replace([]model.Notification{{ID: "1", Title: "keep", CreatedAt: time.Now()}}, 1)

	r := NewReconciler(&fakeFetcher{err: errors.New("connection refused")}, st, &fakeResetter{}, time.Second, logger.NewNop(), nil)
	r.Reconcile(context.Background(), TriggerFocus)

	snap := st.Snapshot()
	require.Len(t, snap.Feed, 1)
	assert.Equal(t, "1", snap.Feed[0].ID, "stale-but-available beats empty")
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestReconcileUnauthorizedClearsStore(t *testing.T) {
	st := store.New()
	st.Replace([]model.Notification{{ID: "1", Title: "gone", CreatedAt: time.Now()}}, 1)
	resetter := &fakeResetter{}

	r := NewReconciler(&fakeFetcher{err: api.ErrUnauthorized}, st, resetter, time.Second, logger.NewNop(), nil)
	r.Reconcile(context.Background(), TriggerInterval)

	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 0, st.UnreadCount())
	resetter.mu.Lock()
	assert.Equal(t, 1, resetter.resets, "401 must reset the subscription flag")
	resetter.mu.Unlock()
}

func TestReconcileAfterTeardownIsDropped(t *testing.T) {
	st := store.New()
	r := NewReconciler(&fakeFetcher{feed: authoritativeFeed()}, st, &fakeResetter{}, time.Second, logger.NewNop(), nil)

	// A fetch resolving after logout must not resurrect state.
	r.Teardown()
	r.Reconcile(context.Background(), TriggerPush)

	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 0, st.UnreadCount())

	// Re-arming on the next login restores normal behavior.
	r.Arm()
	r.Reconcile(context.Background(), TriggerInitial)
	assert.Equal(t, 1, st.Len())
}
