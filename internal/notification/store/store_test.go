package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
)

func record(id, title string, read bool, at time.Time) model.Notification {
	return model.Notification{
		ID:        id,
		Title:     title,
		Message:   "m-" + title,
		Type:      model.TypeCoursePurchased,
		IsRead:    read,
		CreatedAt: at,
	}
}

// unreadInvariant checks that the counter equals the number of unread
// records in the feed.
func unreadInvariant(t *testing.T, s *Store) {
	t.Helper()
	snap := s.Snapshot()
	unread := 0
	for _, n := range snap.Feed {
		if !n.IsRead {
			unread++
		}
	}
	assert.Equal(t, unread, snap.UnreadCount, "unread counter diverged from feed")
}

func TestInsertProvisional(t *testing.T) {
	s := New()
	now := time.Now()

	s.InsertProvisional(record("local-1", "first", false, now))
	s.InsertProvisional(record("local-2", "second", false, now.Add(time.Second)))

	snap := s.Snapshot()
	require.Len(t, snap.Feed, 2)
	assert.Equal(t, "local-2", snap.Feed[0].ID, "feed must be newest-first")
	assert.Equal(t, 2, snap.UnreadCount)
	unreadInvariant(t, s)
}

func TestReplaceRetiresProvisionalRecords(t *testing.T) {
	s := New()
	now := time.Now()
	s.InsertProvisional(record(model.NewProvisionalID(now), "Sold!", false, now))

	authoritative := []model.Notification{record("42", "Sold!", false, now)}
	s.Replace(authoritative, 1)

	snap := s.Snapshot()
	require.Len(t, snap.Feed, 1)
	assert.Equal(t, "42", snap.Feed[0].ID)
	assert.False(t, snap.Feed[0].Provisional())
	assert.Equal(t, 1, snap.UnreadCount)
	unreadInvariant(t, s)
}

func TestReplaceFloorsNegativeCount(t *testing.T) {
	s := New()
	s.Replace(nil, -3)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestMarkRead(t *testing.T) {
	s := New()
	now := time.Now()
	s.Replace([]model.Notification{
		record("1", "a", false, now),
		record("2", "b", false, now),
	}, 2)

	assert.True(t, s.MarkRead("1"))
	assert.Equal(t, 1, s.UnreadCount())
	unreadInvariant(t, s)

	// Marking the same record again is a no-op.
	assert.False(t, s.MarkRead("1"))
	assert.Equal(t, 1, s.UnreadCount())

	assert.False(t, s.MarkRead("missing"))
	unreadInvariant(t, s)
}

func TestMarkAllRead(t *testing.T) {
	s := New()
	now := time.Now()
	s.Replace([]model.Notification{
		record("1", "a", false, now),
		record("2", "b", false, now),
		record("3", "c", false, now),
	}, 3)

	s.MarkAllRead()

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.UnreadCount)
	for _, n := range snap.Feed {
		assert.True(t, n.IsRead)
	}
	unreadInvariant(t, s)
}

func TestDeleteUnreadDecrementsCounter(t *testing.T) {
	s := New()
	now := time.Now()
	s.Replace([]model.Notification{
		record("1", "a", false, now),
		record("2", "b", true, now),
	}, 1)

	assert.True(t, s.Delete("1"))
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 1, s.Len())
	unreadInvariant(t, s)
}

func TestDeleteReadRecordKeepsCounter(t *testing.T) {
	s := New()
	now := time.Now()
	s.Replace([]model.Notification{
		record("1", "a", false, now),
		record("2", "b", true, now),
	}, 1)

	assert.True(t, s.Delete("2"))
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, 1, s.Len())
	unreadInvariant(t, s)
}

func TestClear(t *testing.T) {
	s := New()
	s.InsertProvisional(record("local-1", "a", false, time.Now()))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
}

func TestHasNearDuplicate(t *testing.T) {
	s := New()
	base := time.Now()
	s.InsertProvisional(record("local-1", "T", false, base))

	// Same title+message within the window counts as a duplicate.
	assert.True(t, s.HasNearDuplicate("T", "m-T", base.Add(time.Second), 2*time.Second))
	// Outside the window it is a new record.
	assert.False(t, s.HasNearDuplicate("T", "m-T", base.Add(5*time.Second), 2*time.Second))
	// Different content never matches.
	assert.False(t, s.HasNearDuplicate("other", "m-T", base.Add(time.Second), 2*time.Second))
	// The window is symmetric.
	assert.True(t, s.HasNearDuplicate("T", "m-T", base.Add(-time.Second), 2*time.Second))
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	s := New()
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	s.InsertProvisional(record("local-1", "a", false, time.Now()))

	select {
	case snap := <-ch:
		assert.Len(t, snap.Feed, 1)
		assert.Equal(t, 1, snap.UnreadCount)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestMutationsDuringSubscriberChurn(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.InsertProvisional(record("local-1", "a", false, time.Now()))
				s.Clear()
			}
		}
	}()

	// Subscribers come and go while mutations notify; no snapshot may
	// land on a closed channel.
	for i := 0; i < 500; i++ {
		ch := s.Subscribe()
		s.Unsubscribe(ch)
	}

	close(stop)
	wg.Wait()
}
