// Package store holds the in-memory source of truth for a user's
// notification feed and its derived unread counter.
package store

import (
	"sync"
	"time"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
)

// Snapshot is an immutable copy of the feed state handed to readers
// and change subscribers.
type Snapshot struct {
	Feed        []model.Notification
	UnreadCount int
}

// Store is the only mutable shared state of the sync engine. The feed
// is ordered newest-first and the unread counter is maintained
// incrementally by every mutation path. Writers are the push adapter
// (InsertProvisional), the reconciler (Replace, Clear) and the
// mutation coordinator; everything else reads snapshots.
type Store struct {
	mu          sync.RWMutex
	feed        []model.Notification
	unreadCount int
	subscribers []chan Snapshot
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current feed and counter.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// UnreadCount returns the current unread counter.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadCount
}

// Len returns the number of records in the feed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feed)
}

// HasNearDuplicate reports whether the feed already holds a record
// with the same title and message created within window of at. Used
// by the push adapter to defend against duplicate delivery from
// overlapping receive mechanisms.
func (s *Store) HasNearDuplicate(title, message string, at time.Time, window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.feed {
		n := &s.feed[i]
		if n.Title != title || n.Message != message {
			continue
		}
		d := at.Sub(n.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

// InsertProvisional puts a push-originated record at the head of the
// feed and increments the unread counter.
func (s *Store) InsertProvisional(n model.Notification) {
	s.mu.Lock()
	s.feed = append([]model.Notification{n}, s.feed...)
	s.unreadCount++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Replace swaps the entire feed and counter for the authoritative
// server response. Any provisional record is retired wholesale.
func (s *Store) Replace(feed []model.Notification, unreadCount int) {
	if unreadCount < 0 {
		unreadCount = 0
	}
	s.mu.Lock()
	s.feed = append([]model.Notification(nil), feed...)
	s.unreadCount = unreadCount
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Clear empties the feed and zeroes the counter. Used when the
// session turns out to be unauthenticated.
func (s *Store) Clear() {
	s.Replace(nil, 0)
}

// MarkRead flips the matching record to read and decrements the
// counter, floored at zero. Returns false when no record matched or
// it was already read.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	changed := false
	for i := range s.feed {
		if s.feed[i].ID == id {
			if !s.feed[i].IsRead {
				s.feed[i].IsRead = true
				if s.unreadCount > 0 {
					s.unreadCount--
				}
				changed = true
			}
			break
		}
	}
	var snap Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if changed {
		s.notify(snap)
	}
	return changed
}

// MarkAllRead flips every record to read and zeroes the counter.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	for i := range s.feed {
		s.feed[i].IsRead = true
	}
	s.unreadCount = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Delete removes the matching record. The counter is decremented only
// when the removed record was unread. Returns false when no record
// matched.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	removed := false
	for i := range s.feed {
		if s.feed[i].ID == id {
			if !s.feed[i].IsRead && s.unreadCount > 0 {
				s.unreadCount--
			}
			s.feed = append(s.feed[:i], s.feed[i+1:]...)
			removed = true
			break
		}
	}
	var snap Snapshot
	if removed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if removed {
		s.notify(snap)
	}
	return removed
}

// Subscribe returns a channel that receives a snapshot after every
// mutation. Slow subscribers miss intermediate snapshots rather than
// blocking writers.
func (s *Store) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch <-chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			break
		}
	}
}

func (s *Store) snapshotLocked() Snapshot {
	feed := make([]model.Notification, len(s.feed))
	copy(feed, s.feed)
	return Snapshot{Feed: feed, UnreadCount: s.unreadCount}
}

// notify sends under the lock so Unsubscribe cannot close a channel
// mid-send. The sends are non-blocking, so holding it is safe.
func (s *Store) notify(snap Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
