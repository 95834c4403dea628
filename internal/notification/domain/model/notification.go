package model

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType classifies a notification by the marketplace event
// that produced it.
type NotificationType string

const (
	TypePurchaseApprovalRequested NotificationType = "purchase_approval_requested"
	TypePurchaseApproved          NotificationType = "purchase_approved"
	TypePurchaseRejected          NotificationType = "purchase_rejected"
	TypeCoursePurchased           NotificationType = "course_purchased"
	TypeCourseUpdated             NotificationType = "course_updated"
	TypeCourseDeleted             NotificationType = "course_deleted"
	TypePlanUpdated               NotificationType = "plan_updated"
	TypeWelcome                   NotificationType = "welcome"
)

// Transient reports whether notifications of this type are shown as a
// momentary alert only and never persisted to the feed or counted.
func (t NotificationType) Transient() bool {
	return t == TypeWelcome
}

// ProvisionalIDPrefix marks ids minted locally for push-originated
// records before the server has issued a durable id.
const ProvisionalIDPrefix = "local-"

// NewProvisionalID returns a locally generated, time-based identifier
// for a record that has no authoritative id yet.
func NewProvisionalID(now time.Time) string {
	return fmt.Sprintf("%s%d", ProvisionalIDPrefix, now.UnixNano())
}

// Notification is a single entry in a user's feed. The JSON shape
// matches the marketplace notification API.
type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Type      NotificationType  `json:"type"`
	Data      map[string]string `json:"data,omitempty"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
}

// Provisional reports whether the record still carries a locally
// generated id, i.e. its authoritative counterpart has not been
// fetched yet.
func (n *Notification) Provisional() bool {
	return strings.HasPrefix(n.ID, ProvisionalIDPrefix)
}

// Feed is the response of GET /notifications/my.
type Feed struct {
	Success     bool           `json:"success"`
	Data        []Notification `json:"data"`
	UnreadCount int            `json:"unreadCount"`
}

// PushNotification is the display part of a push payload.
type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushMessage is the wire payload delivered over the push channel:
// { notification: { title, body }, data: { type, ...domainFields } }.
type PushMessage struct {
	Notification PushNotification  `json:"notification"`
	Data         map[string]string `json:"data"`
}

// Type extracts the notification type carried in the data payload.
func (m *PushMessage) Type() NotificationType {
	return NotificationType(m.Data["type"])
}

// URL returns the click-through target, if the sender included one.
func (m *PushMessage) URL() string {
	return m.Data["url"]
}

// Record builds a provisional feed record from the push payload.
// Domain references travel verbatim in Data; the type key itself is
// lifted out into the typed field.
func (m *PushMessage) Record(now time.Time) Notification {
	data := make(map[string]string, len(m.Data))
	for k, v := range m.Data {
		if k == "type" {
			continue
		}
		data[k] = v
	}
	return Notification{
		ID:        NewProvisionalID(now),
		Title:     m.Notification.Title,
		Message:   m.Notification.Body,
		Type:      m.Type(),
		Data:      data,
		IsRead:    false,
		CreatedAt: now,
	}
}
