package models

import "time"

// Notification alerts the site owner that some content sections are under-populated.
type Notification struct {
	ID        string         `json:"id" bson:"_id"`
	Recipient Recipient      `json:"recipient" bson:"recipient"`
	Sections  []SectionCount `json:"sections" bson:"sections"`
	DedupKey  string         `json:"dedupKey,omitempty" bson:"dedup_key,omitempty"`
	Read      bool           `json:"read" bson:"read"`
	ReadAt    *time.Time     `json:"readAt,omitempty" bson:"read_at,omitempty"`
	Emailed   bool           `json:"emailed" bson:"emailed"`
	SentAt    time.Time      `json:"sentAt" bson:"sent_at"`
	CreatedAt time.Time      `json:"createdAt" bson:"created_at"`
}

type Recipient struct {
	Email string `json:"email" bson:"email"`
	Name  string `json:"name" bson:"name"`
}

// SectionCount is one content section below the threshold.
type SectionCount struct {
	DisplayName string `json:"displayName" bson:"display_name"`
	Count       int64  `json:"count" bson:"count"`
	Needed      int64  `json:"needed" bson:"needed"`
}

// MarkRead is a no-op for notifications that are already read.
func (n *Notification) MarkRead(now time.Time) {
	if n.Read {
		return
	}
	at := now.UTC()
	n.Read = true
	n.ReadAt = &at
}

type NotificationStatusFilter string

const (
	NotificationStatusAll    NotificationStatusFilter = "all"
	NotificationStatusRead   NotificationStatusFilter = "read"
	NotificationStatusUnread NotificationStatusFilter = "unread"
)

type NotificationStats struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
}

type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	Unread        int64          `json:"unread"`
}

// ContentCheckResult summarizes one threshold check.
type ContentCheckResult struct {
	Sections     []SectionCount `json:"sections"`
	Notification *Notification  `json:"notification,omitempty"`
	Created      bool           `json:"created"`
	Refreshed    bool           `json:"refreshed"`
}
