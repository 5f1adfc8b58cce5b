// models/notification_log.go
package models

import (
	"time"
)

const (
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

// NotificationLog is the append-only record of fired reminders. The unique
// (event_snapshot_id, reminder_time_id) index is the sole idempotency
// guard: a reminder fires once per snapshot per lead time, period. Failed
// deliveries are logged and never retried.
type NotificationLog struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	UserID          string    `json:"user_id" gorm:"index;not null"`
	EventSnapshotID string    `json:"event_snapshot_id" gorm:"not null;uniqueIndex:idx_notification_dedup"`
	ReminderTimeID  string    `json:"reminder_time_id" gorm:"not null;uniqueIndex:idx_notification_dedup"`
	Status          string    `json:"status" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}
