// models/reminder.go
package models

import (
	"time"
)

// ReminderConfig is the per-user, per-event-type reminder toggle. One
// config per (user, event_type); the lead times hang off it.
type ReminderConfig struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_reminder_config_user_event"`
	EventType string    `json:"event_type" gorm:"not null;uniqueIndex:idx_reminder_config_user_event"`
	Enabled   bool      `json:"enabled" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Times []ReminderTime `json:"times,omitempty" gorm:"foreignKey:ReminderConfigID;constraint:OnDelete:CASCADE"`
}

// ReminderTime is a single lead time: fire MinutesBeforeEnd minutes before
// the event's end. Owned by exactly one ReminderConfig.
type ReminderTime struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	ReminderConfigID string    `json:"reminder_config_id" gorm:"index;not null"`
	MinutesBeforeEnd int       `json:"minutes_before_end" gorm:"not null"`
	Label            string    `json:"label"`
	Enabled          bool      `json:"enabled" gorm:"default:true"`
	CreatedAt        time.Time `json:"created_at"`
}
