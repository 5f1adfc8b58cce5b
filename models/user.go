package models

import (
	"time"
)

// User owns everything: tracked clans, player accounts and reminder
// configuration are cascade-deleted with it. Registered by the mobile app,
// which also supplies the FCM push token.
type User struct {
	ID                  string    `json:"id" gorm:"primaryKey"`
	FCMToken            *string   `json:"fcm_token,omitempty"`
	NotificationEnabled bool      `json:"notification_enabled" gorm:"default:true"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	Accounts        []PlayerAccount  `json:"accounts,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	TrackedClans    []TrackedClan    `json:"tracked_clans,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ReminderConfigs []ReminderConfig `json:"reminder_configs,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// CanReceivePush reports whether a reminder can actually be delivered to
// this user right now.
func (u *User) CanReceivePush() bool {
	return u.NotificationEnabled && u.FCMToken != nil && *u.FCMToken != ""
}
