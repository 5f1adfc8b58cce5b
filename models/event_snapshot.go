// models/event_snapshot.go
package models

import (
	"time"
)

const (
	EventTypeCW   = "cw"
	EventTypeCWL  = "cwl"
	EventTypeRaid = "raid"
)

// War/raid states the poller and reminder engine care about.
const (
	WarStatePreparation = "preparation"
	WarStateInWar       = "inWar"
	RaidStateOngoing    = "ongoing"
)

// EventSnapshot is the durable, periodically refreshed record of one
// account's status within one event occurrence. Exactly one row exists per
// (user, account, clan, event type, event subtype) — the poller upserts,
// never duplicates. EventSubtype is the CWL round label (day_1, day_2, …)
// and nil for everything else; a nil subtype never matches a labeled one.
type EventSnapshot struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"user_id" gorm:"index;not null"`
	AccountTag   string     `json:"account_tag" gorm:"not null"`
	AccountName  string     `json:"account_name"`
	ClanTag      string     `json:"clan_tag" gorm:"not null"`
	ClanName     string     `json:"clan_name"`
	EventType    string     `json:"event_type" gorm:"not null;index"`
	EventSubtype *string    `json:"event_subtype,omitempty"`
	State        string     `json:"state"`
	AttacksUsed  int        `json:"attacks_used"`
	AttacksMax   int        `json:"attacks_max"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	OpponentName *string    `json:"opponent_name,omitempty"`
	OpponentTag  *string    `json:"opponent_tag,omitempty"`
	WarSize      *int       `json:"war_size,omitempty"`
	IsActive     bool       `json:"is_active" gorm:"index"`
	PolledAt     time.Time  `json:"polled_at" gorm:"index"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AttacksRemaining never goes below zero, even when the upstream document
// reports more attacks used than the allotment.
func (s *EventSnapshot) AttacksRemaining() int {
	if left := s.AttacksMax - s.AttacksUsed; left > 0 {
		return left
	}
	return 0
}
