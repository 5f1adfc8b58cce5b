// models/account.go
package models

import (
	"time"
)

// TrackedClan is a clan a user wants event status polled for.
// ClanName is a display cache refreshed on every poll cycle.
type TrackedClan struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_tracked_clan_user_tag"`
	ClanTag   string    `json:"clan_tag" gorm:"not null;uniqueIndex:idx_tracked_clan_user_tag"`
	ClanName  string    `json:"clan_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlayerAccount is a player a user wants event status computed for.
// Name and clan affiliation are caches refreshed from the player endpoint
// each poll; the affiliation distinguishes "in the clan but hasn't raided
// yet" from "not a member" during raid weekends.
type PlayerAccount struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	UserID          string     `json:"user_id" gorm:"not null;uniqueIndex:idx_player_account_user_tag"`
	Tag             string     `json:"tag" gorm:"not null;uniqueIndex:idx_player_account_user_tag"`
	Name            string     `json:"name"`
	CurrentClanTag  *string    `json:"current_clan_tag,omitempty"`
	CurrentClanName *string    `json:"current_clan_name,omitempty"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
