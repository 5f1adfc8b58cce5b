// services/snapshot_service.go
package services

import (
	"errors"
	"log"
	"time"

	"clash-reminders/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSnapshotRetention is how long an inactive snapshot survives after
// its last poll before the cleanup sweep deletes it.
const DefaultSnapshotRetention = 48 * time.Hour

// SnapshotKey is the full identity of one snapshot row. A nil subtype is a
// distinct key from any labeled subtype and is never wildcard-matched.
type SnapshotKey struct {
	UserID       string
	AccountTag   string
	ClanTag      string
	EventType    string
	EventSubtype *string
}

// SnapshotService owns the EventSnapshot lifecycle: upserts during the
// reconcile phase, the inactive flip once events end, and retention
// deletes.
type SnapshotService struct {
	DB        *gorm.DB
	Retention time.Duration
}

func NewSnapshotService(db *gorm.DB, retention time.Duration) *SnapshotService {
	if retention <= 0 {
		retention = DefaultSnapshotRetention
	}
	return &SnapshotService{DB: db, Retention: retention}
}

// find loads the row for a key, or nil when none exists.
func (s *SnapshotService) find(tx *gorm.DB, key SnapshotKey) (*models.EventSnapshot, error) {
	query := tx.Where(
		"user_id = ? AND account_tag = ? AND clan_tag = ? AND event_type = ?",
		key.UserID, key.AccountTag, key.ClanTag, key.EventType,
	)
	if key.EventSubtype != nil {
		query = query.Where("event_subtype = ?", *key.EventSubtype)
	} else {
		query = query.Where("event_subtype IS NULL")
	}

	var snap models.EventSnapshot
	if err := query.First(&snap).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// Upsert reconciles one extracted fact into the snapshot row for its key,
// overwriting every mutable attribute and stamping polled_at. Repeated
// upserts with unchanged facts leave exactly one row. Runs inside the
// caller's transaction so one user's snapshot set commits atomically.
func (s *SnapshotService) Upsert(tx *gorm.DB, key SnapshotKey, fact EventFact, clanName string, now time.Time) error {
	existing, err := s.find(tx, key)
	if err != nil {
		return err
	}

	if existing != nil {
		return tx.Model(existing).Updates(map[string]any{
			"account_name":  fact.AccountName,
			"clan_name":     clanName,
			"state":         fact.State,
			"attacks_used":  fact.AttacksUsed,
			"attacks_max":   fact.AttacksMax,
			"start_time":    fact.StartTime,
			"end_time":      fact.EndTime,
			"opponent_name": fact.OpponentName,
			"opponent_tag":  fact.OpponentTag,
			"war_size":      fact.WarSize,
			"is_active":     fact.IsActive,
			"polled_at":     now,
		}).Error
	}

	snap := models.EventSnapshot{
		ID:           uuid.NewString(),
		UserID:       key.UserID,
		AccountTag:   key.AccountTag,
		AccountName:  fact.AccountName,
		ClanTag:      key.ClanTag,
		ClanName:     clanName,
		EventType:    key.EventType,
		EventSubtype: key.EventSubtype,
		State:        fact.State,
		AttacksUsed:  fact.AttacksUsed,
		AttacksMax:   fact.AttacksMax,
		StartTime:    fact.StartTime,
		EndTime:      fact.EndTime,
		OpponentName: fact.OpponentName,
		OpponentTag:  fact.OpponentTag,
		WarSize:      fact.WarSize,
		IsActive:     fact.IsActive,
		PolledAt:     now,
	}
	return tx.Create(&snap).Error
}

// Cleanup runs the companion sweep once per poll cycle in a single
// transaction: expired events are flipped inactive, and rows that have sat
// inactive past the retention window since their last poll are deleted.
// Both steps are idempotent.
func (s *SnapshotService) Cleanup(now time.Time) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.EventSnapshot{}).
			Where("is_active = ? AND end_time IS NOT NULL AND end_time < ?", true, now).
			Update("is_active", false)
		if expired.Error != nil {
			return expired.Error
		}

		cutoff := now.Add(-s.Retention)
		stale := tx.Where("is_active = ? AND polled_at < ?", false, cutoff).
			Delete(&models.EventSnapshot{})
		if stale.Error != nil {
			return stale.Error
		}

		if expired.RowsAffected > 0 || stale.RowsAffected > 0 {
			log.Printf("[Cleanup] 🧹 %d expired, %d deleted", expired.RowsAffected, stale.RowsAffected)
		}
		return nil
	})
}

// ActiveSnapshots is the read contract for the app-facing API: a user's
// active snapshots ordered by how soon they end.
func (s *SnapshotService) ActiveSnapshots(userID string) ([]models.EventSnapshot, error) {
	var snaps []models.EventSnapshot
	err := s.DB.Where("user_id = ? AND is_active = ?", userID, true).
		Order("end_time ASC").
		Find(&snaps).Error
	return snaps, err
}
