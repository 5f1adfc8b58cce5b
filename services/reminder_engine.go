// services/reminder_engine.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"clash-reminders/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultReminderWindow is the tolerance around a computed trigger time
// within which a reminder still counts as due. It must stay comfortably
// above half the poll interval or lead times fall between cycles.
const DefaultReminderWindow = 90 * time.Second

var eventLabels = map[string]string{
	models.EventTypeCW:   "Clan War",
	models.EventTypeCWL:  "CWL",
	models.EventTypeRaid: "Raid Weekend",
}

// ReminderEngine matches active snapshots against user reminder schedules
// once per poll cycle and fires at most one push per (snapshot, lead time).
// The NotificationLog's unique key is the idempotency guard.
type ReminderEngine struct {
	DB       *gorm.DB
	Notifier Notifier
	Window   time.Duration
}

func NewReminderEngine(db *gorm.DB, notifier Notifier, window time.Duration) *ReminderEngine {
	if window <= 0 {
		window = DefaultReminderWindow
	}
	return &ReminderEngine{DB: db, Notifier: notifier, Window: window}
}

// CheckReminders runs one reminder pass. The whole pass is a single
// transaction: either every log row it produced commits or none do, and
// the next cycle retries from scratch.
func (e *ReminderEngine) CheckReminders(ctx context.Context) error {
	now := time.Now().UTC()
	processed := 0

	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var snaps []models.EventSnapshot
		if err := tx.Where(
			"is_active = ? AND state IN ? AND end_time IS NOT NULL",
			true, []string{models.WarStateInWar, models.RaidStateOngoing},
		).Find(&snaps).Error; err != nil {
			return err
		}

		for i := range snaps {
			snap := &snaps[i]
			if snap.AttacksRemaining() == 0 {
				continue
			}

			var user models.User
			if err := tx.First(&user, "id = ?", snap.UserID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if !user.CanReceivePush() {
				continue
			}

			var config models.ReminderConfig
			err := tx.Where(
				"user_id = ? AND event_type = ? AND enabled = ?",
				user.ID, snap.EventType, true,
			).First(&config).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			var times []models.ReminderTime
			if err := tx.Where(
				"reminder_config_id = ? AND enabled = ?", config.ID, true,
			).Order("minutes_before_end ASC").Find(&times).Error; err != nil {
				return err
			}

			for _, rt := range times {
				trigger := snap.EndTime.Add(-time.Duration(rt.MinutesBeforeEnd) * time.Minute)
				diff := now.Sub(trigger)
				if diff < 0 {
					diff = -diff
				}
				if diff > e.Window {
					continue
				}

				var count int64
				if err := tx.Model(&models.NotificationLog{}).
					Where("event_snapshot_id = ? AND reminder_time_id = ?", snap.ID, rt.ID).
					Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					continue
				}

				ok := e.sendReminder(ctx, &user, snap, now)
				status := models.NotificationStatusFailed
				if ok {
					status = models.NotificationStatusSent
				}

				entry := models.NotificationLog{
					ID:              uuid.NewString(),
					UserID:          user.ID,
					EventSnapshotID: snap.ID,
					ReminderTimeID:  rt.ID,
					Status:          status,
				}
				// The unique index backs the guard even if two passes race.
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "event_snapshot_id"}, {Name: "reminder_time_id"}},
					DoNothing: true,
				}).Create(&entry).Error; err != nil {
					return err
				}
				processed++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reminder pass: %w", err)
	}

	if processed > 0 {
		log.Printf("[Reminder] ✅ %d notification(s) processed", processed)
	}
	return nil
}

// sendReminder builds the push payload and hands it to the notifier.
func (e *ReminderEngine) sendReminder(ctx context.Context, user *models.User, snap *models.EventSnapshot, now time.Time) bool {
	label := eventLabels[snap.EventType]
	if label == "" {
		label = snap.EventType
	}
	if snap.EventSubtype != nil {
		label += " Tag " + strings.TrimPrefix(*snap.EventSubtype, "day_")
	}

	title := fmt.Sprintf("⚔️ %s — %d Angriff(e) übrig!", label, snap.AttacksRemaining())

	accountName := snap.AccountName
	if accountName == "" {
		accountName = snap.AccountTag
	}
	clanName := snap.ClanName
	if clanName == "" {
		clanName = snap.ClanTag
	}
	timeLeft := formatDuration(int(snap.EndTime.Sub(now).Seconds()))

	parts := []string{
		fmt.Sprintf("👤 %s (%s)", accountName, snap.AccountTag),
		fmt.Sprintf("🏰 %s (%s)", clanName, snap.ClanTag),
	}
	if snap.OpponentName != nil {
		parts = append(parts, fmt.Sprintf("⚔️ vs. %s", *snap.OpponentName))
	}
	parts = append(parts, fmt.Sprintf("⏰ %s verbleibend", timeLeft))

	data := map[string]string{
		"event_type":  snap.EventType,
		"account_tag": snap.AccountTag,
		"clan_tag":    snap.ClanTag,
		"end_time":    snap.EndTime.Format(time.RFC3339),
	}

	log.Printf("[Reminder] 📣 Sending to user %s: %s", user.ID, title)
	return e.Notifier.Send(ctx, *user.FCMToken, title, strings.Join(parts, "\n"), data)
}

// formatDuration renders a second count as "1d 3h 20m".
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "0m"
	}
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
