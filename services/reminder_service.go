// services/reminder_service.go
package services

import (
	"errors"
	"strings"

	"clash-reminders/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReminderService is the record-keeping surface the mobile app talks to:
// user registration, tracked clans, player accounts, reminder schedules
// and the active-snapshot read view. The polling subsystem consumes what
// this service writes but never goes through it.
type ReminderService struct {
	DB        *gorm.DB
	Snapshots *SnapshotService
}

func NewReminderService(db *gorm.DB, snapshots *SnapshotService) *ReminderService {
	return &ReminderService{DB: db, Snapshots: snapshots}
}

func validEventType(eventType string) bool {
	switch eventType {
	case models.EventTypeCW, models.EventTypeCWL, models.EventTypeRaid:
		return true
	}
	return false
}

func normalizeTag(tag string) string {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if tag != "" && !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag
}

// RegisterUser creates a user, optionally with an FCM token.
func (s *ReminderService) RegisterUser(c *fiber.Ctx) error {
	var req struct {
		FCMToken *string `json:"fcm_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	user := models.User{
		ID:                  uuid.NewString(),
		FCMToken:            req.FCMToken,
		NotificationEnabled: true,
	}
	if err := s.DB.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create user"})
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// UpdateNotifications toggles pushes and refreshes the FCM token.
func (s *ReminderService) UpdateNotifications(c *fiber.Ctx) error {
	userID := c.Params("userID")
	var req struct {
		Enabled  *bool   `json:"enabled"`
		FCMToken *string `json:"fcm_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	updates := map[string]any{}
	if req.Enabled != nil {
		updates["notification_enabled"] = *req.Enabled
	}
	if req.FCMToken != nil {
		updates["fcm_token"] = *req.FCMToken
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
	}

	res := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "update failed"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// TrackClan adds a clan to the user's watch list.
func (s *ReminderService) TrackClan(c *fiber.Ctx) error {
	userID := c.Params("userID")
	var req struct {
		ClanTag  string `json:"clan_tag"`
		ClanName string `json:"clan_name"`
	}
	if err := c.BodyParser(&req); err != nil || req.ClanTag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "clan_tag is required"})
	}

	clan := models.TrackedClan{
		ID:       uuid.NewString(),
		UserID:   userID,
		ClanTag:  normalizeTag(req.ClanTag),
		ClanName: req.ClanName,
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "clan_tag"}},
		DoNothing: true,
	}).Create(&clan).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to track clan"})
	}
	return c.Status(fiber.StatusCreated).JSON(clan)
}

// ListClans returns the user's tracked clans.
func (s *ReminderService) ListClans(c *fiber.Ctx) error {
	var clans []models.TrackedClan
	if err := s.DB.Where("user_id = ?", c.Params("userID")).Find(&clans).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}
	return c.JSON(clans)
}

// UntrackClan removes a tracked clan.
func (s *ReminderService) UntrackClan(c *fiber.Ctx) error {
	res := s.DB.Where("user_id = ? AND clan_tag = ?",
		c.Params("userID"), normalizeTag(c.Params("clanTag"))).
		Delete(&models.TrackedClan{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "delete failed"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "clan not tracked"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// AddAccount links a player account to the user.
func (s *ReminderService) AddAccount(c *fiber.Ctx) error {
	userID := c.Params("userID")
	var req struct {
		Tag  string `json:"tag"`
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil || req.Tag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tag is required"})
	}

	account := models.PlayerAccount{
		ID:     uuid.NewString(),
		UserID: userID,
		Tag:    normalizeTag(req.Tag),
		Name:   req.Name,
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "tag"}},
		DoNothing: true,
	}).Create(&account).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to add account"})
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

// ListAccounts returns the user's linked player accounts.
func (s *ReminderService) ListAccounts(c *fiber.Ctx) error {
	var accounts []models.PlayerAccount
	if err := s.DB.Where("user_id = ?", c.Params("userID")).Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}
	return c.JSON(accounts)
}

// ListSnapshots returns the user's active event snapshots ordered by how
// soon they end — the status view the app renders.
func (s *ReminderService) ListSnapshots(c *fiber.Ctx) error {
	snaps, err := s.Snapshots.ActiveSnapshots(c.Params("userID"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}
	return c.JSON(snaps)
}

// GetReminderConfig returns the config (with its times) for one event type.
func (s *ReminderService) GetReminderConfig(c *fiber.Ctx) error {
	eventType := c.Params("eventType")
	if !validEventType(eventType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown event type"})
	}

	var config models.ReminderConfig
	err := s.DB.Preload("Times").
		Where("user_id = ? AND event_type = ?", c.Params("userID"), eventType).
		First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no config for event type"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}
	return c.JSON(config)
}

// PutReminderConfig replaces the config and its lead times for one event
// type in a single transaction.
func (s *ReminderService) PutReminderConfig(c *fiber.Ctx) error {
	userID := c.Params("userID")
	eventType := c.Params("eventType")
	if !validEventType(eventType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown event type"})
	}

	var req struct {
		Enabled bool `json:"enabled"`
		Times   []struct {
			MinutesBeforeEnd int    `json:"minutes_before_end"`
			Label            string `json:"label"`
			Enabled          bool   `json:"enabled"`
		} `json:"times"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	for _, t := range req.Times {
		if t.MinutesBeforeEnd <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "minutes_before_end must be positive"})
		}
	}

	var config models.ReminderConfig
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND event_type = ?", userID, eventType).First(&config).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config = models.ReminderConfig{
				ID:        uuid.NewString(),
				UserID:    userID,
				EventType: eventType,
			}
			if err := tx.Create(&config).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := tx.Model(&config).Update("enabled", req.Enabled).Error; err != nil {
			return err
		}
		// Replacing the times invalidates nothing in the notification log:
		// already-fired (snapshot, time) pairs stay logged, new time rows
		// get fresh ids and fresh chances.
		if err := tx.Where("reminder_config_id = ?", config.ID).Delete(&models.ReminderTime{}).Error; err != nil {
			return err
		}
		for _, t := range req.Times {
			rt := models.ReminderTime{
				ID:               uuid.NewString(),
				ReminderConfigID: config.ID,
				MinutesBeforeEnd: t.MinutesBeforeEnd,
				Label:            t.Label,
				Enabled:          t.Enabled,
			}
			if err := tx.Create(&rt).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save config"})
	}

	return s.GetReminderConfig(c)
}
