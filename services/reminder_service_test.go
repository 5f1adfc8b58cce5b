package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clash-reminders/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	svc := NewReminderService(db, NewSnapshotService(db, 0))

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/users/register", svc.RegisterUser)
	api.Put("/users/:userID/notifications", svc.UpdateNotifications)
	api.Post("/users/:userID/clans", svc.TrackClan)
	api.Get("/users/:userID/clans", svc.ListClans)
	api.Post("/users/:userID/accounts", svc.AddAccount)
	api.Get("/users/:userID/snapshots", svc.ListSnapshots)
	api.Get("/users/:userID/reminders/:eventType", svc.GetReminderConfig)
	api.Put("/users/:userID/reminders/:eventType", svc.PutReminderConfig)
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestRegisterAndTrackFlow(t *testing.T) {
	app, db := testApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/users/register",
		map[string]any{"fcm_token": "tok-123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user models.User
	decodeBody(t, resp, &user)
	assert.NotEmpty(t, user.ID)
	assert.True(t, user.NotificationEnabled)

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/clans", user.ID),
		map[string]any{"clan_tag": "clan"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var clans []models.TrackedClan
	require.NoError(t, db.Find(&clans).Error)
	require.Len(t, clans, 1)
	assert.Equal(t, "#CLAN", clans[0].ClanTag, "tags are normalized on the way in")

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/accounts", user.ID),
		map[string]any{"tag": "#player", "name": "Spieler"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var accounts []models.PlayerAccount
	require.NoError(t, db.Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.Equal(t, "#PLAYER", accounts[0].Tag)
}

func TestPutReminderConfigReplacesTimes(t *testing.T) {
	app, db := testApp(t)

	body := map[string]any{
		"enabled": true,
		"times": []map[string]any{
			{"minutes_before_end": 60, "label": "1h", "enabled": true},
			{"minutes_before_end": 15, "label": "15m", "enabled": true},
		},
	}
	resp := doJSON(t, app, http.MethodPut, "/api/v1/users/u1/reminders/cw", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var config models.ReminderConfig
	decodeBody(t, resp, &config)
	assert.True(t, config.Enabled)
	assert.Len(t, config.Times, 2)

	// A second PUT replaces the times instead of accumulating them.
	body["times"] = []map[string]any{
		{"minutes_before_end": 30, "label": "30m", "enabled": true},
	}
	resp = doJSON(t, app, http.MethodPut, "/api/v1/users/u1/reminders/cw", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var times []models.ReminderTime
	require.NoError(t, db.Find(&times).Error)
	require.Len(t, times, 1)
	assert.Equal(t, 30, times[0].MinutesBeforeEnd)

	var configs []models.ReminderConfig
	require.NoError(t, db.Find(&configs).Error)
	assert.Len(t, configs, 1, "one config per (user, event type)")
}

func TestPutReminderConfigRejectsBadInput(t *testing.T) {
	app, _ := testApp(t)

	resp := doJSON(t, app, http.MethodPut, "/api/v1/users/u1/reminders/chess", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPut, "/api/v1/users/u1/reminders/cw", map[string]any{
		"enabled": true,
		"times":   []map[string]any{{"minutes_before_end": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListSnapshotsReturnsActiveOrdered(t *testing.T) {
	app, db := testApp(t)
	now := time.Now().UTC()

	for _, hours := range []int{6, 2} {
		end := now.Add(time.Duration(hours) * time.Hour)
		require.NoError(t, db.Create(&models.EventSnapshot{
			ID: uuid.NewString(), UserID: "u1", AccountTag: "#A", ClanTag: "#CLAN",
			EventType: models.EventTypeCW, EventSubtype: strPtr(fmt.Sprintf("day_%d", hours)),
			State: models.WarStateInWar, IsActive: true, EndTime: &end, PolledAt: now,
		}).Error)
	}

	resp := doJSON(t, app, http.MethodGet, "/api/v1/users/u1/snapshots", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snaps []models.EventSnapshot
	decodeBody(t, resp, &snaps)
	require.Len(t, snaps, 2)
	assert.Equal(t, "day_2", *snaps[0].EventSubtype)
	assert.Equal(t, "day_6", *snaps[1].EventSubtype)
}
