package workers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clash-reminders/models"
	"clash-reminders/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.TrackedClan{},
		&models.PlayerAccount{},
		&models.EventSnapshot{},
		&models.ReminderConfig{},
		&models.ReminderTime{},
		&models.NotificationLog{},
	))
	return db
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, string, string, string, map[string]string) bool {
	return true
}

// fakeCoCServer serves a clan in a normal war plus the surrounding
// endpoints, counting currentwar hits so fetch dedup can be asserted.
func fakeCoCServer(t *testing.T, warHits *atomic.Int32) *httptest.Server {
	t.Helper()

	end := time.Now().UTC().Add(4 * time.Hour).Format("20060102T150405.000Z")
	start := time.Now().UTC().Add(-20 * time.Hour).Format("20060102T150405.000Z")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/currentwar"):
			warHits.Add(1)
			fmt.Fprintf(w, `{
				"state": "inWar", "teamSize": 15, "attacksPerMember": 2,
				"startTime": %q, "endTime": %q,
				"clan": {"tag": "#CLAN", "name": "Unsere Burg",
					"members": [{"tag": "#PLAYER", "name": "Spieler", "attacks": [{"attackerTag": "#PLAYER"}]}]},
				"opponent": {"tag": "#FOE", "name": "Enemies"}
			}`, start, end)
		case strings.HasSuffix(path, "/leaguegroup"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(path, "/capitalraidseasons"):
			w.Write([]byte(`{"items": []}`))
		case strings.HasPrefix(path, "/players/"):
			w.Write([]byte(`{"tag": "#PLAYER", "name": "Spieler", "clan": {"tag": "#CLAN", "name": "Unsere Burg"}}`))
		case strings.HasPrefix(path, "/clans/"):
			w.Write([]byte(`{"tag": "#CLAN", "name": "Unsere Burg", "memberList": [{"tag": "#PLAYER", "name": "Spieler"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedTracking(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	user := models.User{ID: userID, NotificationEnabled: true}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.TrackedClan{
		ID: uuid.NewString(), UserID: userID, ClanTag: "#CLAN",
	}).Error)
	require.NoError(t, db.Create(&models.PlayerAccount{
		ID: uuid.NewString(), UserID: userID, Tag: "#PLAYER", Name: "Spieler",
	}).Error)
}

func newTestPoller(db *gorm.DB, baseURL string) *Poller {
	coc := services.NewCoCClient(baseURL, "test-key")
	extractor := services.NewEventExtractor(coc)
	snapshots := services.NewSnapshotService(db, 48*time.Hour)
	reminders := services.NewReminderEngine(db, noopNotifier{}, 90*time.Second)
	return NewPoller(db, extractor, snapshots, reminders, time.Second)
}

func TestPollCycleCreatesSnapshots(t *testing.T) {
	db := testDB(t)
	var warHits atomic.Int32
	srv := fakeCoCServer(t, &warHits)

	seedTracking(t, db, "u1")
	poller := newTestPoller(db, srv.URL)

	require.NoError(t, poller.pollCycle(context.Background()))

	var snaps []models.EventSnapshot
	require.NoError(t, db.Find(&snaps).Error)
	require.Len(t, snaps, 1)
	assert.Equal(t, models.EventTypeCW, snaps[0].EventType)
	assert.Equal(t, 1, snaps[0].AttacksUsed)
	assert.Equal(t, 2, snaps[0].AttacksMax)
	assert.True(t, snaps[0].IsActive)
	assert.Equal(t, "Unsere Burg", snaps[0].ClanName)

	// Cached affiliation was refreshed from the player endpoint.
	var account models.PlayerAccount
	require.NoError(t, db.First(&account, "user_id = ?", "u1").Error)
	require.NotNil(t, account.CurrentClanTag)
	assert.Equal(t, "#CLAN", *account.CurrentClanTag)
	assert.NotNil(t, account.LastSyncedAt)

	// A second cycle upserts, never duplicates.
	require.NoError(t, poller.pollCycle(context.Background()))
	require.NoError(t, db.Find(&snaps).Error)
	assert.Len(t, snaps, 1)
}

func TestPollCycleDeduplicatesClanFetches(t *testing.T) {
	db := testDB(t)
	var warHits atomic.Int32
	srv := fakeCoCServer(t, &warHits)

	// Two users track the same clan; each links their own account.
	seedTracking(t, db, "u1")
	seedTracking(t, db, "u2")
	poller := newTestPoller(db, srv.URL)

	require.NoError(t, poller.pollCycle(context.Background()))

	assert.Equal(t, int32(1), warHits.Load(), "one currentwar fetch per unique clan per cycle")

	var count int64
	db.Model(&models.EventSnapshot{}).Count(&count)
	assert.Equal(t, int64(2), count, "each tracking user gets their own snapshot row")
}

func TestPollCycleRefreshesTrackedClanName(t *testing.T) {
	db := testDB(t)
	var warHits atomic.Int32
	srv := fakeCoCServer(t, &warHits)

	seedTracking(t, db, "u1")
	poller := newTestPoller(db, srv.URL)

	require.NoError(t, poller.pollCycle(context.Background()))

	var tc models.TrackedClan
	require.NoError(t, db.First(&tc, "user_id = ?", "u1").Error)
	assert.Equal(t, "Unsere Burg", tc.ClanName)
}

func TestPollCycleWithNoTrackedClansStillCleansUp(t *testing.T) {
	db := testDB(t)
	var warHits atomic.Int32
	srv := fakeCoCServer(t, &warHits)

	now := time.Now().UTC()
	end := now.Add(-time.Hour)
	stale := models.EventSnapshot{
		ID: uuid.NewString(), UserID: "u1", AccountTag: "#A", ClanTag: "#CLAN",
		EventType: models.EventTypeCW, State: models.WarStateInWar,
		EndTime: &end, IsActive: true, PolledAt: now,
	}
	require.NoError(t, db.Create(&stale).Error)

	poller := newTestPoller(db, srv.URL)
	require.NoError(t, poller.pollCycle(context.Background()))

	var snap models.EventSnapshot
	require.NoError(t, db.First(&snap).Error)
	assert.False(t, snap.IsActive)
	assert.Zero(t, warHits.Load())
}

func TestRunCycleRecoversFromPanic(t *testing.T) {
	// A nil extractor makes the cycle panic once tracking data exists; the
	// wrapper must turn that into an error instead of killing the loop.
	db := testDB(t)
	seedTracking(t, db, "u1")

	poller := &Poller{
		DB:        db,
		Snapshots: services.NewSnapshotService(db, 48*time.Hour),
	}
	err := poller.runCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle panic")
}
