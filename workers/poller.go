// workers/poller.go
package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"clash-reminders/models"
	"clash-reminders/services"

	"gorm.io/gorm"
)

// DefaultPollInterval is the cycle cadence. The reminder firing window
// assumes the trigger phase runs at least every interval, so deployments
// raising this must widen the window too.
const DefaultPollInterval = 60 * time.Second

// Poller drives the whole engine: one cooperative loop, one cycle at a
// time, never overlapping. Each cycle is two phases — fetch/reconcile
// (one upstream fetch per unique clan, snapshots upserted per user,
// cleanup sweep) and, half an interval later, the reminder trigger pass.
type Poller struct {
	DB        *gorm.DB
	Extractor *services.EventExtractor
	Snapshots *services.SnapshotService
	Reminders *services.ReminderEngine
	Interval  time.Duration
}

func NewPoller(db *gorm.DB, extractor *services.EventExtractor, snapshots *services.SnapshotService, reminders *services.ReminderEngine, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		DB:        db,
		Extractor: extractor,
		Snapshots: snapshots,
		Reminders: reminders,
		Interval:  interval,
	}
}

// Start runs the loop until ctx is cancelled. A failed cycle is logged and
// followed by a full-interval delay; the loop itself never exits on error.
// Cancellation aborts the sleeps but lets an in-flight phase finish.
func (p *Poller) Start(ctx context.Context) {
	log.Printf("🔁 Starting event poller (every %s)...", p.Interval)

	for {
		if err := p.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				log.Println("⏹️ Event poller stopped")
				return
			}
			log.Printf("❌ [Poller] Cycle failed: %v", err)
			if !sleepCtx(ctx, p.Interval) {
				log.Println("⏹️ Event poller stopped")
				return
			}
			continue
		}

		if !sleepCtx(ctx, p.Interval/2) {
			log.Println("⏹️ Event poller stopped")
			return
		}

		if err := p.Reminders.CheckReminders(ctx); err != nil {
			log.Printf("❌ [Poller] Reminder phase failed: %v", err)
		}

		if !sleepCtx(ctx, p.Interval/2) {
			log.Println("⏹️ Event poller stopped")
			return
		}
	}
}

// runCycle shields the loop from a panicking cycle.
func (p *Poller) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return p.pollCycle(ctx)
}

// pollCycle is the fetch/reconcile phase. Failures inside it are isolated
// per clan and per user: one bad clan or one failed user commit never
// blocks the rest of the cycle.
func (p *Poller) pollCycle(ctx context.Context) error {
	now := time.Now().UTC()

	var tracked []models.TrackedClan
	if err := p.DB.Find(&tracked).Error; err != nil {
		return fmt.Errorf("load tracked clans: %w", err)
	}
	if len(tracked) == 0 {
		return p.Snapshots.Cleanup(now)
	}

	// One upstream fetch per unique clan, no matter how many users track it.
	events := make(map[string]*services.ClanEvents)
	for _, tc := range tracked {
		if _, seen := events[tc.ClanTag]; seen {
			continue
		}
		ev, err := p.Extractor.FetchClanEvents(ctx, tc.ClanTag)
		if err != nil {
			return err // context cancellation only
		}
		events[tc.ClanTag] = ev
	}
	log.Printf("[Poller] 📡 Fetched %d unique clan(s) for %d tracking entries", len(events), len(tracked))

	// Refresh cached clan display names.
	for i := range tracked {
		tc := &tracked[i]
		if ev := events[tc.ClanTag]; ev != nil && ev.ClanName != "" && ev.ClanName != tc.ClanName {
			if err := p.DB.Model(tc).Update("clan_name", ev.ClanName).Error; err != nil {
				log.Printf("[Poller] ⚠️ Failed to refresh name for clan %s: %v", tc.ClanTag, err)
			}
		}
	}

	clansByUser := make(map[string][]models.TrackedClan)
	for _, tc := range tracked {
		clansByUser[tc.UserID] = append(clansByUser[tc.UserID], tc)
	}

	var users []models.User
	if err := p.DB.Find(&users).Error; err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	for _, user := range users {
		userClans := clansByUser[user.ID]
		if len(userClans) == 0 {
			continue
		}
		var accounts []models.PlayerAccount
		if err := p.DB.Where("user_id = ?", user.ID).Find(&accounts).Error; err != nil {
			log.Printf("[Poller] ⚠️ Failed to load accounts for user %s: %v", user.ID, err)
			continue
		}
		if len(accounts) == 0 {
			continue
		}

		// All snapshot mutation for one user lands in one commit.
		err := p.DB.Transaction(func(tx *gorm.DB) error {
			for ai := range accounts {
				account := &accounts[ai]
				for _, tc := range userClans {
					ev := events[tc.ClanTag]
					if ev == nil {
						continue
					}
					clanName := ev.ClanName
					if clanName == "" {
						clanName = tc.ClanTag
					}
					for _, fact := range services.ExtractFacts(ev, tc.ClanTag, account) {
						key := services.SnapshotKey{
							UserID:       user.ID,
							AccountTag:   account.Tag,
							ClanTag:      tc.ClanTag,
							EventType:    fact.Event.Type(),
							EventSubtype: fact.Event.Subtype(),
						}
						if err := p.Snapshots.Upsert(tx, key, fact, clanName, now); err != nil {
							return err
						}
					}
				}
			}
			return nil
		})
		if err != nil {
			log.Printf("[Poller] ❌ Reconcile failed for user %s: %v", user.ID, err)
			continue
		}

		for ai := range accounts {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.refreshAccount(ctx, &accounts[ai])
		}
	}

	return p.Snapshots.Cleanup(now)
}

// refreshAccount updates the account's cached name and clan affiliation
// from the player endpoint. Absent data leaves the cache untouched.
func (p *Poller) refreshAccount(ctx context.Context, account *models.PlayerAccount) {
	player, err := p.Extractor.CoC.Player(ctx, account.Tag)
	if err != nil || player == nil {
		return
	}

	updates := map[string]any{
		"last_synced_at": time.Now().UTC(),
	}
	if player.Name != "" {
		updates["name"] = player.Name
	}
	if player.Clan != nil {
		updates["current_clan_tag"] = player.Clan.Tag
		updates["current_clan_name"] = player.Clan.Name
	} else {
		updates["current_clan_tag"] = nil
		updates["current_clan_name"] = nil
	}

	if err := p.DB.Model(account).Updates(updates).Error; err != nil {
		log.Printf("[Poller] ⚠️ Failed to refresh account %s: %v", account.Tag, err)
	}
}

// sleepCtx waits d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
