// workers/log_retention.go
package workers

import (
	"log"
	"time"

	"clash-reminders/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// notification log rows older than this are of no observability value
const notificationLogRetention = 30 * 24 * time.Hour

// StartLogRetention schedules the daily purge of old NotificationLog rows.
// The dedup guard only needs rows as old as the snapshot retention window;
// everything beyond 30 days is pure log noise. Returns the scheduler so
// the entry point can shut it down.
func StartLogRetention(db *gorm.DB) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			cutoff := time.Now().UTC().Add(-notificationLogRetention)
			res := db.Where("created_at < ?", cutoff).Delete(&models.NotificationLog{})
			if res.Error != nil {
				log.Printf("[Retention] ❌ Failed to purge notification logs: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("[Retention] 🧹 Purged %d old notification log(s)", res.RowsAffected)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
