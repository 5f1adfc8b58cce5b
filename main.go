package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"clash-reminders/handlers"
	"clash-reminders/models"
	"clash-reminders/services"
	"clash-reminders/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const defaultCoCBaseURL = "https://api.clashofclans.com/v1"

// envDuration reads an integer env var as a duration in the given unit,
// falling back when unset or unparseable.
func envDuration(key string, unit, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("⚠️ Invalid %s=%q, using default %s", key, raw, fallback)
		return fallback
	}
	return time.Duration(n) * unit
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, reading environment variables directly")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	apiKey := os.Getenv("COC_API_KEY")
	if apiKey == "" {
		log.Fatal("COC_API_KEY environment variable not set")
	}
	baseURL := os.Getenv("COC_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultCoCBaseURL
	}

	pollInterval := envDuration("POLL_INTERVAL_SECONDS", time.Second, workers.DefaultPollInterval)
	retention := envDuration("SNAPSHOT_RETENTION_HOURS", time.Hour, services.DefaultSnapshotRetention)
	reminderWindow := envDuration("REMINDER_WINDOW_SECONDS", time.Second, services.DefaultReminderWindow)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.TrackedClan{},
		&models.PlayerAccount{},
		&models.EventSnapshot{},
		&models.ReminderConfig{},
		&models.ReminderTime{},
		&models.NotificationLog{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cocClient := services.NewCoCClient(baseURL, apiKey)
	extractor := services.NewEventExtractor(cocClient)
	fcm := services.NewFCMService(ctx, os.Getenv("FIREBASE_CREDENTIALS_PATH"))
	snapshotService := services.NewSnapshotService(db, retention)
	reminderEngine := services.NewReminderEngine(db, fcm, reminderWindow)
	reminderService := services.NewReminderService(db, snapshotService)

	poller := workers.NewPoller(db, extractor, snapshotService, reminderEngine, pollInterval)
	go poller.Start(ctx)

	retentionSched, err := workers.StartLogRetention(db)
	if err != nil {
		log.Fatal("failed to start log retention scheduler:", err)
	}

	app := fiber.New()
	app.Use(cors.New())
	handlers.SetupRoutes(app, reminderService)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8000"
	}
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", addr)
	log.Printf("✅ Event poller running (every %s, retention %s, window %s)", pollInterval, retention, reminderWindow)
	if fcm.Enabled() {
		log.Println("✅ FCM push delivery enabled")
	} else {
		log.Println("⚠️ FCM push delivery disabled (sends will be logged as failed)")
	}

	<-ctx.Done()
	log.Println("Shutting down...")
	if err := retentionSched.Shutdown(); err != nil {
		log.Printf("Retention scheduler shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
