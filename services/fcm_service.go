// services/fcm_service.go
package services

import (
	"context"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Notifier is the push-delivery capability the reminder engine depends on.
// Send reports whether delivery succeeded; the caller logs the attempt
// either way and never retries.
type Notifier interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) bool
}

// FCMService delivers pushes through Firebase Cloud Messaging. When the
// credentials file is missing or invalid the service stays disabled and
// every Send is a no-op returning false.
type FCMService struct {
	client *messaging.Client
}

func NewFCMService(ctx context.Context, credentialsPath string) *FCMService {
	if credentialsPath == "" {
		log.Println("⚠️ FIREBASE_CREDENTIALS_PATH not set, push notifications disabled")
		return &FCMService{}
	}
	if _, err := os.Stat(credentialsPath); err != nil {
		log.Printf("⚠️ Firebase credentials file not found at %s, push notifications disabled", credentialsPath)
		return &FCMService{}
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		log.Printf("⚠️ Failed to initialize Firebase: %v, push notifications disabled", err)
		return &FCMService{}
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to initialize FCM messaging: %v, push notifications disabled", err)
		return &FCMService{}
	}

	log.Println("✅ Firebase Admin SDK initialized")
	return &FCMService{client: client}
}

// Enabled reports whether pushes can actually leave the process.
func (f *FCMService) Enabled() bool {
	return f.client != nil
}

func (f *FCMService) Send(ctx context.Context, token, title, body string, data map[string]string) bool {
	if f.client == nil {
		return false
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "clash_reminders",
				Icon:      "ic_notification",
			},
		},
	}

	id, err := f.client.Send(ctx, msg)
	if err != nil {
		log.Printf("[FCM] ❌ Push failed: %v", err)
		return false
	}
	log.Printf("[FCM] ✅ Push sent: %s", id)
	return true
}
