// handlers/routes.go
package handlers

import (
	"clash-reminders/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes wires the app-facing API. The polling engine never goes
// through these routes; they only read snapshots and manage the records
// the engine consumes.
func SetupRoutes(app *fiber.App, reminderService *services.ReminderService) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api := app.Group("/api/v1")

	api.Post("/users/register", reminderService.RegisterUser)
	api.Put("/users/:userID/notifications", reminderService.UpdateNotifications)

	api.Post("/users/:userID/clans", reminderService.TrackClan)
	api.Get("/users/:userID/clans", reminderService.ListClans)
	api.Delete("/users/:userID/clans/:clanTag", reminderService.UntrackClan)

	api.Post("/users/:userID/accounts", reminderService.AddAccount)
	api.Get("/users/:userID/accounts", reminderService.ListAccounts)

	api.Get("/users/:userID/snapshots", reminderService.ListSnapshots)

	api.Get("/users/:userID/reminders/:eventType", reminderService.GetReminderConfig)
	api.Put("/users/:userID/reminders/:eventType", reminderService.PutReminderConfig)
}
