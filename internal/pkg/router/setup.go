package router

import (
	"github.com/gofiber/fiber/v2"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// Webhook routes go in first: provider deliveries must bypass the rate
	// limiter, and signature verification needs the raw body untouched.
	setup(app, NewWebhookRouter(), NewApiRouter(), NewMarketRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
