package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coinchartfun/coinchart-backend/app/controllers"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
)

type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	// Payment provider webhooks. No CSRF, no rate limit; authenticity is
	// checked in the controllers (Stripe signature, BoomFi shared secret).
	app.Post("/api/stripe/webhook", controllers.HandleStripeWebhook)
	app.Post("/api/subscription/webhook", controllers.HandleBoomFiWebhook)

	if env.IsDev() {
		app.Get("/api/stripe/webhook-status", controllers.HandleWebhookStatus)
	}
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
