package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/billing"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/metrics/counter"
)

const webhookProcessTimeout = 15 * time.Second

// HandleStripeWebhook receives Stripe event deliveries. Every delivery is
// recorded before processing so redeliveries are acked as duplicates and
// failed deliveries can be replayed later.
//
// The route must see the raw request body: signature verification runs over
// the exact bytes Stripe signed.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	_ = counter.AddWebhookReceived(models.PaymentProviderStripe)

	event, verifyErr := webhook.ConstructEventWithOptions(rawBody, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	signatureValid := verifyErr == nil

	eventID := event.ID
	eventType := string(event.Type)
	if !signatureValid {
		// Best-effort id/type so the rejected delivery still lands in the log.
		var probe struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		_ = json.Unmarshal(rawBody, &probe)
		eventID = probe.ID
		eventType = probe.Type
	}

	events := repository.GetGlobalFactory().GetWebhookEventRepository()
	stored := &models.WebhookEvent{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	}
	created, err := events.Record(stored)
	if err != nil {
		_ = counter.AddWebhookFailed(models.PaymentProviderStripe)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = events.MarkFailed(stored.ID, "invalid webhook signature: "+verifyErr.Error())
		_ = counter.AddWebhookFailed(models.PaymentProviderStripe)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	if err := webhookProcessor.Process(ctx, stored); err != nil {
		_ = events.MarkFailed(stored.ID, err.Error())
		_ = counter.AddWebhookFailed(models.PaymentProviderStripe)
		if errors.Is(err, billing.ErrInvalidPayload) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_sync_failed"})
	}

	_ = events.MarkProcessed(stored.ID)
	_ = counter.AddWebhookProcessed(models.PaymentProviderStripe)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "received": true})
}

// HandleWebhookStatus reports webhook counters and the replay queue depth.
// Mounted outside production only.
func HandleWebhookStatus(c *fiber.Ctx) error {
	snap, err := counter.GetSnapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "counters_unavailable"})
	}

	pending, err := repository.GetGlobalFactory().GetWebhookEventRepository().CountUnprocessed()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_depth_unavailable"})
	}

	return c.JSON(fiber.Map{
		"status":         "active",
		"environment":    env.GetEnv("APP_ENV", "dev"),
		"counters":       snap,
		"pendingReplays": pending,
		"replayRunning":  replayManager != nil && replayManager.IsRunning(),
	})
}

// HandleWebhookReplay triggers one replay pass over unprocessed deliveries.
func HandleWebhookReplay(c *fiber.Ctx) error {
	if replayManager == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "replay_unavailable"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	replayManager.ReplayPending(ctx)

	return c.JSON(fiber.Map{"ok": true})
}
