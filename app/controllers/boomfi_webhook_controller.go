package controllers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/billing"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/metrics/counter"
)

// HandleBoomFiWebhook receives BoomFi event deliveries. BoomFi does not sign
// its payloads, so an optional shared secret header guards the endpoint when
// BOOMFI_WEBHOOK_SECRET is set. Deliveries carry no delivery id either; the
// payload id is used when present and a body digest otherwise, which still
// collapses byte-identical redeliveries.
func HandleBoomFiWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.Body()...)

	_ = counter.AddWebhookReceived(models.PaymentProviderBoomFi)

	accepted := true
	if secret := env.GetEnv("BOOMFI_WEBHOOK_SECRET", ""); secret != "" {
		got := firstHeaderValue(c, "X-Webhook-Secret", "X-BoomFi-Secret")
		accepted = subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
	}

	var probe struct {
		ID    string `json:"id"`
		Event string `json:"event"`
	}
	_ = json.Unmarshal(rawBody, &probe)

	eventID := probe.ID
	if eventID == "" {
		digest := sha256.Sum256(rawBody)
		eventID = "body:" + hex.EncodeToString(digest[:])
	}

	events := repository.GetGlobalFactory().GetWebhookEventRepository()
	stored := &models.WebhookEvent{
		Provider:        models.PaymentProviderBoomFi,
		ProviderEventID: eventID,
		EventType:       probe.Event,
		PayloadJSON:     string(rawBody),
		SignatureValid:  accepted,
	}
	created, err := events.Record(stored)
	if err != nil {
		_ = counter.AddWebhookFailed(models.PaymentProviderBoomFi)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !accepted {
		_ = events.MarkFailed(stored.ID, "shared secret mismatch")
		_ = counter.AddWebhookFailed(models.PaymentProviderBoomFi)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_secret"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	if err := webhookProcessor.Process(ctx, stored); err != nil {
		_ = events.MarkFailed(stored.ID, err.Error())
		_ = counter.AddWebhookFailed(models.PaymentProviderBoomFi)
		if errors.Is(err, billing.ErrInvalidPayload) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_sync_failed"})
	}

	_ = events.MarkProcessed(stored.ID)
	_ = counter.AddWebhookProcessed(models.PaymentProviderBoomFi)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
