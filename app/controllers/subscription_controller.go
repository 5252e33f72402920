package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const boomfiAPITimeout = 10 * time.Second

// HandleListCustomers proxies the BoomFi customer list for the admin view.
// The management API key stays server-side.
func HandleListCustomers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), boomfiAPITimeout)
	defer cancel()

	raw, err := boomfiClient.ListCustomers(ctx)
	if err != nil {
		log.Errorf("[BoomFi] customer list failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "message": "Failed to fetch customers"})
	}
	return sendRawJSON(c, raw)
}

// HandleGetCustomer proxies a single BoomFi customer lookup.
func HandleGetCustomer(c *fiber.Ctx) error {
	customerID := strings.TrimSpace(c.Params("customerId"))
	if customerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Customer id is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), boomfiAPITimeout)
	defer cancel()

	raw, err := boomfiClient.GetCustomer(ctx, customerID)
	if err != nil {
		log.Errorf("[BoomFi] customer lookup failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "message": "Failed to fetch customer"})
	}
	return sendRawJSON(c, raw)
}

// HandleListSubscriptions proxies a BoomFi subscription listing for one
// customer. The customer_id query parameter is mandatory.
func HandleListSubscriptions(c *fiber.Ctx) error {
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "customer_id query parameter is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), boomfiAPITimeout)
	defer cancel()

	raw, err := boomfiClient.GetCustomerSubscriptions(ctx, customerID)
	if err != nil {
		log.Errorf("[BoomFi] subscription list failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "message": "Failed to fetch subscriptions"})
	}
	return sendRawJSON(c, raw)
}

func sendRawJSON(c *fiber.Ctx, raw []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}
