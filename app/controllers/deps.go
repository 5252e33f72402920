package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/billing"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/boomfi"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/marketdata"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/webhookretry"
)

// Shared handler dependencies, wired once at startup. Handlers read these
// instead of rebuilding services per request so the per-customer lock
// manager stays a process-wide singleton.
var (
	webhookProcessor *billing.Processor
	replayManager    *webhookretry.Manager
	marketData       *marketdata.Service
	boomfiClient     *boomfi.Client
)

// Initialize wires the controller package with its service dependencies.
// Must be called before the router is mounted.
func Initialize(p *billing.Processor, rm *webhookretry.Manager, md *marketdata.Service, bc *boomfi.Client) {
	webhookProcessor = p
	replayManager = rm
	marketData = md
	boomfiClient = bc
}

func billingService() *billing.Service {
	return webhookProcessor.Service()
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Get(k)); v != "" {
			return v
		}
	}
	return ""
}
