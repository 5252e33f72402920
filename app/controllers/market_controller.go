package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/marketdata"
)

// HandleRisks serves the parsed risk sheet for one exchange source.
func HandleRisks(c *fiber.Ctx) error {
	source := c.Params("source")

	tokens, err := marketData.Risks(source)
	if err != nil {
		if errors.Is(err, marketdata.ErrUnknownSource) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Unknown data source"})
		}
		log.Errorf("[Market] risk sheet load failed for %s: %v", source, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load risk data"})
	}
	return c.JSON(tokens)
}

// HandleSignals serves the precomputed trading signals file as-is.
func HandleSignals(c *fiber.Ctx) error {
	raw, err := marketData.Signals()
	if err != nil {
		log.Errorf("[Market] signals load failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load signals"})
	}
	return sendRawJSON(c, raw)
}

// HandleSymbolList serves the tradable symbol list as-is.
func HandleSymbolList(c *fiber.Ctx) error {
	raw, err := marketData.SymbolList()
	if err != nil {
		log.Errorf("[Market] symbol list load failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load symbol list"})
	}
	return sendRawJSON(c, raw)
}

// HandleCandleData serves the OHLCV series for one symbol. Unknown symbols
// yield an empty series rather than an error.
func HandleCandleData(c *fiber.Ctx) error {
	symbol := c.Params("source")

	candles, err := marketData.CandleData(symbol)
	if err != nil {
		if errors.Is(err, marketdata.ErrUnknownSource) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid symbol"})
		}
		log.Errorf("[Market] candle data load failed for %s: %v", symbol, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load candle data"})
	}
	return c.JSON(candles)
}
