package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coinchartfun/coinchart-backend/app/controllers"
)

type MarketRouter struct {
}

// Market data routes live at the root, matching the paths the chart
// frontend already requests.
func (h MarketRouter) InstallRouter(app *fiber.App) {
	app.Get("/risks/:source", controllers.HandleRisks)
	app.Get("/signals", controllers.HandleSignals)
	app.Get("/candle_data/:source", controllers.HandleCandleData)
	app.Get("/symbol_list", controllers.HandleSymbolList)
}

func NewMarketRouter() *MarketRouter {
	return &MarketRouter{}
}
