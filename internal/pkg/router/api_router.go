package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/coinchartfun/coinchart-backend/app/controllers"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/changelly"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/middleware"
)

type ApiRouter struct {
	swapProxy *changelly.Proxy
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	requireAuth := middleware.JWTAuthMiddleware()

	auth := api.Group("/auth")
	auth.Post("/register", controllers.HandleRegister)
	auth.Get("/verify-subscription/:pid", controllers.HandleVerifySubscription)
	auth.Post("/check-subscription", requireAuth, controllers.HandleCheckSubscription)
	auth.Post("/favorites/add", requireAuth, controllers.HandleAddFavorite)
	auth.Post("/favorites/remove", requireAuth, controllers.HandleRemoveFavorite)
	auth.Get("/favorites/:walletAddress", requireAuth, controllers.HandleGetFavorites)

	// BoomFi management API passthrough for the admin dashboard
	sub := api.Group("/subscription")
	sub.Get("/customers", controllers.HandleListCustomers)
	sub.Get("/customers/:customerId", controllers.HandleGetCustomer)
	sub.Get("/subscriptions", controllers.HandleListSubscriptions)

	// DEX swap passthrough; the upstream API key stays server-side
	api.All("/defi-swap/*", h.swapProxy.Handler("/api/defi-swap"))

	// Operational endpoints, only mounted when credentials are configured
	if pass := env.GetEnv("ADMIN_PASSWORD", ""); pass != "" {
		admin := api.Group("/admin", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("ADMIN_USER", "admin"): pass,
			},
		}))
		admin.Get("/stats", controllers.HandleAdminStats)
		admin.Get("/users", controllers.HandleAdminListUsers)
		admin.Get("/webhooks/status", controllers.HandleWebhookStatus)
		admin.Post("/webhooks/replay", controllers.HandleWebhookReplay)
	}
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{
		swapProxy: changelly.NewProxyFromEnv(),
	}
}
