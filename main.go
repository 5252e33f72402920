package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/stripe/stripe-go/v79"

	"github.com/coinchartfun/coinchart-backend/app/controllers"
	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/billing"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/boomfi"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/cache"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/database"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/keylock"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/marketdata"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/router"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/webhookretry"
)

func main() {
	app, replay := NewApplication()

	// Shut the replay worker down cleanly on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		replay.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *webhookretry.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")

	// Reconciliation engine: one store, one lock manager, one processor for
	// both webhook providers and the replay worker.
	service := billing.NewService(billing.NewStore(database.GetDB()), keylock.NewManager())
	processor := billing.NewProcessor(
		service,
		billing.NewStripeNormalizer(billing.NewAPISubscriptionResolver(), time.Now),
		billing.NewBoomfiNormalizer(env.GetEnv("BOOMFI_INVERT_CANCEL_FLAG", "") == "true"),
	)

	replay := webhookretry.NewManager(processor, repository.GetGlobalRepositories().WebhookEvent)
	replay.Start()

	market := marketdata.NewService(
		env.GetEnv("MARKET_DATA_DIR", "./data"),
		env.GetEnv("CANDLE_DATA_DIR", "./data/candles"),
		5*time.Minute,
	)

	controllers.Initialize(processor, replay, market, boomfi.NewClientFromEnv())

	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-Token",
	}))

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app, replay
}
