package middleware

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/database"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/token"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/usercontext"
)

// JWTAuthMiddleware authenticates requests carrying a Bearer session token and
// loads the matching user into the request context.
func JWTAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := extractBearerToken(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing token"})
		}

		claims, err := token.Parse(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid token"})
		}

		db := database.GetDB()
		if db == nil {
			log.Print("auth middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
		}

		repo := repository.GetGlobalFactory().GetUserRepository()
		user, err := repo.GetByID(claims.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Unknown user"})
			}
			log.Printf("auth middleware: user lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User lookup failed"})
		}

		userCtx := usercontext.UserContext{
			UserID:        user.ID,
			WalletAddress: user.WalletAddress,
			IsLoggedIn:    true,
			IsPremium:     user.Subscription.IsActive(time.Now()),
		}
		c.Locals(usercontext.KeyUserContext, userCtx)
		c.Locals(usercontext.KeyUserID, user.ID)
		c.Locals(usercontext.KeyWallet, user.WalletAddress)

		return c.Next()
	}
}

// RequirePremium gates a route behind an active subscription. It must run
// after JWTAuthMiddleware.
func RequirePremium(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).IsPremium {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Premium subscription required"})
	}
	return c.Next()
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(c.Get("X-Session-Token"))
}
