package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/referral"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/token"
)

type walletRequest struct {
	WalletAddress string `json:"walletAddress"`
	CoinID        string `json:"coinId"`
}

// HandleRegister signs a wallet in, creating its record on first contact.
// New records start Free with auto-renewal off; a later paid webhook flips
// them to Premium.
func HandleRegister(c *fiber.Ctx) error {
	var req walletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	wallet := models.NormalizeWallet(req.WalletAddress)
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Wallet address is required"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByWallet(wallet)
	if err == nil {
		jwt, terr := token.Issue(user.ID, user.WalletAddress)
		if terr != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Token generation failed"})
		}
		_ = repo.TouchLastLogin(user.ID, time.Now())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success":   true,
			"message":   "User info retrieved successfully",
			"isNewUser": false,
			"token":     jwt,
			"user":      user,
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[Auth] wallet lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Internal server error"})
	}

	user = &models.User{
		WalletAddress: wallet,
		Subscription: models.Subscription{
			Status:            models.SubscriptionStatusFree,
			CancelAtPeriodEnd: true,
		},
	}
	if code, rerr := referral.GenerateCode(); rerr == nil {
		user.ReferralCode = &code
	}
	if err := user.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid user data"})
	}
	if err := repo.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against a concurrent first sign-in; the record exists now.
			if user, err = repo.GetByWallet(wallet); err == nil {
				jwt, terr := token.Issue(user.ID, user.WalletAddress)
				if terr != nil {
					return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Token generation failed"})
				}
				return c.Status(fiber.StatusOK).JSON(fiber.Map{
					"success":   true,
					"message":   "User info retrieved successfully",
					"isNewUser": false,
					"token":     jwt,
					"user":      user,
				})
			}
		}
		log.Errorf("[Auth] user create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Internal server error"})
	}

	jwt, err := token.Issue(user.ID, user.WalletAddress)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Token generation failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"message":   "User created successfully",
		"isNewUser": true,
		"token":     jwt,
		"user":      user,
	})
}

// HandleCheckSubscription returns the stored record plus the derived
// isActive flag for the given wallet.
func HandleCheckSubscription(c *fiber.Ctx) error {
	var req walletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	wallet := models.NormalizeWallet(req.WalletAddress)
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Wallet address is required"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByWallet(wallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Internal server error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Subscription status retrieved successfully",
		"user":    userWithActivity(user, time.Now()),
	})
}

// HandleVerifySubscription resolves a provider subscription id to its user.
// Used by the payment return page, which only knows the subscription id.
func HandleVerifySubscription(c *fiber.Ctx) error {
	subscriptionID := strings.TrimSpace(c.Params("pid"))
	if subscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Subscription id is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, active, err := billingService().UserBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found or subscription invalid"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to verify subscription"})
	}

	data := userWithActivity(user, time.Now())
	data["isActive"] = active
	return c.JSON(fiber.Map{
		"success": true,
		"message": "User information retrieved successfully",
		"data":    data,
	})
}

// HandleAddFavorite appends a coin to the wallet's favorites list.
func HandleAddFavorite(c *fiber.Ctx) error {
	return mutateFavorites(c, func(favorites []string, coinID string) ([]string, bool) {
		for _, id := range favorites {
			if id == coinID {
				return favorites, false
			}
		}
		return append(favorites, coinID), true
	})
}

// HandleRemoveFavorite removes a coin from the wallet's favorites list.
func HandleRemoveFavorite(c *fiber.Ctx) error {
	return mutateFavorites(c, func(favorites []string, coinID string) ([]string, bool) {
		out := favorites[:0]
		removed := false
		for _, id := range favorites {
			if id == coinID {
				removed = true
				continue
			}
			out = append(out, id)
		}
		return out, removed
	})
}

// HandleGetFavorites returns the favorites list for a wallet.
func HandleGetFavorites(c *fiber.Ctx) error {
	wallet := models.NormalizeWallet(c.Params("walletAddress"))
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Wallet address is required"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByWallet(wallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Internal server error"})
	}

	favorites := user.Favorites
	if favorites == nil {
		favorites = []string{}
	}
	return c.JSON(fiber.Map{"success": true, "favorites": favorites})
}

func mutateFavorites(c *fiber.Ctx, apply func([]string, string) ([]string, bool)) error {
	var req walletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	wallet := models.NormalizeWallet(req.WalletAddress)
	coinID := strings.TrimSpace(req.CoinID)
	if wallet == "" || coinID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Wallet address and coin ID are required"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByWallet(wallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Internal server error"})
	}

	favorites, changed := apply(user.Favorites, coinID)
	if changed {
		if err := repo.UpdateFavorites(user.ID, favorites); err != nil {
			log.Errorf("[Auth] favorites update failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Internal server error"})
		}
	}
	if favorites == nil {
		favorites = []string{}
	}
	return c.JSON(fiber.Map{"success": true, "favorites": favorites})
}

// userWithActivity renders a user with the derived isActive flag folded into
// the subscription object, matching what the frontend polls for.
func userWithActivity(user *models.User, now time.Time) fiber.Map {
	return fiber.Map{
		"id":            user.ID,
		"walletAddress": user.WalletAddress,
		"name":          user.Name,
		"email":         user.Email,
		"phone":         user.Phone,
		"customerId":    user.CustomerID,
		"favorites":     user.Favorites,
		"subscription": fiber.Map{
			"status":            user.Subscription.Status,
			"subscriptionId":    user.Subscription.SubscriptionID,
			"periodStartAt":     user.Subscription.PeriodStartAt,
			"periodEndAt":       user.Subscription.PeriodEndAt,
			"expiryDate":        user.Subscription.ExpiryDate,
			"cancelAtPeriodEnd": user.Subscription.CancelAtPeriodEnd,
			"isActive":          user.Subscription.IsActive(now),
		},
	}
}
