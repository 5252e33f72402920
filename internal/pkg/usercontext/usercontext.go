package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated user for a request
type UserContext struct {
	UserID        uint   `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	IsLoggedIn    bool   `json:"is_logged_in"`
	IsPremium     bool   `json:"is_premium"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(KeyUserContext); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// GetWallet returns the current user's wallet address, or empty if anonymous
func GetWallet(c *fiber.Ctx) string {
	return GetUserContext(c).WalletAddress
}
