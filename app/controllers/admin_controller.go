package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/statistics"
)

const adminUsersPageSize = 50

// HandleAdminStats returns the cached dashboard counts.
func HandleAdminStats(c *fiber.Ctx) error {
	statistics.UpdateCacheIfNeeded()
	return c.JSON(statistics.GetStatistics())
}

// HandleAdminListUsers pages through user records, or searches by wallet,
// name or email when q is given.
func HandleAdminListUsers(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetUserRepository()

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		users, err := repo.Search(q)
		if err != nil {
			log.Errorf("[Admin] user search failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Search failed"})
		}
		return c.JSON(fiber.Map{"success": true, "users": users})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	users, err := repo.List((page-1)*adminUsersPageSize, adminUsersPageSize)
	if err != nil {
		log.Errorf("[Admin] user listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Listing failed"})
	}
	total, err := repo.Count()
	if err != nil {
		log.Errorf("[Admin] user count failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Listing failed"})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"users":   users,
		"page":    page,
		"total":   total,
	})
}
