package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"verifyengine/config"
	"verifyengine/models"
	"verifyengine/utils"
)

// Protected guards a route with a bearer token (or access_token cookie), or
// an X-API-Key header for the server-to-server callers §6's inbound
// interface is meant to serve. Either resolves to an active models.User in
// fiber locals.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get("X-API-Key"); key != "" {
			return authenticateAPIKey(c, key)
		}
		return authenticateJWT(c)
	}
}

func authenticateJWT(c *fiber.Ctx) error {
	var token string
	authHeader := c.Get("Authorization")
	if authHeader != "" {
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization format",
			})
		}
		token = tokenParts[1]
	} else {
		token = c.Cookies("access_token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
			})
		}
	}

	claims, err := utils.ParseJWTToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	var user models.User
	if err := config.DB.First(&user, claims.UserID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	if !user.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Account is not active",
		})
	}

	c.Locals("user", &user)
	c.Locals("userID", user.ID)

	return c.Next()
}

func authenticateAPIKey(c *fiber.Ctx, key string) error {
	var apiKey models.APIKey
	if err := config.DB.Where("key = ? AND is_active = ?", key, true).First(&apiKey).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid API key",
		})
	}

	var user models.User
	if err := config.DB.First(&user, apiKey.UserID).Error; err != nil || !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid API key",
		})
	}

	now := time.Now()
	config.DB.Model(&apiKey).Update("last_used", &now)

	c.Locals("user", &user)
	c.Locals("userID", user.ID)

	return c.Next()
}
