package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse writes a standardized error body, matching the teacher's
// {"success": false, "error": ...} envelope shape.
func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	response := fiber.Map{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// SuccessResponse wraps data in the teacher's {"success": true, "data": ...}
// envelope shape.
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// ParseUint safely parses a path/query parameter to uint, returning 0 on
// malformed input rather than erroring, matching the teacher's usage at
// route-param boundaries.
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}
