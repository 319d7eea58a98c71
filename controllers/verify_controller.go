package controllers

import (
	"github.com/gofiber/fiber/v2"

	"verifyengine/enrich"
	"verifyengine/models"
	"verifyengine/utils"
	"verifyengine/verifier"
)

// VerifyController exposes the §6 verify/enrich single-address operations.
type VerifyController struct {
	Verifier *verifier.Verifier
	Enricher *enrich.Enricher
}

func NewVerifyController(v *verifier.Verifier, e *enrich.Enricher) *VerifyController {
	return &VerifyController{Verifier: v, Enricher: e}
}

// Verify runs the full verification pipeline (§4.6) against one address.
func (vc *VerifyController) Verify(c *fiber.Ctx) error {
	_, ok := c.Locals("user").(*models.User)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "authorization required", nil)
	}

	email := c.Query("email")
	if email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "email query parameter is required", nil)
	}

	opts := verifier.DefaultOptions()
	result := vc.Verifier.Verify(c.Context(), email, opts)

	return c.JSON(utils.SuccessResponse(result))
}

// Enrich runs verification plus the Enricher's best-effort name/company/age
// guesses (§4.7) against one address.
func (vc *VerifyController) Enrich(c *fiber.Ctx) error {
	_, ok := c.Locals("user").(*models.User)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "authorization required", nil)
	}

	email := c.Query("email")
	if email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "email query parameter is required", nil)
	}

	opts := verifier.DefaultOptions()
	result := vc.Enricher.Enrich(c.Context(), email, opts)

	return c.JSON(utils.SuccessResponse(result))
}
