// services/errors.go
package services

import (
	"errors"
	"log"

	"match-escrow-system/escrow"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps escrow error codes onto HTTP statuses.
func statusFor(err error) int {
	var e *escrow.Error
	if !errors.As(err, &e) {
		return fiber.StatusInternalServerError
	}
	switch e.Code {
	case escrow.CodeUnauthorized:
		return fiber.StatusForbidden
	case escrow.CodeMatchNotFound, escrow.CodeAccountNotFound, escrow.CodeWinnerAccountNotFound:
		return fiber.StatusNotFound
	case escrow.CodeMatchInactive, escrow.CodeMatchStillActive, escrow.CodeMatchFinalized,
		escrow.CodeMatchAlreadyFinalized, escrow.CodeMatchNotFinalized, escrow.CodeRegistrationClosed,
		escrow.CodePoolNotEmpty, escrow.CodeMatchExists,
		escrow.CodeAccountDelegated, escrow.CodeNotDelegated, escrow.CodeAlreadyDelegated, escrow.CodeRollupOnly:
		return fiber.StatusConflict
	case escrow.CodeInsufficientPoolFunds, escrow.CodeInsufficientBalance,
		escrow.CodeCapacityExceeded, escrow.CodeArithmeticOverflow:
		return fiber.StatusUnprocessableEntity
	case escrow.CodeInvalidAmount, escrow.CodeInvalidReceiver, escrow.CodeInvalidMatchID:
		return fiber.StatusBadRequest
	case escrow.CodeTokenTransferError, escrow.CodeSettlementError:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	code := "INTERNAL"
	var e *escrow.Error
	if errors.As(err, &e) {
		code = string(e.Code)
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [Escrow] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

// callerID is the identity the gateway forwarded in X-User-ID.
func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
