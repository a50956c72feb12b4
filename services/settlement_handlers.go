// services/settlement_handlers.go
package services

import (
	"time"

	"match-escrow-system/models"

	"github.com/gofiber/fiber/v2"
)

type delegateRequest struct {
	CommitFrequencyMs int64  `json:"commit_frequency_ms"`
	TokenAccount      string `json:"token_account"`
}

type accountsRequest struct {
	Accounts []string `json:"accounts"`
}

func parseDelegateRequest(c *fiber.Ctx) (delegateRequest, error) {
	var req delegateRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	err := c.BodyParser(&req)
	return req, err
}

func (s *SettlementService) handleDelegate(c *fiber.Ctx, run func(req delegateRequest, freq time.Duration) (*models.Delegation, error)) error {
	req, err := parseDelegateRequest(c)
	if err != nil || req.CommitFrequencyMs < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	d, err := run(req, time.Duration(req.CommitFrequencyMs)*time.Millisecond)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

func (s *SettlementService) HandleDelegateMatchPool(c *fiber.Ctx) error {
	return s.handleDelegate(c, func(_ delegateRequest, freq time.Duration) (*models.Delegation, error) {
		return s.DelegateMatchPool(c.UserContext(), callerID(c), c.Params("match_id"), freq)
	})
}

func (s *SettlementService) HandleDelegatePoolToken(c *fiber.Ctx) error {
	return s.handleDelegate(c, func(_ delegateRequest, freq time.Duration) (*models.Delegation, error) {
		return s.DelegatePoolToken(c.UserContext(), callerID(c), c.Params("match_id"), freq)
	})
}

func (s *SettlementService) HandleDelegateUserDeposit(c *fiber.Ctx) error {
	return s.handleDelegate(c, func(_ delegateRequest, freq time.Duration) (*models.Delegation, error) {
		return s.DelegateUserDeposit(c.UserContext(), callerID(c), c.Params("match_id"), freq)
	})
}

func (s *SettlementService) HandleDelegateUserToken(c *fiber.Ctx) error {
	return s.handleDelegate(c, func(req delegateRequest, freq time.Duration) (*models.Delegation, error) {
		return s.DelegateUserToken(c.UserContext(), callerID(c), c.Params("match_id"), req.TokenAccount, freq)
	})
}

func (s *SettlementService) HandleListDelegations(c *fiber.Ctx) error {
	out, err := s.ListDelegations(c.UserContext(), c.Params("match_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"delegations": out})
}

func (s *SettlementService) HandleCommit(c *fiber.Ctx) error {
	var req accountsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	res, err := s.Commit(c.UserContext(), callerID(c), c.Params("match_id"), req.Accounts)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (s *SettlementService) HandleUndelegate(c *fiber.Ctx) error {
	var req accountsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	snaps, err := s.Undelegate(c.UserContext(), callerID(c), c.Params("match_id"), req.Accounts)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"match_id": c.Params("match_id"), "undelegated": snaps})
}
