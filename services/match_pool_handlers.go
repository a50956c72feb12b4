// services/match_pool_handlers.go
package services

import (
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/models"

	"github.com/gofiber/fiber/v2"
)

type initializeRequest struct {
	MatchID             string `json:"match_id"`
	RegistrationEndTime string `json:"registration_end_time"` // RFC3339
}

type depositRequest struct {
	Amount         uint64 `json:"amount"`
	FundingAccount string `json:"funding_account"`
	RequestID      string `json:"request_id"`
}

type distributeRequest struct {
	Prizes              []escrow.Prize              `json:"prizes"`
	DestinationAccounts []escrow.DestinationAccount `json:"destination_accounts"`
}

type rollupTransferRequest struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
}

// poolView is the API shape of a pool, with amounts also rendered in
// whole tokens.
type poolView struct {
	*models.MatchPool
	State          escrow.State      `json:"state"`
	TotalFormatted string            `json:"total_deposited_formatted"`
	DepositsView   map[string]string `json:"deposits_formatted"`
}

func (s *MatchPoolService) view(row *models.MatchPool) poolView {
	formatted := make(map[string]string, len(row.Deposits))
	for _, d := range row.Deposits {
		formatted[d.User] = FormatAmount(d.Amount, s.Decimals)
	}
	return poolView{
		MatchPool:      row,
		State:          row.Domain().State(),
		TotalFormatted: FormatAmount(row.TotalDeposited, s.Decimals),
		DepositsView:   formatted,
	}
}

func (s *MatchPoolService) HandleInitialize(c *fiber.Ctx) error {
	var req initializeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	regEnd, err := time.Parse(time.RFC3339, req.RegistrationEndTime)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid registration_end_time (use RFC3339)"})
	}
	row, err := s.Initialize(c.UserContext(), callerID(c), req.MatchID, regEnd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(s.view(row))
}

func (s *MatchPoolService) HandleGetPool(c *fiber.Ctx) error {
	row, err := s.GetPool(c.UserContext(), c.Params("match_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s.view(row))
}

func (s *MatchPoolService) HandleDeposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	row, err := s.Deposit(c.UserContext(), callerID(c), c.Params("match_id"), req.Amount, req.FundingAccount, req.RequestID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s.view(row))
}

func (s *MatchPoolService) HandleEndMatch(c *fiber.Ctx) error {
	row, err := s.EndMatch(c.UserContext(), callerID(c), c.Params("match_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s.view(row))
}

func (s *MatchPoolService) HandleDistributePrizes(c *fiber.Ctx) error {
	var req distributeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	res, err := s.DistributePrizes(c.UserContext(), callerID(c), c.Params("match_id"), req.Prizes, req.DestinationAccounts)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (s *MatchPoolService) HandleClosePool(c *fiber.Ctx) error {
	if err := s.ClosePool(c.UserContext(), callerID(c), c.Params("match_id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *MatchPoolService) HandleTransferInRollup(c *fiber.Ctx) error {
	var req rollupTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	row, err := s.TransferInRollup(c.UserContext(), callerID(c), c.Params("match_id"), req.Receiver, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s.view(row))
}

func (s *MatchPoolService) HandleListPayouts(c *fiber.Ctx) error {
	payouts, err := s.ListPayouts(c.UserContext(), c.Params("match_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payouts": payouts, "count": len(payouts)})
}
