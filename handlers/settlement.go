package handlers

import (
	"match-escrow-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSettlementRoutes(router fiber.Router, settlement *services.SettlementService) {
	m := router.Group("/matches/:match_id")

	m.Post("/delegations/pool", settlement.HandleDelegateMatchPool)
	m.Post("/delegations/pool-token", settlement.HandleDelegatePoolToken)
	m.Post("/delegations/deposit", settlement.HandleDelegateUserDeposit)
	m.Post("/delegations/token-account", settlement.HandleDelegateUserToken)
	m.Get("/delegations", settlement.HandleListDelegations)

	m.Post("/commit", settlement.HandleCommit)
	m.Post("/undelegate", settlement.HandleUndelegate)
}
