package handlers

import (
	"match-escrow-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(router fiber.Router, pools *services.MatchPoolService, events *services.EventService) {
	router.Post("/matches", pools.HandleInitialize)
	router.Get("/matches/:match_id", pools.HandleGetPool)
	router.Delete("/matches/:match_id", pools.HandleClosePool)

	// Participants
	router.Post("/matches/:match_id/deposits", pools.HandleDeposit)
	router.Post("/matches/:match_id/rollup/transfers", pools.HandleTransferInRollup)

	// Admin lifecycle
	router.Post("/matches/:match_id/end", pools.HandleEndMatch)
	router.Post("/matches/:match_id/distribute", pools.HandleDistributePrizes)
	router.Get("/matches/:match_id/payouts", pools.HandleListPayouts)

	router.Get("/matches/:match_id/events", events.HandleListEvents)
}
