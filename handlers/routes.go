package handlers

import (
	"match-escrow-system/middleware"
	"match-escrow-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes registers every escrow route. When authClient is nil the
// event stream sits behind the gateway like every other route.
func SetupRoutes(app *fiber.App, pools *services.MatchPoolService, settlement *services.SettlementService, events *services.EventService, authClient *services.AuthServiceClient) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "context": pools.Context})
	})
	if authClient != nil {
		app.Get("/matches/:match_id/events/stream", middleware.SSEAuthMiddleware(authClient), events.StreamMatchEventsSSE)
	}

	// 🔐 Caller identity required from here on
	secured := app.Group("/", middleware.UserContextMiddleware())
	SetupMatchRoutes(secured, pools, events)
	SetupSettlementRoutes(secured, settlement)
	if authClient == nil {
		secured.Get("/matches/:match_id/events/stream", events.StreamMatchEventsSSE)
	}
}
