package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"wheresmybus/internal/gtfs"
	"wheresmybus/internal/reconcile"
	"wheresmybus/internal/service"
)

// Engine is the request surface the HTTP layer drives.
type Engine interface {
	Today() gtfs.ServiceDate
	RouteOverview(ctx context.Context, req service.RouteOverviewRequest) (service.RouteOverview, error)
	RouteUpcoming(ctx context.Context, req service.RouteUpcomingRequest) (reconcile.RouteResult, error)
	StopOverview(ctx context.Context, req service.StopOverviewRequest) (service.StopOverview, error)
	StopUpcoming(ctx context.Context, req service.StopUpcomingRequest) (reconcile.StopResult, error)
}

func NewApp(engine Engine) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "wheresmybus",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(NewLogger())

	h := &handlers{engine: engine}
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	routes := app.Group("/route")
	routes.Get("/:routeId", h.getRoute)
	routes.Get("/:routeId/upcoming", h.getRouteUpcoming)

	stops := app.Group("/stop")
	stops.Get("/:stopId", h.getStop)
	stops.Get("/:stopId/upcoming", h.getStopUpcoming)

	return app
}
