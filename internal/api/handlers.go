package api

import (
	"github.com/gofiber/fiber/v2"

	"wheresmybus/internal/schedule"
	"wheresmybus/internal/service"
)

type handlers struct {
	engine Engine
}

func (h *handlers) getRoute(c *fiber.Ctx) error {
	var q overviewQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	date, err := optionalDate(q.ServiceDate)
	if err != nil {
		return err
	}
	res, err := h.engine.RouteOverview(c.UserContext(), service.RouteOverviewRequest{
		RouteID:     c.Params("routeId"),
		ServiceDate: date,
		Direction:   service.ParseDirection(q.Direction),
		Page:        intOr(q.Page, 1),
		Limit:       optionalInt(q.Limit),
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *handlers) getRouteUpcoming(c *fiber.Ctx) error {
	var q upcomingQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	at, err := optionalTime(q.At)
	if err != nil {
		return err
	}
	basis, err := service.ParseBasis(q.Basis)
	if err != nil {
		return err
	}
	res, err := h.engine.RouteUpcoming(c.UserContext(), service.RouteUpcomingRequest{
		RouteID:   c.Params("routeId"),
		Direction: service.ParseDirection(q.Direction),
		Minutes:   optionalInt(q.Minutes),
		Limit:     optionalInt(q.Limit),
		At:        at,
		Basis:     basis,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *handlers) getStop(c *fiber.Ctx) error {
	var q overviewQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	rollup, err := schedule.ParseRollup(q.Rollup)
	if err != nil {
		return err
	}
	date, err := optionalDate(q.ServiceDate)
	if err != nil {
		return err
	}
	res, err := h.engine.StopOverview(c.UserContext(), service.StopOverviewRequest{
		StopID:      c.Params("stopId"),
		ServiceDate: date,
		Rollup:      rollup,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *handlers) getStopUpcoming(c *fiber.Ctx) error {
	var q upcomingQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	rollup, err := schedule.ParseRollup(q.Rollup)
	if err != nil {
		return err
	}
	at, err := optionalTime(q.At)
	if err != nil {
		return err
	}
	res, err := h.engine.StopUpcoming(c.UserContext(), service.StopUpcomingRequest{
		StopID:    c.Params("stopId"),
		Rollup:    rollup,
		Direction: service.ParseDirection(q.Direction),
		Minutes:   optionalInt(q.Minutes),
		Limit:     optionalInt(q.Limit),
		At:        at,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}
