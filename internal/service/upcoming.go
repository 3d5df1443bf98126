package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wheresmybus/internal/gtfs"
	"wheresmybus/internal/reconcile"
	"wheresmybus/internal/schedule"
)

// Basis selects which departure represents a trip in route-mode.
type Basis string

const (
	BasisOrigin Basis = "origin"
	BasisNext   Basis = "next"
)

func ParseBasis(s string) (Basis, error) {
	switch b := Basis(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BasisOrigin, nil
	case BasisOrigin, BasisNext:
		return b, nil
	default:
		return "", fmt.Errorf("%w: basis %q must be origin or next", gtfs.ErrInvalidInput, s)
	}
}

type RouteUpcomingRequest struct {
	RouteID   string
	Direction *int
	Minutes   *int
	Limit     *int
	At        *time.Time
	Basis     Basis
}

type StopUpcomingRequest struct {
	StopID    string
	Rollup    schedule.Rollup
	Direction *int
	Minutes   *int
	Limit     *int
	At        *time.Time
}

func (s *Service) anchor(at *time.Time) time.Time {
	if at != nil {
		return *at
	}
	return s.now()
}

// RouteUpcoming answers "what runs on this route in the next N minutes".
func (s *Service) RouteUpcoming(ctx context.Context, req RouteUpcomingRequest) (reconcile.RouteResult, error) {
	if _, err := s.store.RouteByID(ctx, req.RouteID); err != nil {
		return reconcile.RouteResult{}, err
	}
	limit := limitOrDefault(req.Limit)

	target := schedule.Target{RouteID: req.RouteID, Direction: req.Direction, Mode: gtfs.FetchTimetable}
	horizon := s.horizons.Route
	if req.Basis == BasisNext {
		target.Mode = gtfs.FetchUpcoming
		horizon = s.horizons.RouteNext
	}

	stitched, err := s.stitcher.Stitch(ctx, schedule.StitchQuery{
		Target:         target,
		At:             s.anchor(req.At),
		Minutes:        req.Minutes,
		DefaultMinutes: horizon,
		Limit:          candidates(limit),
	})
	if err != nil {
		return reconcile.RouteResult{}, err
	}

	snap := s.snapshot(ctx, stitched.Date)
	res := s.merger.MergeRoute(stitched.Rows, snap, limit)
	if err := s.enrichStopNames(ctx, res.Vehicles()); err != nil {
		return reconcile.RouteResult{}, err
	}
	s.record("route_upcoming", res.Mode, len(res.Data))
	return res, nil
}

// StopUpcoming answers "what arrives at this stop or station next".
func (s *Service) StopUpcoming(ctx context.Context, req StopUpcomingRequest) (reconcile.StopResult, error) {
	rollup := req.Rollup
	if rollup == "" {
		rollup = schedule.RollupAuto
	}
	group, err := schedule.ResolveStopGroup(ctx, s.store, req.StopID, rollup)
	if err != nil {
		return reconcile.StopResult{}, err
	}
	limit := limitOrDefault(req.Limit)

	stitched, err := s.stitcher.Stitch(ctx, schedule.StitchQuery{
		Target:         schedule.Target{Group: &group, Direction: req.Direction},
		At:             s.anchor(req.At),
		Minutes:        req.Minutes,
		DefaultMinutes: s.horizons.Stop,
		Limit:          candidates(limit),
	})
	if err != nil {
		return reconcile.StopResult{}, err
	}

	snap := s.snapshot(ctx, stitched.Date)
	res := s.merger.MergeStop(ctx, stitched.Rows, snap, limit)
	if err := s.enrichStopNames(ctx, res.Vehicles()); err != nil {
		return reconcile.StopResult{}, err
	}
	s.record("stop_upcoming", res.Mode, len(res.Data))
	return res, nil
}
