package schedule

import (
	"context"

	"wheresmybus/internal/gtfs"
)

// WindowStore is the slice of the static store the window fetcher reads.
type WindowStore interface {
	RouteEvents(ctx context.Context, q gtfs.RouteWindowQuery) ([]gtfs.ScheduledRow, error)
	StopEvents(ctx context.Context, q gtfs.StopWindowQuery) ([]gtfs.ScheduledRow, error)
}

// Target is either a route (RouteID set) or a stop group (Group set).
type Target struct {
	RouteID   string
	Mode      gtfs.FetchMode
	Group     *gtfs.StopGroup
	Direction *int
}

func (t Target) isStop() bool { return t.Group != nil }

// Window is a time-of-day range in seconds since a service date's midnight.
// A nil End leaves the range open.
type Window struct {
	Start int
	End   *int
}

type WindowFetcher struct {
	store WindowStore
}

func NewWindowFetcher(store WindowStore) *WindowFetcher {
	return &WindowFetcher{store: store}
}

// Fetch returns the qualifying events inside w for the given services: one per
// trip for a route, one per trip and stop for a stop group.
func (f *WindowFetcher) Fetch(ctx context.Context, serviceIDs []string, target Target, w Window, limit int) ([]gtfs.ScheduledRow, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	if !target.isStop() {
		mode := target.Mode
		if mode == "" {
			mode = gtfs.FetchTimetable
		}
		return f.store.RouteEvents(ctx, gtfs.RouteWindowQuery{
			RouteID:    target.RouteID,
			ServiceIDs: serviceIDs,
			Direction:  target.Direction,
			Mode:       mode,
			StartSec:   w.Start,
			EndSec:     w.End,
			Limit:      limit,
		})
	}

	if len(target.Group.GroupStopIDs) == 0 {
		return nil, nil
	}
	return f.store.StopEvents(ctx, gtfs.StopWindowQuery{
		StopIDs:    target.Group.GroupStopIDs,
		ServiceIDs: serviceIDs,
		Direction:  target.Direction,
		StartSec:   w.Start,
		EndSec:     w.End,
		Limit:      limit,
	})
}
