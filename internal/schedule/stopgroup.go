package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wheresmybus/internal/gtfs"
)

// Rollup controls whether a lookup aggregates a station with its platforms.
type Rollup string

const (
	RollupAuto    Rollup = "auto"
	RollupStation Rollup = "station"
	RollupStop    Rollup = "stop"
)

// ParseRollup accepts auto, station or stop; empty means auto.
func ParseRollup(s string) (Rollup, error) {
	switch r := Rollup(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RollupAuto, nil
	case RollupAuto, RollupStation, RollupStop:
		return r, nil
	default:
		return "", fmt.Errorf("%w: rollup %q must be auto, station or stop", gtfs.ErrInvalidInput, s)
	}
}

type StopStore interface {
	StopByID(ctx context.Context, stopID string) (gtfs.Stop, error)
	ChildStops(ctx context.Context, stationID string) ([]gtfs.Stop, error)
}

// ResolveStopGroup classifies stopID and expands it into the set of stop ids
// to query. The result's GroupStopIDs is never empty.
func ResolveStopGroup(ctx context.Context, store StopStore, stopID string, rollup Rollup) (gtfs.StopGroup, error) {
	row, err := store.StopByID(ctx, stopID)
	if err != nil {
		return gtfs.StopGroup{}, err
	}
	kind := row.Kind()

	switch {
	case kind == gtfs.StopKindStation && (rollup == RollupStation || rollup == RollupAuto):
		return stationGroup(ctx, store, row, row.StopID)
	case rollup == RollupStation && row.ParentStation != "":
		station, err := store.StopByID(ctx, row.ParentStation)
		switch {
		case errors.Is(err, gtfs.ErrNotFound):
			station = row
		case err != nil:
			return gtfs.StopGroup{}, err
		}
		return stationGroup(ctx, store, station, row.ParentStation)
	case rollup == RollupStation:
		return gtfs.StopGroup{Kind: gtfs.StopKindStop, Base: row, GroupStopIDs: []string{row.StopID}}, nil
	default:
		return gtfs.StopGroup{
			Kind:         kind,
			Base:         row,
			StationID:    row.ParentStation,
			GroupStopIDs: []string{row.StopID},
		}, nil
	}
}

func stationGroup(ctx context.Context, store StopStore, base gtfs.Stop, stationID string) (gtfs.StopGroup, error) {
	kids, err := store.ChildStops(ctx, stationID)
	if err != nil {
		return gtfs.StopGroup{}, err
	}
	ids := make([]string, 0, len(kids))
	for _, k := range kids {
		ids = append(ids, k.StopID)
	}
	if len(ids) == 0 {
		ids = []string{stationID}
	}
	return gtfs.StopGroup{
		Kind:         gtfs.StopKindStation,
		Base:         base,
		StationID:    stationID,
		Children:     kids,
		GroupStopIDs: ids,
		Rolled:       true,
	}, nil
}
