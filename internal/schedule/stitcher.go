package schedule

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"wheresmybus/internal/gtfs"
)

const (
	MinHorizonMinutes = 1
	MaxHorizonMinutes = 1440

	// lastTailSec is the last second of D-1's post-midnight range.
	lastTailSec = 2*gtfs.SecondsPerDay - 1
)

// ServiceResolver yields the active services for a date.
type ServiceResolver interface {
	ActiveServices(ctx context.Context, date gtfs.ServiceDate) ([]string, error)
}

// Fetcher yields scheduled rows for one service date.
type Fetcher interface {
	Fetch(ctx context.Context, serviceIDs []string, target Target, w Window, limit int) ([]gtfs.ScheduledRow, error)
}

type Stitcher struct {
	calendar ServiceResolver
	fetcher  Fetcher
	loc      *time.Location
}

func NewStitcher(calendar ServiceResolver, fetcher Fetcher, loc *time.Location) *Stitcher {
	return &Stitcher{calendar: calendar, fetcher: fetcher, loc: loc}
}

type StitchQuery struct {
	Target Target
	At     time.Time
	// Minutes is the caller's horizon; nil selects DefaultMinutes.
	Minutes        *int
	DefaultMinutes int
	// Limit bounds each per-day fetch, not the stitched result.
	Limit int
}

type Stitched struct {
	Date     gtfs.ServiceDate
	StartSec int
	EndSec   int
	Rows     []gtfs.TaggedRow
}

// ClampHorizon bounds a caller-supplied horizon to [1, 1440] minutes.
func ClampHorizon(minutes int) int {
	return min(max(minutes, MinHorizonMinutes), MaxHorizonMinutes)
}

type daySlice struct {
	date   gtfs.ServiceDate
	window Window
}

// plan maps the real window [start, end] on date d onto the service dates
// that can hold events inside it.
func plan(d gtfs.ServiceDate, start, end int) []daySlice {
	tailEnd := min(end+gtfs.SecondsPerDay, lastTailSec)
	days := []daySlice{
		{date: d.AddDays(-1), window: Window{Start: start + gtfs.SecondsPerDay, End: &tailEnd}},
		{date: d, window: Window{Start: start, End: &end}},
	}
	if end > gtfs.SecondsPerDay {
		headEnd := end - gtfs.SecondsPerDay
		days = append(days, daySlice{date: d.AddDays(1), window: Window{Start: 0, End: &headEnd}})
	}
	return days
}

// Stitch fetches the window starting at q.At across D-1, D and D+1 and
// deduplicates by trip and service date, keeping the first occurrence in
// D-1, D, D+1 order.
func (s *Stitcher) Stitch(ctx context.Context, q StitchQuery) (Stitched, error) {
	minutes := q.DefaultMinutes
	if q.Minutes != nil {
		minutes = *q.Minutes
	}
	minutes = ClampHorizon(minutes)

	d := gtfs.ServiceDateOf(q.At, s.loc)
	start := gtfs.SecondsIntoDay(q.At, s.loc)
	end := start + minutes*60
	days := plan(d, start, end)

	results := make([][]gtfs.ScheduledRow, len(days))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, day := range days {
		p.Go(func(ctx context.Context) error {
			services, err := s.calendar.ActiveServices(ctx, day.date)
			if err != nil {
				return err
			}
			rows, err := s.fetcher.Fetch(ctx, services, q.Target, day.window, q.Limit)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Stitched{}, err
	}

	// Stop groups keep one row per platform; the merger picks each trip's
	// earliest call after realtime drops.
	type key struct {
		trip string
		date gtfs.ServiceDate
		stop string
	}
	seen := make(map[key]struct{})
	var out []gtfs.TaggedRow
	for i, rows := range results {
		for _, r := range rows {
			k := key{trip: r.TripID, date: days[i].date}
			if q.Target.isStop() {
				k.stop = r.StopID
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, gtfs.TaggedRow{ScheduledRow: r, ServiceDate: days[i].date})
		}
	}
	return Stitched{Date: d, StartSec: start, EndSec: end, Rows: out}, nil
}
