package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"wheresmybus/internal/gtfs"
	"wheresmybus/internal/schedule"
)

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// ParseDirection maps inbound/outbound or a literal 0/1 to a direction_id.
// Anything else means no direction filter.
func ParseDirection(s string) *int {
	var d int
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inbound", "1":
		d = 1
	case "outbound", "0":
		d = 0
	default:
		return nil
	}
	return &d
}

type RouteOverviewRequest struct {
	RouteID     string
	ServiceDate *gtfs.ServiceDate
	Direction   *int
	Page        int
	Limit       *int
}

type RouteMeta struct {
	ID          string   `json:"id"`
	ShortName   string   `json:"shortName"`
	LongName    string   `json:"longName"`
	Type        int      `json:"type"`
	ServiceDays []string `json:"serviceDays"`
}

type RouteQuery struct {
	ServiceDate string `json:"serviceDate"`
	Direction   *int   `json:"direction"`
	Page        int    `json:"page"`
	Limit       int    `json:"limit"`
}

type RouteOverview struct {
	Route       RouteMeta            `json:"route"`
	Query       RouteQuery           `json:"query"`
	Timetable   []gtfs.TimetableTrip `json:"timetable"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	HasNextPage bool                 `json:"hasNextPage"`
}

func (s *Service) RouteOverview(ctx context.Context, req RouteOverviewRequest) (RouteOverview, error) {
	route, err := s.store.RouteByID(ctx, req.RouteID)
	if err != nil {
		return RouteOverview{}, err
	}
	days, err := s.store.RouteServiceDays(ctx, req.RouteID)
	if err != nil {
		return RouteOverview{}, err
	}
	date := s.Today()
	if req.ServiceDate != nil {
		date = *req.ServiceDate
	}
	services, err := s.calendar.ActiveServices(ctx, date)
	if err != nil {
		return RouteOverview{}, err
	}

	page := max(req.Page, 1)
	limit := limitOrDefault(req.Limit)
	trips, hasNext, err := s.store.TimetablePage(ctx, gtfs.TimetableQuery{
		RouteID:    req.RouteID,
		ServiceIDs: services,
		Direction:  req.Direction,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return RouteOverview{}, err
	}
	if trips == nil {
		trips = []gtfs.TimetableTrip{}
	}

	serviceDays := []string{}
	for i, on := range days {
		if on {
			serviceDays = append(serviceDays, weekdayNames[i])
		}
	}

	return RouteOverview{
		Route: RouteMeta{
			ID:          route.RouteID,
			ShortName:   route.ShortName,
			LongName:    route.LongName,
			Type:        route.Type,
			ServiceDays: serviceDays,
		},
		Query:       RouteQuery{ServiceDate: date.String(), Direction: req.Direction, Page: page, Limit: limit},
		Timetable:   trips,
		Page:        page,
		Limit:       limit,
		HasNextPage: hasNext,
	}, nil
}

type StopOverviewRequest struct {
	StopID      string
	ServiceDate *gtfs.ServiceDate
	Rollup      schedule.Rollup
}

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type StationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ChildStop struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	PlatformCode *string `json:"platformCode"`
}

type DirectionHeadsigns struct {
	Direction int      `json:"direction"`
	Headsigns []string `json:"headsigns"`
}

type ServedRoute struct {
	RouteID    string               `json:"routeId"`
	ShortName  string               `json:"shortName"`
	Directions []DirectionHeadsigns `json:"directions"`
}

type RouteSchedule struct {
	RouteID   string            `json:"routeId"`
	ShortName string            `json:"shortName"`
	Direction int               `json:"direction"`
	Headsigns []string          `json:"headsigns"`
	Trips     map[string]string `json:"trips"`
}

type StopOverview struct {
	Type          gtfs.StopKind   `json:"type"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Location      Location        `json:"location"`
	ParentStation *StationRef     `json:"parentStation"`
	Children      *[]ChildStop    `json:"children,omitempty"` // nil unless the stop is a station
	ServiceDate   string          `json:"serviceDate"`
	Served        []ServedRoute   `json:"served"`
	TodayWindow   gtfs.DayWindow  `json:"todayWindow"`
	Schedule      []RouteSchedule `json:"schedule,omitempty"`
}

func (s *Service) StopOverview(ctx context.Context, req StopOverviewRequest) (StopOverview, error) {
	rollup := req.Rollup
	if rollup == "" {
		rollup = schedule.RollupAuto
	}
	group, err := schedule.ResolveStopGroup(ctx, s.store, req.StopID, rollup)
	if err != nil {
		return StopOverview{}, err
	}
	date := s.Today()
	if req.ServiceDate != nil {
		date = *req.ServiceDate
	}
	services, err := s.calendar.ActiveServices(ctx, date)
	if err != nil {
		return StopOverview{}, err
	}

	patterns, err := s.store.ServedRoutes(ctx, group.GroupStopIDs, services)
	if err != nil {
		return StopOverview{}, err
	}
	window, err := s.store.DayWindow(ctx, group.GroupStopIDs, services)
	if err != nil {
		return StopOverview{}, err
	}

	out := StopOverview{
		Type:        group.Kind,
		ID:          group.Base.StopID,
		Name:        group.Base.Name,
		Location:    Location{Lat: group.Base.Lat, Lon: group.Base.Lon},
		ServiceDate: date.String(),
		Served:      aggregateServed(patterns),
		TodayWindow: window,
	}

	if group.Kind == gtfs.StopKindStation {
		children := make([]ChildStop, 0, len(group.Children))
		for _, c := range group.Children {
			child := ChildStop{ID: c.StopID, Name: c.Name}
			if c.PlatformCode != "" {
				pc := c.PlatformCode
				child.PlatformCode = &pc
			}
			children = append(children, child)
		}
		out.Children = &children
	} else {
		deps, err := s.store.DailySchedule(ctx, group.Base.StopID, services)
		if err != nil {
			return StopOverview{}, err
		}
		out.Schedule = aggregateSchedule(deps)

		if group.StationID != "" {
			parent, err := s.store.StopByID(ctx, group.StationID)
			switch {
			case err == nil:
				out.ParentStation = &StationRef{ID: parent.StopID, Name: parent.Name}
			case !errors.Is(err, gtfs.ErrNotFound):
				return StopOverview{}, err
			}
		}
	}
	return out, nil
}

func aggregateServed(patterns []gtfs.ServedPattern) []ServedRoute {
	type acc struct {
		shortName string
		heads     [2]map[string]struct{}
	}
	byRoute := map[string]*acc{}
	for _, p := range patterns {
		a, ok := byRoute[p.RouteID]
		if !ok {
			a = &acc{shortName: p.ShortName, heads: [2]map[string]struct{}{{}, {}}}
			byRoute[p.RouteID] = a
		}
		dir := 0
		if p.Direction == 1 {
			dir = 1
		}
		if p.Headsign != "" {
			a.heads[dir][p.Headsign] = struct{}{}
		}
	}

	out := make([]ServedRoute, 0, len(byRoute))
	for id, a := range byRoute {
		out = append(out, ServedRoute{
			RouteID:   id,
			ShortName: a.shortName,
			Directions: []DirectionHeadsigns{
				{Direction: 0, Headsigns: sortedKeys(a.heads[0])},
				{Direction: 1, Headsigns: sortedKeys(a.heads[1])},
			},
		})
	}
	slices.SortFunc(out, func(a, b ServedRoute) int {
		return cmp.Or(strings.Compare(a.ShortName, b.ShortName), strings.Compare(a.RouteID, b.RouteID))
	})
	return out
}

func aggregateSchedule(deps []gtfs.StopDeparture) []RouteSchedule {
	type groupKey struct {
		route string
		dir   int
	}
	groups := map[groupKey]*RouteSchedule{}
	heads := map[groupKey]map[string]struct{}{}
	for _, d := range deps {
		k := groupKey{route: d.RouteID, dir: d.Direction}
		g, ok := groups[k]
		if !ok {
			g = &RouteSchedule{RouteID: d.RouteID, ShortName: d.ShortName, Direction: d.Direction, Trips: map[string]string{}}
			groups[k] = g
			heads[k] = map[string]struct{}{}
		}
		if d.Headsign != "" {
			heads[k][d.Headsign] = struct{}{}
		}
		g.Trips[d.TripID] = d.Time
	}

	out := make([]RouteSchedule, 0, len(groups))
	for k, g := range groups {
		g.Headsigns = sortedKeys(heads[k])
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b RouteSchedule) int {
		return cmp.Or(naturalCompare(a.ShortName, b.ShortName), cmp.Compare(a.Direction, b.Direction), strings.Compare(a.RouteID, b.RouteID))
	})
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// naturalCompare orders embedded digit runs numerically, so "9" < "10" < "10A".
func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		da, ra := leadingDigits(a)
		db, rb := leadingDigits(b)
		if da != "" && db != "" {
			na, nb := strings.TrimLeft(da, "0"), strings.TrimLeft(db, "0")
			if c := cmp.Or(cmp.Compare(len(na), len(nb)), strings.Compare(na, nb)); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			return cmp.Compare(a[0], b[0])
		}
		a, b = a[1:], b[1:]
	}
	return cmp.Compare(len(a), len(b))
}

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
