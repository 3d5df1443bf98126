package reconcile

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"wheresmybus/internal/gtfs"
	"wheresmybus/internal/realtime"
)

// SequenceResolver maps a (trip, stop) pair to the stop_sequence at which
// the trip calls there. A false result means unknown, never an error.
type SequenceResolver interface {
	StopSequence(ctx context.Context, tripID, stopID string) (int, bool)
}

// Merger combines stitched schedule rows with an optional realtime snapshot.
// It never reads the wall clock.
type Merger struct {
	loc *time.Location
	seq SequenceResolver
}

func NewMerger(loc *time.Location, seq SequenceResolver) *Merger {
	return &Merger{loc: loc, seq: seq}
}

// MergeRoute builds route-mode items from each trip's departure. Only the
// trip-level delay applies. A nil snapshot yields a schedule-only result.
func (m *Merger) MergeRoute(rows []gtfs.TaggedRow, snap *realtime.Snapshot, limit int) RouteResult {
	items := make([]RouteItem, 0, len(rows))
	keys := make([]sortKey, 0, len(rows))

	for _, r := range rows {
		sec := r.EventSec
		if r.DepartureSec != nil {
			sec = *r.DepartureSec
		}
		planned := r.ServiceDate.Epoch(sec, m.loc).Unix()
		item := RouteItem{
			TripID:           r.TripID,
			RouteID:          r.RouteID,
			Direction:        r.Direction,
			Headsign:         r.Headsign,
			PlannedDeparture: m.localTime(&planned),
			Status:           StatusNoData,
			Source:           SourceSchedule,
		}
		key := sortKey{at: &planned, trip: r.TripID}

		if snap != nil {
			tu, ok := snap.TripUpdates[r.TripID]
			if ok && tu.Canceled() {
				continue
			}
			if ok && tu.Delay != nil {
				delay := int(*tu.Delay)
				expected := planned + int64(delay)
				item.ExpectedDeparture = m.localTime(&expected)
				item.DelaySec = &delay
				item.Status = Classify(delay)
				item.Source = SourceLive
				key.at = &expected
			}
			if v, ok := snap.Vehicles[r.TripID]; ok {
				item.Vehicle = m.vehicle(v)
			}
		}
		items = append(items, item)
		keys = append(keys, key)
	}

	items = sortAndCap(items, keys, limit)
	live := slices.ContainsFunc(items, func(it RouteItem) bool { return it.Source == SourceLive })
	return RouteResult{
		LastUpdated: m.lastUpdated(snap),
		Mode:        responseMode(snap, live),
		Data:        items,
	}
}

// stopCandidate is a stop-mode item that survived cancel and skip drops.
type stopCandidate struct {
	item    StopItem
	key     sortKey
	date    gtfs.ServiceDate
	planned int64
}

// MergeStop builds stop-mode items, applying stop-level overrides before the
// trip-level delay. Canceled trips and skipped stops are dropped first; a trip
// calling at several stops of the group then keeps only its earliest call.
func (m *Merger) MergeStop(ctx context.Context, rows []gtfs.TaggedRow, snap *realtime.Snapshot, limit int) StopResult {
	kept := make([]stopCandidate, 0, len(rows))

	for _, r := range rows {
		plannedArr := m.epoch(r.ServiceDate, r.ArrivalSec)
		plannedDep := m.epoch(r.ServiceDate, r.DepartureSec)
		plannedEvent := r.ServiceDate.Epoch(r.EventSec, m.loc).Unix()

		item := StopItem{
			TripID:           r.TripID,
			RouteID:          r.RouteID,
			Direction:        r.Direction,
			Headsign:         r.Headsign,
			Stop:             StopRef{ID: r.StopID, Name: r.StopName, PlatformCode: nonEmpty(r.PlatformCode)},
			PlannedArrival:   m.localTime(plannedArr),
			PlannedDeparture: m.localTime(plannedDep),
			EventType:        r.Event,
			Source:           SourceSchedule,
		}
		key := sortKey{at: &plannedEvent, trip: r.TripID}

		if snap != nil {
			tu, ok := snap.TripUpdates[r.TripID]
			if ok && tu.Canceled() {
				continue
			}
			if ok {
				override := m.matchOverride(ctx, r.TripID, r.StopID, tu.StopTimes)
				if override != nil && override.Skipped() {
					continue
				}
				var arrEv, depEv *realtime.StopTimeEvent
				if override != nil {
					arrEv, depEv = override.Arrival, override.Departure
				}
				expArr := expectedTime(plannedArr, arrEv, tu.Delay)
				expDep := expectedTime(plannedDep, depEv, tu.Delay)
				item.ExpectedArrival = m.localTime(expArr)
				item.ExpectedDeparture = m.localTime(expDep)

				expEvent := expDep
				if r.Event == gtfs.EventArrival {
					expEvent = expArr
				}
				if expEvent != nil {
					item.Punctuality = NewPunctuality(int(*expEvent - plannedEvent))
					item.Source = SourceLive
					key.at = expEvent
				}
			}
			if v, ok := snap.Vehicles[r.TripID]; ok {
				item.Vehicle = m.vehicle(v)
			}
		}
		kept = append(kept, stopCandidate{item: item, key: key, date: r.ServiceDate, planned: plannedEvent})
	}

	kept = earliestPerTrip(kept)
	items := make([]StopItem, len(kept))
	keys := make([]sortKey, len(kept))
	for i, c := range kept {
		items[i], keys[i] = c.item, c.key
	}

	items = sortAndCap(items, keys, limit)
	live := slices.ContainsFunc(items, func(it StopItem) bool { return it.Source == SourceLive })
	return StopResult{
		LastUpdated: m.lastUpdated(snap),
		Mode:        responseMode(snap, live),
		Data:        items,
	}
}

// earliestPerTrip keeps one candidate per (trip, service date), ranking by
// planned event time then stop id. Order of the kept candidates is preserved.
func earliestPerTrip(cs []stopCandidate) []stopCandidate {
	type tripKey struct {
		trip string
		date gtfs.ServiceDate
	}
	better := func(a, b stopCandidate) bool {
		if a.planned != b.planned {
			return a.planned < b.planned
		}
		return a.item.Stop.ID < b.item.Stop.ID
	}
	best := make(map[tripKey]int, len(cs))
	for i, c := range cs {
		k := tripKey{trip: c.item.TripID, date: c.date}
		if j, ok := best[k]; !ok || better(c, cs[j]) {
			best[k] = i
		}
	}
	out := make([]stopCandidate, 0, len(best))
	for i, c := range cs {
		if best[tripKey{trip: c.item.TripID, date: c.date}] == i {
			out = append(out, c)
		}
	}
	return out
}

// matchOverride finds the stop_time_update for stopID, by stop id first and
// then by the trip's stop_sequence at that stop.
func (m *Merger) matchOverride(ctx context.Context, tripID, stopID string, stus []realtime.StopTimeOverride) *realtime.StopTimeOverride {
	if len(stus) == 0 {
		return nil
	}
	for i := range stus {
		if stus[i].StopID != "" && stus[i].StopID == stopID {
			return &stus[i]
		}
	}
	if m.seq == nil || !slices.ContainsFunc(stus, func(o realtime.StopTimeOverride) bool { return o.StopSequence != nil }) {
		return nil
	}
	seq, ok := m.seq.StopSequence(ctx, tripID, stopID)
	if !ok {
		return nil
	}
	for i := range stus {
		if stus[i].StopSequence != nil && int(*stus[i].StopSequence) == seq {
			return &stus[i]
		}
	}
	return nil
}

// expectedTime applies, in order: the override's absolute time, the
// override's delay, the trip delay. It returns nil when planned is nil or
// nothing applies.
func expectedTime(planned *int64, ev *realtime.StopTimeEvent, tripDelay *int32) *int64 {
	if ev != nil && ev.Time != nil {
		t := *ev.Time
		return &t
	}
	if planned == nil {
		return nil
	}
	switch {
	case ev != nil && ev.Delay != nil:
		t := *planned + int64(*ev.Delay)
		return &t
	case tripDelay != nil:
		t := *planned + int64(*tripDelay)
		return &t
	}
	return nil
}

type sortKey struct {
	at   *int64
	trip string
}

// compareKeys orders by time then trip id; keys without a time sort last.
func compareKeys(a, b sortKey) int {
	switch {
	case a.at == nil && b.at == nil:
		return strings.Compare(a.trip, b.trip)
	case a.at == nil:
		return 1
	case b.at == nil:
		return -1
	}
	if c := cmp.Compare(*a.at, *b.at); c != 0 {
		return c
	}
	return strings.Compare(a.trip, b.trip)
}

func sortAndCap[T any](items []T, keys []sortKey, limit int) []T {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return compareKeys(keys[a], keys[b]) })

	n := len(idx)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]T, 0, n)
	for _, i := range idx[:n] {
		out = append(out, items[i])
	}
	return out
}

func responseMode(snap *realtime.Snapshot, anyLive bool) Mode {
	if snap != nil && anyLive {
		return ModeLive
	}
	return ModeSchedule
}

func (m *Merger) lastUpdated(snap *realtime.Snapshot) *gtfs.LocalTime {
	if snap == nil {
		return nil
	}
	return m.localTime(snap.HeaderTimestamp)
}

func (m *Merger) epoch(d gtfs.ServiceDate, sec *int) *int64 {
	if sec == nil {
		return nil
	}
	v := d.Epoch(*sec, m.loc).Unix()
	return &v
}

func (m *Merger) localTime(epoch *int64) *gtfs.LocalTime {
	if epoch == nil {
		return nil
	}
	return gtfs.NewLocalTime(time.Unix(*epoch, 0), m.loc)
}

func (m *Merger) vehicle(v realtime.VehicleState) *Vehicle {
	out := &Vehicle{
		ID:            v.ID,
		Lat:           v.Lat,
		Lon:           v.Lon,
		CurrentStatus: nonEmpty(v.CurrentStatus),
		CurrentStopID: nonEmpty(v.CurrentStopID),
		Timestamp:     m.localTime(v.Timestamp),
	}
	if v.OccupancyStatus != "" {
		out.Occupancy = &Occupancy{Status: v.OccupancyStatus, Percentage: v.OccupancyPercentage}
	}
	return out
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
