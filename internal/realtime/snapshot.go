package realtime

import (
	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// Snapshot is the decoded, request-scoped view of both feeds. It is never
// mutated after Decode returns.
type Snapshot struct {
	TripUpdates map[string]TripUpdate
	Vehicles    map[string]VehicleState
	// HeaderTimestamp is the newer of the two feed headers, nil if neither has one.
	HeaderTimestamp *int64
}

type TripUpdate struct {
	TripID       string
	Relationship TripRelationship
	Delay        *int32
	StopTimes    []StopTimeOverride
	Timestamp    *int64
}

// Canceled reports whether the whole trip is withdrawn.
func (u TripUpdate) Canceled() bool {
	return u.Relationship == TripCanceled || u.Relationship == TripDeleted
}

type TripRelationship string

const (
	TripScheduled   TripRelationship = "SCHEDULED"
	TripAdded       TripRelationship = "ADDED"
	TripUnscheduled TripRelationship = "UNSCHEDULED"
	TripCanceled    TripRelationship = "CANCELED"
	TripReplacement TripRelationship = "REPLACEMENT"
	TripDuplicated  TripRelationship = "DUPLICATED"
	TripDeleted     TripRelationship = "DELETED"
)

type StopRelationship string

const (
	StopScheduled   StopRelationship = "SCHEDULED"
	StopSkipped     StopRelationship = "SKIPPED"
	StopNoData      StopRelationship = "NO_DATA"
	StopUnscheduled StopRelationship = "UNSCHEDULED"
)

// StopTimeOverride is one stop_time_update. StopID may be empty when the
// producer only identifies the stop by sequence.
type StopTimeOverride struct {
	StopID       string
	StopSequence *uint32
	Relationship StopRelationship
	Arrival      *StopTimeEvent
	Departure    *StopTimeEvent
}

func (o StopTimeOverride) Skipped() bool { return o.Relationship == StopSkipped }

// StopTimeEvent carries an absolute epoch time, a delay, or both.
type StopTimeEvent struct {
	Time  *int64
	Delay *int32
}

type VehicleState struct {
	TripID              string
	ID                  string
	Lat                 *float64
	Lon                 *float64
	CurrentStatus       string
	CurrentStopID       string
	OccupancyStatus     string
	OccupancyPercentage *uint32
	Timestamp           *int64
}

// Normalize folds the two decoded feeds into a Snapshot. Later trip updates
// for the same trip overwrite earlier ones; vehicles without a trip id are
// dropped.
func Normalize(tripFeed, vehicleFeed *gtfsrt.FeedMessage) *Snapshot {
	snap := &Snapshot{
		TripUpdates: map[string]TripUpdate{},
		Vehicles:    map[string]VehicleState{},
	}

	for _, fm := range []*gtfsrt.FeedMessage{tripFeed, vehicleFeed} {
		if fm == nil || fm.GetHeader() == nil || fm.GetHeader().Timestamp == nil {
			continue
		}
		ts := int64(fm.GetHeader().GetTimestamp())
		if ts == 0 {
			continue
		}
		if snap.HeaderTimestamp == nil || ts > *snap.HeaderTimestamp {
			snap.HeaderTimestamp = &ts
		}
	}

	for _, e := range tripFeed.GetEntity() {
		tu := e.GetTripUpdate()
		tripID := tu.GetTrip().GetTripId()
		if tu == nil || tripID == "" {
			continue
		}
		u := TripUpdate{TripID: tripID, Delay: tu.Delay, Timestamp: epoch(tu.Timestamp)}
		if tu.GetTrip().ScheduleRelationship != nil {
			u.Relationship = TripRelationship(tu.GetTrip().GetScheduleRelationship().String())
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			o := StopTimeOverride{
				StopID:       stu.GetStopId(),
				StopSequence: stu.StopSequence,
				Arrival:      stopTimeEvent(stu.GetArrival()),
				Departure:    stopTimeEvent(stu.GetDeparture()),
			}
			if stu.ScheduleRelationship != nil {
				o.Relationship = StopRelationship(stu.GetScheduleRelationship().String())
			}
			u.StopTimes = append(u.StopTimes, o)
		}
		snap.TripUpdates[tripID] = u
	}

	for _, e := range vehicleFeed.GetEntity() {
		vp := e.GetVehicle()
		tripID := vp.GetTrip().GetTripId()
		if vp == nil || tripID == "" {
			continue
		}
		v := VehicleState{
			TripID:              tripID,
			ID:                  vp.GetVehicle().GetId(),
			CurrentStopID:       vp.GetStopId(),
			OccupancyPercentage: vp.OccupancyPercentage,
			Timestamp:           epoch(vp.Timestamp),
		}
		if v.ID == "" {
			v.ID = vp.GetVehicle().GetLabel()
		}
		if pos := vp.GetPosition(); pos != nil {
			lat, lon := float64(pos.GetLatitude()), float64(pos.GetLongitude())
			v.Lat, v.Lon = &lat, &lon
		}
		if vp.CurrentStatus != nil {
			v.CurrentStatus = vp.GetCurrentStatus().String()
		}
		if vp.OccupancyStatus != nil {
			v.OccupancyStatus = vp.GetOccupancyStatus().String()
		}
		snap.Vehicles[tripID] = v
	}
	return snap
}

func stopTimeEvent(ev *gtfsrt.TripUpdate_StopTimeEvent) *StopTimeEvent {
	if ev == nil || (ev.Time == nil && ev.Delay == nil) {
		return nil
	}
	out := &StopTimeEvent{Delay: ev.Delay}
	if ev.Time != nil && ev.GetTime() != 0 {
		t := ev.GetTime()
		out.Time = &t
	}
	return out
}

func epoch(ts *uint64) *int64 {
	if ts == nil || *ts == 0 {
		return nil
	}
	v := int64(*ts)
	return &v
}
