package gtfs

type Route struct {
	RouteID   string
	ShortName string
	LongName  string
	Type      int
}

// StopKind is the classification of a stops row.
type StopKind string

const (
	StopKindStation  StopKind = "station"
	StopKindPlatform StopKind = "platform"
	StopKindStop     StopKind = "stop"
)

type Stop struct {
	StopID        string
	Name          string
	Lat           float64
	Lon           float64
	LocationType  int
	ParentStation string // empty when the row has no parent
	PlatformCode  string
}

// Kind classifies the row: location_type=1 is a station, a row with a parent
// is a platform, anything else is a plain stop.
func (s Stop) Kind() StopKind {
	switch {
	case s.LocationType == 1:
		return StopKindStation
	case s.ParentStation != "":
		return StopKindPlatform
	default:
		return StopKindStop
	}
}

// StopGroup is a resolved lookup target. GroupStopIDs is never empty.
type StopGroup struct {
	Kind         StopKind
	Base         Stop
	StationID    string
	Children     []Stop
	GroupStopIDs []string
	Rolled       bool
}

// ServiceCandidate is a calendar row matching a date, flagged when the service
// has any calendar_dates rows at all.
type ServiceCandidate struct {
	ServiceID     string
	HasExceptions bool
}

type EventKind string

const (
	EventArrival   EventKind = "ARRIVAL"
	EventDeparture EventKind = "DEPARTURE"
)

// ScheduledRow is one trip's qualifying event as read from stop_times.
// Seconds are relative to the owning service date's local midnight and are
// never wrapped at 24h.
type ScheduledRow struct {
	TripID       string
	RouteID      string
	ServiceID    string
	Direction    int
	Headsign     string
	StopID       string
	StopName     string
	PlatformCode string
	ArrivalSec   *int
	DepartureSec *int
	Event        EventKind
	EventSec     int
}

// TaggedRow is a ScheduledRow together with the service date it was fetched for.
type TaggedRow struct {
	ScheduledRow
	ServiceDate ServiceDate
}
