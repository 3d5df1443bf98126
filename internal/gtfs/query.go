package gtfs

// FetchMode selects which event represents a trip in a route window.
type FetchMode string

const (
	// FetchTimetable takes the trip's first departure by stop_sequence.
	FetchTimetable FetchMode = "timetable"
	// FetchUpcoming takes the trip's next departure at or after the window start.
	FetchUpcoming FetchMode = "upcoming"
)

// RouteWindowQuery selects per-trip events of one route. EndSec nil means
// the window is open-ended for this call.
type RouteWindowQuery struct {
	RouteID    string
	ServiceIDs []string
	Direction  *int
	Mode       FetchMode
	StartSec   int
	EndSec     *int
	Limit      int
}

// StopWindowQuery selects per-trip, per-stop events at any stop of a group.
type StopWindowQuery struct {
	StopIDs    []string
	ServiceIDs []string
	Direction  *int
	StartSec   int
	EndSec     *int
	Limit      int
}

// TimetableQuery pages through a route's trips for one service date.
type TimetableQuery struct {
	RouteID    string
	ServiceIDs []string
	Direction  *int
	Page       int
	Limit      int
}

// TimetableTrip is a trip's first departure and last arrival, kept as the
// raw HH:MM:SS text from stop_times.
type TimetableTrip struct {
	TripID    string `json:"tripId"`
	Direction int    `json:"direction"`
	Headsign  string `json:"headsign"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// ServedPattern is one route/direction/headsign combination calling at a group.
type ServedPattern struct {
	RouteID   string
	ShortName string
	Direction int
	Headsign  string
}

// DayWindow holds the first and last departure of the day at a group.
type DayWindow struct {
	FirstDeparture *string `json:"firstDeparture"`
	LastDeparture  *string `json:"lastDeparture"`
}

// StopDeparture is one trip's departure at a single stop.
type StopDeparture struct {
	TripID    string
	RouteID   string
	ShortName string
	Direction int
	Headsign  string
	Time      string
}
