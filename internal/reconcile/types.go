package reconcile

import (
	"wheresmybus/internal/gtfs"
)

type Source string

const (
	SourceSchedule Source = "schedule"
	SourceLive     Source = "live"
)

// Mode tells callers whether realtime data contributed to a response.
type Mode string

const (
	ModeSchedule Mode = "schedule"
	ModeLive     Mode = "live"
)

type Occupancy struct {
	Status     string  `json:"status"`
	Percentage *uint32 `json:"percentage"`
}

type Vehicle struct {
	ID              string          `json:"id"`
	Lat             *float64        `json:"lat"`
	Lon             *float64        `json:"lon"`
	CurrentStatus   *string         `json:"currentStatus"`
	CurrentStopID   *string         `json:"currentStopId"`
	CurrentStopName *string         `json:"currentStopName"`
	Occupancy       *Occupancy      `json:"occupancy,omitempty"`
	Timestamp       *gtfs.LocalTime `json:"timestamp"`
}

type RouteItem struct {
	TripID            string          `json:"tripId"`
	RouteID           string          `json:"routeId"`
	Direction         int             `json:"direction"`
	Headsign          string          `json:"headsign"`
	PlannedDeparture  *gtfs.LocalTime `json:"plannedDeparture"`
	ExpectedDeparture *gtfs.LocalTime `json:"expectedDeparture"`
	DelaySec          *int            `json:"delaySec"`
	Status            Status          `json:"status"`
	Vehicle           *Vehicle        `json:"vehicle"`
	Source            Source          `json:"source"`
}

type StopRef struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	PlatformCode *string `json:"platformCode"`
}

type StopItem struct {
	TripID            string          `json:"tripId"`
	RouteID           string          `json:"routeId"`
	Direction         int             `json:"direction"`
	Headsign          string          `json:"headsign"`
	Stop              StopRef         `json:"stop"`
	PlannedArrival    *gtfs.LocalTime `json:"plannedArrival"`
	PlannedDeparture  *gtfs.LocalTime `json:"plannedDeparture"`
	ExpectedArrival   *gtfs.LocalTime `json:"expectedArrival"`
	ExpectedDeparture *gtfs.LocalTime `json:"expectedDeparture"`
	EventType         gtfs.EventKind  `json:"eventType"`
	Punctuality       *Punctuality    `json:"punctuality"`
	Vehicle           *Vehicle        `json:"vehicle"`
	Source            Source          `json:"source"`
}

type RouteResult struct {
	LastUpdated *gtfs.LocalTime `json:"lastUpdated"`
	Mode        Mode            `json:"mode"`
	Data        []RouteItem     `json:"data"`
}

type StopResult struct {
	LastUpdated *gtfs.LocalTime `json:"lastUpdated"`
	Mode        Mode            `json:"mode"`
	Data        []StopItem      `json:"data"`
}
