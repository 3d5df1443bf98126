package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wheresmybus/internal/gtfs"
)

// Store reads the static GTFS tables. Every failed query is wrapped with
// gtfs.ErrStore; unknown identifiers are reported with gtfs.ErrNotFound.
type Store struct {
	db     *sql.DB
	schema *strings.Replacer
}

func NewStore(db *sql.DB, schema string) *Store {
	if schema == "" {
		schema = "gtfs"
	}
	return &Store{db: db, schema: strings.NewReplacer("{{s}}", schema)}
}

func (s *Store) q(query string) string { return s.schema.Replace(query) }

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, gtfs.ErrStore, err)
}

// secExpr converts an HH:MM:SS column (text or interval) to seconds without
// wrapping at 24h. NULL and empty values yield NULL.
func secExpr(col string) string {
	c := fmt.Sprintf("NULLIF(%s::text, '')", col)
	return fmt.Sprintf("(split_part(%[1]s, ':', 1)::int * 3600 + split_part(%[1]s, ':', 2)::int * 60 + COALESCE(NULLIF(split_part(%[1]s, ':', 3), '')::int, 0))", c)
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

var weekdayColumns = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

func (s *Store) RouteByID(ctx context.Context, routeID string) (gtfs.Route, error) {
	q := s.q(`
SELECT r.route_id, COALESCE(r.route_short_name, ''), COALESCE(r.route_long_name, ''), COALESCE(r.route_type::int, 0)
FROM {{s}}.routes r
WHERE r.route_id = $1
LIMIT 1`)
	var r gtfs.Route
	err := s.db.QueryRowContext(ctx, q, routeID).Scan(&r.RouteID, &r.ShortName, &r.LongName, &r.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return gtfs.Route{}, fmt.Errorf("route %s: %w", routeID, gtfs.ErrNotFound)
	}
	if err != nil {
		return gtfs.Route{}, storeErr("query route", err)
	}
	return r, nil
}

// RouteServiceDays reports, per weekday, whether any calendar serving the route runs on it.
func (s *Store) RouteServiceDays(ctx context.Context, routeID string) ([7]bool, error) {
	q := s.q(`
SELECT
  COALESCE(bool_or(c.monday::int = 1), false),
  COALESCE(bool_or(c.tuesday::int = 1), false),
  COALESCE(bool_or(c.wednesday::int = 1), false),
  COALESCE(bool_or(c.thursday::int = 1), false),
  COALESCE(bool_or(c.friday::int = 1), false),
  COALESCE(bool_or(c.saturday::int = 1), false),
  COALESCE(bool_or(c.sunday::int = 1), false)
FROM {{s}}.trips t
JOIN {{s}}.calendar c ON c.service_id = t.service_id
WHERE t.route_id = $1`)
	var days [7]bool
	err := s.db.QueryRowContext(ctx, q, routeID).Scan(&days[0], &days[1], &days[2], &days[3], &days[4], &days[5], &days[6])
	if err != nil {
		return days, storeErr("query route service days", err)
	}
	return days, nil
}

// BaseServices returns calendar services in range for date, running on its
// weekday and not removed for it by calendar_dates.
func (s *Store) BaseServices(ctx context.Context, date gtfs.ServiceDate) ([]gtfs.ServiceCandidate, error) {
	col, ok := weekdayColumns[date.Weekday()]
	if !ok {
		return nil, fmt.Errorf("%w: weekday of %s", gtfs.ErrInvalidInput, date)
	}
	q := s.q(fmt.Sprintf(`
SELECT
  c.service_id,
  EXISTS (
    SELECT 1 FROM {{s}}.calendar_dates cd
    WHERE cd.service_id = c.service_id
  ) AS has_cd
FROM {{s}}.calendar c
WHERE c.start_date::int <= $1::int
  AND c.end_date::int >= $1::int
  AND c.%s::int = 1
  AND NOT EXISTS (
    SELECT 1 FROM {{s}}.calendar_dates cd
    WHERE cd.service_id = c.service_id
      AND cd.date::int = $1::int
      AND cd.exception_type::int = 2
  )`, col))
	rows, err := s.db.QueryContext(ctx, q, date.Compact())
	if err != nil {
		return nil, storeErr("query base services", err)
	}
	defer rows.Close()
	var out []gtfs.ServiceCandidate
	for rows.Next() {
		var c gtfs.ServiceCandidate
		if err := rows.Scan(&c.ServiceID, &c.HasExceptions); err != nil {
			return nil, storeErr("scan base services", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read base services", err)
	}
	return out, nil
}

// AddedServices returns services explicitly added for date.
func (s *Store) AddedServices(ctx context.Context, date gtfs.ServiceDate) ([]string, error) {
	q := s.q(`
SELECT cd.service_id
FROM {{s}}.calendar_dates cd
WHERE cd.date::int = $1::int
  AND cd.exception_type::int = 1`)
	return s.queryStrings(ctx, "added services", q, date.Compact())
}

func (s *Store) queryStrings(ctx context.Context, what, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("query "+what, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storeErr("scan "+what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read "+what, err)
	}
	return out, nil
}

// TimetablePage fetches limit+1 trips so the caller can tell whether a next page exists.
func (s *Store) TimetablePage(ctx context.Context, tq gtfs.TimetableQuery) ([]gtfs.TimetableTrip, bool, error) {
	if len(tq.ServiceIDs) == 0 {
		return nil, false, nil
	}
	offset := (tq.Page - 1) * tq.Limit
	q := s.q(`
SELECT
  t.trip_id,
  COALESCE(t.direction_id::int, 0),
  COALESCE(t.trip_headsign, ''),
  COALESCE((SELECT st.departure_time::text FROM {{s}}.stop_times st WHERE st.trip_id = t.trip_id ORDER BY st.stop_sequence ASC LIMIT 1), '') AS start_time,
  COALESCE((SELECT st.arrival_time::text FROM {{s}}.stop_times st WHERE st.trip_id = t.trip_id ORDER BY st.stop_sequence DESC LIMIT 1), '') AS end_time
FROM {{s}}.trips t
WHERE t.service_id = ANY($1::text[])
  AND t.route_id = $2
  AND ($3::int IS NULL OR t.direction_id::int = $3::int)
ORDER BY start_time ASC, t.trip_id
LIMIT $4 OFFSET $5`)
	rows, err := s.db.QueryContext(ctx, q, tq.ServiceIDs, tq.RouteID, nullableInt(tq.Direction), tq.Limit+1, offset)
	if err != nil {
		return nil, false, storeErr("query timetable", err)
	}
	defer rows.Close()
	var trips []gtfs.TimetableTrip
	for rows.Next() {
		var t gtfs.TimetableTrip
		if err := rows.Scan(&t.TripID, &t.Direction, &t.Headsign, &t.StartTime, &t.EndTime); err != nil {
			return nil, false, storeErr("scan timetable", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, storeErr("read timetable", err)
	}
	hasNext := len(trips) > tq.Limit
	if hasNext {
		trips = trips[:tq.Limit]
	}
	return trips, hasNext, nil
}

// RouteEvents returns, per trip, the event representing it in the window:
// the first departure by stop_sequence for FetchTimetable, or the next
// departure at or after StartSec for FetchUpcoming.
func (s *Store) RouteEvents(ctx context.Context, rq gtfs.RouteWindowQuery) ([]gtfs.ScheduledRow, error) {
	if len(rq.ServiceIDs) == 0 {
		return nil, nil
	}
	var q string
	switch rq.Mode {
	case gtfs.FetchUpcoming:
		dep := secExpr("st.departure_time")
		q = s.q(fmt.Sprintf(`
SELECT trip_id, route_id, service_id, direction_id, headsign, stop_id, arrival_time, departure_time, event_sec
FROM (
  SELECT DISTINCT ON (t.trip_id)
    t.trip_id, t.route_id, t.service_id,
    COALESCE(t.direction_id::int, 0) AS direction_id,
    COALESCE(t.trip_headsign, '') AS headsign,
    st.stop_id,
    COALESCE(st.arrival_time::text, '') AS arrival_time,
    COALESCE(st.departure_time::text, '') AS departure_time,
    %[1]s AS event_sec
  FROM {{s}}.trips t
  JOIN {{s}}.stop_times st ON st.trip_id = t.trip_id
  WHERE t.service_id = ANY($1::text[])
    AND t.route_id = $2
    AND ($3::int IS NULL OR t.direction_id::int = $3::int)
    AND %[1]s >= $4::int
    AND ($5::int IS NULL OR %[1]s <= $5::int)
  ORDER BY t.trip_id, %[1]s, st.stop_sequence
) x
ORDER BY event_sec, trip_id
LIMIT $6`, dep))
	default:
		dep := secExpr("first.departure_time")
		q = s.q(fmt.Sprintf(`
SELECT trip_id, route_id, service_id, direction_id, headsign, stop_id, arrival_time, departure_time, event_sec
FROM (
  SELECT
    t.trip_id, t.route_id, t.service_id,
    COALESCE(t.direction_id::int, 0) AS direction_id,
    COALESCE(t.trip_headsign, '') AS headsign,
    first.stop_id,
    COALESCE(first.arrival_time::text, '') AS arrival_time,
    COALESCE(first.departure_time::text, '') AS departure_time,
    %[1]s AS event_sec
  FROM {{s}}.trips t
  JOIN LATERAL (
    SELECT st.stop_id, st.arrival_time, st.departure_time
    FROM {{s}}.stop_times st
    WHERE st.trip_id = t.trip_id
    ORDER BY st.stop_sequence ASC
    LIMIT 1
  ) first ON true
  WHERE t.service_id = ANY($1::text[])
    AND t.route_id = $2
    AND ($3::int IS NULL OR t.direction_id::int = $3::int)
) x
WHERE event_sec >= $4::int
  AND ($5::int IS NULL OR event_sec <= $5::int)
ORDER BY event_sec, trip_id
LIMIT $6`, dep))
	}

	rows, err := s.db.QueryContext(ctx, q, rq.ServiceIDs, rq.RouteID, nullableInt(rq.Direction), rq.StartSec, nullableInt(rq.EndSec), rq.Limit)
	if err != nil {
		return nil, storeErr("query route events", err)
	}
	defer rows.Close()
	var out []gtfs.ScheduledRow
	for rows.Next() {
		var r gtfs.ScheduledRow
		var arr, dep string
		if err := rows.Scan(&r.TripID, &r.RouteID, &r.ServiceID, &r.Direction, &r.Headsign, &r.StopID, &arr, &dep, &r.EventSec); err != nil {
			return nil, storeErr("scan route events", err)
		}
		r.ArrivalSec = daySeconds(arr)
		r.DepartureSec = daySeconds(dep)
		r.Event = gtfs.EventDeparture
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read route events", err)
	}
	return out, nil
}

// StopEvents returns, per trip and stop of the group, the earliest qualifying
// event: an arrival inside the window, else a departure inside the window.
func (s *Store) StopEvents(ctx context.Context, sq gtfs.StopWindowQuery) ([]gtfs.ScheduledRow, error) {
	if len(sq.StopIDs) == 0 || len(sq.ServiceIDs) == 0 {
		return nil, nil
	}
	arr := secExpr("st.arrival_time")
	dep := secExpr("st.departure_time")
	arrOK := fmt.Sprintf("(%[1]s >= $3::int AND ($4::int IS NULL OR %[1]s <= $4::int))", arr)
	depOK := fmt.Sprintf("(%[1]s >= $3::int AND ($4::int IS NULL OR %[1]s <= $4::int))", dep)
	q := s.q(fmt.Sprintf(`
WITH grp AS (SELECT unnest($1::text[]) AS stop_id)
SELECT trip_id, route_id, service_id, direction_id, headsign, stop_id, stop_name, platform_code,
       arrival_time, departure_time, event_kind, event_sec
FROM (
  SELECT DISTINCT ON (t.trip_id, st.stop_id)
    t.trip_id, t.route_id, t.service_id,
    COALESCE(t.direction_id::int, 0) AS direction_id,
    COALESCE(t.trip_headsign, '') AS headsign,
    st.stop_id,
    COALESCE(s.stop_name, '') AS stop_name,
    COALESCE(s.platform_code, '') AS platform_code,
    COALESCE(st.arrival_time::text, '') AS arrival_time,
    COALESCE(st.departure_time::text, '') AS departure_time,
    CASE WHEN COALESCE(%[1]s, false) THEN 'ARRIVAL' ELSE 'DEPARTURE' END AS event_kind,
    CASE WHEN COALESCE(%[1]s, false) THEN %[3]s ELSE %[4]s END AS event_sec
  FROM {{s}}.stop_times st
  JOIN grp g ON g.stop_id = st.stop_id
  JOIN {{s}}.trips t ON t.trip_id = st.trip_id
  JOIN {{s}}.stops s ON s.stop_id = st.stop_id
  WHERE t.service_id = ANY($2::text[])
    AND ($6::int IS NULL OR t.direction_id::int = $6::int)
    AND (COALESCE(%[1]s, false) OR COALESCE(%[2]s, false))
  ORDER BY t.trip_id, st.stop_id, event_sec
) x
ORDER BY event_sec, stop_id, trip_id
LIMIT $5`, arrOK, depOK, arr, dep))

	rows, err := s.db.QueryContext(ctx, q, sq.StopIDs, sq.ServiceIDs, sq.StartSec, nullableInt(sq.EndSec), sq.Limit, nullableInt(sq.Direction))
	if err != nil {
		return nil, storeErr("query stop events", err)
	}
	defer rows.Close()
	var out []gtfs.ScheduledRow
	for rows.Next() {
		var r gtfs.ScheduledRow
		var arrS, depS, kind string
		if err := rows.Scan(&r.TripID, &r.RouteID, &r.ServiceID, &r.Direction, &r.Headsign, &r.StopID, &r.StopName, &r.PlatformCode, &arrS, &depS, &kind, &r.EventSec); err != nil {
			return nil, storeErr("scan stop events", err)
		}
		r.ArrivalSec = daySeconds(arrS)
		r.DepartureSec = daySeconds(depS)
		r.Event = gtfs.EventKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read stop events", err)
	}
	return out, nil
}

func daySeconds(s string) *int {
	v, ok := gtfs.ParseDaySeconds(s)
	if !ok {
		return nil
	}
	return &v
}

// StopSequence returns the lowest stop_sequence at which trip calls at stop.
func (s *Store) StopSequence(ctx context.Context, tripID, stopID string) (int, bool, error) {
	q := s.q(`
SELECT MIN(st.stop_sequence::int)
FROM {{s}}.stop_times st
WHERE st.trip_id = $1 AND st.stop_id = $2`)
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, q, tripID, stopID).Scan(&seq); err != nil {
		return 0, false, storeErr("query stop sequence", err)
	}
	if !seq.Valid {
		return 0, false, nil
	}
	return int(seq.Int64), true, nil
}
