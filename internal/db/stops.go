package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wheresmybus/internal/gtfs"
)

const stopColumns = `s.stop_id, COALESCE(s.stop_name, ''), COALESCE(s.stop_lat::float8, 0), COALESCE(s.stop_lon::float8, 0),
  COALESCE(NULLIF(s.location_type::text, '')::int, 0), COALESCE(s.parent_station, ''), COALESCE(s.platform_code, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStop(r rowScanner) (gtfs.Stop, error) {
	var st gtfs.Stop
	err := r.Scan(&st.StopID, &st.Name, &st.Lat, &st.Lon, &st.LocationType, &st.ParentStation, &st.PlatformCode)
	return st, err
}

func (s *Store) StopByID(ctx context.Context, stopID string) (gtfs.Stop, error) {
	q := s.q(`SELECT ` + stopColumns + ` FROM {{s}}.stops s WHERE s.stop_id = $1 LIMIT 1`)
	st, err := scanStop(s.db.QueryRowContext(ctx, q, stopID))
	if errors.Is(err, sql.ErrNoRows) {
		return gtfs.Stop{}, fmt.Errorf("stop %s: %w", stopID, gtfs.ErrNotFound)
	}
	if err != nil {
		return gtfs.Stop{}, storeErr("query stop", err)
	}
	return st, nil
}

// ChildStops lists the platforms of a station ordered by stop id.
func (s *Store) ChildStops(ctx context.Context, stationID string) ([]gtfs.Stop, error) {
	q := s.q(`SELECT ` + stopColumns + ` FROM {{s}}.stops s WHERE s.parent_station = $1 ORDER BY s.stop_id`)
	rows, err := s.db.QueryContext(ctx, q, stationID)
	if err != nil {
		return nil, storeErr("query child stops", err)
	}
	defer rows.Close()
	var out []gtfs.Stop
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, storeErr("scan child stops", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read child stops", err)
	}
	return out, nil
}

// StopNames maps each known id to its stop_name in one round trip.
func (s *Store) StopNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := s.q(`SELECT s.stop_id, COALESCE(s.stop_name, '') FROM {{s}}.stops s WHERE s.stop_id = ANY($1::text[])`)
	rows, err := s.db.QueryContext(ctx, q, ids)
	if err != nil {
		return nil, storeErr("query stop names", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, storeErr("scan stop names", err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read stop names", err)
	}
	return out, nil
}

// ServedRoutes lists distinct route/direction/headsign combinations calling
// at any stop of the group under the given services.
func (s *Store) ServedRoutes(ctx context.Context, stopIDs, serviceIDs []string) ([]gtfs.ServedPattern, error) {
	if len(stopIDs) == 0 || len(serviceIDs) == 0 {
		return nil, nil
	}
	q := s.q(`
SELECT t.route_id, COALESCE(r.route_short_name, ''), COALESCE(t.direction_id::int, 0), COALESCE(t.trip_headsign, '')
FROM {{s}}.stop_times st
JOIN {{s}}.trips t ON t.trip_id = st.trip_id
JOIN {{s}}.routes r ON r.route_id = t.route_id
WHERE st.stop_id = ANY($1::text[])
  AND t.service_id = ANY($2::text[])
GROUP BY t.route_id, r.route_short_name, t.direction_id, t.trip_headsign`)
	rows, err := s.db.QueryContext(ctx, q, stopIDs, serviceIDs)
	if err != nil {
		return nil, storeErr("query served routes", err)
	}
	defer rows.Close()
	var out []gtfs.ServedPattern
	for rows.Next() {
		var p gtfs.ServedPattern
		if err := rows.Scan(&p.RouteID, &p.ShortName, &p.Direction, &p.Headsign); err != nil {
			return nil, storeErr("scan served routes", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read served routes", err)
	}
	return out, nil
}

// DayWindow returns the earliest and latest departure at the group, compared
// in seconds so that 25:00:00 sorts after 09:00:00.
func (s *Store) DayWindow(ctx context.Context, stopIDs, serviceIDs []string) (gtfs.DayWindow, error) {
	var w gtfs.DayWindow
	if len(stopIDs) == 0 || len(serviceIDs) == 0 {
		return w, nil
	}
	dep := secExpr("st.departure_time")
	q := s.q(fmt.Sprintf(`
SELECT MIN(%[1]s), MAX(%[1]s)
FROM {{s}}.stop_times st
JOIN {{s}}.trips t ON t.trip_id = st.trip_id
WHERE st.stop_id = ANY($1::text[])
  AND t.service_id = ANY($2::text[])`, dep))
	var first, last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, q, stopIDs, serviceIDs).Scan(&first, &last); err != nil {
		return w, storeErr("query day window", err)
	}
	if first.Valid {
		v := gtfs.FormatDaySeconds(int(first.Int64))
		w.FirstDeparture = &v
	}
	if last.Valid {
		v := gtfs.FormatDaySeconds(int(last.Int64))
		w.LastDeparture = &v
	}
	return w, nil
}

// DailySchedule lists one departure per trip at stopID for the day.
func (s *Store) DailySchedule(ctx context.Context, stopID string, serviceIDs []string) ([]gtfs.StopDeparture, error) {
	if stopID == "" || len(serviceIDs) == 0 {
		return nil, nil
	}
	dep := secExpr("st.departure_time")
	q := s.q(fmt.Sprintf(`
SELECT DISTINCT ON (t.trip_id)
  t.trip_id, t.route_id, COALESCE(r.route_short_name, ''), COALESCE(t.direction_id::int, 0),
  COALESCE(t.trip_headsign, ''), st.departure_time::text
FROM {{s}}.stop_times st
JOIN {{s}}.trips t ON t.trip_id = st.trip_id
JOIN {{s}}.routes r ON r.route_id = t.route_id
WHERE st.stop_id = $1
  AND t.service_id = ANY($2::text[])
  AND NULLIF(st.departure_time::text, '') IS NOT NULL
ORDER BY t.trip_id, %s`, dep))
	rows, err := s.db.QueryContext(ctx, q, stopID, serviceIDs)
	if err != nil {
		return nil, storeErr("query daily schedule", err)
	}
	defer rows.Close()
	var out []gtfs.StopDeparture
	for rows.Next() {
		var d gtfs.StopDeparture
		if err := rows.Scan(&d.TripID, &d.RouteID, &d.ShortName, &d.Direction, &d.Headsign, &d.Time); err != nil {
			return nil, storeErr("scan daily schedule", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read daily schedule", err)
	}
	return out, nil
}
