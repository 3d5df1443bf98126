package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheresmybus/internal/gtfs"
	"wheresmybus/internal/reconcile"
	"wheresmybus/internal/schedule"
	"wheresmybus/internal/service"
)

type fakeEngine struct {
	routeUpcoming service.RouteUpcomingRequest
	stopUpcoming  service.StopUpcomingRequest
	routeOverview service.RouteOverviewRequest
	stopOverview  service.StopOverviewRequest
	err           error
}

func (f *fakeEngine) Today() gtfs.ServiceDate {
	return gtfs.ServiceDate{Year: 2024, Month: time.March, Day: 1}
}

func (f *fakeEngine) RouteOverview(_ context.Context, req service.RouteOverviewRequest) (service.RouteOverview, error) {
	f.routeOverview = req
	return service.RouteOverview{Route: service.RouteMeta{ID: req.RouteID}, Page: req.Page}, f.err
}

func (f *fakeEngine) RouteUpcoming(_ context.Context, req service.RouteUpcomingRequest) (reconcile.RouteResult, error) {
	f.routeUpcoming = req
	return reconcile.RouteResult{Mode: reconcile.ModeSchedule, Data: []reconcile.RouteItem{}}, f.err
}

func (f *fakeEngine) StopOverview(_ context.Context, req service.StopOverviewRequest) (service.StopOverview, error) {
	f.stopOverview = req
	return service.StopOverview{ID: req.StopID}, f.err
}

func (f *fakeEngine) StopUpcoming(_ context.Context, req service.StopUpcomingRequest) (reconcile.StopResult, error) {
	f.stopUpcoming = req
	return reconcile.StopResult{Mode: reconcile.ModeSchedule, Data: []reconcile.StopItem{}}, f.err
}

func do(t *testing.T, e Engine, target string) (int, map[string]any) {
	t.Helper()
	app := NewApp(e)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body), string(b))
	return resp.StatusCode, body
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	status, body := do(t, &fakeEngine{}, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
}

func TestRouteUpcomingQuery(t *testing.T) {
	e := &fakeEngine{}
	status, body := do(t, e, "/route/R1/upcoming?direction=inbound&minutes=30&limit=5&basis=Next&at=2024-03-01T23:50:00%2B10:00")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "schedule", body["mode"])

	req := e.routeUpcoming
	assert.Equal(t, "R1", req.RouteID)
	assert.Equal(t, 1, *req.Direction)
	assert.Equal(t, 30, *req.Minutes)
	require.NotNil(t, req.Limit)
	assert.Equal(t, 5, *req.Limit)
	assert.Equal(t, service.BasisNext, req.Basis)
	require.NotNil(t, req.At)
	assert.Equal(t, time.Date(2024, time.March, 1, 13, 50, 0, 0, time.UTC), req.At.UTC())
}

func TestRouteUpcomingDefaults(t *testing.T) {
	e := &fakeEngine{}
	status, _ := do(t, e, "/route/R1/upcoming")
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, e.routeUpcoming.Direction)
	assert.Nil(t, e.routeUpcoming.Minutes)
	assert.Nil(t, e.routeUpcoming.At)
	assert.Nil(t, e.routeUpcoming.Limit)
	assert.Equal(t, service.BasisOrigin, e.routeUpcoming.Basis)
}

func TestStopQueries(t *testing.T) {
	e := &fakeEngine{}
	status, _ := do(t, e, "/stop/place_censtn/upcoming?rollup=STATION")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, schedule.RollupStation, e.stopUpcoming.Rollup)
	assert.Equal(t, "place_censtn", e.stopUpcoming.StopID)

	status, body := do(t, e, "/stop/place_censtn?serviceDate=2024-03-02")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "place_censtn", body["id"])
	assert.Equal(t, schedule.RollupAuto, e.stopOverview.Rollup)
	assert.Equal(t, gtfs.ServiceDate{Year: 2024, Month: time.March, Day: 2}, *e.stopOverview.ServiceDate)
}

func TestRouteOverviewQuery(t *testing.T) {
	e := &fakeEngine{}
	status, _ := do(t, e, "/route/R1?direction=outbound&page=3&limit=10")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, *e.routeOverview.Direction)
	assert.Equal(t, 3, e.routeOverview.Page)
	require.NotNil(t, e.routeOverview.Limit)
	assert.Equal(t, 10, *e.routeOverview.Limit)
	assert.Nil(t, e.routeOverview.ServiceDate)
}

func TestExplicitZeroLimitIsPassedThrough(t *testing.T) {
	e := &fakeEngine{}
	status, _ := do(t, e, "/stop/S1/upcoming?limit=0")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, e.stopUpcoming.Limit)
	assert.Equal(t, 0, *e.stopUpcoming.Limit)
}

func TestInvalidInput(t *testing.T) {
	for _, target := range []string{
		"/stop/S1?rollup=platform",
		"/stop/S1/upcoming?rollup=sideways",
		"/route/R1?serviceDate=2024-02-30",
		"/route/R1?serviceDate=01-03-2024",
		"/route/R1/upcoming?minutes=soon",
		"/route/R1/upcoming?at=yesterday",
		"/route/R1/upcoming?basis=last",
	} {
		t.Run(target, func(t *testing.T) {
			status, body := do(t, &fakeEngine{}, target)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "INVALID_INPUT", errorCode(body))
		})
	}
}

func TestErrorMapping(t *testing.T) {
	status, body := do(t, &fakeEngine{err: fmt.Errorf("route R9: %w", gtfs.ErrNotFound)}, "/route/R9/upcoming")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = do(t, &fakeEngine{err: fmt.Errorf("query stop events: %w: %w", gtfs.ErrStore, io.ErrUnexpectedEOF)}, "/stop/S1/upcoming")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", errorCode(body))
	assert.NotContains(t, fmt.Sprint(body), "unexpected EOF")

	status, body = do(t, &fakeEngine{}, "/nowhere")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
