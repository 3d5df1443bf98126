package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"wheresmybus/internal/gtfs"
)

func feed(t *testing.T, ts uint64, entities ...*gtfsrt.FeedEntity) []byte {
	t.Helper()
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	header := &gtfsrt.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      &incrementality,
	}
	if ts > 0 {
		header.Timestamp = proto.Uint64(ts)
	}
	data, err := proto.Marshal(&gtfsrt.FeedMessage{Header: header, Entity: entities})
	require.NoError(t, err)
	return data
}

func tripUpdateEntity(id, tripID string, delay *int32, rel *gtfsrt.TripDescriptor_ScheduleRelationship, stus ...*gtfsrt.TripUpdate_StopTimeUpdate) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &gtfsrt.TripUpdate{
			Trip:           &gtfsrt.TripDescriptor{TripId: proto.String(tripID), ScheduleRelationship: rel},
			Delay:          delay,
			StopTimeUpdate: stus,
		},
	}
}

func vehicleEntity(id, tripID string) *gtfsrt.FeedEntity {
	status := gtfsrt.VehiclePosition_STOPPED_AT
	occ := gtfsrt.VehiclePosition_MANY_SEATS_AVAILABLE
	vp := &gtfsrt.VehiclePosition{
		Vehicle:         &gtfsrt.VehicleDescriptor{Label: proto.String("bus " + id)},
		Position:        &gtfsrt.Position{Latitude: proto.Float32(-27.5), Longitude: proto.Float32(153.0)},
		CurrentStatus:   &status,
		StopId:          proto.String("S1"),
		OccupancyStatus: &occ,
		Timestamp:       proto.Uint64(1709244000),
	}
	if tripID != "" {
		vp.Trip = &gtfsrt.TripDescriptor{TripId: proto.String(tripID)}
	}
	return &gtfsrt.FeedEntity{Id: proto.String(id), Vehicle: vp}
}

func serve(t *testing.T, body []byte, status int, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type recordingObserver struct {
	mu        sync.Mutex
	successes int
	failures  []error
}

func (r *recordingObserver) DecodeSucceeded(*Snapshot, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
}

func (r *recordingObserver) DecodeFailed(err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func TestDecodeBuildsSnapshot(t *testing.T) {
	canceled := gtfsrt.TripDescriptor_CANCELED
	skipped := gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED
	tu := serve(t, feed(t, 1709244000,
		tripUpdateEntity("1", "T1", proto.Int32(30), nil),
		tripUpdateEntity("2", "T2", nil, &canceled),
		tripUpdateEntity("3", "T1", proto.Int32(120), nil, &gtfsrt.TripUpdate_StopTimeUpdate{
			StopSequence:         proto.Uint32(4),
			ScheduleRelationship: &skipped,
			Arrival:              &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(1709244300)},
		}),
	), http.StatusOK, 0)
	vp := serve(t, feed(t, 1709244050,
		vehicleEntity("V1", "T1"),
		vehicleEntity("V2", ""),
	), http.StatusOK, 0)

	obs := &recordingObserver{}
	d := NewDecoder(NewClient(nil), tu.URL, vp.URL, time.Second, obs)
	snap, err := d.Decode(context.Background())
	require.NoError(t, err)

	require.NotNil(t, snap.HeaderTimestamp)
	assert.Equal(t, int64(1709244050), *snap.HeaderTimestamp)

	require.Len(t, snap.TripUpdates, 2)
	t1 := snap.TripUpdates["T1"]
	require.NotNil(t, t1.Delay)
	assert.Equal(t, int32(120), *t1.Delay)
	require.Len(t, t1.StopTimes, 1)
	assert.True(t, t1.StopTimes[0].Skipped())
	assert.Empty(t, t1.StopTimes[0].StopID)
	assert.Equal(t, uint32(4), *t1.StopTimes[0].StopSequence)
	assert.Equal(t, int64(1709244300), *t1.StopTimes[0].Arrival.Time)
	assert.Nil(t, t1.StopTimes[0].Departure)
	assert.True(t, snap.TripUpdates["T2"].Canceled())

	require.Len(t, snap.Vehicles, 1)
	v := snap.Vehicles["T1"]
	assert.Equal(t, "bus V1", v.ID)
	assert.Equal(t, "STOPPED_AT", v.CurrentStatus)
	assert.Equal(t, "MANY_SEATS_AVAILABLE", v.OccupancyStatus)
	assert.Equal(t, "S1", v.CurrentStopID)
	assert.InDelta(t, -27.5, *v.Lat, 1e-6)

	assert.Equal(t, 1, obs.successes)
	assert.Empty(t, obs.failures)
}

func TestDecodeWithoutHeaderTimestamps(t *testing.T) {
	tu := serve(t, feed(t, 0), http.StatusOK, 0)
	vp := serve(t, feed(t, 0), http.StatusOK, 0)
	snap, err := NewDecoder(NewClient(nil), tu.URL, vp.URL, time.Second).Decode(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.HeaderTimestamp)
	assert.Empty(t, snap.TripUpdates)
}

func TestDecodeFailsAsUnit(t *testing.T) {
	good := serve(t, feed(t, 1709244000, tripUpdateEntity("1", "T1", proto.Int32(30), nil)), http.StatusOK, 0)
	bad := serve(t, nil, http.StatusBadGateway, 0)
	garbage := serve(t, []byte("not a protobuf \xff\xff\xff"), http.StatusOK, 0)
	slow := serve(t, feed(t, 1), http.StatusOK, 2*time.Second)

	tests := []struct {
		name    string
		tu, vp  string
		timeout time.Duration
	}{
		{"vehicle feed down", good.URL, bad.URL, time.Second},
		{"trip feed malformed", garbage.URL, good.URL, time.Second},
		{"deadline", good.URL, slow.URL, 100 * time.Millisecond},
		{"not configured", good.URL, "", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			snap, err := NewDecoder(NewClient(nil), tt.tu, tt.vp, tt.timeout, obs).Decode(context.Background())
			assert.ErrorIs(t, err, gtfs.ErrFeedUnavailable)
			assert.Nil(t, snap)
			assert.Len(t, obs.failures, 1)
		})
	}
}
