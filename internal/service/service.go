package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"wheresmybus/internal/gtfs"
	"wheresmybus/internal/realtime"
	"wheresmybus/internal/reconcile"
	"wheresmybus/internal/schedule"
)

const (
	DefaultLimit  = 25
	MaxLimit      = 100
	MaxCandidates = 300
)

// Store is the static schedule surface the service reads directly; window
// and calendar reads go through the schedule package.
type Store interface {
	schedule.StopStore
	RouteByID(ctx context.Context, routeID string) (gtfs.Route, error)
	RouteServiceDays(ctx context.Context, routeID string) ([7]bool, error)
	TimetablePage(ctx context.Context, q gtfs.TimetableQuery) ([]gtfs.TimetableTrip, bool, error)
	StopNames(ctx context.Context, ids []string) (map[string]string, error)
	ServedRoutes(ctx context.Context, stopIDs, serviceIDs []string) ([]gtfs.ServedPattern, error)
	DayWindow(ctx context.Context, stopIDs, serviceIDs []string) (gtfs.DayWindow, error)
	DailySchedule(ctx context.Context, stopID string, serviceIDs []string) ([]gtfs.StopDeparture, error)
}

type Stitcher interface {
	Stitch(ctx context.Context, q schedule.StitchQuery) (schedule.Stitched, error)
}

type SnapshotDecoder interface {
	Decode(ctx context.Context) (*realtime.Snapshot, error)
}

// Recorder observes every answered reconciled request.
type Recorder interface {
	Served(endpoint string, mode reconcile.Mode, items int)
}

type Horizons struct {
	Route     int
	RouteNext int
	Stop      int
}

var DefaultHorizons = Horizons{Route: 180, RouteNext: 60, Stop: 60}

type Service struct {
	store    Store
	calendar schedule.ServiceResolver
	stitcher Stitcher
	decoder  SnapshotDecoder
	merger   *reconcile.Merger
	loc      *time.Location
	horizons Horizons
	now      func() time.Time
	recorder Recorder
}

type Option func(*Service)

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithHorizons(h Horizons) Option {
	return func(s *Service) { s.horizons = h }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// New wires the engine. decoder may be nil, in which case every answer is
// schedule-only.
func New(store Store, calendar schedule.ServiceResolver, stitcher Stitcher, decoder SnapshotDecoder, merger *reconcile.Merger, loc *time.Location, opts ...Option) *Service {
	s := &Service{
		store:    store,
		calendar: calendar,
		stitcher: stitcher,
		decoder:  decoder,
		merger:   merger,
		loc:      loc,
		horizons: DefaultHorizons,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today is the current service date in the network's offset.
func (s *Service) Today() gtfs.ServiceDate {
	return gtfs.ServiceDateOf(s.now(), s.loc)
}

// ClampLimit bounds a requested result count to [1, 100].
func ClampLimit(n int) int {
	return min(max(n, 1), MaxLimit)
}

// limitOrDefault clamps a requested count; nil selects DefaultLimit.
func limitOrDefault(n *int) int {
	if n == nil {
		return DefaultLimit
	}
	return ClampLimit(*n)
}

func candidates(limit int) int {
	return min(3*limit, MaxCandidates)
}

// snapshot decodes the feeds when anchor is today. Feed failures are logged
// and yield a nil snapshot.
func (s *Service) snapshot(ctx context.Context, anchor gtfs.ServiceDate) *realtime.Snapshot {
	if s.decoder == nil || anchor != s.Today() {
		return nil
	}
	snap, err := s.decoder.Decode(ctx)
	if err != nil {
		log.Warn().Err(err).Str("date", anchor.String()).Msg("realtime unavailable, answering from schedule")
		return nil
	}
	return snap
}

// enrichStopNames resolves vehicle current stop names with one lookup.
func (s *Service) enrichStopNames(ctx context.Context, vs []*reconcile.Vehicle) error {
	ids := reconcile.CurrentStopIDs(vs)
	if len(ids) == 0 {
		return nil
	}
	names, err := s.store.StopNames(ctx, ids)
	if err != nil {
		return err
	}
	reconcile.ApplyStopNames(vs, names)
	return nil
}

func (s *Service) record(endpoint string, mode reconcile.Mode, n int) {
	if s.recorder != nil {
		s.recorder.Served(endpoint, mode, n)
	}
}
