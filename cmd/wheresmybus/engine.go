package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"wheresmybus/internal/cache"
	"wheresmybus/internal/config"
	"wheresmybus/internal/db"
	"wheresmybus/internal/logging"
	"wheresmybus/internal/metrics"
	"wheresmybus/internal/publisher"
	"wheresmybus/internal/realtime"
	"wheresmybus/internal/reconcile"
	"wheresmybus/internal/schedule"
	"wheresmybus/internal/service"
)

const connectWait = 30 * time.Second

// engine holds everything built from configuration, plus what must be
// released on exit.
type engine struct {
	cfg     *config.Config
	service *service.Service
	metrics *metrics.Collector
	closers []func()
}

func (r *engine) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// setup loads configuration and wires the engine. withMetrics enables the
// Prometheus collector when METRICS_ADDR is set.
func setup(ctx context.Context, withMetrics bool) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	rt := &engine{cfg: cfg}

	sqlDB, err := connectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = sqlDB.Close() })

	var (
		recorder  service.Recorder
		observers []realtime.Observer
		cacheOpts []cache.Option
	)
	if withMetrics && cfg.MetricsAddr != "" {
		rt.metrics = metrics.NewCollector(metrics.Horizons{
			Route:     cfg.RouteHorizonMinutes,
			RouteNext: cfg.RouteNextHorizonMinutes,
			Stop:      cfg.StopHorizonMinutes,
		})
		recorder = rt.metrics
		observers = append(observers, rt.metrics)
		cacheOpts = append(cacheOpts, cache.WithMetrics(rt.metrics))
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
		cacheOpts = append(cacheOpts, cache.WithRedis(rdb, cache.DefaultTTL))
		log.Info().Str("addr", cfg.RedisAddr).Msg("shared stop sequence cache enabled")
	}

	if cfg.NATSURL != "" {
		nc, err := publisher.Connect(cfg.NATSURL, "wheresmybus")
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			_ = nc.Drain()
		})
		pub := publisher.NewFeedStatusPublisher(nc, cfg.NATSSubjectPrefix)
		observers = append(observers, pub)
		log.Info().Str("subject", pub.Subject()).Msg("publishing feed status")
	}

	store := db.NewStore(sqlDB, cfg.DBSchema)
	seq := cache.NewStopSequenceCache(cfg.StopSequenceCacheSize, store.StopSequence, cacheOpts...)
	calendar := schedule.NewCalendarResolver(store)
	stitcher := schedule.NewStitcher(calendar, schedule.NewWindowFetcher(store), cfg.Location)

	var decoder service.SnapshotDecoder
	dec := realtime.NewDecoder(
		realtime.NewClient(&http.Client{}),
		cfg.TripUpdatesURL, cfg.VehiclePositionsURL,
		cfg.RealtimeTimeout(),
		observers...,
	)
	if dec.Configured() {
		decoder = dec
	} else {
		log.Warn().Msg("realtime feed urls not set, answering from schedule only")
	}

	opts := []service.Option{service.WithHorizons(service.Horizons{
		Route:     cfg.RouteHorizonMinutes,
		RouteNext: cfg.RouteNextHorizonMinutes,
		Stop:      cfg.StopHorizonMinutes,
	})}
	if recorder != nil {
		opts = append(opts, service.WithRecorder(recorder))
	}
	rt.service = service.New(store, calendar, stitcher, decoder, reconcile.NewMerger(cfg.Location, seq), cfg.Location, opts...)
	return rt, nil
}

// connectDB resolves the newest import for CITY when set, then connects.
func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.City != "" {
		resolved, name, err := db.ResolveCityDSN(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			return nil, fmt.Errorf("resolve latest import for city %q: %w", cfg.City, err)
		}
		log.Info().Str("database", name).Str("city", cfg.City).Msg("using city database")
		dsn = resolved
	}
	return db.Connect(ctx, dsn, connectWait)
}
