package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"wheresmybus/internal/realtime"
	"wheresmybus/internal/reconcile"
)

type Collector struct {
	reg *prometheus.Registry

	Requests      *prometheus.CounterVec // endpoint, mode
	ItemsReturned *prometheus.HistogramVec

	DecodeDuration prometheus.Histogram
	DecodeFailures prometheus.Counter
	FeedHealthy    prometheus.Gauge
	TripUpdates    prometheus.Gauge
	Vehicles       prometheus.Gauge
	FeedTimestamp  prometheus.Gauge // unix seconds

	CacheHits   *prometheus.CounterVec // tier: local|shared
	CacheMisses prometheus.Counter

	HorizonMinutes *prometheus.GaugeVec // endpoint
}

func NewCollector(h Horizons) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wheresmybus_requests_total",
			Help: "Reconciled responses served, by endpoint and mode.",
		}, []string{"endpoint", "mode"}),
		ItemsReturned: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wheresmybus_items_returned",
			Help:    "Number of items in reconciled responses.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"endpoint"}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wheresmybus_realtime_decode_duration_seconds",
			Help:    "Duration to fetch and decode both realtime feeds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wheresmybus_realtime_decode_failures_total",
			Help: "Total realtime decodes that failed.",
		}),
		FeedHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheresmybus_realtime_feed_healthy",
			Help: "1 if the last realtime decode succeeded, 0 otherwise.",
		}),
		TripUpdates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheresmybus_realtime_trip_updates",
			Help: "Trip updates in the last decoded snapshot.",
		}),
		Vehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheresmybus_realtime_vehicles",
			Help: "Vehicles in the last decoded snapshot.",
		}),
		FeedTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheresmybus_realtime_header_timestamp_seconds",
			Help: "Newest feed header timestamp of the last decoded snapshot.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wheresmybus_stop_sequence_cache_hits_total",
			Help: "Stop sequence lookups answered from cache.",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wheresmybus_stop_sequence_cache_misses_total",
			Help: "Stop sequence lookups that reached the database.",
		}),
		HorizonMinutes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wheresmybus_default_horizon_minutes",
			Help: "Configured default look-ahead per endpoint.",
		}, []string{"endpoint"}),
	}

	// Register
	reg.MustRegister(
		c.Requests, c.ItemsReturned,
		c.DecodeDuration, c.DecodeFailures, c.FeedHealthy,
		c.TripUpdates, c.Vehicles, c.FeedTimestamp,
		c.CacheHits, c.CacheMisses, c.HorizonMinutes,
	)

	// Static gauges
	c.HorizonMinutes.WithLabelValues("route_upcoming").Set(float64(h.Route))
	c.HorizonMinutes.WithLabelValues("route_upcoming_next").Set(float64(h.RouteNext))
	c.HorizonMinutes.WithLabelValues("stop_upcoming").Set(float64(h.Stop))

	return c
}

// Horizons mirrors the configured default windows for export.
type Horizons struct {
	Route, RouteNext, Stop int
}

// Served implements service.Recorder.
func (c *Collector) Served(endpoint string, mode reconcile.Mode, items int) {
	c.Requests.WithLabelValues(endpoint, string(mode)).Inc()
	c.ItemsReturned.WithLabelValues(endpoint).Observe(float64(items))
}

// DecodeSucceeded implements realtime.Observer.
func (c *Collector) DecodeSucceeded(snap *realtime.Snapshot, took time.Duration) {
	c.DecodeDuration.Observe(took.Seconds())
	c.FeedHealthy.Set(1)
	c.TripUpdates.Set(float64(len(snap.TripUpdates)))
	c.Vehicles.Set(float64(len(snap.Vehicles)))
	if snap.HeaderTimestamp != nil {
		c.FeedTimestamp.Set(float64(*snap.HeaderTimestamp))
	}
}

// DecodeFailed implements realtime.Observer.
func (c *Collector) DecodeFailed(_ error, took time.Duration) {
	c.DecodeDuration.Observe(took.Seconds())
	c.DecodeFailures.Inc()
	c.FeedHealthy.Set(0)
}

// CacheHit implements cache.Metrics.
func (c *Collector) CacheHit(tier string) { c.CacheHits.WithLabelValues(tier).Inc() }

// CacheMiss implements cache.Metrics.
func (c *Collector) CacheMiss() { c.CacheMisses.Inc() }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
