package realtime

import (
	"context"
	"fmt"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sourcegraph/conc/pool"

	"wheresmybus/internal/gtfs"
)

const DefaultTimeout = 4 * time.Second

// Observer is told about every decode outcome.
type Observer interface {
	DecodeSucceeded(snap *Snapshot, took time.Duration)
	DecodeFailed(err error, took time.Duration)
}

type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (*gtfsrt.FeedMessage, error)
}

type Decoder struct {
	fetcher        FeedFetcher
	tripUpdatesURL string
	vehiclesURL    string
	timeout        time.Duration
	observers      []Observer
}

func NewDecoder(fetcher FeedFetcher, tripUpdatesURL, vehiclesURL string, timeout time.Duration, observers ...Observer) *Decoder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Decoder{
		fetcher:        fetcher,
		tripUpdatesURL: tripUpdatesURL,
		vehiclesURL:    vehiclesURL,
		timeout:        timeout,
		observers:      observers,
	}
}

// Configured reports whether both feed URLs are set.
func (d *Decoder) Configured() bool {
	return d.tripUpdatesURL != "" && d.vehiclesURL != ""
}

// Decode fetches both feeds concurrently under one deadline. Either both
// feeds decode or the call fails with gtfs.ErrFeedUnavailable.
func (d *Decoder) Decode(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, err := d.decode(ctx)
	took := time.Since(start)
	for _, o := range d.observers {
		if err != nil {
			o.DecodeFailed(err, took)
		} else {
			o.DecodeSucceeded(snap, took)
		}
	}
	return snap, err
}

func (d *Decoder) decode(ctx context.Context) (*Snapshot, error) {
	if !d.Configured() {
		return nil, fmt.Errorf("%w: feed urls not configured", gtfs.ErrFeedUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var tripFeed, vehicleFeed *gtfsrt.FeedMessage
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		tripFeed, err = d.fetcher.FetchFeed(ctx, d.tripUpdatesURL)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		vehicleFeed, err = d.fetcher.FetchFeed(ctx, d.vehiclesURL)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", gtfs.ErrFeedUnavailable, err)
	}
	return Normalize(tripFeed, vehicleFeed), nil
}
