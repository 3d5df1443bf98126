package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// maxFeedBytes bounds a single feed body.
const maxFeedBytes = 64 << 20

// Client fetches and unmarshals GTFS-realtime documents.
type Client struct {
	http *http.Client
}

func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc}
}

func (c *Client) FetchFeed(ctx context.Context, url string) (*gtfsrt.FeedMessage, error) {
	if url == "" {
		return nil, fmt.Errorf("feed url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, err
	}
	var fm gtfsrt.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return &fm, nil
}
