package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"wheresmybus/internal/realtime"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Connect dials NATS with logging handlers for connection state changes.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats closed")
		}),
	)
}

// FeedStatus is published whenever realtime feed health changes.
type FeedStatus struct {
	Healthy         bool      `json:"healthy"`
	Error           string    `json:"error,omitempty"`
	HeaderTimestamp *int64    `json:"headerTimestamp,omitempty"`
	TripUpdates     int       `json:"tripUpdates"`
	Vehicles        int       `json:"vehicles"`
	At              time.Time `json:"at"`
}

// FeedStatusPublisher announces realtime feed health transitions on
// "<prefix>.feed.status". It implements realtime.Observer.
type FeedStatusPublisher struct {
	conn    Conn
	subject string
	now     func() time.Time

	mu      sync.Mutex
	known   bool
	healthy bool
}

func NewFeedStatusPublisher(conn Conn, prefix string) *FeedStatusPublisher {
	return &FeedStatusPublisher{
		conn:    conn,
		subject: fmt.Sprintf("%s.feed.status", subjectToken(prefix)),
		now:     time.Now,
	}
}

func (p *FeedStatusPublisher) Subject() string { return p.subject }

func (p *FeedStatusPublisher) DecodeSucceeded(snap *realtime.Snapshot, _ time.Duration) {
	p.publish(FeedStatus{
		Healthy:         true,
		HeaderTimestamp: snap.HeaderTimestamp,
		TripUpdates:     len(snap.TripUpdates),
		Vehicles:        len(snap.Vehicles),
	})
}

func (p *FeedStatusPublisher) DecodeFailed(err error, _ time.Duration) {
	p.publish(FeedStatus{Healthy: false, Error: err.Error()})
}

func (p *FeedStatusPublisher) publish(st FeedStatus) {
	p.mu.Lock()
	if p.known && p.healthy == st.Healthy {
		p.mu.Unlock()
		return
	}
	p.known, p.healthy = true, st.Healthy
	p.mu.Unlock()

	st.At = p.now().UTC()
	b, err := json.Marshal(st)
	if err != nil {
		log.Error().Err(err).Msg("marshal feed status")
		return
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		log.Warn().Err(err).Str("subject", p.subject).Msg("nats publish failed")
		return
	}
	log.Debug().Str("subject", p.subject).Bool("healthy", st.Healthy).Msg("feed status published")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
