package reconcile

import "math"

// OnTimeBand is the dead-band, in seconds, within which a trip is on time.
const OnTimeBand = 60

type Status string

const (
	StatusOnTime  Status = "ON_TIME"
	StatusDelayed Status = "DELAYED"
	StatusEarly   Status = "EARLY"
	StatusNoData  Status = "NO_DATA"
)

// Classify buckets a delay in seconds: more than a minute late is DELAYED,
// more than a minute early is EARLY.
func Classify(delaySec int) Status {
	switch {
	case delaySec > OnTimeBand:
		return StatusDelayed
	case delaySec < -OnTimeBand:
		return StatusEarly
	default:
		return StatusOnTime
	}
}

type Punctuality struct {
	Status       Status `json:"status"`
	DelayMinutes int    `json:"delayMinutes"`
	DelaySeconds int    `json:"delaySeconds"`
}

func NewPunctuality(delaySec int) *Punctuality {
	return &Punctuality{
		Status:       Classify(delaySec),
		DelayMinutes: int(math.Round(float64(delaySec) / 60)),
		DelaySeconds: delaySec,
	}
}
