package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const SecondsPerDay = 86400

// ServiceDate is a civil date in the network's local calendar.
type ServiceDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseServiceDate parses YYYY-MM-DD. Anything else, including dates that
// do not exist such as 2024-02-30, is rejected with ErrInvalidInput.
func ParseServiceDate(s string) (ServiceDate, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return ServiceDate{}, fmt.Errorf("%w: service date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return ServiceDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// ServiceDateOf returns the civil date of t in loc.
func ServiceDateOf(t time.Time, loc *time.Location) ServiceDate {
	y, m, d := t.In(loc).Date()
	return ServiceDate{Year: y, Month: m, Day: d}
}

func (d ServiceDate) Valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	n := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return n.Day() == d.Day && n.Month() == d.Month
}

// Midnight is local midnight of d; all planned times are offsets from it.
func (d ServiceDate) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d ServiceDate) AddDays(n int) ServiceDate {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return ServiceDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d ServiceDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Compact returns the YYYYMMDD integer form used by calendar tables.
func (d ServiceDate) Compact() int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

func (d ServiceDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Epoch converts seconds since the service date's midnight into an instant.
// sec may exceed 86400 for post-midnight service.
func (d ServiceDate) Epoch(sec int, loc *time.Location) time.Time {
	return d.Midnight(loc).Add(time.Duration(sec) * time.Second)
}

// SecondsIntoDay returns the seconds elapsed since local midnight of t.
func SecondsIntoDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*3600 + lt.Minute()*60 + lt.Second()
}

// ParseDaySeconds parses HH:MM[:SS] where hours may be 24 or more.
func ParseDaySeconds(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	sec := 0
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, false
		}
	}
	return h*3600 + m*60 + sec, true
}

// FormatDaySeconds renders seconds as HH:MM:SS without wrapping at 24h.
func FormatDaySeconds(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

// ParseOffset turns "+10:00" style offsets into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	t, err := time.Parse("-07:00", strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: utc offset %q must look like +10:00", ErrInvalidInput, s)
	}
	_, off := t.Zone()
	return time.FixedZone(s, off), nil
}

const localLayout = "2006-01-02T15:04:05-07:00"

// LocalTime renders as ISO-8601 with a numeric offset, never a Z suffix.
type LocalTime struct {
	time.Time
}

func NewLocalTime(t time.Time, loc *time.Location) *LocalTime {
	return &LocalTime{Time: t.In(loc)}
}

func (t LocalTime) String() string {
	return t.Format(localLayout)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(localLayout) + `"`), nil
}
