package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"wheresmybus/internal/gtfs"
)

var validate = validator.New()

type overviewQuery struct {
	ServiceDate string `query:"serviceDate" validate:"omitempty,datetime=2006-01-02"`
	Direction   string `query:"direction"`
	Rollup      string `query:"rollup" validate:"omitempty,oneof=auto station stop"`
	Page        string `query:"page" validate:"omitempty,number"`
	Limit       string `query:"limit" validate:"omitempty,number"`
}

type upcomingQuery struct {
	Direction string `query:"direction"`
	Rollup    string `query:"rollup" validate:"omitempty,oneof=auto station stop"`
	Basis     string `query:"basis" validate:"omitempty,oneof=origin next"`
	Minutes   string `query:"minutes" validate:"omitempty,number"`
	Limit     string `query:"limit" validate:"omitempty,number"`
	At        string `query:"at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (q *overviewQuery) normalize() {
	q.Rollup = strings.ToLower(strings.TrimSpace(q.Rollup))
}

func (q *upcomingQuery) normalize() {
	q.Rollup = strings.ToLower(strings.TrimSpace(q.Rollup))
	q.Basis = strings.ToLower(strings.TrimSpace(q.Basis))
}

type normalizer interface {
	normalize()
}

// parseQuery binds, normalizes and validates the query string into out.
// Failures are reported as gtfs.ErrInvalidInput.
func parseQuery(c *fiber.Ctx, out normalizer) error {
	if err := c.QueryParser(out); err != nil {
		return fmt.Errorf("%w: %s", gtfs.ErrInvalidInput, err.Error())
	}
	out.normalize()
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", gtfs.ErrInvalidInput, describe(err))
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func optionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func intOr(s string, def int) int {
	if v := optionalInt(s); v != nil {
		return *v
	}
	return def
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: at %q must be RFC 3339", gtfs.ErrInvalidInput, s)
	}
	return &t, nil
}

func optionalDate(s string) (*gtfs.ServiceDate, error) {
	if s == "" {
		return nil, nil
	}
	d, err := gtfs.ParseServiceDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
