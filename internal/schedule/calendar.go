package schedule

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"wheresmybus/internal/gtfs"
)

// CalendarStore is the slice of the static store the calendar resolver reads.
type CalendarStore interface {
	BaseServices(ctx context.Context, date gtfs.ServiceDate) ([]gtfs.ServiceCandidate, error)
	AddedServices(ctx context.Context, date gtfs.ServiceDate) ([]string, error)
}

type CalendarResolver struct {
	store CalendarStore
}

func NewCalendarResolver(store CalendarStore) *CalendarResolver {
	return &CalendarResolver{store: store}
}

// ActiveServices returns the service ids running on date. Base candidates
// with no calendar_dates rows at all take precedence over those with
// exceptions; explicit additions are always included.
func (r *CalendarResolver) ActiveServices(ctx context.Context, date gtfs.ServiceDate) ([]string, error) {
	if !date.Valid() {
		return nil, fmt.Errorf("%w: service date %s", gtfs.ErrInvalidInput, date)
	}

	var (
		base  []gtfs.ServiceCandidate
		added []string
	)
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		base, err = r.store.BaseServices(ctx, date)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		added, err = r.store.AddedServices(ctx, date)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return selectServices(base, added), nil
}

func selectServices(base []gtfs.ServiceCandidate, added []string) []string {
	var clean, all []string
	for _, c := range base {
		all = append(all, c.ServiceID)
		if !c.HasExceptions {
			clean = append(clean, c.ServiceID)
		}
	}
	selected := all
	if len(clean) > 0 {
		selected = clean
	}

	seen := make(map[string]struct{}, len(selected)+len(added))
	out := make([]string, 0, len(selected)+len(added))
	for _, id := range append(selected, added...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
