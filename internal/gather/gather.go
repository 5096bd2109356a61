// Package gather fetches historical bars from market-data sources and hands
// them to the simulator as normalized, ascending series.
package gather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stratlab/internal/domain"
)

// ErrNoData is returned when a source has no bars for the request. It is
// distinct from an empty but valid series.
var ErrNoData = errors.New("no data")

const dateLayout = "2006-01-02"

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run starts the data gathering process. It returns when the work is done
	// or ctx is cancelled.
	Run(ctx context.Context) error
}

// Provider supplies bars for one symbol at a time.
type Provider interface {
	// Name returns the provider identifier.
	Name() string
	// FetchBars returns the bars matching q in ascending timestamp order, or
	// an error wrapping ErrNoData when there are none.
	FetchBars(ctx context.Context, q Query) ([]domain.Bar, error)
}

// Query describes one symbol's bar request.
type Query struct {
	Symbol   string
	Market   string
	Interval string
	Range    DateRange
}

// DateRange represents a time range for data fetching. Start is inclusive
// and End is exclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses YYYY-MM-DD dates in UTC. The end date is inclusive,
// so the returned End is midnight of the following day.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing end date %q: %w", end, err)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return DateRange{Start: s, End: e.AddDate(0, 0, 1)}, nil
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Years returns the calendar years the range touches.
func (r DateRange) Years() []int {
	if !r.End.After(r.Start) {
		return nil
	}
	last := r.End.Add(-time.Nanosecond).Year()
	years := make([]int, 0, last-r.Start.Year()+1)
	for y := r.Start.Year(); y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// String formats the range with its inclusive end date.
func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + ".." + r.End.AddDate(0, 0, -1).Format(dateLayout)
}

// Normalize sorts bars ascending, drops bars outside r and bars that are
// not domain.Bar.Usable, keeps the last bar for duplicate timestamps, and
// stamps every bar with symbol.
func Normalize(bars []domain.Bar, symbol string, r DateRange) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !r.Start.IsZero() && !r.Contains(b.Timestamp) {
			continue
		}
		if !b.Usable() {
			continue
		}
		b.Symbol = symbol
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp.Equal(b.Timestamp) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

// NoData builds the ErrNoData error for a query.
func NoData(q Query) error {
	return fmt.Errorf("%s %s %s: %w", q.Symbol, q.Interval, q.Range, ErrNoData)
}
