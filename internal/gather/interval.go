package gather

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the base unit of a bar interval.
type Unit int

const (
	Minute Unit = iota
	Hour
	Day
	Week
)

// Interval is a parsed bar interval such as "5m", "1h" or "1d".
type Interval struct {
	N    int
	Unit Unit
}

// ParseInterval parses an interval string. "60m" is read as one hour and
// "1wk" as one week.
func ParseInterval(s string) (Interval, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	suffixes := []struct {
		suffix string
		unit   Unit
	}{
		{"wk", Week},
		{"w", Week},
		{"m", Minute},
		{"min", Minute},
		{"h", Hour},
		{"d", Day},
	}
	for _, sf := range suffixes {
		num, ok := strings.CutSuffix(s, sf.suffix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || n <= 0 {
			return Interval{}, fmt.Errorf("invalid interval %q", s)
		}
		iv := Interval{N: n, Unit: sf.unit}
		if iv.Unit == Minute && n%60 == 0 {
			iv = Interval{N: n / 60, Unit: Hour}
		}
		return iv, nil
	}
	return Interval{}, fmt.Errorf("invalid interval %q", s)
}

// Duration returns the nominal length of one bar.
func (i Interval) Duration() time.Duration {
	switch i.Unit {
	case Minute:
		return time.Duration(i.N) * time.Minute
	case Hour:
		return time.Duration(i.N) * time.Hour
	case Day:
		return time.Duration(i.N) * 24 * time.Hour
	default:
		return time.Duration(i.N) * 7 * 24 * time.Hour
	}
}

// Daily reports whether bars are a day or longer.
func (i Interval) Daily() bool { return i.Unit >= Day }

// String returns the canonical form, e.g. "1h" for "60m".
func (i Interval) String() string {
	suffix := [...]string{"m", "h", "d", "wk"}[i.Unit]
	return strconv.Itoa(i.N) + suffix
}
