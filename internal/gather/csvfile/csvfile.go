// Package csvfile serves bars from per-symbol CSV files on disk.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stratlab/internal/domain"
	"stratlab/internal/gather"
)

var _ gather.Provider = (*Provider)(nil)

// timestampLayouts are tried in order when parsing the timestamp column.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Provider reads <Dir>/<SYMBOL>.csv files with the header
// timestamp,open,high,low,close,volume. Column order is taken from the
// header; extra columns are ignored.
type Provider struct {
	Dir string
}

// New creates a Provider rooted at dir.
func New(dir string) *Provider {
	return &Provider{Dir: dir}
}

// Name returns "csv".
func (p *Provider) Name() string { return "csv" }

// Path returns the file read for symbol.
func (p *Provider) Path(symbol string) string {
	return filepath.Join(p.Dir, strings.ToUpper(symbol)+".csv")
}

// FetchBars reads the symbol's file and returns the bars inside q.Range in
// ascending order. A missing file or an empty selection is ErrNoData.
func (p *Provider) FetchBars(ctx context.Context, q gather.Query) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path(q.Symbol))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, gather.NoData(q)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBars(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.Path(q.Symbol), err)
	}
	bars = gather.Normalize(bars, strings.ToUpper(q.Symbol), q.Range)
	if len(bars) == 0 {
		return nil, gather.NoData(q)
	}
	return bars, nil
}

// ReadBars parses CSV bar rows from r. Rows with an unparseable timestamp
// and rows that are not domain.Bar.Usable (NaN, Inf or a non-positive
// close) are skipped; a malformed price is an error.
func ReadBars(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, ok := parseTimestamp(rec[cols["timestamp"]])
		if !ok {
			continue
		}
		b := domain.Bar{Timestamp: ts}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open},
			{"high", &b.High},
			{"low", &b.Low},
			{"close", &b.Close},
			{"volume", &b.Volume},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[f.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, f.name, err)
			}
			*f.dst = v
		}
		if !b.Usable() {
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, name := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
