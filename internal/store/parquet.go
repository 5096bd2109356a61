package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stratlab/internal/domain"
	"stratlab/internal/gather"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ gather.Provider = (*ParquetStore)(nil)
var _ gather.BarWriter = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk. It also
// serves as a gather.Provider so backtests can run from local data.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"` // fractional for crypto
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/<daily|interval>/<SYMBOL>/<YYYY>.parquet
//
// Existing files are merged, with incoming bars replacing stored bars that
// share a timestamp.
func (s *ParquetStore) WriteBars(_ context.Context, market, interval string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    k.symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, interval, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading existing bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range, in ascending order.
func (s *ParquetStore) ReadBars(_ context.Context, symbol, market, interval string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	dr := gather.DateRange{Start: start, End: end}
	for _, year := range dr.Years() {
		path := s.barPath(symbol, market, interval, year)

		records, err := readParquetFile[BarRecord](path)
		if errors.Is(err, fs.ErrNotExist) {
			// No file for this year.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if !dr.Contains(ts) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market and
// interval.
func (s *ParquetStore) ListSymbols(_ context.Context, market, interval string) ([]string, error) {
	dir := filepath.Join(s.DataDir, strings.ToLower(market), intervalDir(interval))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// gather.Provider implementation
// ---------------------------------------------------------------------------

// Name returns "parquet".
func (s *ParquetStore) Name() string { return "parquet" }

// FetchBars reads q from disk.
func (s *ParquetStore) FetchBars(ctx context.Context, q gather.Query) ([]domain.Bar, error) {
	bars, err := s.ReadBars(ctx, q.Symbol, q.Market, q.Interval, q.Range.Start, q.Range.End)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, gather.NoData(q)
	}
	return gather.Normalize(bars, strings.ToUpper(q.Symbol), q.Range), nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/<daily|interval>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market, interval string, year int) string {
	return filepath.Join(s.DataDir, strings.ToLower(market), intervalDir(interval),
		strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// intervalDir maps an interval to its directory name. One-day bars live in
// "daily"; everything else uses the canonical interval string.
func intervalDir(interval string) string {
	iv, err := gather.ParseInterval(interval)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(interval))
	}
	if iv.Unit == gather.Day && iv.N == 1 {
		return "daily"
	}
	return iv.String()
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
