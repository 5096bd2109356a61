package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stratlab/internal/domain"
)

var _ Gatherer = (*Backfiller)(nil)

// BarWriter persists bars for a market and interval.
type BarWriter interface {
	WriteBars(ctx context.Context, market, interval string, bars []domain.Bar) error
}

// Backfiller copies bars for a symbol list from a Provider into a BarWriter,
// typically a remote API into the local Parquet store.
type Backfiller struct {
	source   Provider
	sink     BarWriter
	symbols  []string
	market   string
	interval string
	dr       DateRange
	log      *slog.Logger

	// Written and Empty are filled in by Run.
	Written map[string]int
	Empty   []string
}

// NewBackfiller creates a Backfiller for symbols over dr.
func NewBackfiller(source Provider, sink BarWriter, symbols []string, market, interval string, dr DateRange, log *slog.Logger) *Backfiller {
	if log == nil {
		log = slog.Default()
	}
	return &Backfiller{
		source:   source,
		sink:     sink,
		symbols:  symbols,
		market:   market,
		interval: interval,
		dr:       dr,
		log:      log.With("gatherer", "backfill", "source", source.Name()),
	}
}

// Name returns "backfill-<source>".
func (b *Backfiller) Name() string { return "backfill-" + b.source.Name() }

// Run fetches and writes each symbol in turn. Symbols without data are
// recorded in Empty and skipped.
func (b *Backfiller) Run(ctx context.Context) error {
	b.Written = make(map[string]int, len(b.symbols))
	b.Empty = nil
	start := time.Now()

	for _, sym := range b.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := Query{Symbol: sym, Market: b.market, Interval: b.interval, Range: b.dr}
		bars, err := b.source.FetchBars(ctx, q)
		if errors.Is(err, ErrNoData) || (err == nil && len(bars) == 0) {
			b.log.Warn("no bars", "symbol", sym, "range", b.dr.String())
			b.Empty = append(b.Empty, sym)
			continue
		}
		if err != nil {
			return fmt.Errorf("fetching %s: %w", sym, err)
		}
		if err := b.sink.WriteBars(ctx, b.market, b.interval, bars); err != nil {
			return fmt.Errorf("writing %s: %w", sym, err)
		}
		b.Written[sym] = len(bars)
		b.log.Info("backfilled", "symbol", sym, "bars", len(bars))
	}

	b.log.Info("backfill complete",
		"symbols", len(b.Written),
		"empty", len(b.Empty),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
