// Package us provides US-equity market data from the Alpaca market-data API.
package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stratlab/internal/domain"
	"stratlab/internal/gather"
	"stratlab/internal/util"
)

var _ gather.Provider = (*AlpacaProvider)(nil)

// retryDelay is the first backoff between failed API calls.
var retryDelay = 500 * time.Millisecond

// barsClient is the part of *marketdata.Client the provider uses.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaProvider fetches historical bars for one symbol at a time. Bars are
// unadjusted; an intraday request that returns nothing is retried at 1d.
type AlpacaProvider struct {
	client     barsClient
	feed       string
	limiter    *util.RateLimiter
	maxRetries int
	log        *slog.Logger
}

// AlpacaOptions configures NewAlpacaProvider.
type AlpacaOptions struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string // "sip" or "iex"; empty uses the account default
	RateLimitPerMin int
	MaxRetries      int
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
func NewAlpacaProvider(opts AlpacaOptions, log *slog.Logger) *AlpacaProvider {
	co := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		co.BaseURL = opts.DataURL
	}
	return newAlpacaProvider(marketdata.NewClient(co), opts, log)
}

func newAlpacaProvider(client barsClient, opts AlpacaOptions, log *slog.Logger) *AlpacaProvider {
	if log == nil {
		log = slog.Default()
	}
	p := &AlpacaProvider{
		client:     client,
		feed:       opts.Feed,
		maxRetries: max(opts.MaxRetries, 1),
		log:        log.With("provider", "alpaca"),
	}
	if opts.RateLimitPerMin > 0 {
		p.limiter = util.NewRateLimiter(opts.RateLimitPerMin)
	}
	return p
}

// Name returns "alpaca".
func (p *AlpacaProvider) Name() string { return "alpaca" }

// FetchBars returns q's bars in ascending order. The range end is already
// exclusive, so the last requested calendar day is included.
func (p *AlpacaProvider) FetchBars(ctx context.Context, q gather.Query) ([]domain.Bar, error) {
	iv, err := gather.ParseInterval(q.Interval)
	if err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(q.Symbol)

	bars, err := p.fetch(ctx, symbol, iv, q.Range)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 && !iv.Daily() {
		p.log.Info("no intraday bars, retrying daily", "symbol", symbol, "interval", iv.String())
		bars, err = p.fetch(ctx, symbol, gather.Interval{N: 1, Unit: gather.Day}, q.Range)
		if err != nil {
			return nil, err
		}
	}

	bars = gather.Normalize(bars, symbol, q.Range)
	if len(bars) == 0 {
		return nil, gather.NoData(q)
	}
	return bars, nil
}

func (p *AlpacaProvider) fetch(ctx context.Context, symbol string, iv gather.Interval, dr gather.DateRange) ([]domain.Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame:  TimeFrame(iv),
		Adjustment: marketdata.Raw,
		Start:      dr.Start,
		End:        dr.End,
	}
	if p.feed != "" {
		req.Feed = marketdata.Feed(p.feed)
	}

	var raw []marketdata.Bar
	err := util.Retry(ctx, p.maxRetries, retryDelay, func() error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		raw, err = p.client.GetBars(symbol, req)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("alpaca GetBars %s %s: %w", symbol, iv, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ab.Timestamp.UTC(),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}
	return bars, nil
}

// TimeFrame maps a parsed interval to Alpaca's timeframe.
func TimeFrame(iv gather.Interval) marketdata.TimeFrame {
	switch iv.Unit {
	case gather.Minute:
		return marketdata.NewTimeFrame(iv.N, marketdata.Min)
	case gather.Hour:
		return marketdata.NewTimeFrame(iv.N, marketdata.Hour)
	case gather.Week:
		return marketdata.NewTimeFrame(iv.N, marketdata.Week)
	default:
		return marketdata.NewTimeFrame(iv.N, marketdata.Day)
	}
}
