// Package crypto provides crypto market data from Binance spot klines.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"stratlab/internal/domain"
	"stratlab/internal/gather"
	"stratlab/internal/util"
)

var _ gather.Provider = (*BinanceProvider)(nil)

// PageSize is the maximum number of klines Binance returns per request.
const PageSize = 1000

var retryDelay = 100 * time.Millisecond

// klineSource fetches one page of klines.
type klineSource interface {
	Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*binance.Kline, error)
}

type spotKlines struct {
	client *binance.Client
}

func (s spotKlines) Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*binance.Kline, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(startMs).
		EndTime(endMs).
		Limit(limit).
		Do(ctx)
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code != codeTooManyRequests {
		return nil, util.Permanent(err)
	}
	return klines, err
}

// codeTooManyRequests is Binance's request-weight limit error; every other
// API error code (bad symbol, bad interval) fails the same way on retry.
const codeTooManyRequests = -1003

// BinanceOptions configures NewBinanceProvider.
type BinanceOptions struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	RateLimitPerMin int
	MaxRetries      int
}

// BinanceProvider pages through spot klines for one symbol at a time.
type BinanceProvider struct {
	source     klineSource
	limiter    *util.RateLimiter
	maxRetries int
	log        *slog.Logger
}

// NewBinanceProvider creates a BinanceProvider. Public market data needs no
// credentials.
func NewBinanceProvider(opts BinanceOptions, log *slog.Logger) *BinanceProvider {
	client := binance.NewClient(opts.APIKey, opts.APISecret)
	if opts.BaseURL != "" {
		client.BaseURL = opts.BaseURL
	}
	return newBinanceProvider(spotKlines{client: client}, opts, log)
}

func newBinanceProvider(src klineSource, opts BinanceOptions, log *slog.Logger) *BinanceProvider {
	if log == nil {
		log = slog.Default()
	}
	p := &BinanceProvider{
		source:     src,
		maxRetries: max(opts.MaxRetries, 1),
		log:        log.With("provider", "binance"),
	}
	if opts.RateLimitPerMin > 0 {
		p.limiter = util.NewRateLimiter(opts.RateLimitPerMin)
	}
	return p
}

// Name returns "binance".
func (p *BinanceProvider) Name() string { return "binance" }

// FetchBars returns all klines opening inside q.Range.
func (p *BinanceProvider) FetchBars(ctx context.Context, q gather.Query) ([]domain.Bar, error) {
	iv, err := gather.ParseInterval(q.Interval)
	if err != nil {
		return nil, err
	}
	interval, err := KlineInterval(iv)
	if err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(q.Symbol)

	var bars []domain.Bar
	start := q.Range.Start.UnixMilli()
	end := q.Range.End.UnixMilli() - 1
	for page := 1; start <= end; page++ {
		var klines []*binance.Kline
		err := util.Retry(ctx, p.maxRetries, retryDelay, func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			var err error
			klines, err = p.source.Klines(ctx, symbol, interval, start, end, PageSize)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("binance klines %s %s page %d: %w", symbol, interval, page, err)
		}

		for _, k := range klines {
			b, err := toBar(symbol, k)
			if err != nil {
				return nil, err
			}
			bars = append(bars, b)
		}
		p.log.Debug("fetched klines", "symbol", symbol, "page", page, "count", len(klines))

		if len(klines) < PageSize {
			break
		}
		start = klines[len(klines)-1].OpenTime + 1
	}

	bars = gather.Normalize(bars, symbol, q.Range)
	if len(bars) == 0 {
		return nil, gather.NoData(q)
	}
	return bars, nil
}

// klineIntervals lists the intervals Binance accepts.
var klineIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true,
}

// KlineInterval maps a parsed interval to Binance's interval string.
func KlineInterval(iv gather.Interval) (string, error) {
	s := iv.String()
	if iv.Unit == gather.Week {
		s = strconv.Itoa(iv.N) + "w"
	}
	if !klineIntervals[s] {
		return "", fmt.Errorf("interval %s not supported by binance", iv)
	}
	return s, nil
}

func toBar(symbol string, k *binance.Kline) (domain.Bar, error) {
	b := domain.Bar{Symbol: symbol, Timestamp: time.UnixMilli(k.OpenTime).UTC()}
	for _, f := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &b.Open},
		{"high", k.High, &b.High},
		{"low", k.Low, &b.Low},
		{"close", k.Close, &b.Close},
		{"volume", k.Volume, &b.Volume},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("kline %d %s %q: %w", k.OpenTime, f.name, f.raw, err)
		}
		*f.dst = v
	}
	return b, nil
}
