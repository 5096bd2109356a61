package service

import (
	"fmt"
	"log/slog"
	"strings"

	"stratlab/internal/config"
	"stratlab/internal/gather"
	"stratlab/internal/gather/crypto"
	"stratlab/internal/gather/csvfile"
	"stratlab/internal/gather/us"
	"stratlab/internal/metrics"
	"stratlab/internal/store"
)

// Provider names accepted in backtest.provider.
const (
	ProviderAuto    = "auto"
	ProviderParquet = "parquet"
	ProviderCSV     = "csv"
	ProviderAlpaca  = "alpaca"
	ProviderBinance = "binance"
)

// NewAlpaca builds the Alpaca provider from cfg.
func NewAlpaca(cfg *config.Config, log *slog.Logger) *us.AlpacaProvider {
	return us.NewAlpacaProvider(us.AlpacaOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		Feed:            cfg.Alpaca.Feed,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		MaxRetries:      cfg.Gather.MaxRetries,
	}, log)
}

// NewBinance builds the Binance provider from cfg.
func NewBinance(cfg *config.Config, log *slog.Logger) *crypto.BinanceProvider {
	return crypto.NewBinanceProvider(crypto.BinanceOptions{
		APIKey:          cfg.Binance.APIKey,
		APISecret:       cfg.Binance.APISecret,
		BaseURL:         cfg.Binance.BaseURL,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		MaxRetries:      cfg.Gather.MaxRetries,
	}, log)
}

// NewProvider returns the bar source selected by cfg.Backtest.Provider.
//
// "auto" routes every market to the local Parquet store first. US equities
// then fall through to Alpaca (when credentials are configured) and the CSV
// directory; crypto falls through to Binance. Unknown markets read Parquet
// and CSV only.
func NewProvider(cfg *config.Config, log *slog.Logger) (gather.Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	parquet := store.NewParquetStore(cfg.Storage.DataDir)
	csv := csvfile.New(cfg.Storage.CSVDir)

	switch strings.ToLower(cfg.Backtest.Provider) {
	case ProviderParquet:
		return parquet, nil
	case ProviderCSV:
		return csv, nil
	case ProviderAlpaca:
		return NewAlpaca(cfg, log), nil
	case ProviderBinance:
		return NewBinance(cfg, log), nil
	case "", ProviderAuto:
		equities := []gather.Provider{parquet}
		if cfg.Alpaca.APIKey != "" {
			equities = append(equities, NewAlpaca(cfg, log))
		}
		equities = append(equities, csv)

		r := gather.NewRouter(log)
		r.Route("us", equities...)
		r.Route(metrics.MarketEquity, equities...)
		r.Route("crypto", parquet, NewBinance(cfg, log))
		r.Route("", parquet, csv)
		return r, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Backtest.Provider)
	}
}
