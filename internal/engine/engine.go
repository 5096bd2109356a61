// Package engine runs strategies over historical bars: a single-position,
// long-only simulator per symbol and a Backtester that fans it out across
// symbols.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"stratlab/internal/domain"
	"stratlab/internal/metrics"
	"stratlab/internal/strategy"
)

// Observer receives simulation events. Implementations must be safe for
// concurrent use since symbols run in parallel.
type Observer interface {
	ObserveTrade(strategy string, t domain.Trade)
	ObserveRejection(strategy string, r Rejection)
	ObserveSimulation(strategy, symbol string, bars int, elapsed time.Duration)
}

// Rejection records a BUY signal that could not be filled.
type Rejection struct {
	Symbol    string        `json:"symbol"`
	Timestamp time.Time     `json:"timestamp"`
	Cause     string        `json:"cause"`
	Qty       float64       `json:"qty"`
	Cost      float64       `json:"cost"`
	Cash      float64       `json:"cash"`
	Signal    domain.Reason `json:"signal"`
}

// Result is the outcome of simulating one symbol.
type Result struct {
	Symbol     string               `json:"symbol"`
	Report     metrics.Report       `json:"metrics"`
	Trades     []domain.Trade       `json:"trades"`
	Equity     []domain.EquityPoint `json:"equity"`
	Rejections []Rejection          `json:"rejections,omitempty"`
}

// Engine simulates strategies over prepared bar series.
type Engine struct {
	log      *slog.Logger
	observer Observer
}

// NewEngine creates an Engine. Both arguments may be nil.
func NewEngine(log *slog.Logger, obs Observer) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{log: log.With("component", "engine"), observer: obs}
}

// Simulate is Engine.Simulate on an engine that neither logs nor observes.
func Simulate(symbol string, bars []domain.Bar, strat strategy.Strategy, p strategy.Params, risk domain.RiskConfig, market, interval string) (*Result, error) {
	return NewEngine(nil, nil).Simulate(symbol, bars, strat, p, risk, market, interval)
}

// Simulate walks bars in order, asking strat for a decision on each one and
// booking fills against a fresh ledger. Invalid risk configuration or
// strategy params fail before any bar is processed. Rejected entries are
// recorded and the loop continues.
func (e *Engine) Simulate(symbol string, bars []domain.Bar, strat strategy.Strategy, p strategy.Params, risk domain.RiskConfig, market, interval string) (*Result, error) {
	rm, err := NewRiskManager(risk)
	if err != nil {
		return nil, err
	}
	series, err := strat.Prepare(bars, p)
	if err != nil {
		return nil, fmt.Errorf("preparing %s for %s: %w", strat.Name(), symbol, err)
	}

	start := time.Now()
	book := newLedger(risk)
	st := strategy.NewState()
	res := &Result{
		Symbol: symbol,
		Trades: make([]domain.Trade, 0),
		Equity: make([]domain.EquityPoint, 0, series.Len()),
	}

	for i := 0; i < series.Len(); i++ {
		row := series.Row(i)
		price := row.Bar.Close
		ts := row.Bar.Timestamp

		sig := strat.Decide(row, st, p)
		strat.Remember(row, st)

		switch {
		case sig.Action == domain.ActionBuy && !book.open():
			f := book.quoteBuy(price, risk.RiskFraction)
			if err := rm.CheckBuy(f.qty, f.cost, book.cash); err != nil {
				rej := Rejection{
					Symbol:    symbol,
					Timestamp: ts,
					Cause:     err.Error(),
					Qty:       f.qty,
					Cost:      f.cost,
					Cash:      book.cash,
					Signal:    sig.Reason,
				}
				res.Rejections = append(res.Rejections, rej)
				e.log.Debug("buy rejected", "symbol", symbol, "ts", ts, "error", err)
				if e.observer != nil {
					e.observer.ObserveRejection(strat.Name(), rej)
				}
				break
			}
			book.applyBuy(f)
			e.record(res, strat.Name(), domain.Trade{
				Symbol:    symbol,
				Timestamp: ts,
				Side:      domain.ActionBuy,
				Qty:       f.qty,
				Price:     f.exec,
				Fee:       f.fee,
				Slippage:  f.slippage,
				DecisionTrace: domain.R("action", string(domain.ActionBuy)).Merge(sig.Reason).
					With("exec_price", f.exec).
					With("fee", f.fee).
					With("slippage", f.slippage),
			})

		case sig.Action == domain.ActionSell && book.open():
			f := book.sell(price)
			e.record(res, strat.Name(), domain.Trade{
				Symbol:    symbol,
				Timestamp: ts,
				Side:      domain.ActionSell,
				Qty:       f.qty,
				Price:     f.exec,
				Fee:       f.fee,
				Slippage:  f.slippage,
				PnL:       f.pnl,
				DecisionTrace: domain.R("action", string(domain.ActionSell)).Merge(sig.Reason).
					With("exec_price", f.exec).
					With("fee", f.fee).
					With("slippage", f.slippage).
					With("pnl", f.pnl),
			})
		}

		st.PositionQty = book.qty
		res.Equity = append(res.Equity, domain.EquityPoint{Timestamp: ts, Equity: book.equity(price)})
	}

	ann := metrics.AnnualizationFactor(market, interval)
	res.Report = metrics.NewReport(symbol, risk.InitialCash, res.Trades, res.Equity, ann, risk.RiskFreeRateAnnual)
	res.Report.RejectedFills = len(res.Rejections)
	if warm := strat.WarmupBars(p); len(bars) < warm {
		res.Report.InsufficientData = true
		e.log.Info("series shorter than warm-up", "symbol", symbol, "bars", len(bars), "warmup", warm,
			"error", domain.ErrInsufficientData)
	}

	if e.observer != nil {
		e.observer.ObserveSimulation(strat.Name(), symbol, len(bars), time.Since(start))
	}
	return res, nil
}

func (e *Engine) record(res *Result, strat string, t domain.Trade) {
	res.Trades = append(res.Trades, t)
	if e.observer != nil {
		e.observer.ObserveTrade(strat, t)
	}
}
