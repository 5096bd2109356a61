package engine

import "stratlab/internal/domain"

// ledger is the cash/position book of one simulated symbol. It holds at most
// one long position.
type ledger struct {
	cash  float64
	qty   float64
	entry float64

	feeRate  float64
	slipRate float64
}

func newLedger(risk domain.RiskConfig) *ledger {
	return &ledger{
		cash:     risk.InitialCash,
		feeRate:  risk.FeeBps / 10_000,
		slipRate: risk.SlippageBps / 10_000,
	}
}

// fill is a priced execution before it is applied.
type fill struct {
	qty      float64
	exec     float64
	fee      float64
	slippage float64 // per-unit price adjustment
	cost     float64 // BUY: cash debited
	proceeds float64 // SELL: cash credited
	pnl      float64
}

func (l *ledger) open() bool { return l.qty > 0 }

func (l *ledger) equity(price float64) float64 { return l.cash + l.qty*price }

// quoteBuy sizes an entry at fraction of current equity.
func (l *ledger) quoteBuy(price, fraction float64) fill {
	var f fill
	if price > 0 {
		f.qty = l.equity(price) * fraction / price
	}
	f.slippage = price * l.slipRate
	f.exec = price + f.slippage
	f.fee = f.qty * f.exec * l.feeRate
	f.cost = f.qty*f.exec + f.fee
	return f
}

func (l *ledger) applyBuy(f fill) {
	l.cash -= f.cost
	l.qty += f.qty
	l.entry = f.exec
}

// sell closes the full position at price and returns the executed fill.
func (l *ledger) sell(price float64) fill {
	f := fill{qty: l.qty}
	f.slippage = price * l.slipRate
	f.exec = price - f.slippage
	f.fee = f.qty * f.exec * l.feeRate
	f.proceeds = f.qty*f.exec - f.fee
	f.pnl = (f.exec-l.entry)*f.qty - f.fee

	l.cash += f.proceeds
	l.qty = 0
	l.entry = 0
	return f
}
