package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"stratlab/internal/domain"
)

var tradeCSVHeader = []string{"symbol", "timestamp", "side", "qty", "price", "fee", "slippage", "pnl", "decision_trace"}

// WriteTradesCSV writes trades with a header row. The decision trace is
// embedded as a JSON object.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeCSVHeader); err != nil {
		return err
	}
	for _, t := range trades {
		trace, err := json.Marshal(t.DecisionTrace)
		if err != nil {
			return fmt.Errorf("encoding decision trace: %w", err)
		}
		rec := []string{
			t.Symbol,
			t.Timestamp.UTC().Format(time.RFC3339),
			string(t.Side),
			ftoa(t.Qty),
			ftoa(t.Price),
			ftoa(t.Fee),
			ftoa(t.Slippage),
			ftoa(t.PnL),
			string(trace),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes an equity curve as timestamp,equity rows.
func WriteEquityCSV(w io.Writer, points []domain.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "equity"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{p.Timestamp.UTC().Format(time.RFC3339), ftoa(p.Equity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
