package strategy

import (
	"fmt"
	"sort"

	"stratlab/internal/domain"
	"stratlab/internal/indicator"
)

// Series is a bar sequence annotated with strategy-specific indicator
// columns. Every column has exactly one entry per bar.
type Series struct {
	Bars    []domain.Bar
	Columns map[string]indicator.Series
}

// NewSeries wraps bars with no derived columns.
func NewSeries(bars []domain.Bar) *Series {
	return &Series{Bars: bars, Columns: make(map[string]indicator.Series)}
}

// AddColumn attaches a named column. Its length must match the bar count.
func (s *Series) AddColumn(name string, col indicator.Series) error {
	if len(col) != len(s.Bars) {
		return fmt.Errorf("column %q has %d values for %d bars", name, len(col), len(s.Bars))
	}
	s.Columns[name] = col
	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// ColumnNames returns the derived column names in sorted order.
func (s *Series) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Row returns the i-th bar with access to its column values.
func (s *Series) Row(i int) Row {
	return Row{Index: i, Bar: s.Bars[i], series: s}
}

// Row is one bar of a prepared Series.
type Row struct {
	Index int
	Bar   domain.Bar

	series *Series
}

// Value returns the named column's value at this row. Unknown columns are
// unavailable.
func (r Row) Value(name string) indicator.Value {
	if r.series == nil {
		return indicator.None
	}
	return r.series.Columns[name].At(r.Index)
}

// State is the per-symbol memory threaded through one simulation. It is
// owned by a single Simulate call and must not be shared.
type State struct {
	PositionQty float64
	Prev        map[string]indicator.Value
}

// NewState returns a flat state with no remembered values.
func NewState() *State {
	return &State{Prev: make(map[string]indicator.Value)}
}

// Flat reports whether no position is open.
func (st *State) Flat() bool { return st.PositionQty <= 0 }

// Previous returns the value remembered under name, unavailable if none.
func (st *State) Previous(name string) indicator.Value {
	return st.Prev[name]
}

// Remember records v under name for the next bar.
func (st *State) Remember(name string, v indicator.Value) {
	if st.Prev == nil {
		st.Prev = make(map[string]indicator.Value)
	}
	st.Prev[name] = v
}
