package builtins

import "stratlab/internal/strategy"

// Default parameters of the built-in strategies.
const (
	DefaultFast      = 10
	DefaultSlow      = 30
	DefaultRSIWindow = 14
	DefaultBuyBelow  = 30.0
	DefaultSellAbove = 70.0
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) error {
	for _, s := range []strategy.Strategy{
		NewSMACross(DefaultFast, DefaultSlow),
		NewRSIMeanReversion(DefaultRSIWindow, DefaultBuyBelow, DefaultSellAbove),
	} {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
