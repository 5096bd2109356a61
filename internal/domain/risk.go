package domain

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors shared by the simulation packages. Callers compare with
// errors.Is; producers wrap them with context.
var (
	// ErrUnknownStrategy is returned when a strategy name is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidRisk is returned when a RiskConfig fails validation.
	ErrInvalidRisk = errors.New("invalid risk config")

	// ErrInvalidParams is returned when strategy parameters are unusable.
	ErrInvalidParams = errors.New("invalid strategy params")

	// ErrInsufficientData marks a series shorter than the strategy warm-up.
	// It is informational: the simulation still runs and only holds.
	ErrInsufficientData = errors.New("insufficient data for strategy warm-up")
)

// RiskConfig is the read-only execution configuration of one simulation run.
type RiskConfig struct {
	InitialCash        float64 `json:"initial_cash" yaml:"initial_cash"`
	RiskFraction       float64 `json:"risk_fraction" yaml:"risk_fraction"` // fraction of equity allocated on entry
	FeeBps             float64 `json:"fee_bps" yaml:"fee_bps"`             // 1 bp = 0.01%
	SlippageBps        float64 `json:"slippage_bps" yaml:"slippage_bps"`
	RiskFreeRateAnnual float64 `json:"risk_free_rate_annual" yaml:"risk_free_rate_annual"`
}

// DefaultRiskConfig returns the platform defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		InitialCash:        10_000,
		RiskFraction:       0.95,
		FeeBps:             1,
		SlippageBps:        2,
		RiskFreeRateAnnual: 0,
	}
}

// Validate checks every field against its allowed range.
func (r RiskConfig) Validate() error {
	for name, v := range map[string]float64{
		"initial_cash":          r.InitialCash,
		"risk_fraction":         r.RiskFraction,
		"fee_bps":               r.FeeBps,
		"slippage_bps":          r.SlippageBps,
		"risk_free_rate_annual": r.RiskFreeRateAnnual,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidRisk, name)
		}
	}
	if r.InitialCash <= 0 {
		return fmt.Errorf("%w: initial_cash must be > 0, got %g", ErrInvalidRisk, r.InitialCash)
	}
	if r.RiskFraction <= 0 || r.RiskFraction > 1 {
		return fmt.Errorf("%w: risk_fraction must be in (0,1], got %g", ErrInvalidRisk, r.RiskFraction)
	}
	if r.FeeBps < 0 {
		return fmt.Errorf("%w: fee_bps must be >= 0, got %g", ErrInvalidRisk, r.FeeBps)
	}
	if r.SlippageBps < 0 {
		return fmt.Errorf("%w: slippage_bps must be >= 0, got %g", ErrInvalidRisk, r.SlippageBps)
	}
	if r.RiskFreeRateAnnual < 0 {
		return fmt.Errorf("%w: risk_free_rate_annual must be >= 0, got %g", ErrInvalidRisk, r.RiskFreeRateAnnual)
	}
	return nil
}

// RiskOverrides carries optional per-request risk settings. Nil fields fall
// back to the base configuration.
type RiskOverrides struct {
	InitialCash        *float64 `json:"initial_cash,omitempty" yaml:"initial_cash,omitempty"`
	RiskFraction       *float64 `json:"risk_fraction,omitempty" yaml:"risk_fraction,omitempty"`
	FeeBps             *float64 `json:"fee_bps,omitempty" yaml:"fee_bps,omitempty"`
	SlippageBps        *float64 `json:"slippage_bps,omitempty" yaml:"slippage_bps,omitempty"`
	RiskFreeRateAnnual *float64 `json:"risk_free_rate_annual,omitempty" yaml:"risk_free_rate_annual,omitempty"`
}

// Apply returns base with every non-nil override applied.
func (o RiskOverrides) Apply(base RiskConfig) RiskConfig {
	if o.InitialCash != nil {
		base.InitialCash = *o.InitialCash
	}
	if o.RiskFraction != nil {
		base.RiskFraction = *o.RiskFraction
	}
	if o.FeeBps != nil {
		base.FeeBps = *o.FeeBps
	}
	if o.SlippageBps != nil {
		base.SlippageBps = *o.SlippageBps
	}
	if o.RiskFreeRateAnnual != nil {
		base.RiskFreeRateAnnual = *o.RiskFreeRateAnnual
	}
	return base
}
