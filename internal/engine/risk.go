package engine

import (
	"errors"
	"fmt"

	"stratlab/internal/domain"
)

// Fill rejection causes.
var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNonPositiveQty   = errors.New("non-positive quantity")
)

// RiskManager enforces the run's risk configuration: it validates the
// configuration up front and checks every entry before it is booked.
type RiskManager struct {
	cfg domain.RiskConfig
}

// NewRiskManager validates cfg and returns a RiskManager for it.
func NewRiskManager(cfg domain.RiskConfig) (*RiskManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RiskManager{cfg: cfg}, nil
}

// Config returns the validated configuration.
func (rm *RiskManager) Config() domain.RiskConfig { return rm.cfg }

// CheckBuy reports why an entry cannot be filled, or nil when it can.
func (rm *RiskManager) CheckBuy(qty, cost, cash float64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %g", ErrNonPositiveQty, qty)
	}
	if cost > cash {
		return fmt.Errorf("%w: cost %.6f exceeds cash %.6f", ErrInsufficientCash, cost, cash)
	}
	return nil
}
