package lending

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Protocol defaults.
const (
	DefaultCollateralRatio      uint64 = 150
	DefaultInterestRateBps      uint64 = 500
	DefaultLiquidationThreshold uint64 = 120
	DefaultLiquidationBonus     uint64 = 5
	DefaultRepayReward          uint64 = 10
	DefaultLiquidationPenalty   uint64 = 10
	DefaultReputation           uint64 = 100
	SecondsPerYear              uint64 = 31_536_000

	basisPoints uint64 = 10_000
	percent     uint64 = 100
)

// Params captures the protocol constants of the lending pool. Ratios are whole
// percentages; the interest rate is expressed in basis points per year.
type Params struct {
	CollateralRatio      uint64 `toml:"CollateralRatio"`
	InterestRateBps      uint64 `toml:"InterestRateBps"`
	LiquidationThreshold uint64 `toml:"LiquidationThreshold"`
	LiquidationBonus     uint64 `toml:"LiquidationBonus"`
	RepayReward          uint64 `toml:"RepayReward"`
	LiquidationPenalty   uint64 `toml:"LiquidationPenalty"`
	DefaultReputation    uint64 `toml:"DefaultReputation"`
	SecondsPerYear       uint64 `toml:"SecondsPerYear"`
	// ReputationPricing divides the base rate by the borrower's SBT multiplier
	// when a loan is originated.
	ReputationPricing bool `toml:"ReputationPricing"`
}

// DefaultParams returns the protocol constants.
func DefaultParams() Params {
	return Params{
		CollateralRatio:      DefaultCollateralRatio,
		InterestRateBps:      DefaultInterestRateBps,
		LiquidationThreshold: DefaultLiquidationThreshold,
		LiquidationBonus:     DefaultLiquidationBonus,
		RepayReward:          DefaultRepayReward,
		LiquidationPenalty:   DefaultLiquidationPenalty,
		DefaultReputation:    DefaultReputation,
		SecondsPerYear:       SecondsPerYear,
		ReputationPricing:    true,
	}
}

// Validate ensures the parameters are internally consistent.
func (p Params) Validate() error {
	if p.CollateralRatio < percent {
		return fmt.Errorf("lending params: collateral ratio %d below 100%%", p.CollateralRatio)
	}
	if p.LiquidationThreshold == 0 || p.LiquidationThreshold > p.CollateralRatio {
		return fmt.Errorf("lending params: liquidation threshold %d must be within (0, %d]", p.LiquidationThreshold, p.CollateralRatio)
	}
	if p.InterestRateBps > basisPoints {
		return fmt.Errorf("lending params: interest rate %d bps exceeds 100%%", p.InterestRateBps)
	}
	if p.LiquidationBonus > percent {
		return fmt.Errorf("lending params: liquidation bonus %d exceeds 100%%", p.LiquidationBonus)
	}
	if p.SecondsPerYear == 0 {
		return errors.New("lending params: seconds per year must be positive")
	}
	return nil
}

// LoadParams reads protocol parameters from a TOML file. Keys absent from the
// file keep their default values.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read lending params: %w", err)
	}
	if _, err := toml.Decode(string(data), &params); err != nil {
		return Params{}, fmt.Errorf("decode lending params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}
