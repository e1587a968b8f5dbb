package events

import (
	"strconv"

	"sbtlend/core/types"
	"sbtlend/crypto"
)

const (
	// TypeLendingDeposit is emitted when collateral enters the pool.
	TypeLendingDeposit = "lending.deposit"
	// TypeLendingBorrow is emitted when a borrower draws from the pool.
	TypeLendingBorrow = "lending.borrow"
	// TypeLendingRepay is emitted when debt is repaid.
	TypeLendingRepay = "lending.repay"
	// TypeLendingWithdraw is emitted when collateral leaves the pool.
	TypeLendingWithdraw = "lending.withdraw"
	// TypeLendingLiquidation is emitted when an unhealthy loan is closed.
	TypeLendingLiquidation = "lending.liquidation"
)

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

type LendingDeposit struct {
	User      crypto.Address
	Amount    uint64
	Timestamp uint64
}

func (LendingDeposit) EventType() string { return TypeLendingDeposit }

func (e LendingDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingDeposit,
		Attributes: map[string]string{
			"user":      e.User.String(),
			"amount":    u64(e.Amount),
			"timestamp": u64(e.Timestamp),
		},
	}
}

type LendingBorrow struct {
	User             crypto.Address
	CollateralAmount uint64
	BorrowedAmount   uint64
	InterestRateBps  uint64
	Timestamp        uint64
}

func (LendingBorrow) EventType() string { return TypeLendingBorrow }

func (e LendingBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingBorrow,
		Attributes: map[string]string{
			"user":             e.User.String(),
			"collateralAmount": u64(e.CollateralAmount),
			"borrowedAmount":   u64(e.BorrowedAmount),
			"interestRateBps":  u64(e.InterestRateBps),
			"timestamp":        u64(e.Timestamp),
		},
	}
}

type LendingRepay struct {
	User      crypto.Address
	Amount    uint64
	Interest  uint64
	Remaining uint64
	Timestamp uint64
}

func (LendingRepay) EventType() string { return TypeLendingRepay }

func (e LendingRepay) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingRepay,
		Attributes: map[string]string{
			"user":      e.User.String(),
			"amount":    u64(e.Amount),
			"interest":  u64(e.Interest),
			"remaining": u64(e.Remaining),
			"timestamp": u64(e.Timestamp),
		},
	}
}

type LendingWithdraw struct {
	User      crypto.Address
	Amount    uint64
	Timestamp uint64
}

func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

func (e LendingWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingWithdraw,
		Attributes: map[string]string{
			"user":      e.User.String(),
			"amount":    u64(e.Amount),
			"timestamp": u64(e.Timestamp),
		},
	}
}

// LendingLiquidation records a forced closure. Amount is the total paid out to
// the liquidator (collateral plus bonus).
type LendingLiquidation struct {
	Liquidator       crypto.Address
	Borrower         crypto.Address
	Amount           uint64
	CollateralAmount uint64
	DebtAmount       uint64
	Bonus            uint64
	Timestamp        uint64
}

func (LendingLiquidation) EventType() string { return TypeLendingLiquidation }

func (e LendingLiquidation) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingLiquidation,
		Attributes: map[string]string{
			"liquidator":       e.Liquidator.String(),
			"borrower":         e.Borrower.String(),
			"amount":           u64(e.Amount),
			"collateralAmount": u64(e.CollateralAmount),
			"debtAmount":       u64(e.DebtAmount),
			"bonus":            u64(e.Bonus),
			"timestamp":        u64(e.Timestamp),
		},
	}
}
