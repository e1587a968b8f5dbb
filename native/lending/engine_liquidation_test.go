package lending

import (
	"errors"
	"testing"

	"sbtlend/core/events"
	nativecommon "sbtlend/native/common"
)

func TestLiquidateHealthyLoanRejected(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	borrower, liquidator := makeAddress(1), makeAddress(2)
	p.fund(borrower, 200)
	p.fund(liquidator, 1_000)
	if err := p.engine.DepositCollateral(borrower, 200); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.engine.Borrow(borrower, 100); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if hf, _ := p.engine.HealthFactor(borrower); hf != 133 {
		t.Fatalf("expected health factor 133, got %d", hf)
	}
	if _, err := p.engine.Liquidate(liquidator, borrower); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if bal := p.balance(liquidator); bal != 1_000 {
		t.Fatalf("rejected liquidation moved funds: %d", bal)
	}
	if _, err := p.engine.Liquidate(liquidator, makeAddress(3)); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected loan not found, got %v", err)
	}
}

func TestLiquidateAfterInterestAccrual(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	borrower, liquidator := makeAddress(1), makeAddress(2)
	p.fund(borrower, 150)
	p.fund(liquidator, 1_000)
	if err := p.engine.DepositCollateral(borrower, 150); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.engine.Borrow(borrower, 100); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// A year at 5% makes the debt 105; 150*100 < 105*150.
	p.clock += SecondsPerYear

	res, err := p.engine.Liquidate(liquidator, borrower)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// Bonus is 5% of 150 = 7, capped at the 5 units of reserves the
	// liquidated interest paid in.
	if res.DebtRepaid != 105 || res.CollateralSeized != 150 || res.Bonus != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if bal := p.balance(liquidator); bal != 1_000-105+155 {
		t.Fatalf("unexpected liquidator balance %d", bal)
	}

	profile, _ := p.engine.UserProfile(borrower)
	if profile.TotalCollateral != 0 || profile.TotalBorrowed != 0 || profile.ReputationScore != DefaultReputation-DefaultLiquidationPenalty {
		t.Fatalf("unexpected borrower profile: %+v", profile)
	}
	loan, _ := p.engine.LoanInfo(borrower)
	if loan.Active || loan.BorrowedAmount != 0 {
		t.Fatalf("loan must be closed: %+v", loan)
	}
	pool := p.pool()
	if pool.TotalDeposits != 0 || pool.TotalBorrowed != 0 || pool.TotalReserves != 0 {
		t.Fatalf("unexpected pool: %+v", pool)
	}
	p.assertCustody()

	evs := p.buffer.Events()
	last := evs[len(evs)-1]
	if last.EventType() != events.TypeLendingLiquidation {
		t.Fatalf("unexpected event %s", last.EventType())
	}
	attrs := last.Event().Attributes
	if attrs["collateralAmount"] != "150" || attrs["debtAmount"] != "105" || attrs["amount"] != "155" {
		t.Fatalf("liquidation event must carry pre-liquidation amounts: %v", attrs)
	}

	if _, err := p.engine.Liquidate(liquidator, borrower); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for closed loan, got %v", err)
	}
}

func TestLiquidationPenaltyFloorsAtZero(t *testing.T) {
	params := DefaultParams()
	params.DefaultReputation = 3
	p := newTestPool(t, params)
	borrower, liquidator := makeAddress(1), makeAddress(2)
	p.fund(borrower, 150)
	p.fund(liquidator, 1_000)
	if err := p.engine.DepositCollateral(borrower, 150); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.engine.Borrow(borrower, 100); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	p.clock += SecondsPerYear
	if _, err := p.engine.Liquidate(liquidator, borrower); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	profile, _ := p.engine.UserProfile(borrower)
	if profile.ReputationScore != 0 {
		t.Fatalf("expected reputation floored at 0, got %d", profile.ReputationScore)
	}
}

func TestLiquidationNeverUnderflowsDeposits(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	lender, borrower, liquidator := makeAddress(1), makeAddress(2), makeAddress(3)
	p.fund(lender, 10_000)
	p.fund(borrower, 150)
	p.fund(liquidator, 1_000)
	if err := p.engine.DepositCollateral(lender, 10_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := p.engine.DepositCollateral(borrower, 150); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.engine.Borrow(borrower, 100); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	p.clock += 4 * SecondsPerYear
	res, err := p.engine.Liquidate(liquidator, borrower)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	pool := p.pool()
	if pool.TotalDeposits != 10_000 {
		t.Fatalf("deposits must only drop by the seized collateral, got %d", pool.TotalDeposits)
	}
	if res.Bonus > res.CollateralSeized*DefaultLiquidationBonus/100 {
		t.Fatalf("bonus exceeds configured incentive: %+v", res)
	}
	p.assertCustody()
}

func TestLiquidateWhilePaused(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	p.engine.SetPauses(nativecommon.StaticPauses{nativecommon.ModuleLending: true})
	if _, err := p.engine.Liquidate(makeAddress(1), makeAddress(2)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}
