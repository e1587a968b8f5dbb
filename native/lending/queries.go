package lending

import (
	"sbtlend/crypto"
	nativecommon "sbtlend/native/common"
)

// Queries never fail on missing records: unknown users and an uninitialised
// pool read as zero values.

// Pool returns the pool state, or nil when the pool is not initialised.
func (e *Engine) Pool() (*PoolState, error) {
	pool, err := e.loadPool()
	if err != nil || pool == nil {
		return nil, err
	}
	admin := crypto.NewAddress(crypto.AccountPrefix, pool.Admin[:])
	return &PoolState{
		Admin:         admin,
		Custody:       CustodyAddress(admin),
		TotalDeposits: pool.TotalDeposits,
		TotalBorrowed: pool.TotalBorrowed,
		TotalReserves: pool.TotalReserves,
	}, nil
}

// UserProfile returns the user's aggregated position.
func (e *Engine) UserProfile(user crypto.Address) (UserProfile, error) {
	profile, err := e.loadProfile(user)
	if err != nil || profile == nil {
		return UserProfile{}, err
	}
	return UserProfile{
		TotalCollateral: profile.TotalCollateral,
		TotalBorrowed:   profile.TotalBorrowed,
		LoanCount:       profile.LoanCount,
		ReputationScore: profile.ReputationScore,
	}, nil
}

// LoanInfo returns the user's loan record as stored. Accrued interest is not
// included; see BorrowedAmount.
func (e *Engine) LoanInfo(user crypto.Address) (LoanInfo, error) {
	loan, err := e.loadLoan(user)
	if err != nil {
		return LoanInfo{}, err
	}
	return *loan.toInfo(user), nil
}

// ProtocolStats reports the pool totals together with the configured ratios.
func (e *Engine) ProtocolStats() (ProtocolStats, error) {
	stats := ProtocolStats{
		CollateralRatio:      e.params.CollateralRatio,
		LiquidationThreshold: e.params.LiquidationThreshold,
		InterestRateBps:      e.params.InterestRateBps,
	}
	pool, err := e.loadPool()
	if err != nil || pool == nil {
		return stats, err
	}
	stats.TotalDeposits = pool.TotalDeposits
	stats.TotalBorrowed = pool.TotalBorrowed
	stats.TotalReserves = pool.TotalReserves
	stats.UtilizationRate = utilization(pool.TotalBorrowed, pool.TotalDeposits)
	return stats, nil
}

// HealthFactor returns the coverage of the user's current debt on a base-100
// scale (100 = exactly at the collateral ratio). Users without an active loan
// read as zero.
func (e *Engine) HealthFactor(user crypto.Address) (uint64, error) {
	loan, err := e.loadLoan(user)
	if err != nil || loan == nil || !loan.Active {
		return 0, err
	}
	debt, err := e.debtOf(loan, e.now())
	if err != nil {
		return 0, err
	}
	return healthFactor(loan.CollateralAmount, debt, e.params.CollateralRatio), nil
}

// MaxBorrowable returns how much more the user can borrow against current
// collateral, accrued interest included.
func (e *Engine) MaxBorrowable(user crypto.Address) (uint64, error) {
	profile, err := e.loadProfile(user)
	if err != nil || profile == nil {
		return 0, err
	}
	limit, err := nativecommon.MulDiv(profile.TotalCollateral, percent, e.params.CollateralRatio)
	if err != nil {
		return 0, err
	}
	debt, err := e.BorrowedAmount(user)
	if err != nil {
		return 0, err
	}
	return nativecommon.SaturatingSub(limit, debt), nil
}

// UtilizationRate returns total borrowed as a percentage of total deposits.
func (e *Engine) UtilizationRate() (uint64, error) {
	pool, err := e.loadPool()
	if err != nil || pool == nil {
		return 0, err
	}
	return utilization(pool.TotalBorrowed, pool.TotalDeposits), nil
}

// TotalCollateral returns the user's deposited collateral.
func (e *Engine) TotalCollateral(user crypto.Address) (uint64, error) {
	profile, err := e.UserProfile(user)
	return profile.TotalCollateral, err
}

// TotalBorrowed returns the pool wide outstanding borrow.
func (e *Engine) TotalBorrowed() (uint64, error) {
	pool, err := e.loadPool()
	if err != nil || pool == nil {
		return 0, err
	}
	return pool.TotalBorrowed, nil
}

// BorrowedAmount returns the user's current debt including accrued interest.
func (e *Engine) BorrowedAmount(user crypto.Address) (uint64, error) {
	loan, err := e.loadLoan(user)
	if err != nil || loan == nil || !loan.Active {
		return 0, err
	}
	return e.debtOf(loan, e.now())
}

func utilization(borrowed, deposits uint64) uint64 {
	if deposits == 0 {
		return 0
	}
	rate, err := nativecommon.MulDiv(borrowed, percent, deposits)
	if err != nil {
		return ^uint64(0)
	}
	return rate
}
