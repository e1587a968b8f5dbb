package lending

import "sbtlend/crypto"

// PoolState holds the global pool totals. TotalReserves accumulates interest
// paid into the pool and funds liquidation bonuses.
type PoolState struct {
	Admin         crypto.Address
	Custody       crypto.Address
	TotalDeposits uint64
	TotalBorrowed uint64
	TotalReserves uint64
}

// UserProfile aggregates a user's position. ReputationScore is the pool's own
// lending reputation and is independent from the soulbound registry score.
type UserProfile struct {
	TotalCollateral uint64
	TotalBorrowed   uint64
	LoanCount       uint64
	ReputationScore uint64
}

// LoanInfo describes the single loan record of a borrower.
type LoanInfo struct {
	Borrower         crypto.Address
	CollateralAmount uint64
	BorrowedAmount   uint64
	InterestRateBps  uint64
	Timestamp        uint64
	Active           bool
}

// ProtocolStats is the pool level read model.
type ProtocolStats struct {
	TotalDeposits        uint64
	TotalBorrowed        uint64
	TotalReserves        uint64
	UtilizationRate      uint64
	CollateralRatio      uint64
	LiquidationThreshold uint64
	InterestRateBps      uint64
}
