package lending

import (
	"github.com/holiman/uint256"

	nativecommon "sbtlend/native/common"
)

// accruedInterest returns the simple interest owed on principal since the
// given timestamp:
//
//	principal * rateBps * elapsed / (10_000 * secondsPerYear)
//
// Fractions are truncated, so rounding always favours the borrower.
func accruedInterest(principal, rateBps, since, now, secondsPerYear uint64) (uint64, error) {
	if principal == 0 || rateBps == 0 || now <= since {
		return 0, nil
	}
	denominator, err := nativecommon.MulDiv(basisPoints, secondsPerYear, 1)
	if err != nil {
		return 0, err
	}
	return nativecommon.MulDiv3(principal, rateBps, now-since, denominator)
}

// healthFactor expresses collateral coverage on a base-100 scale where 100
// means the position sits exactly at the collateral ratio. The result
// saturates at the u64 range.
func healthFactor(collateral, debt, ratio uint64) uint64 {
	if debt == 0 || ratio == 0 {
		return 0
	}
	num := new(uint256.Int).Mul(uint256.NewInt(collateral), uint256.NewInt(percent*percent))
	den := new(uint256.Int).Mul(uint256.NewInt(debt), uint256.NewInt(ratio))
	num.Div(num, den)
	if !num.IsUint64() {
		return ^uint64(0)
	}
	return num.Uint64()
}

// undercollateralized reports whether collateral*100 < debt*ratio, computed
// exactly.
func undercollateralized(collateral, debt, ratio uint64) bool {
	return nativecommon.CompareProducts(collateral, percent, debt, ratio) < 0
}

// effectiveRate applies a reputation multiplier (base 100) to the base rate.
func effectiveRate(baseBps, multiplier uint64) uint64 {
	if multiplier <= percent {
		return baseBps
	}
	rate, err := nativecommon.MulDiv(baseBps, percent, multiplier)
	if err != nil {
		return baseBps
	}
	return rate
}
