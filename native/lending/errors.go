package lending

import "errors"

var (
	// ErrInsufficientCollateral marks requests that would leave a position
	// below the collateral ratio.
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	// ErrInsufficientBalance marks withdrawals exceeding the deposited collateral.
	ErrInsufficientBalance = errors.New("lending engine: insufficient balance")
	ErrLoanNotFound        = errors.New("lending engine: loan not found")
	ErrProfileNotFound     = errors.New("lending engine: profile not found")
	// ErrInvalidState marks operations against a loan in the wrong lifecycle
	// state, such as liquidating a healthy or inactive loan.
	ErrInvalidState = errors.New("lending engine: invalid loan state")

	errNilState = errors.New("lending engine: state not configured")
	errNilBank  = errors.New("lending engine: bank not configured")
)
