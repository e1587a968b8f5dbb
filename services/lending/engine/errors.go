package engine

import (
	"errors"

	"sbtlend/native/bank"
	nativecommon "sbtlend/native/common"
	"sbtlend/native/lending"
	"sbtlend/native/reputation"
)

// ErrInternal wraps failures that are not a rejection of the request, such as
// storage errors. Callers never see the underlying cause.
var ErrInternal = errors.New("lending service: internal error")

// Error kinds are stable machine readable labels for rejected operations.
const (
	KindAlreadyInitialized     = "already_initialized"
	KindNotInitialized         = "not_initialized"
	KindNotAuthorized          = "not_authorized"
	KindInvalidAmount          = "invalid_amount"
	KindInvalidAddress         = "invalid_address"
	KindInsufficientCollateral = "insufficient_collateral"
	KindInsufficientBalance    = "insufficient_balance"
	KindLoanNotFound           = "loan_not_found"
	KindProfileNotFound        = "profile_not_found"
	KindAlreadyMinted          = "already_minted"
	KindInvalidScore           = "invalid_score"
	KindTokenNotFound          = "token_not_found"
	KindInvalidState           = "invalid_state"
	KindPaused                 = "module_paused"
	KindOverflow               = "overflow"
	KindInternal               = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{nativecommon.ErrAlreadyInitialized, KindAlreadyInitialized},
	{nativecommon.ErrNotInitialized, KindNotInitialized},
	{nativecommon.ErrNotAuthorized, KindNotAuthorized},
	{nativecommon.ErrInvalidAmount, KindInvalidAmount},
	{nativecommon.ErrInvalidAddress, KindInvalidAddress},
	{nativecommon.ErrModulePaused, KindPaused},
	{nativecommon.ErrOverflow, KindOverflow},
	{lending.ErrInsufficientCollateral, KindInsufficientCollateral},
	{lending.ErrInsufficientBalance, KindInsufficientBalance},
	{bank.ErrInsufficientFunds, KindInsufficientBalance},
	{lending.ErrLoanNotFound, KindLoanNotFound},
	{lending.ErrProfileNotFound, KindProfileNotFound},
	{lending.ErrInvalidState, KindInvalidState},
	{reputation.ErrAlreadyMinted, KindAlreadyMinted},
	{reputation.ErrInvalidScore, KindInvalidScore},
	{reputation.ErrTokenNotFound, KindTokenNotFound},
}

// Kind classifies err into one of the stable error kinds. Unknown errors are
// internal.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Message returns the human readable constant for an error kind.
func Message(kind string) string {
	switch kind {
	case KindAlreadyInitialized:
		return "already initialized"
	case KindNotInitialized:
		return "not initialized"
	case KindNotAuthorized:
		return "caller not authorized"
	case KindInvalidAmount:
		return "invalid amount"
	case KindInvalidAddress:
		return "invalid address"
	case KindInsufficientCollateral:
		return "insufficient collateral"
	case KindInsufficientBalance:
		return "insufficient balance"
	case KindLoanNotFound:
		return "loan not found"
	case KindProfileNotFound:
		return "profile not found"
	case KindAlreadyMinted:
		return "reputation already minted"
	case KindInvalidScore:
		return "invalid score"
	case KindTokenNotFound:
		return "reputation token not found"
	case KindInvalidState:
		return "invalid loan state"
	case KindPaused:
		return "operation paused"
	case KindOverflow:
		return "amount out of range"
	default:
		return "internal error"
	}
}
