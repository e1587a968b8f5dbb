package common

import "errors"

// Error kinds shared by every native module. Module specific kinds live next to
// the module that raises them.
var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrNotAuthorized      = errors.New("caller not authorized")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidAddress     = errors.New("address required")
)
