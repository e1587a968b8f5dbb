package bank

import (
	"errors"
	"fmt"

	"sbtlend/crypto"
	nativecommon "sbtlend/native/common"
)

var (
	// ErrInsufficientFunds marks transfers exceeding the sender's balance.
	ErrInsufficientFunds  = errors.New("bank: insufficient funds")
	errStorageUnavailable = errors.New("bank: storage unavailable")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var balancePrefix = []byte("bank/balance/")

func balanceKey(addr crypto.Address) []byte {
	raw := addr.Raw()
	key := make([]byte, 0, len(balancePrefix)+len(raw))
	key = append(key, balancePrefix...)
	return append(key, raw[:]...)
}

// Ledger tracks balances of the base asset used both as collateral and as the
// borrowed unit. It stands in for the host chain's native transfer primitive.
type Ledger struct {
	store engineState
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store engineState) *Ledger {
	return &Ledger{store: store}
}

// Balance returns the spendable base asset balance of addr.
func (l *Ledger) Balance(addr crypto.Address) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, errStorageUnavailable
	}
	var balance uint64
	if _, err := l.store.KVGet(balanceKey(addr), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Credit increases the balance of addr. It is used for genesis seeding and
// test faucets; protocol flows move funds with Transfer.
func (l *Ledger) Credit(addr crypto.Address, amount uint64) error {
	if amount == 0 {
		return nativecommon.ErrInvalidAmount
	}
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	next, err := nativecommon.CheckedAdd(balance, amount)
	if err != nil {
		return fmt.Errorf("bank: credit: %w", err)
	}
	return l.store.KVPut(balanceKey(addr), next)
}

// Transfer moves amount from one account to another. A self transfer only
// checks the balance.
func (l *Ledger) Transfer(from, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return nativecommon.ErrInvalidAmount
	}
	fromBalance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return ErrInsufficientFunds
	}
	if from.Equal(to) {
		return nil
	}
	toBalance, err := l.Balance(to)
	if err != nil {
		return err
	}
	nextTo, err := nativecommon.CheckedAdd(toBalance, amount)
	if err != nil {
		return fmt.Errorf("bank: transfer: %w", err)
	}
	if err := l.store.KVPut(balanceKey(from), fromBalance-amount); err != nil {
		return err
	}
	return l.store.KVPut(balanceKey(to), nextTo)
}

var genesisKey = []byte("bank/genesis")

// Allocation is a genesis balance.
type Allocation struct {
	Address crypto.Address
	Amount  uint64
}

// ApplyGenesis credits the allocations once per store. It reports false when
// genesis was already applied.
func (l *Ledger) ApplyGenesis(allocs []Allocation) (bool, error) {
	if l == nil || l.store == nil {
		return false, errStorageUnavailable
	}
	var applied bool
	if _, err := l.store.KVGet(genesisKey, &applied); err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}
	for _, alloc := range allocs {
		if alloc.Amount == 0 {
			continue
		}
		if err := l.Credit(alloc.Address, alloc.Amount); err != nil {
			return false, fmt.Errorf("bank: genesis %s: %w", alloc.Address, err)
		}
	}
	if err := l.store.KVPut(genesisKey, true); err != nil {
		return false, err
	}
	return true, nil
}
