package bank

import (
	"errors"
	"testing"

	"sbtlend/core/state"
	"sbtlend/crypto"
	nativecommon "sbtlend/native/common"
	"sbtlend/storage"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[19] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestTransferMovesFunds(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	alice, bob := addr(1), addr(2)

	if err := ledger.Credit(alice, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if bal, _ := ledger.Balance(alice); bal != 60 {
		t.Fatalf("expected alice 60, got %d", bal)
	}
	if bal, _ := ledger.Balance(bob); bal != 40 {
		t.Fatalf("expected bob 40, got %d", bal)
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	alice, bob := addr(1), addr(2)
	if err := ledger.Credit(alice, 10); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, 11); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, 0); !errors.Is(err, nativecommon.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if bal, _ := ledger.Balance(alice); bal != 10 {
		t.Fatalf("balance must be untouched, got %d", bal)
	}
}

func TestSelfTransferKeepsBalance(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	alice := addr(1)
	if err := ledger.Credit(alice, 10); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, alice, 10); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if bal, _ := ledger.Balance(alice); bal != 10 {
		t.Fatalf("expected 10, got %d", bal)
	}
}

func TestApplyGenesisOnce(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	allocs := []Allocation{{Address: addr(1), Amount: 500}, {Address: addr(2), Amount: 0}}

	applied, err := ledger.ApplyGenesis(allocs)
	if err != nil || !applied {
		t.Fatalf("expected genesis to apply, got %v %v", applied, err)
	}
	applied, err = ledger.ApplyGenesis(allocs)
	if err != nil || applied {
		t.Fatalf("expected genesis to be skipped, got %v %v", applied, err)
	}
	if bal, _ := ledger.Balance(addr(1)); bal != 500 {
		t.Fatalf("expected 500, got %d", bal)
	}
}
