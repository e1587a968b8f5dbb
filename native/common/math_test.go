package common

import (
	"errors"
	"math"
	"testing"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
		wantErr error
	}{
		{name: "max borrow", a: 500_000, b: 100, d: 150, want: 333_333},
		{name: "truncates", a: 1, b: 2, d: 3, want: 0},
		{name: "wide product", a: math.MaxUint64, b: 100, d: 150, want: 12_297_829_382_473_034_410},
		{name: "quotient overflow", a: math.MaxUint64, b: 2, d: 1, wantErr: ErrOverflow},
		{name: "zero divisor", a: 1, b: 1, d: 0, wantErr: ErrDivisionByZero},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MulDiv(tc.a, tc.b, tc.d)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestMulDiv3(t *testing.T) {
	// One year of 5% simple interest on 100_000.
	got, err := MulDiv3(100_000, 500, 31_536_000, 10_000*31_536_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5_000 {
		t.Fatalf("expected 5000, got %d", got)
	}
}

func TestCompareProducts(t *testing.T) {
	if CompareProducts(200, 100, 100, 150) <= 0 {
		t.Fatalf("200*100 must exceed 100*150")
	}
	if CompareProducts(math.MaxUint64, math.MaxUint64, math.MaxUint64, math.MaxUint64) != 0 {
		t.Fatalf("equal products must compare equal")
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := CheckedAdd(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := CheckedSub(1, 2); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if SaturatingSub(5, 10) != 0 || SaturatingSub(10, 5) != 5 {
		t.Fatalf("saturating sub incorrect")
	}
}

func TestGuard(t *testing.T) {
	pauses := StaticPauses{ModuleLending: true}
	if !errors.Is(Guard(pauses, ModuleLending), ErrModulePaused) {
		t.Fatalf("expected lending to be paused")
	}
	if err := Guard(pauses, ModuleReputation); err != nil {
		t.Fatalf("reputation must not be paused: %v", err)
	}
	if err := Guard(nil, ModuleLending); err != nil {
		t.Fatalf("nil view must never pause: %v", err)
	}
}
