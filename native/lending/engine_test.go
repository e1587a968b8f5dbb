package lending

import (
	"errors"
	"testing"

	"sbtlend/core/events"
	"sbtlend/core/state"
	"sbtlend/crypto"
	"sbtlend/native/bank"
	nativecommon "sbtlend/native/common"
	"sbtlend/storage"
)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type testPool struct {
	t      *testing.T
	engine *Engine
	bank   *bank.Ledger
	buffer *events.Buffer
	admin  crypto.Address
	clock  uint64
}

func newTestPool(t *testing.T, params Params) *testPool {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(mgr)
	p := &testPool{
		t:      t,
		engine: NewEngine(mgr, ledger, params),
		bank:   ledger,
		buffer: &events.Buffer{},
		admin:  makeAddress(0xAA),
		clock:  1_700_000_000,
	}
	p.engine.SetEmitter(p.buffer)
	p.engine.SetNowFunc(func() uint64 { return p.clock })
	if err := p.engine.Initialize(p.admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return p
}

func (p *testPool) fund(addr crypto.Address, amount uint64) {
	p.t.Helper()
	if err := p.bank.Credit(addr, amount); err != nil {
		p.t.Fatalf("credit: %v", err)
	}
}

func (p *testPool) balance(addr crypto.Address) uint64 {
	p.t.Helper()
	bal, err := p.bank.Balance(addr)
	if err != nil {
		p.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (p *testPool) pool() *PoolState {
	p.t.Helper()
	pool, err := p.engine.Pool()
	if err != nil || pool == nil {
		p.t.Fatalf("pool: %v", err)
	}
	return pool
}

// assertCustody checks that custody holds deposits - borrowed + reserves.
func (p *testPool) assertCustody() {
	p.t.Helper()
	pool := p.pool()
	want := pool.TotalDeposits - pool.TotalBorrowed + pool.TotalReserves
	if got := p.balance(pool.Custody); got != want {
		p.t.Fatalf("custody balance %d, expected %d (%+v)", got, want, pool)
	}
}

func TestInitializeOnce(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	if err := p.engine.Initialize(p.admin); !errors.Is(err, nativecommon.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	pool := p.pool()
	if !pool.Admin.Equal(p.admin) || !pool.Custody.Equal(CustodyAddress(p.admin)) {
		t.Fatalf("unexpected pool identities: %+v", pool)
	}
}

func TestOperationsRequireInitializedPool(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	engine := NewEngine(mgr, bank.NewLedger(mgr), DefaultParams())
	if err := engine.DepositCollateral(makeAddress(1), 10); !errors.Is(err, nativecommon.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	stats, err := engine.ProtocolStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDeposits != 0 || stats.CollateralRatio != DefaultCollateralRatio {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDepositAndBorrow(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	user := makeAddress(1)
	p.fund(user, 1_000_000)

	if err := p.engine.DepositCollateral(user, 500_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	profile, _ := p.engine.UserProfile(user)
	if profile.TotalCollateral != 500_000 || profile.ReputationScore != DefaultReputation {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	loan, err := p.engine.Borrow(user, 100_000)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if !loan.Active || loan.BorrowedAmount != 100_000 || loan.CollateralAmount != 500_000 || loan.InterestRateBps != DefaultInterestRateBps {
		t.Fatalf("unexpected loan: %+v", loan)
	}
	borrowable, err := p.engine.MaxBorrowable(user)
	if err != nil {
		t.Fatalf("max borrowable: %v", err)
	}
	if borrowable != 233_333 {
		t.Fatalf("expected 233333 borrowable, got %d", borrowable)
	}
	if bal := p.balance(user); bal != 600_000 {
		t.Fatalf("expected user balance 600000, got %d", bal)
	}
	profile, _ = p.engine.UserProfile(user)
	if profile.LoanCount != 1 || profile.TotalBorrowed != 100_000 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	util, _ := p.engine.UtilizationRate()
	if util != 20 {
		t.Fatalf("expected utilization 20, got %d", util)
	}
	hf, _ := p.engine.HealthFactor(user)
	if hf != 333 {
		t.Fatalf("expected health factor 333, got %d", hf)
	}
	p.assertCustody()

	evs := p.buffer.Events()
	if len(evs) != 2 || evs[0].EventType() != events.TypeLendingDeposit || evs[1].EventType() != events.TypeLendingBorrow {
		t.Fatalf("unexpected events: %v", evs)
	}
}

func TestBorrowRejectionIsIdempotent(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	user := makeAddress(1)
	p.fund(user, 150)
	if err := p.engine.DepositCollateral(user, 150); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := p.engine.Borrow(user, 101); !errors.Is(err, ErrInsufficientCollateral) {
			t.Fatalf("attempt %d: expected insufficient collateral, got %v", i, err)
		}
		if pool := p.pool(); pool.TotalBorrowed != 0 {
			t.Fatalf("rejected borrow changed pool: %+v", pool)
		}
		if loan, _ := p.engine.LoanInfo(user); loan.Active {
			t.Fatalf("rejected borrow opened a loan")
		}
	}
	// Borrowing exactly at the limit is allowed.
	if _, err := p.engine.Borrow(user, 100); err != nil {
		t.Fatalf("borrow at limit: %v", err)
	}
	if _, err := p.engine.Borrow(user, 1); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}
}

func TestBorrowValidation(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	if _, err := p.engine.Borrow(makeAddress(1), 10); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
	if _, err := p.engine.Borrow(makeAddress(1), 0); !errors.Is(err, nativecommon.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := p.engine.DepositCollateral(makeAddress(1), 0); !errors.Is(err, nativecommon.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := p.engine.DepositCollateral(makeAddress(1), 10); !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestRepayThenWithdraw(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	user := makeAddress(1)
	p.fund(user, 1_000_000)
	if err := p.engine.DepositCollateral(user, 500_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.engine.Borrow(user, 100_000); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	p.clock += 30 * 24 * 60 * 60
	// 100000 * 500 * 2592000 / (10000 * 31536000) = 410.95 truncated to 410.
	loan, err := p.engine.Repay(user, 50_000)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if loan.BorrowedAmount != 50_410 || !loan.Active || loan.Timestamp != p.clock {
		t.Fatalf("unexpected loan after repay: %+v", loan)
	}
	pool := p.pool()
	if pool.TotalBorrowed != 50_410 || pool.TotalReserves != 410 {
		t.Fatalf("unexpected pool after repay: %+v", pool)
	}
	profile, _ := p.engine.UserProfile(user)
	if profile.ReputationScore != DefaultReputation+DefaultRepayReward || profile.TotalBorrowed != 50_410 {
		t.Fatalf("unexpected profile after repay: %+v", profile)
	}
	p.assertCustody()

	if err := p.engine.WithdrawCollateral(user, 100_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	loanInfo, _ := p.engine.LoanInfo(user)
	if loanInfo.CollateralAmount != 400_000 {
		t.Fatalf("loan collateral snapshot not updated: %+v", loanInfo)
	}
	p.assertCustody()

	repay := p.buffer.Events()[2].Event()
	if repay.Attributes["interest"] != "410" || repay.Attributes["remaining"] != "50410" {
		t.Fatalf("unexpected repay attributes: %v", repay.Attributes)
	}
}

func TestRepayInFullClosesLoan(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	user := makeAddress(1)
	p.fund(user, 1_000)
	if err := p.engine.DepositCollateral(user, 600); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.engine.Repay(user, 1); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected loan not found, got %v", err)
	}
	if _, err := p.engine.Borrow(user, 200); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := p.engine.Repay(user, 201); !errors.Is(err, nativecommon.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	loan, err := p.engine.Repay(user, 200)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if loan.Active || loan.BorrowedAmount != 0 {
		t.Fatalf("loan must be closed: %+v", loan)
	}
	if _, err := p.engine.Repay(user, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	hf, _ := p.engine.HealthFactor(user)
	if hf != 0 {
		t.Fatalf("closed loans report zero health factor, got %d", hf)
	}
	// A new loan after closing counts as a second origination.
	if _, err := p.engine.Borrow(user, 10); err != nil {
		t.Fatalf("borrow again: %v", err)
	}
	profile, _ := p.engine.UserProfile(user)
	if profile.LoanCount != 2 {
		t.Fatalf("expected 2 loans, got %d", profile.LoanCount)
	}
	p.assertCustody()
}

func TestInterestTruncatesInBorrowersFavour(t *testing.T) {
	got, err := accruedInterest(1, DefaultInterestRateBps, 0, 1, SecondsPerYear)
	if err != nil {
		t.Fatalf("interest: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected fractional interest to truncate to 0, got %d", got)
	}
	got, err = accruedInterest(100_000, DefaultInterestRateBps, 0, SecondsPerYear, SecondsPerYear)
	if err != nil {
		t.Fatalf("interest: %v", err)
	}
	if got != 5_000 {
		t.Fatalf("expected 5000, got %d", got)
	}
	if got, _ := accruedInterest(100, DefaultInterestRateBps, 10, 5, SecondsPerYear); got != 0 {
		t.Fatalf("clock skew must not accrue interest, got %d", got)
	}
}

func TestBorrowCapitalisesAccruedInterest(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	user := makeAddress(1)
	p.fund(user, 1_000_000)
	if err := p.engine.DepositCollateral(user, 300_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.engine.Borrow(user, 100_000); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	p.clock += SecondsPerYear
	debt, _ := p.engine.BorrowedAmount(user)
	if debt != 105_000 {
		t.Fatalf("expected debt 105000, got %d", debt)
	}
	loan, err := p.engine.Borrow(user, 10_000)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if loan.BorrowedAmount != 115_000 || loan.Timestamp != p.clock {
		t.Fatalf("unexpected loan: %+v", loan)
	}
	if pool := p.pool(); pool.TotalReserves != 5_000 || pool.TotalBorrowed != 115_000 {
		t.Fatalf("unexpected pool: %+v", pool)
	}
	p.assertCustody()
}

func TestWithdrawGuards(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	user := makeAddress(1)
	p.fund(user, 1_000)
	if err := p.engine.WithdrawCollateral(user, 1); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
	if err := p.engine.DepositCollateral(user, 300); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := p.engine.WithdrawCollateral(user, 301); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := p.engine.Borrow(user, 200); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := p.engine.WithdrawCollateral(user, 1); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}
	profile, _ := p.engine.UserProfile(user)
	if profile.TotalCollateral != 300 {
		t.Fatalf("rejected withdraw changed collateral: %+v", profile)
	}
	// Solvency holds after every successful borrow and withdraw.
	loan, _ := p.engine.LoanInfo(user)
	if undercollateralized(loan.CollateralAmount, loan.BorrowedAmount, DefaultCollateralRatio) {
		t.Fatalf("position undercollateralised: %+v", loan)
	}
}

func TestPausedPoolRejectsMutations(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	user := makeAddress(1)
	p.fund(user, 100)
	p.engine.SetPauses(nativecommon.StaticPauses{nativecommon.ModuleLending: true})
	if err := p.engine.DepositCollateral(user, 100); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if bal := p.balance(user); bal != 100 {
		t.Fatalf("paused deposit moved funds: %d", bal)
	}
}

type stubReputation map[crypto.Address]uint64

func (s stubReputation) Multiplier(user crypto.Address) (uint64, error) {
	if m, ok := s[user]; ok {
		return m, nil
	}
	return 100, nil
}

func TestReputationPricing(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	platinum, plain := makeAddress(1), makeAddress(2)
	p.engine.SetReputation(stubReputation{platinum: 150})
	for _, user := range []crypto.Address{platinum, plain} {
		p.fund(user, 1_000)
		if err := p.engine.DepositCollateral(user, 1_000); err != nil {
			t.Fatalf("deposit: %v", err)
		}
		if _, err := p.engine.Borrow(user, 100); err != nil {
			t.Fatalf("borrow: %v", err)
		}
	}
	if loan, _ := p.engine.LoanInfo(platinum); loan.InterestRateBps != 333 {
		t.Fatalf("expected discounted rate 333, got %d", loan.InterestRateBps)
	}
	if loan, _ := p.engine.LoanInfo(plain); loan.InterestRateBps != DefaultInterestRateBps {
		t.Fatalf("expected base rate, got %d", loan.InterestRateBps)
	}

	params := DefaultParams()
	params.ReputationPricing = false
	q := newTestPool(t, params)
	q.engine.SetReputation(stubReputation{platinum: 150})
	q.fund(platinum, 1_000)
	if err := q.engine.DepositCollateral(platinum, 1_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	loan, err := q.engine.Borrow(platinum, 100)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if loan.InterestRateBps != DefaultInterestRateBps {
		t.Fatalf("pricing disabled must use the base rate, got %d", loan.InterestRateBps)
	}
}

func TestQueriesForUnknownUser(t *testing.T) {
	p := newTestPool(t, DefaultParams())
	stranger := makeAddress(9)
	profile, err := p.engine.UserProfile(stranger)
	if err != nil || profile != (UserProfile{}) {
		t.Fatalf("expected zero profile, got %+v %v", profile, err)
	}
	loan, err := p.engine.LoanInfo(stranger)
	if err != nil || loan.Active || loan.BorrowedAmount != 0 {
		t.Fatalf("expected zero loan, got %+v %v", loan, err)
	}
	for name, fn := range map[string]func(crypto.Address) (uint64, error){
		"health":     p.engine.HealthFactor,
		"max":        p.engine.MaxBorrowable,
		"collateral": p.engine.TotalCollateral,
		"borrowed":   p.engine.BorrowedAmount,
	} {
		if v, err := fn(stranger); err != nil || v != 0 {
			t.Fatalf("%s: expected 0, got %d %v", name, v, err)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	params := DefaultParams()
	params.CollateralRatio = 90
	if err := params.Validate(); err == nil {
		t.Fatalf("expected ratio below 100 to fail")
	}
	params = DefaultParams()
	params.SecondsPerYear = 0
	if err := params.Validate(); err == nil {
		t.Fatalf("expected zero seconds per year to fail")
	}
}
