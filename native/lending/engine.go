package lending

import (
	"time"

	"sbtlend/core/events"
	"sbtlend/crypto"
	nativecommon "sbtlend/native/common"
)

const moduleName = nativecommon.ModuleLending

// Bank moves the base asset between accounts.
type Bank interface {
	Balance(addr crypto.Address) (uint64, error)
	Transfer(from, to crypto.Address, amount uint64) error
}

// ReputationView exposes the soulbound reputation multiplier consulted when a
// loan is originated. The lending engine never writes through it.
type ReputationView interface {
	Multiplier(user crypto.Address) (uint64, error)
}

// Engine orchestrates the state transitions of the lending pool. Every entry
// point validates its preconditions and computes all new values before the
// first write, so a rejected call leaves state untouched. Callers stage the
// backing store and commit it only when the call succeeds.
type Engine struct {
	store      engineState
	bank       Bank
	reputation ReputationView
	params     Params
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() uint64
}

// NewEngine constructs a lending engine over the provided store and bank.
func NewEngine(store engineState, bank Bank, params Params) *Engine {
	return &Engine{
		store:   store,
		bank:    bank,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetReputation wires the reputation multiplier source used for loan pricing.
func (e *Engine) SetReputation(view ReputationView) {
	if e == nil {
		return
	}
	e.reputation = view
}

// SetEmitter routes pool events to emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the clock used for interest accrual and event
// timestamps.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

// Params returns the configured protocol parameters.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) now() uint64 {
	if e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

// CustodyAddress returns the account holding pool funds for admin.
func CustodyAddress(admin crypto.Address) crypto.Address {
	return crypto.ModuleAddress(moduleName, admin)
}

// Initialize creates the pool administered by admin.
func (e *Engine) Initialize(admin crypto.Address) error {
	if admin.IsZero() {
		return nativecommon.ErrInvalidAddress
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool != nil {
		return nativecommon.ErrAlreadyInitialized
	}
	return e.putPool(&storedPool{Admin: admin.Raw()})
}

// ready runs the checks shared by every entry point and returns the pool.
func (e *Engine) ready() (*storedPool, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, nativecommon.ErrNotInitialized
	}
	return pool, nil
}

func custodyOf(pool *storedPool) crypto.Address {
	return CustodyAddress(crypto.NewAddress(crypto.AccountPrefix, pool.Admin[:]))
}

// activeLoan returns the borrower's loan if it is active.
func (e *Engine) activeLoan(user crypto.Address) (*storedLoan, error) {
	loan, err := e.loadLoan(user)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	if !loan.Active {
		return nil, ErrInvalidState
	}
	return loan, nil
}

// DepositCollateral moves amount from user into pool custody and credits the
// user's collateral.
func (e *Engine) DepositCollateral(user crypto.Address, amount uint64) error {
	pool, err := e.ready()
	if err != nil {
		return err
	}
	if user.IsZero() {
		return nativecommon.ErrInvalidAddress
	}
	if amount == 0 {
		return nativecommon.ErrInvalidAmount
	}
	profile, err := e.loadProfile(user)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &storedProfile{ReputationScore: e.params.DefaultReputation}
	}
	collateral, err := nativecommon.CheckedAdd(profile.TotalCollateral, amount)
	if err != nil {
		return err
	}
	deposits, err := nativecommon.CheckedAdd(pool.TotalDeposits, amount)
	if err != nil {
		return err
	}
	loan, err := e.loadLoan(user)
	if err != nil {
		return err
	}

	if err := e.bank.Transfer(user, custodyOf(pool), amount); err != nil {
		return err
	}
	profile.TotalCollateral = collateral
	if err := e.putProfile(user, profile); err != nil {
		return err
	}
	if loan != nil && loan.Active {
		loan.CollateralAmount = collateral
		if err := e.putLoan(user, loan); err != nil {
			return err
		}
	}
	pool.TotalDeposits = deposits
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingDeposit{User: user, Amount: amount, Timestamp: e.now()})
	return nil
}

// Borrow draws amount from pool custody against the user's collateral. Interest
// accrued on an existing loan is capitalised first so the solvency check sees
// the full debt.
func (e *Engine) Borrow(user crypto.Address, amount uint64) (*LoanInfo, error) {
	pool, err := e.ready()
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, nativecommon.ErrInvalidAmount
	}
	profile, err := e.loadProfile(user)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	loan, err := e.loadLoan(user)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var interest uint64
	isNew := loan == nil || !loan.Active
	if isNew {
		rate, err := e.originationRate(user)
		if err != nil {
			return nil, err
		}
		loan = &storedLoan{InterestRateBps: rate}
	} else {
		interest, err = accruedInterest(loan.BorrowedAmount, loan.InterestRateBps, loan.Timestamp, now, e.params.SecondsPerYear)
		if err != nil {
			return nil, err
		}
	}

	current, err := nativecommon.CheckedAdd(loan.BorrowedAmount, interest)
	if err != nil {
		return nil, err
	}
	next, err := nativecommon.CheckedAdd(current, amount)
	if err != nil {
		return nil, ErrInsufficientCollateral
	}
	maxBorrow, err := nativecommon.MulDiv(profile.TotalCollateral, percent, e.params.CollateralRatio)
	if err != nil {
		return nil, err
	}
	if next > maxBorrow {
		return nil, ErrInsufficientCollateral
	}

	poolBorrowed, err := nativecommon.CheckedSub(pool.TotalBorrowed, loan.BorrowedAmount)
	if err != nil {
		return nil, err
	}
	if poolBorrowed, err = nativecommon.CheckedAdd(poolBorrowed, next); err != nil {
		return nil, err
	}
	reserves, err := nativecommon.CheckedAdd(pool.TotalReserves, interest)
	if err != nil {
		return nil, err
	}
	loanCount := profile.LoanCount
	if isNew {
		if loanCount, err = nativecommon.CheckedAdd(loanCount, 1); err != nil {
			return nil, err
		}
	}

	if err := e.bank.Transfer(custodyOf(pool), user, amount); err != nil {
		return nil, err
	}
	loan.CollateralAmount = profile.TotalCollateral
	loan.BorrowedAmount = next
	loan.Timestamp = now
	loan.Active = true
	if err := e.putLoan(user, loan); err != nil {
		return nil, err
	}
	profile.TotalBorrowed = next
	profile.LoanCount = loanCount
	if err := e.putProfile(user, profile); err != nil {
		return nil, err
	}
	pool.TotalBorrowed = poolBorrowed
	pool.TotalReserves = reserves
	if err := e.putPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingBorrow{
		User:             user,
		CollateralAmount: loan.CollateralAmount,
		BorrowedAmount:   amount,
		InterestRateBps:  loan.InterestRateBps,
		Timestamp:        now,
	})
	return loan.toInfo(user), nil
}

func (e *Engine) originationRate(user crypto.Address) (uint64, error) {
	if !e.params.ReputationPricing || e.reputation == nil {
		return e.params.InterestRateBps, nil
	}
	multiplier, err := e.reputation.Multiplier(user)
	if err != nil {
		return 0, err
	}
	return effectiveRate(e.params.InterestRateBps, multiplier), nil
}

// Repay settles amount against the user's loan, interest first. Any interest
// left unpaid is capitalised into the new balance and the accrual clock
// restarts.
func (e *Engine) Repay(user crypto.Address, amount uint64) (*LoanInfo, error) {
	pool, err := e.ready()
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, nativecommon.ErrInvalidAmount
	}
	loan, err := e.activeLoan(user)
	if err != nil {
		return nil, err
	}
	profile, err := e.loadProfile(user)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	now := e.now()
	interest, err := accruedInterest(loan.BorrowedAmount, loan.InterestRateBps, loan.Timestamp, now, e.params.SecondsPerYear)
	if err != nil {
		return nil, err
	}
	owed, err := nativecommon.CheckedAdd(loan.BorrowedAmount, interest)
	if err != nil {
		return nil, err
	}
	if amount > owed {
		return nil, nativecommon.ErrInvalidAmount
	}
	remaining := owed - amount

	poolBorrowed, err := nativecommon.CheckedSub(pool.TotalBorrowed, loan.BorrowedAmount)
	if err != nil {
		return nil, err
	}
	if poolBorrowed, err = nativecommon.CheckedAdd(poolBorrowed, remaining); err != nil {
		return nil, err
	}
	reserves, err := nativecommon.CheckedAdd(pool.TotalReserves, interest)
	if err != nil {
		return nil, err
	}
	reputation, err := nativecommon.CheckedAdd(profile.ReputationScore, e.params.RepayReward)
	if err != nil {
		return nil, err
	}

	if err := e.bank.Transfer(user, custodyOf(pool), amount); err != nil {
		return nil, err
	}
	loan.BorrowedAmount = remaining
	loan.Timestamp = now
	loan.Active = remaining > 0
	loan.CollateralAmount = profile.TotalCollateral
	if err := e.putLoan(user, loan); err != nil {
		return nil, err
	}
	profile.TotalBorrowed = remaining
	profile.ReputationScore = reputation
	if err := e.putProfile(user, profile); err != nil {
		return nil, err
	}
	pool.TotalBorrowed = poolBorrowed
	pool.TotalReserves = reserves
	if err := e.putPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingRepay{
		User:      user,
		Amount:    amount,
		Interest:  interest,
		Remaining: remaining,
		Timestamp: now,
	})
	return loan.toInfo(user), nil
}

// WithdrawCollateral returns amount of collateral to the user as long as the
// remaining collateral still covers the debt, accrued interest included, at
// the collateral ratio.
func (e *Engine) WithdrawCollateral(user crypto.Address, amount uint64) error {
	pool, err := e.ready()
	if err != nil {
		return err
	}
	if amount == 0 {
		return nativecommon.ErrInvalidAmount
	}
	profile, err := e.loadProfile(user)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrProfileNotFound
	}
	if profile.TotalCollateral < amount {
		return ErrInsufficientBalance
	}
	remaining := profile.TotalCollateral - amount
	loan, err := e.loadLoan(user)
	if err != nil {
		return err
	}
	now := e.now()
	if loan != nil && loan.Active {
		debt, err := e.debtOf(loan, now)
		if err != nil {
			return err
		}
		if undercollateralized(remaining, debt, e.params.CollateralRatio) {
			return ErrInsufficientCollateral
		}
	}
	deposits, err := nativecommon.CheckedSub(pool.TotalDeposits, amount)
	if err != nil {
		return err
	}

	if err := e.bank.Transfer(custodyOf(pool), user, amount); err != nil {
		return err
	}
	profile.TotalCollateral = remaining
	if err := e.putProfile(user, profile); err != nil {
		return err
	}
	if loan != nil && loan.Active {
		loan.CollateralAmount = remaining
		if err := e.putLoan(user, loan); err != nil {
			return err
		}
	}
	pool.TotalDeposits = deposits
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingWithdraw{User: user, Amount: amount, Timestamp: now})
	return nil
}

// LiquidationResult summarises a completed liquidation.
type LiquidationResult struct {
	DebtRepaid       uint64
	CollateralSeized uint64
	Bonus            uint64
}

// Liquidate closes an undercollateralised loan. The liquidator repays the full
// debt and receives the borrower's collateral plus a bonus paid out of pool
// reserves.
func (e *Engine) Liquidate(liquidator, borrower crypto.Address) (*LiquidationResult, error) {
	pool, err := e.ready()
	if err != nil {
		return nil, err
	}
	if liquidator.IsZero() {
		return nil, nativecommon.ErrInvalidAddress
	}
	loan, err := e.activeLoan(borrower)
	if err != nil {
		return nil, err
	}
	profile, err := e.loadProfile(borrower)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	now := e.now()
	interest, err := accruedInterest(loan.BorrowedAmount, loan.InterestRateBps, loan.Timestamp, now, e.params.SecondsPerYear)
	if err != nil {
		return nil, err
	}
	debt, err := nativecommon.CheckedAdd(loan.BorrowedAmount, interest)
	if err != nil {
		return nil, err
	}
	collateral := profile.TotalCollateral
	if !undercollateralized(collateral, debt, e.params.CollateralRatio) {
		return nil, ErrInvalidState
	}

	// The bonus is capped by the reserves available once this loan's interest
	// has been paid in, so deposits never fund it.
	available, err := nativecommon.CheckedAdd(pool.TotalReserves, interest)
	if err != nil {
		return nil, err
	}
	bonus, err := nativecommon.MulDiv(collateral, e.params.LiquidationBonus, percent)
	if err != nil {
		return nil, err
	}
	bonus = nativecommon.Min(bonus, available)
	payout, err := nativecommon.CheckedAdd(collateral, bonus)
	if err != nil {
		return nil, err
	}
	deposits, err := nativecommon.CheckedSub(pool.TotalDeposits, collateral)
	if err != nil {
		return nil, err
	}
	poolBorrowed, err := nativecommon.CheckedSub(pool.TotalBorrowed, loan.BorrowedAmount)
	if err != nil {
		return nil, err
	}

	custody := custodyOf(pool)
	if err := e.bank.Transfer(liquidator, custody, debt); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(custody, liquidator, payout); err != nil {
		return nil, err
	}

	result := &LiquidationResult{DebtRepaid: debt, CollateralSeized: collateral, Bonus: bonus}

	loan.BorrowedAmount = 0
	loan.CollateralAmount = 0
	loan.Active = false
	loan.Timestamp = now
	if err := e.putLoan(borrower, loan); err != nil {
		return nil, err
	}
	profile.TotalCollateral = 0
	profile.TotalBorrowed = 0
	profile.ReputationScore = nativecommon.SaturatingSub(profile.ReputationScore, e.params.LiquidationPenalty)
	if err := e.putProfile(borrower, profile); err != nil {
		return nil, err
	}
	pool.TotalDeposits = deposits
	pool.TotalBorrowed = poolBorrowed
	pool.TotalReserves = available - bonus
	if err := e.putPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingLiquidation{
		Liquidator:       liquidator,
		Borrower:         borrower,
		Amount:           payout,
		CollateralAmount: result.CollateralSeized,
		DebtAmount:       result.DebtRepaid,
		Bonus:            result.Bonus,
		Timestamp:        now,
	})
	return result, nil
}

func (e *Engine) debtOf(loan *storedLoan, now uint64) (uint64, error) {
	interest, err := accruedInterest(loan.BorrowedAmount, loan.InterestRateBps, loan.Timestamp, now, e.params.SecondsPerYear)
	if err != nil {
		return 0, err
	}
	return nativecommon.CheckedAdd(loan.BorrowedAmount, interest)
}

func (l *storedLoan) toInfo(user crypto.Address) *LoanInfo {
	if l == nil {
		return &LoanInfo{Borrower: user}
	}
	return &LoanInfo{
		Borrower:         user,
		CollateralAmount: l.CollateralAmount,
		BorrowedAmount:   l.BorrowedAmount,
		InterestRateBps:  l.InterestRateBps,
		Timestamp:        l.Timestamp,
		Active:           l.Active,
	}
}
