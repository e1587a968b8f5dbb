package lending

import "sbtlend/crypto"

// engineState abstracts the subset of state manager functionality required by the
// lending engine.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	poolKey       = []byte("lending/pool")
	profilePrefix = []byte("lending/profile/")
	loanPrefix    = []byte("lending/loan/")
)

func accountKey(prefix []byte, addr crypto.Address) []byte {
	raw := addr.Raw()
	key := make([]byte, 0, len(prefix)+len(raw))
	key = append(key, prefix...)
	return append(key, raw[:]...)
}

type storedPool struct {
	Admin         [20]byte
	TotalDeposits uint64
	TotalBorrowed uint64
	TotalReserves uint64
}

type storedProfile struct {
	TotalCollateral uint64
	TotalBorrowed   uint64
	LoanCount       uint64
	ReputationScore uint64
}

type storedLoan struct {
	CollateralAmount uint64
	BorrowedAmount   uint64
	InterestRateBps  uint64
	Timestamp        uint64
	Active           bool
}

func (e *Engine) loadPool() (*storedPool, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	var pool storedPool
	ok, err := e.store.KVGet(poolKey, &pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &pool, nil
}

func (e *Engine) loadProfile(user crypto.Address) (*storedProfile, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	var profile storedProfile
	ok, err := e.store.KVGet(accountKey(profilePrefix, user), &profile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (e *Engine) loadLoan(user crypto.Address) (*storedLoan, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	var loan storedLoan
	ok, err := e.store.KVGet(accountKey(loanPrefix, user), &loan)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &loan, nil
}

func (e *Engine) putPool(pool *storedPool) error {
	return e.store.KVPut(poolKey, pool)
}

func (e *Engine) putProfile(user crypto.Address, profile *storedProfile) error {
	return e.store.KVPut(accountKey(profilePrefix, user), profile)
}

func (e *Engine) putLoan(user crypto.Address, loan *storedLoan) error {
	return e.store.KVPut(accountKey(loanPrefix, user), loan)
}
