package engine

import (
	"context"

	"sbtlend/crypto"
	"sbtlend/native/bank"
	"sbtlend/native/lending"
	"sbtlend/native/reputation"
)

// Queries take the aggregate read lock and observe committed state only.
// Missing records read as zero values.

func (s *Service) poolRead(fn func(eng *lending.Engine) error) error {
	s.poolMu.RLock()
	defer s.poolMu.RUnlock()
	return s.view(func(tx *txn) error { return fn(s.lendingEngine(tx)) })
}

func (s *Service) registryRead(fn func(eng *reputation.Engine) error) error {
	s.registryMu.RLock()
	defer s.registryMu.RUnlock()
	return s.view(func(tx *txn) error { return fn(s.reputationEngine(tx)) })
}

func (s *Service) poolValue(fn func(eng *lending.Engine) (uint64, error)) (uint64, error) {
	var out uint64
	err := s.poolRead(func(eng *lending.Engine) error {
		var err error
		out, err = fn(eng)
		return err
	})
	return out, err
}

// Pool returns the pool state, or nil before initialisation.
func (s *Service) Pool(_ context.Context) (*lending.PoolState, error) {
	var pool *lending.PoolState
	err := s.poolRead(func(eng *lending.Engine) error {
		var err error
		pool, err = eng.Pool()
		return err
	})
	return pool, err
}

func (s *Service) UserProfile(_ context.Context, user crypto.Address) (lending.UserProfile, error) {
	var profile lending.UserProfile
	err := s.poolRead(func(eng *lending.Engine) error {
		var err error
		profile, err = eng.UserProfile(user)
		return err
	})
	return profile, err
}

func (s *Service) LoanInfo(_ context.Context, user crypto.Address) (lending.LoanInfo, error) {
	var loan lending.LoanInfo
	err := s.poolRead(func(eng *lending.Engine) error {
		var err error
		loan, err = eng.LoanInfo(user)
		return err
	})
	return loan, err
}

func (s *Service) ProtocolStats(_ context.Context) (lending.ProtocolStats, error) {
	var stats lending.ProtocolStats
	err := s.poolRead(func(eng *lending.Engine) error {
		var err error
		stats, err = eng.ProtocolStats()
		return err
	})
	return stats, err
}

func (s *Service) HealthFactor(_ context.Context, user crypto.Address) (uint64, error) {
	return s.poolValue(func(eng *lending.Engine) (uint64, error) { return eng.HealthFactor(user) })
}

func (s *Service) MaxBorrowable(_ context.Context, user crypto.Address) (uint64, error) {
	return s.poolValue(func(eng *lending.Engine) (uint64, error) { return eng.MaxBorrowable(user) })
}

func (s *Service) UtilizationRate(_ context.Context) (uint64, error) {
	return s.poolValue(func(eng *lending.Engine) (uint64, error) { return eng.UtilizationRate() })
}

func (s *Service) TotalCollateral(_ context.Context, user crypto.Address) (uint64, error) {
	return s.poolValue(func(eng *lending.Engine) (uint64, error) { return eng.TotalCollateral(user) })
}

func (s *Service) TotalBorrowed(_ context.Context) (uint64, error) {
	return s.poolValue(func(eng *lending.Engine) (uint64, error) { return eng.TotalBorrowed() })
}

func (s *Service) BorrowedAmount(_ context.Context, user crypto.Address) (uint64, error) {
	return s.poolValue(func(eng *lending.Engine) (uint64, error) { return eng.BorrowedAmount(user) })
}

// Balance returns the base asset balance of addr.
func (s *Service) Balance(_ context.Context, addr crypto.Address) (uint64, error) {
	s.poolMu.RLock()
	defer s.poolMu.RUnlock()
	var balance uint64
	err := s.view(func(tx *txn) error {
		var err error
		balance, err = bank.NewLedger(tx.state).Balance(addr)
		return err
	})
	return balance, err
}

// Reputation returns the public reputation summary of user.
func (s *Service) Reputation(_ context.Context, user crypto.Address) (reputation.Summary, error) {
	var summary reputation.Summary
	err := s.registryRead(func(eng *reputation.Engine) error {
		var err error
		summary, err = eng.Summary(user)
		return err
	})
	return summary, err
}

func (s *Service) HasSBT(_ context.Context, user crypto.Address) (bool, error) {
	var has bool
	err := s.registryRead(func(eng *reputation.Engine) error {
		var err error
		has, err = eng.Has(user)
		return err
	})
	return has, err
}

func (s *Service) Multiplier(_ context.Context, user crypto.Address) (uint64, error) {
	var multiplier uint64
	err := s.registryRead(func(eng *reputation.Engine) error {
		var err error
		multiplier, err = eng.Multiplier(user)
		return err
	})
	return multiplier, err
}

func (s *Service) CanPerformAction(_ context.Context, user crypto.Address, required uint64) (bool, error) {
	var ok bool
	err := s.registryRead(func(eng *reputation.Engine) error {
		var err error
		ok, err = eng.CanPerformAction(user, required)
		return err
	})
	return ok, err
}

func (s *Service) Thresholds(_ context.Context) reputation.Thresholds {
	return reputation.DefaultThresholds()
}
