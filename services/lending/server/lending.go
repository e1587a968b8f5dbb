package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sbtlend/crypto"
	"sbtlend/native/lending"
)

func (s *Server) callerOrFail(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized, "unauthenticated", errUnauthenticated.Error())
	}
	return caller, ok
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return crypto.Address{}, false
	}
	return addr, true
}

// amountCall decodes an AmountRequest and runs fn for the caller.
func (s *Server) amountCall(w http.ResponseWriter, r *http.Request, fn func(caller crypto.Address, amount uint64) (interface{}, error)) {
	caller, ok := s.callerOrFail(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := fn(caller, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) initializePool(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerOrFail(w, r)
	if !ok {
		return
	}
	if err := s.svc.InitializePool(r.Context(), caller); err != nil {
		writeError(w, err)
		return
	}
	s.getStats(w, r)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, func(caller crypto.Address, amount uint64) (interface{}, error) {
		if err := s.svc.Deposit(r.Context(), caller, amount); err != nil {
			return nil, err
		}
		profile, err := s.svc.UserProfile(r.Context(), caller)
		if err != nil {
			return nil, err
		}
		return profileResponse(caller, profile), nil
	})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, func(caller crypto.Address, amount uint64) (interface{}, error) {
		loan, err := s.svc.Borrow(r.Context(), caller, amount)
		if err != nil {
			return nil, err
		}
		return loanResponse(*loan), nil
	})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, func(caller crypto.Address, amount uint64) (interface{}, error) {
		loan, err := s.svc.Repay(r.Context(), caller, amount)
		if err != nil {
			return nil, err
		}
		return loanResponse(*loan), nil
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, func(caller crypto.Address, amount uint64) (interface{}, error) {
		if err := s.svc.Withdraw(r.Context(), caller, amount); err != nil {
			return nil, err
		}
		profile, err := s.svc.UserProfile(r.Context(), caller)
		if err != nil {
			return nil, err
		}
		return profileResponse(caller, profile), nil
	})
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerOrFail(w, r)
	if !ok {
		return
	}
	var req LiquidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Liquidate(r.Context(), caller, borrower)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LiquidationResponse{
		Borrower:         borrower.String(),
		DebtRepaid:       u64(res.DebtRepaid),
		CollateralSeized: u64(res.CollateralSeized),
		Bonus:            u64(res.Bonus),
	})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	profile, err := s.svc.UserProfile(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(addr, profile))
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	loan, err := s.svc.LoanInfo(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponse(loan))
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.ProtocolStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	pool, err := s.svc.Pool(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse(stats, pool))
}

func statsResponse(stats lending.ProtocolStats, pool *lending.PoolState) StatsResponse {
	resp := StatsResponse{
		TotalDeposits:        u64(stats.TotalDeposits),
		TotalBorrowed:        u64(stats.TotalBorrowed),
		TotalReserves:        u64(stats.TotalReserves),
		UtilizationRate:      u64(stats.UtilizationRate),
		CollateralRatio:      u64(stats.CollateralRatio),
		LiquidationThreshold: u64(stats.LiquidationThreshold),
		InterestRateBps:      u64(stats.InterestRateBps),
	}
	if pool != nil {
		resp.Admin = pool.Admin.String()
		resp.Custody = pool.Custody.String()
	}
	return resp
}

func (s *Server) addressValue(w http.ResponseWriter, r *http.Request, fn func(addr crypto.Address) (uint64, error)) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	v, err := fn(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: u64(v)})
}

func (s *Server) getHealthFactor(w http.ResponseWriter, r *http.Request) {
	s.addressValue(w, r, func(addr crypto.Address) (uint64, error) {
		return s.svc.HealthFactor(r.Context(), addr)
	})
}

func (s *Server) getMaxBorrowable(w http.ResponseWriter, r *http.Request) {
	s.addressValue(w, r, func(addr crypto.Address) (uint64, error) {
		return s.svc.MaxBorrowable(r.Context(), addr)
	})
}

func (s *Server) getTotalCollateral(w http.ResponseWriter, r *http.Request) {
	s.addressValue(w, r, func(addr crypto.Address) (uint64, error) {
		return s.svc.TotalCollateral(r.Context(), addr)
	})
}

func (s *Server) getBorrowedAmount(w http.ResponseWriter, r *http.Request) {
	s.addressValue(w, r, func(addr crypto.Address) (uint64, error) {
		return s.svc.BorrowedAmount(r.Context(), addr)
	})
}

func (s *Server) getUtilization(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.UtilizationRate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: u64(v)})
}

func (s *Server) getTotalBorrowed(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.TotalBorrowed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: u64(v)})
}
