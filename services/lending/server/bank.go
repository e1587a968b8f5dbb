package server

import (
	"net/http"

	"sbtlend/crypto"
)

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	s.addressValue(w, r, func(addr crypto.Address) (uint64, error) {
		return s.svc.Balance(r.Context(), addr)
	})
}

// credit seeds a balance. Only the pool admin may call it.
func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerOrFail(w, r)
	if !ok {
		return
	}
	var req CreditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Credit(r.Context(), caller, addr, amount); err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.svc.Balance(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: u64(balance)})
}
