package server

import (
	"net/http"

	"sbtlend/crypto"
	"sbtlend/native/reputation"
)

func (s *Server) initializeRegistry(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerOrFail(w, r)
	if !ok {
		return
	}
	var req InitializeRegistryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.InitializeRegistry(r.Context(), caller, req.Collection); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thresholdsResponse(s.svc.Thresholds(r.Context())))
}

// scoreCall decodes a user/value pair and runs fn as the caller.
func (s *Server) scoreCall(w http.ResponseWriter, r *http.Request, points bool, fn func(caller, user crypto.Address, value uint64) (*reputation.Record, error)) {
	caller, ok := s.callerOrFail(w, r)
	if !ok {
		return
	}
	var rawUser, rawValue string
	if points {
		var req PointsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		rawUser, rawValue = req.User, req.Points
	} else {
		var req ScoreRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		rawUser, rawValue = req.User, req.Score
	}
	user, err := parseAddress(rawUser)
	if err != nil {
		writeError(w, err)
		return
	}
	value, err := parseScore(rawValue)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := fn(caller, user, value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	s.scoreCall(w, r, false, func(caller, user crypto.Address, score uint64) (*reputation.Record, error) {
		return s.svc.Mint(r.Context(), caller, user, score)
	})
}

func (s *Server) updateReputation(w http.ResponseWriter, r *http.Request) {
	s.scoreCall(w, r, false, func(caller, user crypto.Address, score uint64) (*reputation.Record, error) {
		return s.svc.UpdateReputation(r.Context(), caller, user, score)
	})
}

func (s *Server) increaseReputation(w http.ResponseWriter, r *http.Request) {
	s.scoreCall(w, r, true, func(caller, user crypto.Address, points uint64) (*reputation.Record, error) {
		return s.svc.IncreaseReputation(r.Context(), caller, user, points)
	})
}

func (s *Server) decreaseReputation(w http.ResponseWriter, r *http.Request) {
	s.scoreCall(w, r, true, func(caller, user crypto.Address, points uint64) (*reputation.Record, error) {
		return s.svc.DecreaseReputation(r.Context(), caller, user, points)
	})
}

func (s *Server) batchUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerOrFail(w, r)
	if !ok {
		return
	}
	var req BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	users := make([]crypto.Address, len(req.Users))
	for i, raw := range req.Users {
		addr, err := parseAddress(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		users[i] = addr
	}
	scores := make([]uint64, len(req.Scores))
	for i, raw := range req.Scores {
		score, err := parseScore(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		scores[i] = score
	}
	records, err := s.svc.BatchUpdateReputation(r.Context(), caller, users, scores)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getReputation(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	summary, err := s.svc.Reputation(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReputationResponse{
		Address:          addr.String(),
		Score:            u64(summary.Score),
		Level:            summary.Level,
		MintTimestamp:    summary.MintTimestamp,
		TransactionCount: u64(summary.TransactionCount),
	})
}

func (s *Server) getHasSBT(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	has, err := s.svc.HasSBT(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BoolResponse{Value: has})
}

func (s *Server) getMultiplier(w http.ResponseWriter, r *http.Request) {
	s.addressValue(w, r, func(addr crypto.Address) (uint64, error) {
		return s.svc.Multiplier(r.Context(), addr)
	})
}

func (s *Server) getCanPerform(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	required, err := parseScore(r.URL.Query().Get("required"))
	if err != nil {
		writeError(w, err)
		return
	}
	allowed, err := s.svc.CanPerformAction(r.Context(), addr, required)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BoolResponse{Value: allowed})
}

func (s *Server) getThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, thresholdsResponse(s.svc.Thresholds(r.Context())))
}

func thresholdsResponse(t reputation.Thresholds) ThresholdsResponse {
	return ThresholdsResponse{
		Bronze:   u64(t.Bronze),
		Silver:   u64(t.Silver),
		Gold:     u64(t.Gold),
		Platinum: u64(t.Platinum),
	}
}
