package server

import (
	"errors"
	"net/http"
	"strconv"

	"sbtlend/services/lending/journal"
)

// EventResponse is one journal entry on the wire.
type EventResponse struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Digest     string            `json:"digest"`
	PrevDigest string            `json:"prevDigest"`
	CreatedAt  int64             `json:"createdAt"`
}

// EventPage is a page of journal entries. Next is the cursor for the
// following page.
type EventPage struct {
	Events []EventResponse `json:"events"`
	Next   uint64          `json:"next"`
}

func (s *Server) journalOrFail(w http.ResponseWriter) bool {
	if s.journal == nil {
		writeStatus(w, http.StatusServiceUnavailable, "journal_disabled", "event journal disabled")
		return false
	}
	return true
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if !s.journalOrFail(w) {
		return
	}
	q := r.URL.Query()
	var after uint64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "bad_request", "invalid after cursor")
			return
		}
		after = v
	}
	limit := journal.MaxPageSize
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeStatus(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = v
	}
	entries, err := s.journal.List(r.Context(), after, limit)
	if err != nil {
		s.logger.Error("list events", "component", "journal", "error", err)
		writeStatus(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	page := EventPage{Events: make([]EventResponse, 0, len(entries)), Next: after}
	for _, entry := range entries {
		ev, err := entry.Event()
		if err != nil {
			s.logger.Error("decode event", "component", "journal", "error", err)
			writeStatus(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		page.Events = append(page.Events, EventResponse{
			Seq:        entry.Seq,
			ID:         entry.ID.String(),
			Type:       entry.Type,
			Attributes: ev.Attributes,
			Digest:     entry.Digest,
			PrevDigest: entry.PrevDigest,
			CreatedAt:  entry.CreatedAt.Unix(),
		})
		page.Next = entry.Seq
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) verifyEvents(w http.ResponseWriter, r *http.Request) {
	if !s.journalOrFail(w) {
		return
	}
	res, err := s.journal.Verify(r.Context())
	if errors.Is(err, journal.ErrChainBroken) {
		writeStatus(w, http.StatusConflict, "chain_broken", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("verify events", "component", "journal", "error", err)
		writeStatus(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
