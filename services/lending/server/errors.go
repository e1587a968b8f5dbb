package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"sbtlend/services/lending/engine"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusForKind(kind string) int {
	switch kind {
	case engine.KindInvalidAmount, engine.KindInvalidAddress, engine.KindInvalidScore, engine.KindOverflow:
		return http.StatusBadRequest
	case engine.KindNotAuthorized:
		return http.StatusForbidden
	case engine.KindLoanNotFound, engine.KindProfileNotFound, engine.KindTokenNotFound:
		return http.StatusNotFound
	case engine.KindAlreadyInitialized, engine.KindNotInitialized, engine.KindAlreadyMinted, engine.KindInvalidState:
		return http.StatusConflict
	case engine.KindInsufficientCollateral, engine.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case engine.KindPaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as its stable kind. Internal causes are never
// returned to the client.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequest) {
		writeStatus(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	kind := engine.Kind(err)
	writeStatus(w, statusForKind(kind), kind, engine.Message(kind))
}

func writeStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
