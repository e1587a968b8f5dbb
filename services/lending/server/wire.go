package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"sbtlend/crypto"
	nativecommon "sbtlend/native/common"
	"sbtlend/native/lending"
	"sbtlend/native/reputation"
)

const requestLimit = 1 << 20 // 1 MiB

var errBadRequest = errors.New("malformed request body")

// Amounts and scores travel as decimal strings so JSON clients never lose
// precision on u64 values.

type AmountRequest struct {
	Amount string `json:"amount"`
}

type LiquidateRequest struct {
	Borrower string `json:"borrower"`
}

type InitializeRegistryRequest struct {
	Collection string `json:"collection,omitempty"`
}

type ScoreRequest struct {
	User  string `json:"user"`
	Score string `json:"score"`
}

type PointsRequest struct {
	User   string `json:"user"`
	Points string `json:"points"`
}

type BatchRequest struct {
	Users  []string `json:"users"`
	Scores []string `json:"scores"`
}

type CreditRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type ProfileResponse struct {
	Address         string `json:"address"`
	TotalCollateral string `json:"totalCollateral"`
	TotalBorrowed   string `json:"totalBorrowed"`
	LoanCount       string `json:"loanCount"`
	ReputationScore string `json:"reputationScore"`
}

type LoanResponse struct {
	Borrower         string `json:"borrower"`
	CollateralAmount string `json:"collateralAmount"`
	BorrowedAmount   string `json:"borrowedAmount"`
	InterestRateBps  string `json:"interestRateBps"`
	Timestamp        uint64 `json:"timestamp"`
	Active           bool   `json:"active"`
}

type StatsResponse struct {
	TotalDeposits        string `json:"totalDeposits"`
	TotalBorrowed        string `json:"totalBorrowed"`
	TotalReserves        string `json:"totalReserves"`
	UtilizationRate      string `json:"utilizationRate"`
	CollateralRatio      string `json:"collateralRatio"`
	LiquidationThreshold string `json:"liquidationThreshold"`
	InterestRateBps      string `json:"interestRateBps"`
	Admin                string `json:"admin,omitempty"`
	Custody              string `json:"custody,omitempty"`
}

type LiquidationResponse struct {
	Borrower         string `json:"borrower"`
	DebtRepaid       string `json:"debtRepaid"`
	CollateralSeized string `json:"collateralSeized"`
	Bonus            string `json:"bonus"`
}

type ValueResponse struct {
	Value string `json:"value"`
}

type BoolResponse struct {
	Value bool `json:"value"`
}

type ReputationResponse struct {
	Address          string `json:"address"`
	Score            string `json:"score"`
	Level            string `json:"level"`
	MintTimestamp    uint64 `json:"mintTimestamp"`
	TransactionCount string `json:"transactionCount"`
}

type RecordResponse struct {
	Owner            string `json:"owner"`
	TokenID          string `json:"tokenId"`
	Score            string `json:"score"`
	Level            string `json:"level"`
	MintTimestamp    uint64 `json:"mintTimestamp"`
	LastUpdated      uint64 `json:"lastUpdated"`
	TransactionCount string `json:"transactionCount"`
}

type ThresholdsResponse struct {
	Bronze   string `json:"bronze"`
	Silver   string `json:"silver"`
	Gold     string `json:"gold"`
	Platinum string `json:"platinum"`
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseUint parses a decimal u64. Empty, signed and out of range values are
// rejected with kind.
func parseUint(raw string, kind error) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, kind
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, kind
	}
	return v, nil
}

func parseAmount(raw string) (uint64, error) {
	return parseUint(raw, nativecommon.ErrInvalidAmount)
}

func parseScore(raw string) (uint64, error) {
	return parseUint(raw, reputation.ErrInvalidScore)
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil || addr.IsZero() {
		return crypto.Address{}, nativecommon.ErrInvalidAddress
	}
	return addr, nil
}

func profileResponse(addr crypto.Address, p lending.UserProfile) ProfileResponse {
	return ProfileResponse{
		Address:         addr.String(),
		TotalCollateral: u64(p.TotalCollateral),
		TotalBorrowed:   u64(p.TotalBorrowed),
		LoanCount:       u64(p.LoanCount),
		ReputationScore: u64(p.ReputationScore),
	}
}

func loanResponse(l lending.LoanInfo) LoanResponse {
	return LoanResponse{
		Borrower:         l.Borrower.String(),
		CollateralAmount: u64(l.CollateralAmount),
		BorrowedAmount:   u64(l.BorrowedAmount),
		InterestRateBps:  u64(l.InterestRateBps),
		Timestamp:        l.Timestamp,
		Active:           l.Active,
	}
}

func recordResponse(rec *reputation.Record) RecordResponse {
	return RecordResponse{
		Owner:            rec.Owner.String(),
		TokenID:          "0x" + hex.EncodeToString(rec.TokenID[:]),
		Score:            u64(rec.Score),
		Level:            rec.Level.String(),
		MintTimestamp:    rec.MintTimestamp,
		LastUpdated:      rec.LastUpdated,
		TransactionCount: u64(rec.TransactionCount),
	}
}
