// Package lending is a typed HTTP client for the lending daemon.
package lending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sbtlend/services/lending/journal"
	"sbtlend/services/lending/server"
)

// ErrClientClosed is returned when a nil client is used.
var ErrClientClosed = errors.New("lending client: not connected")

// APIError is a structured error returned by the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lending api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Option customises a Client.
type Option func(*Client)

// WithToken authenticates write calls with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client provides typed helpers over the lending HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New builds a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("lending client: invalid base url %q", baseURL)
	}
	c := &Client{
		base: strings.TrimRight(parsed.String(), "/"),
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c == nil {
		return ErrClientClosed
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Code: "http_error", Message: strings.TrimSpace(string(data))}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("lending client: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) value(ctx context.Context, path string) (uint64, error) {
	var resp server.ValueResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(resp.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lending client: decode value: %w", err)
	}
	return v, nil
}

func (c *Client) flag(ctx context.Context, path string) (bool, error) {
	var resp server.BoolResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Value, nil
}

func amount(v uint64) server.AmountRequest {
	return server.AmountRequest{Amount: strconv.FormatUint(v, 10)}
}

// InitializePool creates the pool administered by the token subject.
func (c *Client) InitializePool(ctx context.Context) (*server.StatsResponse, error) {
	var resp server.StatsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/lending/initialize", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Deposit moves collateral into the pool.
func (c *Client) Deposit(ctx context.Context, value uint64) (*server.ProfileResponse, error) {
	var resp server.ProfileResponse
	if err := c.do(ctx, http.MethodPost, "/v1/lending/deposit", amount(value), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Borrow draws value against deposited collateral.
func (c *Client) Borrow(ctx context.Context, value uint64) (*server.LoanResponse, error) {
	var resp server.LoanResponse
	if err := c.do(ctx, http.MethodPost, "/v1/lending/borrow", amount(value), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Repay pays down the active loan.
func (c *Client) Repay(ctx context.Context, value uint64) (*server.LoanResponse, error) {
	var resp server.LoanResponse
	if err := c.do(ctx, http.MethodPost, "/v1/lending/repay", amount(value), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Withdraw returns free collateral.
func (c *Client) Withdraw(ctx context.Context, value uint64) (*server.ProfileResponse, error) {
	var resp server.ProfileResponse
	if err := c.do(ctx, http.MethodPost, "/v1/lending/withdraw", amount(value), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Liquidate closes an undercollateralized loan.
func (c *Client) Liquidate(ctx context.Context, borrower string) (*server.LiquidationResponse, error) {
	var resp server.LiquidationResponse
	if err := c.do(ctx, http.MethodPost, "/v1/lending/liquidate", server.LiquidateRequest{Borrower: borrower}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile fetches a user profile.
func (c *Client) Profile(ctx context.Context, addr string) (*server.ProfileResponse, error) {
	var resp server.ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/v1/lending/profile/"+url.PathEscape(addr), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Loan fetches a user's loan.
func (c *Client) Loan(ctx context.Context, addr string) (*server.LoanResponse, error) {
	var resp server.LoanResponse
	if err := c.do(ctx, http.MethodGet, "/v1/lending/loan/"+url.PathEscape(addr), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats fetches pool-wide statistics.
func (c *Client) Stats(ctx context.Context) (*server.StatsResponse, error) {
	var resp server.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/lending/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthFactor returns the user's health factor in hundredths.
func (c *Client) HealthFactor(ctx context.Context, addr string) (uint64, error) {
	return c.value(ctx, "/v1/lending/health-factor/"+url.PathEscape(addr))
}

// MaxBorrowable returns the additional amount the user could borrow.
func (c *Client) MaxBorrowable(ctx context.Context, addr string) (uint64, error) {
	return c.value(ctx, "/v1/lending/max-borrowable/"+url.PathEscape(addr))
}

// Utilization returns the pool utilization percentage.
func (c *Client) Utilization(ctx context.Context) (uint64, error) {
	return c.value(ctx, "/v1/lending/utilization")
}

// InitializeRegistry creates the reputation registry.
func (c *Client) InitializeRegistry(ctx context.Context, collection string) error {
	return c.do(ctx, http.MethodPost, "/v1/reputation/initialize", server.InitializeRegistryRequest{Collection: collection}, nil)
}

func (c *Client) record(ctx context.Context, path string, body interface{}) (*server.RecordResponse, error) {
	var resp server.RecordResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Mint issues a reputation token to user.
func (c *Client) Mint(ctx context.Context, user string, score uint64) (*server.RecordResponse, error) {
	return c.record(ctx, "/v1/reputation/mint", server.ScoreRequest{User: user, Score: strconv.FormatUint(score, 10)})
}

// UpdateScore sets a user's score.
func (c *Client) UpdateScore(ctx context.Context, user string, score uint64) (*server.RecordResponse, error) {
	return c.record(ctx, "/v1/reputation/update", server.ScoreRequest{User: user, Score: strconv.FormatUint(score, 10)})
}

// IncreaseScore adds points to a user's score.
func (c *Client) IncreaseScore(ctx context.Context, user string, points uint64) (*server.RecordResponse, error) {
	return c.record(ctx, "/v1/reputation/increase", server.PointsRequest{User: user, Points: strconv.FormatUint(points, 10)})
}

// DecreaseScore removes points from a user's score.
func (c *Client) DecreaseScore(ctx context.Context, user string, points uint64) (*server.RecordResponse, error) {
	return c.record(ctx, "/v1/reputation/decrease", server.PointsRequest{User: user, Points: strconv.FormatUint(points, 10)})
}

// BatchUpdate sets several scores atomically.
func (c *Client) BatchUpdate(ctx context.Context, users []string, scores []uint64) ([]server.RecordResponse, error) {
	req := server.BatchRequest{Users: users, Scores: make([]string, len(scores))}
	for i, score := range scores {
		req.Scores[i] = strconv.FormatUint(score, 10)
	}
	var resp []server.RecordResponse
	if err := c.do(ctx, http.MethodPost, "/v1/reputation/batch", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Reputation fetches a user's reputation summary.
func (c *Client) Reputation(ctx context.Context, addr string) (*server.ReputationResponse, error) {
	var resp server.ReputationResponse
	if err := c.do(ctx, http.MethodGet, "/v1/reputation/"+url.PathEscape(addr), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HasSBT reports whether addr holds a reputation token.
func (c *Client) HasSBT(ctx context.Context, addr string) (bool, error) {
	return c.flag(ctx, "/v1/reputation/has/"+url.PathEscape(addr))
}

// Multiplier returns the user's tier multiplier in percent.
func (c *Client) Multiplier(ctx context.Context, addr string) (uint64, error) {
	return c.value(ctx, "/v1/reputation/multiplier/"+url.PathEscape(addr))
}

// CanPerformAction reports whether the user's score reaches required.
func (c *Client) CanPerformAction(ctx context.Context, addr string, required uint64) (bool, error) {
	return c.flag(ctx, "/v1/reputation/can-perform/"+url.PathEscape(addr)+"?required="+strconv.FormatUint(required, 10))
}

// Thresholds returns the tier thresholds.
func (c *Client) Thresholds(ctx context.Context) (*server.ThresholdsResponse, error) {
	var resp server.ThresholdsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/reputation/thresholds", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Balance returns the base asset balance of addr.
func (c *Client) Balance(ctx context.Context, addr string) (uint64, error) {
	return c.value(ctx, "/v1/bank/balance/"+url.PathEscape(addr))
}

// Credit seeds a balance. Requires a pool admin token.
func (c *Client) Credit(ctx context.Context, addr string, value uint64) (uint64, error) {
	var resp server.ValueResponse
	req := server.CreditRequest{Address: addr, Amount: strconv.FormatUint(value, 10)}
	if err := c.do(ctx, http.MethodPost, "/v1/bank/credit", req, &resp); err != nil {
		return 0, err
	}
	return strconv.ParseUint(resp.Value, 10, 64)
}

// Events pages through the event journal.
func (c *Client) Events(ctx context.Context, after uint64, limit int) (*server.EventPage, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", strconv.FormatUint(after, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/events"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp server.EventPage
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyEvents asks the daemon to recheck the journal digest chain.
func (c *Client) VerifyEvents(ctx context.Context) (*journal.VerifyResult, error) {
	var resp journal.VerifyResult
	if err := c.do(ctx, http.MethodGet, "/v1/events/verify", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
