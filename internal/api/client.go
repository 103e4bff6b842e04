// Package api provides the HTTP client for the SmartTour REST API.
//
// Every request carries the stored bearer token. A 401 triggers exactly one
// token refresh followed by exactly one retry of the original request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/smarttourjo/core/internal/auth"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
)

// DefaultTimeout bounds each HTTP exchange.
const DefaultTimeout = 10 * time.Second

// NetworkErrorMessage is the message of every transport-level failure.
const NetworkErrorMessage = "Network connection error"

// TokenStore persists the session token between runs.
type TokenStore interface {
	// LoadToken returns the stored token, or nil when signed out.
	LoadToken(ctx context.Context) (*auth.Token, error)
	SaveToken(ctx context.Context, tok *auth.Token) error
	// ClearSession removes the token and the cached user.
	ClearSession(ctx context.Context) error
}

// BreakerConfig configures the circuit breaker. Zero MinRequests disables it.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// Config configures a Client.
type Config struct {
	// BaseURL includes the versioned prefix, e.g. https://host/api.
	BaseURL    string
	Timeout    time.Duration
	Breaker    BreakerConfig
	HTTPClient *http.Client
}

// StatusError is an HTTP error response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// Client is the REST API client. It is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	tokens  TokenStore
	breaker *gobreaker.CircuitBreaker

	mu    sync.Mutex
	token *auth.Token
}

// New creates a Client.
func New(cfg Config, tokens TokenStore) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   httpClient,
		tokens: tokens,
	}
	if cfg.Breaker.MinRequests > 0 {
		c.breaker = newBreaker(cfg.Breaker)
	}
	return c
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smarttour-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("Circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Status < 500
			}
			return err == nil
		},
	})
}

// SetAuthToken replaces the in-memory token without persisting it.
func (c *Client) SetAuthToken(tok *auth.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
}

// ClearAuthToken drops the in-memory token. The next request reloads it.
func (c *Client) ClearAuthToken() {
	c.SetAuthToken(nil)
}

// authToken returns the cached token, loading it from the store while none is cached.
func (c *Client) authToken(ctx context.Context) *auth.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil && c.tokens != nil {
		tok, err := c.tokens.LoadToken(ctx)
		if err != nil {
			logging.Warn("Invalid token format", map[string]interface{}{"error": err.Error()})
			return nil
		}
		c.token = tok
	}
	return c.token
}

// Request sends method to endpoint with body encoded as JSON (nil for none)
// and decodes the response into out (nil to discard).
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out interface{}) error {
	return c.do(ctx, method, endpoint, body, out, false)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}, retried bool) error {
	resp, err := c.send(ctx, method, endpoint, body, true)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && !retried {
		if c.refresh(ctx) {
			return c.do(ctx, method, endpoint, body, out, true)
		}
	}

	if resp.status >= 400 {
		return formatError(resp)
	}

	if out != nil && len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return apperrors.Wrap(apperrors.ErrRemote, "failed to decode response", err)
		}
	}
	return nil
}

// refresh exchanges the stored refresh token for a new access token.
// Any failure clears the session.
func (c *Client) refresh(ctx context.Context) bool {
	if c.tokens == nil {
		return false
	}
	tok, err := c.tokens.LoadToken(ctx)
	if err != nil || tok == nil || tok.RefreshToken == "" {
		c.handleAuthFailure(ctx)
		return false
	}

	resp, err := c.send(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": tok.RefreshToken}, false)
	if err != nil || resp.status >= 400 {
		logging.Warn("Token refresh failed", map[string]interface{}{"status": statusOf(resp)})
		c.handleAuthFailure(ctx)
		return false
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil || payload.AccessToken == "" {
		c.handleAuthFailure(ctx)
		return false
	}

	refreshed := *tok
	refreshed.AccessToken = payload.AccessToken
	if err := c.tokens.SaveToken(ctx, &refreshed); err != nil {
		logging.Error("Failed to persist refreshed token", err)
		c.handleAuthFailure(ctx)
		return false
	}
	c.SetAuthToken(&refreshed)
	return true
}

func (c *Client) handleAuthFailure(ctx context.Context) {
	c.ClearAuthToken()
	if c.tokens == nil {
		return
	}
	if err := c.tokens.ClearSession(ctx); err != nil {
		logging.Error("Failed to clear session after auth failure", err)
	}
	logging.Info("Authentication failed - user needs to login again")
}

type response struct {
	status int
	body   []byte
}

func statusOf(r *response) int {
	if r == nil {
		return 0
	}
	return r.status
}

// send performs one HTTP exchange, through the breaker when enabled.
func (c *Client) send(ctx context.Context, method, endpoint string, body interface{}, withAuth bool) (*response, error) {
	var resp *response
	exchange := func() (interface{}, error) {
		var err error
		resp, err = c.exchange(ctx, method, endpoint, body, withAuth)
		if err != nil {
			return nil, err
		}
		if resp.status >= 500 {
			return nil, &StatusError{Status: resp.status}
		}
		return nil, nil
	}

	if c.breaker == nil {
		_, err := exchange()
		if err != nil && resp == nil {
			return nil, err
		}
		return resp, nil
	}

	_, err := c.breaker.Execute(exchange)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, apperrors.Wrap(apperrors.ErrNetwork, NetworkErrorMessage, err)
	case err != nil && resp == nil:
		return nil, err
	}
	return resp, nil
}

func (c *Client) exchange(ctx context.Context, method, endpoint string, body interface{}, withAuth bool) (*response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withAuth {
		if tok := c.authToken(ctx); tok.Valid() {
			req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		}
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, NetworkErrorMessage, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, NetworkErrorMessage, err)
	}
	return &response{status: httpResp.StatusCode, body: data}, nil
}

// formatError builds the error for an HTTP error status. The message is the
// body's detail, then message, then a generic server error.
func formatError(resp *response) error {
	var payload struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	json.Unmarshal(resp.body, &payload)

	message := ""
	if s, ok := payload.Detail.(string); ok {
		message = s
	}
	if message == "" {
		message = payload.Message
	}
	if message == "" {
		message = "Server error: " + strconv.Itoa(resp.status)
	}

	se := &StatusError{Status: resp.status, Message: message}
	code := apperrors.ErrRemote
	if resp.status == http.StatusUnauthorized {
		code = apperrors.ErrAuthFailed
	}
	return apperrors.Wrap(code, message, se)
}

// AsStatusError extracts the HTTP status error from err.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
