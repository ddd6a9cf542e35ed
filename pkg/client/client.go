// Package client is a Go client for the edition server API. Requests are
// authenticated either by signing them with a secp256k1 key or with a
// bearer token, and transport failures are retried with backoff.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tokenizart/edition/pkg/authz"
	"github.com/tokenizart/edition/pkg/edition"
)

// APIPrefix is where the registry API is mounted.
const APIPrefix = "/api/edition/v1"

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      edition.Field
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps registry error codes back to their sentinels so callers can
// use errors.Is(err, edition.ErrAlreadyMinted).
func (e *APIError) Unwrap() error {
	return edition.ErrorForCode(e.Code)
}

// Client talks to an edition server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	key        *ecdsa.PrivateKey
	token      string
	maxElapsed time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPrivateKey signs every request with key.
func WithPrivateKey(key *ecdsa.PrivateKey) Option {
	return func(c *Client) { c.key = key }
}

// WithBearerToken sends token in the Authorization header.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRetry bounds how long transport errors and 5xx responses are retried.
// Zero disables retries.
func WithRetry(maxElapsed time.Duration) Option {
	return func(c *Client) { c.maxElapsed = maxElapsed }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxElapsed: 30 * time.Second,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Caller returns the address requests are signed as, or the zero address.
func (c *Client) Caller() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// do sends one request, retrying transient failures. A nil body sends no
// payload; a nil out discards the response.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if c.key != nil {
			if err := authz.SignRequest(req, payload, c.key, c.now()); err != nil {
				return backoff.Permanent(err)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := decodeAPIError(resp.StatusCode, data)
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if c.maxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = c.maxElapsed
		bo = exp
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying", "method", method, "path", path, "error", err, "wait", wait)
	}
	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var body edition.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.Field = body.Field
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

// IsRetryable reports whether err is worth retrying at a higher level:
// anything but a 4xx answer from the server.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return err != nil && !errors.Is(err, context.Canceled)
}

func api(path string) string { return APIPrefix + path }

func fieldsToMap(values edition.FieldValues) map[string]string {
	m := make(map[string]string, len(values))
	for f, v := range values {
		m[string(f)] = v
	}
	return m
}

func addressParam(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

// Info returns the contract summary.
func (c *Client) Info(ctx context.Context) (edition.Info, error) {
	var info edition.Info
	err := c.do(ctx, http.MethodGet, api("/"), nil, &info)
	return info, err
}

// Deploy runs the constructor. The caller becomes the owner.
func (c *Client) Deploy(ctx context.Context, name, symbol string) (edition.Info, error) {
	var info edition.Info
	err := c.do(ctx, http.MethodPost, api("/contract"), map[string]string{"name": name, "symbol": symbol}, &info)
	return info, err
}

// Mint creates the token for recipient and returns its token URI.
func (c *Client) Mint(ctx context.Context, recipient common.Address, values edition.FieldValues) (edition.TokenURIResponse, error) {
	var out edition.TokenURIResponse
	err := c.do(ctx, http.MethodPost, api("/mint"), map[string]any{
		"recipient": addressParam(recipient),
		"fields":    fieldsToMap(values),
	}, &out)
	return out, err
}

// UpdateMetadata replaces the non-empty fields of values.
func (c *Client) UpdateMetadata(ctx context.Context, values edition.FieldValues) (edition.TokenURIResponse, error) {
	var out edition.TokenURIResponse
	err := c.do(ctx, http.MethodPatch, api("/metadata"), map[string]any{"fields": fieldsToMap(values)}, &out)
	return out, err
}

// UpdateField sets one field.
func (c *Client) UpdateField(ctx context.Context, f edition.Field, value string) error {
	return c.do(ctx, http.MethodPut, api("/fields/"+url.PathEscape(string(f))), map[string]string{"value": value}, nil)
}

// Field reads one field.
func (c *Client) Field(ctx context.Context, f edition.Field) (string, error) {
	var out edition.FieldResponse
	err := c.do(ctx, http.MethodGet, api("/fields/"+url.PathEscape(string(f))), nil, &out)
	return out.Value, err
}

// Exists reports whether the token has been minted.
func (c *Client) Exists(ctx context.Context) (bool, error) {
	var out edition.ExistsResponse
	err := c.do(ctx, http.MethodGet, api("/exists"), nil, &out)
	return out.Exists, err
}

func tokenPath(id uint64, suffix string) string {
	return api("/tokens/" + strconv.FormatUint(id, 10) + suffix)
}

// TokenURI returns the descriptor URI of token id.
func (c *Client) TokenURI(ctx context.Context, id uint64) (string, error) {
	var out edition.TokenURIResponse
	err := c.do(ctx, http.MethodGet, tokenPath(id, "/uri"), nil, &out)
	return out.TokenURI, err
}

// TokenMetadata returns the rendered JSON metadata of token id.
func (c *Client) TokenMetadata(ctx context.Context, id uint64) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, tokenPath(id, "/metadata"), nil, &out)
	return out, err
}

// OwnerOf returns the holder of token id.
func (c *Client) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	var out edition.OwnerResponse
	if err := c.do(ctx, http.MethodGet, tokenPath(id, "/owner"), nil, &out); err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(out.Owner), nil
}

// Transfer moves token id from one holder to another.
func (c *Client) Transfer(ctx context.Context, id uint64, from, to common.Address) error {
	return c.do(ctx, http.MethodPost, tokenPath(id, "/transfer"), map[string]string{
		"from": addressParam(from),
		"to":   addressParam(to),
	}, nil)
}

// BalanceOf returns how many tokens addr holds.
func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (uint64, error) {
	var out edition.BalanceResponse
	err := c.do(ctx, http.MethodGet, api("/balances/"+addr.Hex()), nil, &out)
	return out.Balance, err
}

// TransferOwnership hands the contract to newOwner.
func (c *Client) TransferOwnership(ctx context.Context, newOwner common.Address) (edition.Info, error) {
	var info edition.Info
	err := c.do(ctx, http.MethodPost, api("/ownership"), map[string]string{"newOwner": addressParam(newOwner)}, &info)
	return info, err
}

// Events returns one page of the event log.
func (c *Client) Events(ctx context.Context, pageSize int, pageToken string) (edition.EventPage, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	path := api("/events")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page edition.EventPage
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// ABI returns the contract ABI served by the config endpoint.
func (c *Client) ABI(ctx context.Context) (json.RawMessage, error) {
	var out struct {
		ABI json.RawMessage `json:"abi"`
	}
	err := c.do(ctx, http.MethodGet, "/abi", nil, &out)
	return out.ABI, err
}

// FrontendConfig is the body of GET /config.
type FrontendConfig struct {
	ContractAddress string `json:"contractAddress"`
	MetadataURI     string `json:"metadataURI"`
}

// Config returns the frontend configuration.
func (c *Client) Config(ctx context.Context) (FrontendConfig, error) {
	var out FrontendConfig
	err := c.do(ctx, http.MethodGet, "/config", nil, &out)
	return out, err
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
