package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultPinataAPI is the Pinata API base URL.
const DefaultPinataAPI = "https://api.pinata.cloud"

// PinataPinner pins content with the Pinata pinning API, authenticating
// with a JWT.
type PinataPinner struct {
	baseURL    string
	jwt        string
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *slog.Logger
}

// PinataOption configures a PinataPinner.
type PinataOption func(*PinataPinner)

// WithPinataBaseURL overrides the API base URL.
func WithPinataBaseURL(u string) PinataOption {
	return func(p *PinataPinner) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPinataHTTPClient sets the HTTP client.
func WithPinataHTTPClient(c *http.Client) PinataOption {
	return func(p *PinataPinner) { p.httpClient = c }
}

// WithPinataRetry bounds how long transient failures are retried. Zero
// disables retries.
func WithPinataRetry(maxElapsed time.Duration) PinataOption {
	return func(p *PinataPinner) { p.maxElapsed = maxElapsed }
}

// WithPinataLogger sets the logger.
func WithPinataLogger(l *slog.Logger) PinataOption {
	return func(p *PinataPinner) { p.logger = l }
}

// NewPinataPinner creates a PinataPinner.
func NewPinataPinner(jwt string, opts ...PinataOption) (*PinataPinner, error) {
	if jwt == "" {
		return nil, fmt.Errorf("pinata JWT is required (PINATA_JWT)")
	}
	p := &PinataPinner{
		baseURL:    DefaultPinataAPI,
		jwt:        jwt,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		maxElapsed: 30 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// pinResponse is the body Pinata returns for a successful pin.
type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type pinataMetadata struct {
	Name string `json:"name"`
}

// PinFile implements Pinner using pinFileToIPFS.
func (p *PinataPinner) PinFile(ctx context.Context, name string, data []byte) (string, error) {
	meta, err := json.Marshal(pinataMetadata{Name: name})
	if err != nil {
		return "", err
	}

	build := func() (*http.Request, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pinning/pinFileToIPFS", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}

	resp, err := p.pin(ctx, build)
	if err != nil {
		return "", fmt.Errorf("pin file %s: %w", name, err)
	}
	p.logger.Info("pinned file", "name", name, "cid", resp.IpfsHash, "size", resp.PinSize)
	return resp.IpfsHash, nil
}

// PinJSON implements Pinner using pinJSONToIPFS.
func (p *PinataPinner) PinJSON(ctx context.Context, name string, v any) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"pinataContent":  v,
		"pinataMetadata": pinataMetadata{Name: name},
	})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}

	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := p.pin(ctx, build)
	if err != nil {
		return "", fmt.Errorf("pin json %s: %w", name, err)
	}
	p.logger.Info("pinned json", "name", name, "cid", resp.IpfsHash)
	return resp.IpfsHash, nil
}

// pin sends the request built by build, retrying network errors, 429 and
// 5xx responses with exponential backoff.
func (p *PinataPinner) pin(ctx context.Context, build func() (*http.Request, error)) (*pinResponse, error) {
	var out pinResponse
	op := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+p.jwt)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("pinata returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode pinata response: %w", err))
		}
		if out.IpfsHash == "" {
			return backoff.Permanent(fmt.Errorf("pinata response has no IpfsHash"))
		}
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if p.maxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = p.maxElapsed
		bo = exp
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("pinata request failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return &out, nil
}
