package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultGateway is the public Pinata gateway.
const DefaultGateway = "https://gateway.pinata.cloud"

// maxFetchBytes bounds gateway downloads.
const maxFetchBytes = 32 << 20

// Gateway fetches content from an IPFS HTTP gateway.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	maxBytes   int64
}

// NewGateway creates a Gateway. A bare host such as "example.mypinata.cloud"
// is treated as https.
func NewGateway(baseURL string, client *http.Client) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &Gateway{baseURL: NormalizeGatewayURL(baseURL), httpClient: client, maxBytes: maxFetchBytes}
}

// NormalizeGatewayURL adds a scheme to bare hosts and trims trailing
// slashes. An empty value selects DefaultGateway.
func NormalizeGatewayURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return DefaultGateway
	}
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return strings.TrimRight(u, "/")
}

// URL returns the gateway URL of a CID.
func (g *Gateway) URL(c string) string {
	return g.baseURL + "/ipfs/" + c
}

// Fetch implements Fetcher.
func (g *Gateway) Fetch(ctx context.Context, c string) ([]byte, error) {
	c, err := ValidateCID(c)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL(c), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: gateway returned %d", c, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c, err)
	}
	if int64(len(data)) > g.maxBytes {
		return nil, fmt.Errorf("fetch %s: content exceeds %d bytes", c, g.maxBytes)
	}
	return data, nil
}
