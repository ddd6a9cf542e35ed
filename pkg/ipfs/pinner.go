package ipfs

import (
	"context"
)

// Pinner stores content on IPFS and returns its CID.
type Pinner interface {
	// PinFile pins raw bytes under a display name.
	PinFile(ctx context.Context, name string, data []byte) (string, error)
	// PinJSON pins v encoded as JSON.
	PinJSON(ctx context.Context, name string, v any) (string, error)
}

// Fetcher retrieves content by CID.
type Fetcher interface {
	Fetch(ctx context.Context, cid string) ([]byte, error)
}
