// Package ipfs publishes token images and metadata to IPFS and reads them
// back. Content is pinned either through the Pinata HTTP API or into a local
// content-addressed directory, and fetched through an HTTP gateway.
package ipfs

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of data.
func ComputeCID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// ValidateCID checks that s is a well-formed CID (v0 or v1). An ipfs://
// prefix is accepted and stripped.
func ValidateCID(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "ipfs://")
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid cid %q: %w", s, err)
	}
	return c.String(), nil
}

// URI returns the ipfs:// URI of a CID.
func URI(c string) string {
	return "ipfs://" + c
}
