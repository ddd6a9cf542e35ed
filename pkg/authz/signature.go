package authz

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Headers of a signed request.
const (
	HeaderAddress   = "X-Edition-Address"
	HeaderTimestamp = "X-Edition-Timestamp"
	HeaderSignature = "X-Edition-Signature"
)

// DefaultMaxSkew is how far a signed request's timestamp may drift from the
// server clock.
const DefaultMaxSkew = 5 * time.Minute

// DefaultMaxBodyBytes bounds the body read to verify a signature. It matches
// the largest request the registry API accepts.
const DefaultMaxBodyBytes = 16 << 20

// ErrBodyTooLarge is returned when a signed request body exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// SigningPayload is the message a client signs:
//
//	METHOD \n REQUEST-URI \n UNIX-TIMESTAMP \n hex(sha256(body))
//
// It is hashed with the EIP-191 personal-message prefix before signing, so
// wallets can produce the signature with personal_sign.
func SigningPayload(method, requestURI, timestamp string, body []byte) []byte {
	sum := sha256.Sum256(body)
	return []byte(method + "\n" + requestURI + "\n" + timestamp + "\n" + hex.EncodeToString(sum[:]))
}

// SignRequest adds the signature headers to req. body must be the exact
// bytes sent as the request body.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey, now time.Time) error {
	ts := strconv.FormatInt(now.Unix(), 10)
	hash := accounts.TextHash(SigningPayload(req.Method, req.URL.RequestURI(), ts, body))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set(HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}

// SignatureAuthenticator verifies requests signed by SignRequest and
// identifies the caller as the address that signed them.
type SignatureAuthenticator struct {
	MaxSkew time.Duration
	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
	Now          func() time.Time
}

// Authenticate implements Authenticator.
func (a SignatureAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	addrHeader := r.Header.Get(HeaderAddress)
	sigHeader := r.Header.Get(HeaderSignature)
	tsHeader := r.Header.Get(HeaderTimestamp)
	if addrHeader == "" && sigHeader == "" {
		return Identity{}, ErrNoCredentials
	}
	if !common.IsHexAddress(addrHeader) {
		return Identity{}, fmt.Errorf("%s is not an address: %q", HeaderAddress, addrHeader)
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid %s %q", HeaderTimestamp, tsHeader)
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	maxSkew := a.MaxSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if skew := now().Sub(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
		return Identity{}, fmt.Errorf("request timestamp outside allowed skew of %s", maxSkew)
	}

	sig, err := hexutil.Decode(sigHeader)
	if err != nil || len(sig) != crypto.SignatureLength {
		return Identity{}, fmt.Errorf("malformed %s", HeaderSignature)
	}
	// Wallets encode the recovery id as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	maxBody := a.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	body, err := readBody(r, maxBody)
	if err != nil {
		return Identity{}, err
	}
	hash := accounts.TextHash(SigningPayload(r.Method, r.URL.RequestURI(), tsHeader, body))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return Identity{}, fmt.Errorf("recover signer: %w", err)
	}

	signer := crypto.PubkeyToAddress(*pub)
	if signer != common.HexToAddress(addrHeader) {
		return Identity{}, fmt.Errorf("signature does not match %s", addrHeader)
	}
	return Identity{Address: signer, Method: string(ModeSignature)}, nil
}

// readBody reads at most limit bytes of the request body and puts it back
// for the next handler.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit)
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
