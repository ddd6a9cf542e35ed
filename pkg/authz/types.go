// Package authz establishes the caller address of HTTP requests to the
// registry. The registry itself decides what a caller may do; this package
// only answers "who is calling". Three modes are supported: a trusted
// X-Remote-User header, JWT bearer tokens and requests signed with an
// Ethereum key.
package authz

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoCredentials is returned by an Authenticator when the request carries
// no credentials for it. Such requests proceed anonymously.
var ErrNoCredentials = errors.New("no credentials")

// Identity is the authenticated caller of a request.
type Identity struct {
	Address common.Address
	// Method names the authenticator that produced the identity.
	Method string
}

// Authenticator derives an Identity from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (Identity, error)

// Authenticate calls f(r).
func (f AuthenticatorFunc) Authenticate(r *http.Request) (Identity, error) {
	return f(r)
}
