package authz

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HeaderRemoteUser carries the caller address in header mode.
const HeaderRemoteUser = "X-Remote-User"

// HeaderAuthenticator trusts the X-Remote-User header set by an
// authenticating proxy in front of the server.
type HeaderAuthenticator struct{}

// Authenticate implements Authenticator.
func (HeaderAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	user := strings.TrimSpace(r.Header.Get(HeaderRemoteUser))
	if user == "" {
		return Identity{}, ErrNoCredentials
	}
	if !common.IsHexAddress(user) {
		return Identity{}, fmt.Errorf("%s is not an address: %q", HeaderRemoteUser, user)
	}
	return Identity{Address: common.HexToAddress(user), Method: string(ModeHeader)}, nil
}
