package edition

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/tokenizart/edition/pkg/authz"
)

// CodeBadRequest is returned for malformed requests that never reach the
// registry.
const CodeBadRequest = "BAD_REQUEST"

// errDuplicateField rejects requests naming one field under two spellings.
var errDuplicateField = errors.New("duplicate field")

// maxBodyBytes bounds request bodies; on-chain images arrive inline.
const maxBodyBytes = 16 << 20

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   Field  `json:"field,omitempty"`
}

type deployRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type mintRequest struct {
	Recipient string            `json:"recipient"`
	Fields    map[string]string `json:"fields"`
}

type updateMetadataRequest struct {
	Fields map[string]string `json:"fields"`
}

type fieldValueRequest struct {
	Value string `json:"value"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ownershipRequest struct {
	NewOwner string `json:"newOwner"`
}

// FieldResponse carries a single stored field.
type FieldResponse struct {
	Field Field  `json:"field"`
	Value string `json:"value"`
}

// TokenURIResponse carries a token URI.
type TokenURIResponse struct {
	TokenID  uint64 `json:"tokenId"`
	TokenURI string `json:"tokenURI"`
}

// OwnerResponse carries the holder of a token.
type OwnerResponse struct {
	TokenID uint64 `json:"tokenId"`
	Owner   string `json:"owner"`
}

// BalanceResponse carries the balance of an address.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// ExistsResponse reports whether the token exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// InfoHandler handles GET /
func InfoHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := reg.Info(r.Context())
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// DeployHandler handles POST /contract. Empty name or symbol fall back to
// the configured defaults.
func DeployHandler(reg *Registry, cfg *EditionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deployRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" && cfg != nil {
			req.Name = cfg.Name
		}
		if req.Symbol == "" && cfg != nil {
			req.Symbol = cfg.Symbol
		}

		if _, err := reg.Deploy(r.Context(), authz.CallerFromContext(r.Context()), req.Name, req.Symbol); err != nil {
			writeRegistryError(w, err)
			return
		}
		info, err := reg.Info(r.Context())
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, info)
	}
}

// MintHandler handles POST /mint
func MintHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintRequest
		if !decodeBody(w, r, &req) {
			return
		}
		values, err := parseFieldValues(req.Fields)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		recipient, ok := parseOptionalAddress(w, "recipient", req.Recipient)
		if !ok {
			return
		}

		if err := reg.Mint(r.Context(), authz.CallerFromContext(r.Context()), recipient, values); err != nil {
			writeRegistryError(w, err)
			return
		}
		uri, err := reg.TokenURI(r.Context(), TokenID)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, TokenURIResponse{TokenID: TokenID, TokenURI: uri})
	}
}

// UpdateMetadataHandler handles PATCH /metadata
func UpdateMetadataHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateMetadataRequest
		if !decodeBody(w, r, &req) {
			return
		}
		values, err := parseFieldValues(req.Fields)
		if err != nil {
			writeRegistryError(w, err)
			return
		}

		if err := reg.UpdateMetadata(r.Context(), authz.CallerFromContext(r.Context()), values); err != nil {
			writeRegistryError(w, err)
			return
		}
		uri, err := reg.TokenURI(r.Context(), TokenID)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, TokenURIResponse{TokenID: TokenID, TokenURI: uri})
	}
}

// UpdateFieldHandler handles PUT /fields/{field}
func UpdateFieldHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := ParseField(chi.URLParam(r, "field"))
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		var req fieldValueRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if err := reg.UpdateField(r.Context(), authz.CallerFromContext(r.Context()), f, req.Value); err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, FieldResponse{Field: f, Value: req.Value})
	}
}

// GetFieldHandler handles GET /fields/{field}
func GetFieldHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := ParseField(chi.URLParam(r, "field"))
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		value, err := reg.Field(r.Context(), f)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, FieldResponse{Field: f, Value: value})
	}
}

// ExistsHandler handles GET /exists
func ExistsHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exists, err := reg.Exists(r.Context())
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ExistsResponse{Exists: exists})
	}
}

// TokenURIHandler handles GET /tokens/{id}/uri
func TokenURIHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tokenIDParam(w, r)
		if !ok {
			return
		}
		uri, err := reg.TokenURI(r.Context(), id)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, TokenURIResponse{TokenID: id, TokenURI: uri})
	}
}

// TokenMetadataHandler handles GET /tokens/{id}/metadata
func TokenMetadataHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tokenIDParam(w, r)
		if !ok {
			return
		}
		doc, err := reg.TokenJSON(r.Context(), id)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

// OwnerOfHandler handles GET /tokens/{id}/owner
func OwnerOfHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tokenIDParam(w, r)
		if !ok {
			return
		}
		owner, err := reg.OwnerOf(r.Context(), id)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OwnerResponse{TokenID: id, Owner: owner.Hex()})
	}
}

// TransferHandler handles POST /tokens/{id}/transfer
func TransferHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tokenIDParam(w, r)
		if !ok {
			return
		}
		var req transferRequest
		if !decodeBody(w, r, &req) {
			return
		}
		from, ok := parseOptionalAddress(w, "from", req.From)
		if !ok {
			return
		}
		to, ok := parseOptionalAddress(w, "to", req.To)
		if !ok {
			return
		}

		if err := reg.TransferFrom(r.Context(), authz.CallerFromContext(r.Context()), from, to, id); err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OwnerResponse{TokenID: id, Owner: to.Hex()})
	}
}

// BalanceHandler handles GET /balances/{address}
func BalanceHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "address")
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: fmt.Sprintf("invalid address %q", raw)})
			return
		}
		addr := common.HexToAddress(raw)
		balance, err := reg.BalanceOf(r.Context(), addr)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, BalanceResponse{Address: addr.Hex(), Balance: balance})
	}
}

// TransferOwnershipHandler handles POST /ownership
func TransferOwnershipHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ownershipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		newOwner, ok := parseOptionalAddress(w, "newOwner", req.NewOwner)
		if !ok {
			return
		}

		if err := reg.TransferOwnership(r.Context(), authz.CallerFromContext(r.Context()), newOwner); err != nil {
			writeRegistryError(w, err)
			return
		}
		info, err := reg.Info(r.Context())
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// ListEventsHandler handles GET /events
// Query params: pageSize, pageToken
func ListEventsHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		page, err := reg.Events(r.Context(), pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func parseFieldValues(raw map[string]string) (FieldValues, error) {
	values := make(FieldValues, len(raw))
	seen := make(map[Field]string, len(raw))
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		f, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[f]; ok {
			return nil, fmt.Errorf("%w: %q and %q both name %s", errDuplicateField, prev, name, f)
		}
		seen[f] = name
		values[f] = raw[name]
	}
	return values, nil
}

// parseOptionalAddress maps an empty string to the zero address so the
// registry decides how to reject it.
func parseOptionalAddress(w http.ResponseWriter, name, raw string) (common.Address, bool) {
	if raw == "" {
		return common.Address{}, true
	}
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    CodeInvalidRecipient,
			Message: fmt.Sprintf("%s: invalid address %q", name, raw),
		})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func tokenIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: fmt.Sprintf("invalid token id %q", raw)})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func writeRegistryError(w http.ResponseWriter, err error) {
	if re, ok := AsRegistryError(err); ok {
		writeError(w, HTTPStatus(re.Code), ErrorResponse{Code: re.Code, Message: err.Error(), Field: re.Field})
		return
	}
	if errors.Is(err, ErrInvalidPageToken) || errors.Is(err, errDuplicateField) {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: err.Error()})
		return
	}
	writeError(w, http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}
