package edition

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the registry and its HTTP API.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeAlreadyMinted    = "ALREADY_MINTED"
	CodeAlreadyDeployed  = "ALREADY_DEPLOYED"
	CodeEmptyField       = "EMPTY_FIELD"
	CodeUnsupportedField = "UNSUPPORTED_FIELD"
	CodeInvalidRecipient = "INVALID_RECIPIENT"
	CodeTokenNotFound    = "TOKEN_NOT_FOUND"
)

// RegistryError is a rejection by the registry. Rejections never mutate
// state. Two RegistryErrors match under errors.Is when their codes match.
type RegistryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   Field  `json:"field,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Message
}

// Is matches any RegistryError carrying the same code.
func (e *RegistryError) Is(target error) bool {
	t, ok := target.(*RegistryError)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthorized     = &RegistryError{Code: CodeUnauthorized, Message: "caller is not the owner"}
	ErrAlreadyMinted    = &RegistryError{Code: CodeAlreadyMinted, Message: "token already minted"}
	ErrAlreadyDeployed  = &RegistryError{Code: CodeAlreadyDeployed, Message: "registry already deployed"}
	ErrEmptyField       = &RegistryError{Code: CodeEmptyField, Message: "field cannot be empty"}
	ErrUnsupportedField = &RegistryError{Code: CodeUnsupportedField, Message: "field not supported by this registry"}
	ErrInvalidRecipient = &RegistryError{Code: CodeInvalidRecipient, Message: "invalid recipient address"}
	ErrTokenNotFound    = &RegistryError{Code: CodeTokenNotFound, Message: "token does not exist"}
)

// EmptyFieldError reports the required field that was empty at mint.
func EmptyFieldError(f Field) *RegistryError {
	return &RegistryError{
		Code:    CodeEmptyField,
		Message: fmt.Sprintf("%s cannot be empty", f.Label()),
		Field:   f,
	}
}

func unsupportedFieldError(f Field) *RegistryError {
	return &RegistryError{
		Code:    CodeUnsupportedField,
		Message: fmt.Sprintf("field %s not supported by this registry", f),
		Field:   f,
	}
}

// AsRegistryError unwraps err to its RegistryError, if any.
func AsRegistryError(err error) (*RegistryError, bool) {
	var re *RegistryError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ErrorForCode returns the sentinel for a code, or nil when the code is
// unknown. Clients use it to map API responses back onto sentinels.
func ErrorForCode(code string) error {
	for _, e := range []*RegistryError{
		ErrUnauthorized, ErrAlreadyMinted, ErrAlreadyDeployed, ErrEmptyField,
		ErrUnsupportedField, ErrInvalidRecipient, ErrTokenNotFound,
	} {
		if e.Code == code {
			return e
		}
	}
	return nil
}

// HTTPStatus maps a registry error code to its HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeAlreadyMinted, CodeAlreadyDeployed:
		return http.StatusConflict
	case CodeEmptyField, CodeUnsupportedField, CodeInvalidRecipient:
		return http.StatusBadRequest
	case CodeTokenNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
