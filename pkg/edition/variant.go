// Package edition implements a single-edition token registry: exactly one
// token (identifier 1) can ever be minted, and its metadata is split between
// an off-chain URI and fields held in the registry's own persistent state.
package edition

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// TokenID is the only token identifier the registry ever mints.
const TokenID uint64 = 1

// Field names a stored metadata field of the token.
type Field string

const (
	FieldOffChainURI     Field = "offChainURI"
	FieldOnChainMetadata Field = "onChainMetadata"
	FieldOnChainImage    Field = "onChainImage"
)

// canonicalFields fixes the order used by token URIs and the ABI.
var canonicalFields = []Field{FieldOffChainURI, FieldOnChainMetadata, FieldOnChainImage}

// Label returns the human-readable name used in error messages.
func (f Field) Label() string {
	switch f {
	case FieldOffChainURI:
		return "off-chain URI"
	case FieldOnChainMetadata:
		return "on-chain metadata"
	case FieldOnChainImage:
		return "on-chain image"
	}
	return string(f)
}

// ParseField resolves a field name. Matching is case-insensitive so that
// "offchainuri" and "offChainURI" both work on the CLI.
func ParseField(name string) (Field, error) {
	for _, f := range canonicalFields {
		if strings.EqualFold(string(f), name) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedField, name)
}

// FieldValues maps fields to their values for mint and joint updates.
type FieldValues map[Field]string

// Variant is the field set a registry is configured with. Every field of the
// variant is required at mint.
type Variant struct {
	name   string
	fields mapset.Set[Field]
}

// Built-in variants.
var (
	VariantMetadata    = mustVariant("metadata", FieldOnChainMetadata)
	VariantURIMetadata = mustVariant("uri-metadata", FieldOffChainURI, FieldOnChainMetadata)
	VariantFull        = mustVariant("full", FieldOffChainURI, FieldOnChainMetadata, FieldOnChainImage)
)

// DefaultVariant is used when no variant is configured.
var DefaultVariant = VariantFull

var builtinVariants = []Variant{VariantMetadata, VariantURIMetadata, VariantFull}

// NewVariant builds a variant from a field list. On-chain metadata is always
// part of the set.
func NewVariant(name string, fields ...Field) (Variant, error) {
	if name == "" {
		return Variant{}, fmt.Errorf("variant name is required")
	}
	set := mapset.NewThreadUnsafeSet[Field]()
	for _, f := range fields {
		pf, err := ParseField(string(f))
		if err != nil {
			return Variant{}, err
		}
		set.Add(pf)
	}
	if !set.Contains(FieldOnChainMetadata) {
		return Variant{}, fmt.Errorf("variant %q must include %s", name, FieldOnChainMetadata)
	}
	return Variant{name: name, fields: set}, nil
}

func mustVariant(name string, fields ...Field) Variant {
	v, err := NewVariant(name, fields...)
	if err != nil {
		panic(err)
	}
	return v
}

// LookupVariant returns the built-in variant with the given name. An empty
// name selects DefaultVariant.
func LookupVariant(name string) (Variant, error) {
	if name == "" {
		return DefaultVariant, nil
	}
	for _, v := range builtinVariants {
		if v.name == strings.ToLower(name) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("unknown variant %q (expected metadata, uri-metadata or full)", name)
}

// Name returns the variant name.
func (v Variant) Name() string { return v.name }

// Has reports whether f belongs to the variant.
func (v Variant) Has(f Field) bool {
	return v.fields != nil && v.fields.Contains(f)
}

// Fields returns the variant's fields in canonical order.
func (v Variant) Fields() []Field {
	out := make([]Field, 0, len(canonicalFields))
	for _, f := range canonicalFields {
		if v.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (v Variant) String() string { return v.name }
