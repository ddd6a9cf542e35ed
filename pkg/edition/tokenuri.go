package edition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TokenURIPrefix starts every token URI the registry produces.
const TokenURIPrefix = "data:application/vnd.edition.descriptor;v=1,"

// EncodeTokenURI renders the token descriptor for the given fields in order.
// Each field is written as <name>=<byteLength>:<value>; so values are
// embedded verbatim and the descriptor parses back unambiguously whatever
// bytes the values contain.
func EncodeTokenURI(fields []Field, values FieldValues) string {
	var b strings.Builder
	b.WriteString(TokenURIPrefix)
	for _, f := range fields {
		v := values[f]
		b.WriteString(string(f))
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte(';')
	}
	return b.String()
}

// ParseTokenURI decodes a descriptor produced by EncodeTokenURI.
func ParseTokenURI(uri string) (FieldValues, error) {
	rest, ok := strings.CutPrefix(uri, TokenURIPrefix)
	if !ok {
		return nil, fmt.Errorf("token uri: missing %q prefix", TokenURIPrefix)
	}
	values := FieldValues{}
	for rest != "" {
		name, after, ok := strings.Cut(rest, "=")
		if !ok {
			return nil, fmt.Errorf("token uri: malformed entry %q", truncate(rest, 32))
		}
		lenStr, after, ok := strings.Cut(after, ":")
		if !ok {
			return nil, fmt.Errorf("token uri: missing length for %s", name)
		}
		n, err := strconv.Atoi(lenStr)
		if err != nil || n < 0 || n+1 > len(after) {
			return nil, fmt.Errorf("token uri: bad length %q for %s", lenStr, name)
		}
		if after[n] != ';' {
			return nil, fmt.Errorf("token uri: unterminated value for %s", name)
		}
		f, err := ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("token uri: %w", err)
		}
		values[f] = after[:n]
		rest = after[n+1:]
	}
	return values, nil
}

// RenderTokenJSON builds an ERC-721 style metadata document from stored
// values. When the on-chain metadata is itself a JSON object its keys are
// carried over; otherwise it becomes the description.
func RenderTokenJSON(collection string, values FieldValues) map[string]any {
	doc := map[string]any{}
	meta := values[FieldOnChainMetadata]
	var obj map[string]any
	if err := json.Unmarshal([]byte(meta), &obj); err == nil && obj != nil {
		for k, v := range obj {
			doc[k] = v
		}
	} else if meta != "" {
		doc["description"] = meta
	}
	if _, ok := doc["name"]; !ok && collection != "" {
		doc["name"] = collection
	}
	if img := values[FieldOnChainImage]; img != "" {
		doc["image"] = img
	}
	if uri := values[FieldOffChainURI]; uri != "" {
		doc["external_url"] = uri
	}
	return doc
}

// truncate shortens s to max bytes, appending "..." if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
