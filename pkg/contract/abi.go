// Package contract describes the registry's public interface in Ethereum ABI
// form, so wallets and frontends written against an ERC-721 contract can talk
// about the registry in terms they already know.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tokenizart/edition/pkg/edition"
)

// Param is one input or output of an ABI entry.
type Param struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed,omitempty"`
}

// Entry is one element of a JSON ABI.
type Entry struct {
	Type            string  `json:"type"`
	Name            string  `json:"name,omitempty"`
	Inputs          []Param `json:"inputs"`
	Outputs         []Param `json:"outputs,omitempty"`
	StateMutability string  `json:"stateMutability,omitempty"`
	Anonymous       bool    `json:"anonymous,omitempty"`
}

// Method names of the registry.
const (
	MethodMint              = "mint"
	MethodUpdateMetadata    = "updateMetadata"
	MethodTokenURI          = "tokenURI"
	MethodExists            = "exists"
	MethodOwner             = "owner"
	MethodOwnerOf           = "ownerOf"
	MethodBalanceOf         = "balanceOf"
	MethodTransferFrom      = "transferFrom"
	MethodTransferOwnership = "transferOwnership"
)

// fieldMethods names the per-field setter and getter.
var fieldMethods = map[edition.Field][2]string{
	edition.FieldOffChainURI:     {"updateOffChainURI", "getOffChainURI"},
	edition.FieldOnChainMetadata: {"updateOnChainMetadata", "getOnChainMetadata"},
	edition.FieldOnChainImage:    {"updateOnChainImage", "getOnChainImage"},
}

// UpdateMethod returns the single-field setter for f.
func UpdateMethod(f edition.Field) string { return fieldMethods[f][0] }

// GetMethod returns the getter for f.
func GetMethod(f edition.Field) string { return fieldMethods[f][1] }

func fieldParams(v edition.Variant, prefix string) []Param {
	fields := v.Fields()
	params := make([]Param, len(fields))
	for i, f := range fields {
		params[i] = Param{Name: prefix + string(f), Type: "string"}
	}
	return params
}

func view(name string, inputs []Param, outType string) Entry {
	return Entry{
		Type:            "function",
		Name:            name,
		Inputs:          inputs,
		Outputs:         []Param{{Name: "", Type: outType}},
		StateMutability: "view",
	}
}

func nonpayable(name string, inputs ...Param) Entry {
	return Entry{Type: "function", Name: name, Inputs: inputs, StateMutability: "nonpayable"}
}

// Entries returns the ABI of a registry configured with variant v. Only the
// setters and getters of the variant's fields are included.
func Entries(v edition.Variant) []Entry {
	tokenID := Param{Name: "tokenId", Type: "uint256"}

	entries := []Entry{
		{
			Type: "constructor",
			Inputs: []Param{
				{Name: "name_", Type: "string"},
				{Name: "symbol_", Type: "string"},
				{Name: "initialOwner", Type: "address"},
			},
			StateMutability: "nonpayable",
		},
		nonpayable(MethodMint, append([]Param{{Name: "to", Type: "address"}}, fieldParams(v, "")...)...),
		nonpayable(MethodUpdateMetadata, fieldParams(v, "new_")...),
	}
	for _, f := range v.Fields() {
		entries = append(entries,
			nonpayable(UpdateMethod(f), Param{Name: "new_" + string(f), Type: "string"}),
			view(GetMethod(f), nil, "string"),
		)
	}
	entries = append(entries,
		view(MethodTokenURI, []Param{tokenID}, "string"),
		view(MethodExists, nil, "bool"),
		view("name", nil, "string"),
		view("symbol", nil, "string"),
		view(MethodOwner, nil, "address"),
		view(MethodOwnerOf, []Param{tokenID}, "address"),
		view(MethodBalanceOf, []Param{{Name: "owner", Type: "address"}}, "uint256"),
		nonpayable(MethodTransferFrom, Param{Name: "from", Type: "address"}, Param{Name: "to", Type: "address"}, tokenID),
		nonpayable(MethodTransferOwnership, Param{Name: "newOwner", Type: "address"}),
		Entry{
			Type: "event",
			Name: "Transfer",
			Inputs: []Param{
				{Name: "from", Type: "address", Indexed: true},
				{Name: "to", Type: "address", Indexed: true},
				{Name: "tokenId", Type: "uint256", Indexed: true},
			},
		},
		Entry{
			Type: "event",
			Name: "OwnershipTransferred",
			Inputs: []Param{
				{Name: "previousOwner", Type: "address", Indexed: true},
				{Name: "newOwner", Type: "address", Indexed: true},
			},
		},
		Entry{
			Type:   "event",
			Name:   "MetadataUpdate",
			Inputs: []Param{{Name: "_tokenId", Type: "uint256"}},
		},
		Entry{Type: "error", Name: "OwnableUnauthorizedAccount", Inputs: []Param{{Name: "account", Type: "address"}}},
		Entry{Type: "error", Name: "ERC721InvalidReceiver", Inputs: []Param{{Name: "receiver", Type: "address"}}},
		Entry{Type: "error", Name: "ERC721NonexistentToken", Inputs: []Param{tokenID}},
	)
	return entries
}

// JSON renders the ABI of variant v.
func JSON(v edition.Variant) ([]byte, error) {
	data, err := json.Marshal(Entries(v))
	if err != nil {
		return nil, fmt.Errorf("marshal abi: %w", err)
	}
	return data, nil
}

// Parse returns the go-ethereum representation of the ABI of variant v.
func Parse(v edition.Variant) (abi.ABI, error) {
	data, err := JSON(v)
	if err != nil {
		return abi.ABI{}, err
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

// Selector describes one method of the ABI.
type Selector struct {
	Signature string `json:"signature"`
	Selector  string `json:"selector"`
}

// Selectors lists the 4-byte selectors of every method, sorted by signature.
func Selectors(parsed abi.ABI) []Selector {
	out := make([]Selector, 0, len(parsed.Methods))
	for _, m := range parsed.Methods {
		out = append(out, Selector{Signature: m.Sig, Selector: hexutil.Encode(m.ID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	return out
}

// PackMint encodes a mint call for variant v.
func PackMint(v edition.Variant, to common.Address, values edition.FieldValues) ([]byte, error) {
	parsed, err := Parse(v)
	if err != nil {
		return nil, err
	}
	args := []any{to}
	for _, f := range v.Fields() {
		args = append(args, values[f])
	}
	data, err := parsed.Pack(MethodMint, args...)
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}
	return data, nil
}
