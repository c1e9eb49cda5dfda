package oracle

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind discriminates the two asset identity variants.
type AssetKind uint8

const (
	// AssetKindAddress identifies an asset by its on-chain contract address.
	AssetKindAddress AssetKind = iota
	// AssetKindSymbol identifies an asset by a symbolic ticker.
	AssetKindSymbol
)

// Asset is the tagged identity of a priced asset. Exactly one of Address or
// Symbol is meaningful depending on Kind. Assets are immutable once registered
// and are only ever used as lookup keys.
type Asset struct {
	Kind    AssetKind
	Address common.Address
	Symbol  string
}

// AddressAsset builds the on-chain address variant.
func AddressAsset(addr common.Address) Asset {
	return Asset{Kind: AssetKindAddress, Address: addr}
}

// SymbolAsset builds the symbolic ticker variant.
func SymbolAsset(symbol string) Asset {
	return Asset{Kind: AssetKindSymbol, Symbol: strings.TrimSpace(symbol)}
}

// Equal reports whether two assets denote the same identity. Comparison always
// operates on the discriminated pair, never on a common supertype.
func (a Asset) Equal(other Asset) bool {
	if a.Kind != other.Kind {
		return false
	}
	if a.Kind == AssetKindAddress {
		return a.Address == other.Address
	}
	return a.Symbol == other.Symbol
}

// String renders the asset for logs and API responses.
func (a Asset) String() string {
	if a.Kind == AssetKindAddress {
		return a.Address.Hex()
	}
	return a.Symbol
}

// indexKey derives the instance-storage key holding this asset's slot. The kind
// byte keeps address and symbol keyspaces disjoint.
func (a Asset) indexKey() []byte {
	key := append(append([]byte{}, assetIndexPrefix...), byte(a.Kind))
	if a.Kind == AssetKindAddress {
		return append(key, a.Address.Bytes()...)
	}
	return append(key, []byte(a.Symbol)...)
}

type storedAsset struct {
	Kind    uint8
	Address common.Address
	Symbol  string
}

func (a Asset) toStored() storedAsset {
	return storedAsset{Kind: uint8(a.Kind), Address: a.Address, Symbol: a.Symbol}
}

func (s storedAsset) toAsset() Asset {
	return Asset{Kind: AssetKind(s.Kind), Address: s.Address, Symbol: s.Symbol}
}
