// Package gateway is the HTTP transport adapter for the GalaChain gateway,
// the DEX backend, and the transaction bundler. It owns the single HTTP
// client the agent uses and the payload signer for live submissions.
package gateway

import (
	"strings"

	"github.com/galaswap/agent/pkg/token"
)

// TokenClassDTO is the on-wire token class shape.
type TokenClassDTO struct {
	Collection    string `json:"collection"`
	Category      string `json:"category"`
	Type          string `json:"type"`
	AdditionalKey string `json:"additionalKey"`
}

// Key converts the DTO into a token key.
func (d TokenClassDTO) Key() token.Key {
	return token.Key{
		Collection:    d.Collection,
		Category:      d.Category,
		Type:          d.Type,
		AdditionalKey: d.AdditionalKey,
	}
}

// ClassFromKey converts a token key into the on-wire shape.
func ClassFromKey(k token.Key) TokenClassDTO {
	return TokenClassDTO{
		Collection:    k.Collection,
		Category:      k.Category,
		Type:          k.Type,
		AdditionalKey: k.AdditionalKey,
	}
}

// TickDTO is one entry of the composite pool's sparse tick map. All numeric
// fields are arbitrary-precision decimal strings.
type TickDTO struct {
	LiquidityNet      string `json:"liquidityNet"`
	LiquidityGross    string `json:"liquidityGross"`
	FeeGrowthOutside0 string `json:"feeGrowthOutside0"`
	FeeGrowthOutside1 string `json:"feeGrowthOutside1"`
}

// CompositePoolDTO is the wire response of GetCompositePool.
type CompositePoolDTO struct {
	Token0             TokenClassDTO      `json:"token0"`
	Token1             TokenClassDTO      `json:"token1"`
	Token0Decimals     int                `json:"token0Decimals"`
	Token1Decimals     int                `json:"token1Decimals"`
	Fee                uint32             `json:"fee"`
	SqrtPrice          string             `json:"sqrtPrice"`
	Liquidity          string             `json:"liquidity"`
	GrossPoolLiquidity string             `json:"grossPoolLiquidity"`
	TickSpacing        int32              `json:"tickSpacing"`
	TickData           map[string]TickDTO `json:"tickData"`
}

// PoolDataDTO is the lightweight per-pool shape used for fee-tier probing.
type PoolDataDTO struct {
	Token0    TokenClassDTO `json:"token0"`
	Token1    TokenClassDTO `json:"token1"`
	Fee       uint32        `json:"fee"`
	SqrtPrice string        `json:"sqrtPrice"`
	Liquidity string        `json:"liquidity"`
}

// QuoteDTO is the backend's exact-input quote response.
type QuoteDTO struct {
	AmountIn         string `json:"amountIn"`
	AmountOut        string `json:"amountOut"`
	CurrentSqrtPrice string `json:"currentSqrtPrice"`
	NewSqrtPrice     string `json:"newSqrtPrice"`
	Fee              uint32 `json:"fee"`
}

// UserAssetDTO is one wallet inventory entry. The backend emits two shapes:
// some entries carry a nested tokenClassKey, others flatten the class fields
// onto the asset itself. Both are accepted; ResolveKey picks the variant.
type UserAssetDTO struct {
	Symbol        string         `json:"symbol"`
	Quantity      string         `json:"quantity"`
	Decimals      int            `json:"decimals"`
	TokenClassKey *TokenClassDTO `json:"tokenClassKey,omitempty"`

	Collection    string `json:"collection,omitempty"`
	Category      string `json:"category,omitempty"`
	Type          string `json:"type,omitempty"`
	AdditionalKey string `json:"additionalKey,omitempty"`
}

// ResolveKey derives the asset's token key: the nested class key wins, then
// the flattened fields, then the symbol with the Unit|none|none template.
// Only a missing symbol makes the asset unresolvable.
func (a UserAssetDTO) ResolveKey() (token.Key, bool) {
	if a.TokenClassKey != nil && a.TokenClassKey.Collection != "" {
		return a.TokenClassKey.Key(), true
	}
	if a.Collection != "" {
		k := token.Key{
			Collection:    a.Collection,
			Category:      a.Category,
			Type:          a.Type,
			AdditionalKey: a.AdditionalKey,
		}
		if k.Category == "" {
			k.Category = "Unit"
		}
		if k.Type == "" {
			k.Type = "none"
		}
		if k.AdditionalKey == "" {
			k.AdditionalKey = "none"
		}
		return k, true
	}
	sym := strings.TrimSpace(a.Symbol)
	if sym == "" {
		return token.Key{}, false
	}
	return token.KeyFromSymbol(sym), true
}

// UserAssetsPageDTO is the paged inventory response.
type UserAssetsPageDTO struct {
	Tokens []UserAssetDTO `json:"token"`
	Count  int            `json:"count"`
}

// PendingTx is a handle to a submitted swap awaiting its terminal
// notification on the bundler stream.
type PendingTx struct {
	ID string
}
