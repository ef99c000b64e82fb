// Package balance reads the wallet's on-chain holdings and derives the
// prioritized rebalancing trades: refill the gas reserve first, then
// dollar-cost-average everything else into the preferred token, then spend
// part of any gas held above the floor.
package balance

import (
	"context"

	"cosmossdk.io/math"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/agenterr"
	"github.com/galaswap/agent/pkg/gateway"
	"github.com/galaswap/agent/pkg/token"
)

// Reason classifies why an intent exists. The executor orders gas refills
// before everything else.
type Reason string

const (
	ReasonRefillGas      Reason = "RefillGas"
	ReasonDCAToPreferred Reason = "DCAToPreferred"
	ReasonSpendExcessGas Reason = "SpendExcessGas"
	ReasonArbitrage      Reason = "Arbitrage"
)

// Intent is one desired swap.
type Intent struct {
	Source token.Key      `json:"source"`
	Target token.Key      `json:"target"`
	Amount math.LegacyDec `json:"amount"`
	Reason Reason         `json:"reason"`
}

// Holding is one non-preferred, non-gas inventory entry.
type Holding struct {
	Key      token.Key      `json:"key"`
	Symbol   string         `json:"symbol"`
	Amount   math.LegacyDec `json:"amount"`
	Decimals int            `json:"decimals"`
}

// Summary partitions the fetched inventory. Preferred, gas, and each other
// token have distinct keys; their union is the full inventory.
type Summary struct {
	Preferred       math.LegacyDec `json:"preferred"`
	Gas             math.LegacyDec `json:"gas"`
	Others          []Holding      `json:"others"`
	TotalTokenCount int            `json:"totalTokenCount"`
}

// AssetFetcher is the slice of the gateway client the manager needs.
type AssetFetcher interface {
	GetUserAssets(ctx context.Context, address string, page, limit int) (*gateway.UserAssetsPageDTO, error)
}

// dustThreshold drops intents too small to be worth a transaction.
var dustThreshold = math.LegacyMustNewDecFromStr("0.000001")

// Manager derives trade intents from wallet state.
type Manager struct {
	fetcher   AssetFetcher
	address   string
	preferred token.Key
	gas       token.Key
	minGas    math.LegacyDec
	// tradePct is the per-intent fraction of a balance, e.g. 0.10 for 10%.
	tradePct math.LegacyDec
}

// NewManager builds a balance manager. tradeAmountPercent is in percent.
func NewManager(fetcher AssetFetcher, address string, preferred, gas token.Key, minGas, tradeAmountPercent math.LegacyDec) *Manager {
	return &Manager{
		fetcher:   fetcher,
		address:   address,
		preferred: preferred,
		gas:       gas,
		minGas:    minGas,
		tradePct:  tradeAmountPercent.Quo(math.LegacyNewDec(100)),
	}
}

const assetPageSize = 20

// Fetch reads the full wallet inventory and partitions it.
func (m *Manager) Fetch(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		Preferred: math.LegacyZeroDec(),
		Gas:       math.LegacyZeroDec(),
	}

	for page := 1; ; page++ {
		resp, err := m.fetcher.GetUserAssets(ctx, m.address, page, assetPageSize)
		if err != nil {
			return nil, err
		}
		for _, asset := range resp.Tokens {
			key, ok := asset.ResolveKey()
			if !ok {
				log.WithField("quantity", asset.Quantity).Warn("Skipping asset with no symbol")
				continue
			}
			amount, err := math.LegacyNewDecFromStr(asset.Quantity)
			if err != nil {
				return nil, agenterr.ErrTransport.Wrapf("asset %s: bad quantity %q", key.Symbol(), asset.Quantity)
			}
			if amount.IsNegative() {
				return nil, agenterr.ErrTransport.Wrapf("asset %s: negative quantity %s", key.Symbol(), amount)
			}

			summary.TotalTokenCount++
			switch {
			case key.Equal(m.preferred):
				summary.Preferred = summary.Preferred.Add(amount)
				if m.preferred.Equal(m.gas) {
					summary.Gas = summary.Gas.Add(amount)
				}
			case key.Equal(m.gas):
				summary.Gas = summary.Gas.Add(amount)
			default:
				summary.Others = append(summary.Others, Holding{
					Key:      key,
					Symbol:   key.Symbol(),
					Amount:   amount,
					Decimals: asset.Decimals,
				})
			}
		}
		if len(resp.Tokens) < assetPageSize {
			break
		}
	}
	return summary, nil
}

// DeriveIntents builds the prioritized intent list from a summary:
//
//  1. refill gas when below the floor, one intent per other token
//  2. DCA each other token into the preferred token
//  3. spend half of a percentage of the gas held above the floor, when
//     preferred and gas differ
//
// Amounts below the dust threshold are dropped.
func (m *Manager) DeriveIntents(summary *Summary) []Intent {
	var intents []Intent

	if summary.Gas.LT(m.minGas) {
		for _, h := range summary.Others {
			amount := h.Amount.Mul(m.tradePct)
			if amount.LT(dustThreshold) {
				continue
			}
			intents = append(intents, Intent{
				Source: h.Key,
				Target: m.gas,
				Amount: amount,
				Reason: ReasonRefillGas,
			})
		}
	}

	for _, h := range summary.Others {
		amount := h.Amount.Mul(m.tradePct)
		if amount.LT(dustThreshold) {
			continue
		}
		intents = append(intents, Intent{
			Source: h.Key,
			Target: m.preferred,
			Amount: amount,
			Reason: ReasonDCAToPreferred,
		})
	}

	if !m.preferred.Equal(m.gas) && summary.Gas.GT(m.minGas) {
		amount := summary.Gas.Sub(m.minGas).Mul(m.tradePct).QuoInt64(2)
		if amount.GTE(dustThreshold) {
			intents = append(intents, Intent{
				Source: m.gas,
				Target: m.preferred,
				Amount: amount,
				Reason: ReasonSpendExcessGas,
			})
		}
	}

	if len(intents) == 0 {
		log.Debug("No trades derived from current balances")
	}
	return intents
}
