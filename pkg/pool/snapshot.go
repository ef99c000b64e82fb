// Package pool caches composite pool snapshots fetched from the gateway.
// Snapshots are the input to the offline quote engine; they carry the full
// concentrated-liquidity state needed to reproduce swap outcomes locally.
package pool

import (
	"sort"
	"strconv"
	"time"

	"cosmossdk.io/math"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/agenterr"
	"github.com/galaswap/agent/pkg/gateway"
	"github.com/galaswap/agent/pkg/token"
)

// TickInfo is one initialized tick of the pool's sparse tick map.
type TickInfo struct {
	Index             int32
	LiquidityNet      math.LegacyDec
	LiquidityGross    math.LegacyDec
	FeeGrowthOutside0 math.LegacyDec
	FeeGrowthOutside1 math.LegacyDec
}

// Snapshot is the composite pool state at fetch time. On-chain state is
// authoritative; a snapshot is a hint for offline simulation.
type Snapshot struct {
	Token0         token.Key
	Token1         token.Key
	Decimals0      int
	Decimals1      int
	Fee            uint32
	SqrtPrice      math.LegacyDec
	Liquidity      math.LegacyDec
	GrossLiquidity math.LegacyDec
	TickSpacing    int32
	// Ticks is sorted ascending by index.
	Ticks     []TickInfo
	FetchedAt time.Time
}

// Contains reports whether the pool connects the given token.
func (s *Snapshot) Contains(k token.Key) bool {
	return s.Token0.Equal(k) || s.Token1.Equal(k)
}

// Other returns the pool's opposite endpoint for k.
func (s *Snapshot) Other(k token.Key) (token.Key, bool) {
	switch {
	case s.Token0.Equal(k):
		return s.Token1, true
	case s.Token1.Equal(k):
		return s.Token0, true
	default:
		return token.Key{}, false
	}
}

// FeeRate returns the fee tier as a fraction (3000 -> 0.003).
func (s *Snapshot) FeeRate() math.LegacyDec {
	return math.LegacyNewDec(int64(s.Fee)).Quo(math.LegacyNewDec(1_000_000))
}

// SnapshotFromDTO converts the wire composite pool into the internal
// representation, parsing all numeric strings into decimals. Tick keys that
// are not multiples of the tick spacing are dropped with a warning.
func SnapshotFromDTO(dto *gateway.CompositePoolDTO) (*Snapshot, error) {
	t0 := dto.Token0.Key()
	t1 := dto.Token1.Key()
	if t0.Equal(t1) {
		return nil, agenterr.ErrTransport.Wrapf("composite pool has identical tokens %s", t0)
	}
	if !token.ValidFee(dto.Fee) {
		return nil, agenterr.ErrTransport.Wrapf("composite pool has unknown fee tier %d", dto.Fee)
	}

	sqrtPrice, err := math.LegacyNewDecFromStr(dto.SqrtPrice)
	if err != nil {
		return nil, agenterr.ErrTransport.Wrapf("bad sqrtPrice %q: %v", dto.SqrtPrice, err)
	}
	liquidity, err := math.LegacyNewDecFromStr(dto.Liquidity)
	if err != nil {
		return nil, agenterr.ErrTransport.Wrapf("bad liquidity %q: %v", dto.Liquidity, err)
	}
	gross := liquidity
	if dto.GrossPoolLiquidity != "" {
		gross, err = math.LegacyNewDecFromStr(dto.GrossPoolLiquidity)
		if err != nil {
			return nil, agenterr.ErrTransport.Wrapf("bad grossPoolLiquidity %q: %v", dto.GrossPoolLiquidity, err)
		}
	}

	snap := &Snapshot{
		Token0:         t0,
		Token1:         t1,
		Decimals0:      dto.Token0Decimals,
		Decimals1:      dto.Token1Decimals,
		Fee:            dto.Fee,
		SqrtPrice:      sqrtPrice,
		Liquidity:      liquidity,
		GrossLiquidity: gross,
		TickSpacing:    dto.TickSpacing,
		FetchedAt:      time.Now(),
	}

	for key, td := range dto.TickData {
		idx64, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			log.WithField("tick", key).Warn("Dropping unparseable tick key")
			continue
		}
		idx := int32(idx64)
		if snap.TickSpacing > 0 && idx%snap.TickSpacing != 0 {
			log.WithFields(log.Fields{"tick": idx, "spacing": snap.TickSpacing}).
				Warn("Dropping tick not aligned to spacing")
			continue
		}
		net, err := math.LegacyNewDecFromStr(td.LiquidityNet)
		if err != nil {
			return nil, agenterr.ErrTransport.Wrapf("tick %d: bad liquidityNet %q", idx, td.LiquidityNet)
		}
		grossL, err := math.LegacyNewDecFromStr(td.LiquidityGross)
		if err != nil {
			return nil, agenterr.ErrTransport.Wrapf("tick %d: bad liquidityGross %q", idx, td.LiquidityGross)
		}
		info := TickInfo{Index: idx, LiquidityNet: net, LiquidityGross: grossL}
		info.FeeGrowthOutside0 = parseDecOrZero(td.FeeGrowthOutside0)
		info.FeeGrowthOutside1 = parseDecOrZero(td.FeeGrowthOutside1)
		snap.Ticks = append(snap.Ticks, info)
	}
	sort.Slice(snap.Ticks, func(i, j int) bool { return snap.Ticks[i].Index < snap.Ticks[j].Index })

	return snap, nil
}

func parseDecOrZero(s string) math.LegacyDec {
	if s == "" {
		return math.LegacyZeroDec()
	}
	d, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		return math.LegacyZeroDec()
	}
	return d
}
