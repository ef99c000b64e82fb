package token

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"cosmossdk.io/math"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/agenterr"
)

// Token is a catalog entry.
type Token struct {
	Symbol      string
	Key         Key
	Decimals    int
	Description string
}

// PoolSpec is a candidate pool from the static pool table. Liquidity is the
// last observed global liquidity, used only for pre-filtering.
type PoolSpec struct {
	Token0    Key
	Token1    Key
	Fee       uint32
	Liquidity math.LegacyDec
}

// FeeTiers are the pool fee tiers the DEX supports, in basis points of 0.0001.
var FeeTiers = []uint32{500, 3000, 10000}

// ValidFee reports whether fee is one of the supported tiers.
func ValidFee(fee uint32) bool {
	for _, f := range FeeTiers {
		if f == fee {
			return true
		}
	}
	return false
}

// Registry is the immutable token and pool catalog.
type Registry struct {
	bySymbol map[string]Token
	byKey    map[Key]Token
	pools    []PoolSpec
}

// LoadRegistry reads the token and pool CSV tables. A missing or unreadable
// token file falls back to the built-in default list. A missing pool file is
// non-fatal: the registry simply carries no candidate pools.
func LoadRegistry(tokenPath, poolPath string) (*Registry, error) {
	r := &Registry{
		bySymbol: make(map[string]Token),
		byKey:    make(map[Key]Token),
	}

	tokens, err := loadTokenFile(tokenPath)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		log.WithField("path", tokenPath).Warn("Token file unavailable, using built-in defaults")
		tokens = defaultTokens()
	}
	for _, t := range tokens {
		r.bySymbol[t.Symbol] = t
		r.byKey[t.Key] = t
	}

	pools, err := loadPoolFile(poolPath, r)
	if err != nil {
		return nil, err
	}
	r.pools = pools

	log.WithFields(log.Fields{
		"tokens": len(r.byKey),
		"pools":  len(r.pools),
	}).Info("Token registry loaded")
	return r, nil
}

// NewRegistry builds a registry from in-memory tables. Used by tests and by
// callers that already hold a catalog.
func NewRegistry(tokens []Token, pools []PoolSpec) *Registry {
	r := &Registry{
		bySymbol: make(map[string]Token, len(tokens)),
		byKey:    make(map[Key]Token, len(tokens)),
		pools:    pools,
	}
	for _, t := range tokens {
		r.bySymbol[t.Symbol] = t
		r.byKey[t.Key] = t
	}
	return r
}

// TokenByKey looks up a token by its full key.
func (r *Registry) TokenByKey(k Key) (Token, bool) {
	t, ok := r.byKey[k]
	return t, ok
}

// TokenBySymbol looks up a token by display symbol.
func (r *Registry) TokenBySymbol(symbol string) (Token, bool) {
	t, ok := r.bySymbol[symbol]
	return t, ok
}

// AllPools returns the full candidate pool table in input order.
func (r *Registry) AllPools() []PoolSpec {
	out := make([]PoolSpec, len(r.pools))
	copy(out, r.pools)
	return out
}

// PoolsForToken returns the pools containing the given token, in input order.
func (r *Registry) PoolsForToken(k Key) []PoolSpec {
	var out []PoolSpec
	for _, p := range r.pools {
		if p.Token0.Equal(k) || p.Token1.Equal(k) {
			out = append(out, p)
		}
	}
	return out
}

// PoolsAboveLiquidity returns the pools whose observed liquidity exceeds the
// threshold, in input order.
func (r *Registry) PoolsAboveLiquidity(threshold math.LegacyDec) []PoolSpec {
	var out []PoolSpec
	for _, p := range r.pools {
		if p.Liquidity.GT(threshold) {
			out = append(out, p)
		}
	}
	return out
}

// IntermediariesFor returns candidate intermediate tokens for a two-hop route
// from src to dst: tokens that share a pool with both endpoints, preferred
// intermediates (gas token, major stables) first.
func (r *Registry) IntermediariesFor(src, dst Key, preferred []Key) []Key {
	connected := func(a, b Key) bool {
		for _, p := range r.pools {
			if (p.Token0.Equal(a) && p.Token1.Equal(b)) || (p.Token0.Equal(b) && p.Token1.Equal(a)) {
				return true
			}
		}
		return false
	}

	seen := make(map[Key]bool)
	var out []Key
	consider := func(mid Key) {
		if seen[mid] || mid.Equal(src) || mid.Equal(dst) {
			return
		}
		seen[mid] = true
		if connected(src, mid) && connected(mid, dst) {
			out = append(out, mid)
		}
	}

	for _, mid := range preferred {
		consider(mid)
	}
	for _, p := range r.pools {
		consider(p.Token0)
		consider(p.Token1)
	}
	return out
}

// loadTokenFile parses tokens.csv: symbol,tokenKey,decimals,description with a
// header row. Returns (nil, nil) when the file cannot be opened so the caller
// can fall back to defaults.
func loadTokenFile(path string) ([]Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var tokens []Token
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, agenterr.ErrConfig.Wrapf("token file %s: %v", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 4 {
			return nil, agenterr.ErrConfig.Wrapf("token file %s: row needs 4 fields, got %d", path, len(record))
		}
		key, err := ParseKey(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, agenterr.ErrConfig.Wrapf("token file %s: %v", path, err)
		}
		decimals, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, agenterr.ErrConfig.Wrapf("token file %s: bad decimals %q", path, record[2])
		}
		tokens = append(tokens, Token{
			Symbol:      strings.TrimSpace(record[0]),
			Key:         key,
			Decimals:    decimals,
			Description: strings.TrimSpace(record[3]),
		})
	}
	return tokens, nil
}

// loadPoolFile parses pools.csv: token0Symbol,token1Symbol,fee,liquidity with
// a header row. Symbols are expanded with the Unit|none|none template. A
// missing file yields an empty pool table.
func loadPoolFile(path string, r *Registry) ([]PoolSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		log.WithField("path", path).Warn("Pool file unavailable, registry has no candidate pools")
		return nil, nil
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var pools []PoolSpec
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, agenterr.ErrConfig.Wrapf("pool file %s: %v", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 4 {
			return nil, agenterr.ErrConfig.Wrapf("pool file %s: row needs 4 fields, got %d", path, len(record))
		}
		fee64, err := strconv.ParseUint(strings.TrimSpace(record[2]), 10, 32)
		if err != nil || !ValidFee(uint32(fee64)) {
			return nil, agenterr.ErrConfig.Wrapf("pool file %s: bad fee tier %q", path, record[2])
		}
		liquidity, err := math.LegacyNewDecFromStr(strings.TrimSpace(record[3]))
		if err != nil {
			return nil, agenterr.ErrConfig.Wrapf("pool file %s: bad liquidity %q", path, record[3])
		}
		t0 := expandSymbol(strings.TrimSpace(record[0]), r)
		t1 := expandSymbol(strings.TrimSpace(record[1]), r)
		if t0.Equal(t1) {
			return nil, agenterr.ErrConfig.Wrapf("pool file %s: identical tokens %s", path, t0)
		}
		pools = append(pools, PoolSpec{Token0: t0, Token1: t1, Fee: uint32(fee64), Liquidity: liquidity})
	}
	return pools, nil
}

func expandSymbol(symbol string, r *Registry) Key {
	if t, ok := r.bySymbol[symbol]; ok {
		return t.Key
	}
	return KeyFromSymbol(symbol)
}

func defaultTokens() []Token {
	mk := func(symbol string, decimals int, desc string) Token {
		return Token{Symbol: symbol, Key: KeyFromSymbol(symbol), Decimals: decimals, Description: desc}
	}
	return []Token{
		mk("GALA", 8, "Gala games token, also the chain gas token"),
		mk("GUSDC", 6, "Bridged USDC"),
		mk("GUSDT", 6, "Bridged USDT"),
		mk("GWETH", 18, "Bridged wrapped ether"),
		mk("GWBTC", 8, "Bridged wrapped bitcoin"),
		mk("SILK", 8, "Silk token"),
		mk("ETIME", 8, "Eternal time token"),
	}
}
