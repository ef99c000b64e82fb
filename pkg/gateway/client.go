package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cosmossdk.io/math"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/agenterr"
	"github.com/galaswap/agent/pkg/config"
	"github.com/galaswap/agent/pkg/token"
)

// Client talks to the gateway contract endpoints, the DEX backend, and the
// bundler over JSON HTTP. One Client instance is shared by the whole agent.
type Client struct {
	http *http.Client

	gatewayURL        string
	dexContractPath   string
	tokenContractPath string
	backendURL        string
	bundlerURL        string
	bundlingPath      string

	walletAddress string
	signer        Signer
}

// NewClient builds a client from configuration. signer may be nil in dry-run
// mode; submission then fails rather than signing with a zero key.
func NewClient(cfg *config.Config, signer Signer) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		gatewayURL:        strings.TrimSuffix(cfg.GatewayURL, "/"),
		dexContractPath:   cfg.DexContractBasePath,
		tokenContractPath: cfg.TokenContractBasePath,
		backendURL:        strings.TrimSuffix(cfg.DexBackendURL, "/"),
		bundlerURL:        strings.TrimSuffix(cfg.BundlerURL, "/"),
		bundlingPath:      cfg.BundlingBasePath,
		walletAddress:     cfg.WalletAddress,
		signer:            signer,
	}
}

// WalletAddress returns the configured wallet address, passed through in
// either eth|<hex> or client|<id> form.
func (c *Client) WalletAddress() string {
	return c.walletAddress
}

// envelope is the gateway's standard response wrapper.
type envelope struct {
	Data    json.RawMessage `json:"Data"`
	Message string          `json:"Message"`
	Status  int             `json:"Status"`
}

// GetCompositePool fetches the full composite pool state for a pair and fee
// tier: current sqrt price, global liquidity, and the sparse tick map.
func (c *Client) GetCompositePool(ctx context.Context, t0, t1 token.Key, fee uint32) (*CompositePoolDTO, error) {
	body := map[string]any{
		"token0": ClassFromKey(t0),
		"token1": ClassFromKey(t1),
		"fee":    fee,
	}
	var dto CompositePoolDTO
	if err := c.postContract(ctx, c.dexContractPath, "GetCompositePool", body, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// GetPoolData fetches the lightweight pool record used for fee-tier probing.
// A pool that does not exist returns (nil, nil): absence is a routing signal,
// not a transport failure.
func (c *Client) GetPoolData(ctx context.Context, t0, t1 token.Key, fee uint32) (*PoolDataDTO, error) {
	body := map[string]any{
		"token0": ClassFromKey(t0),
		"token1": ClassFromKey(t1),
		"fee":    fee,
	}
	var dto PoolDataDTO
	err := c.postContract(ctx, c.dexContractPath, "GetPoolData", body, &dto)
	if err != nil {
		if agenterr.ErrNoRoute.Is(err) {
			return nil, nil
		}
		return nil, err
	}
	return &dto, nil
}

// QuoteExactInput asks the DEX backend for an exact-input swap quote.
func (c *Client) QuoteExactInput(ctx context.Context, tIn, tOut token.Key, fee uint32, amountIn math.LegacyDec) (*QuoteDTO, error) {
	q := url.Values{}
	q.Set("tokenIn", tIn.String())
	q.Set("tokenOut", tOut.String())
	q.Set("amountIn", amountIn.String())
	q.Set("fee", fmt.Sprintf("%d", fee))

	var dto QuoteDTO
	if err := c.getJSON(ctx, c.backendURL+"/v1/trade/quote?"+q.Encode(), &dto); err != nil {
		return nil, err
	}
	if dto.AmountOut == "" {
		return nil, agenterr.ErrQuote.Wrapf("empty quote for %s -> %s", tIn.Symbol(), tOut.Symbol())
	}
	return &dto, nil
}

// GetUserAssets fetches one page of the wallet's token inventory.
func (c *Client) GetUserAssets(ctx context.Context, address string, page, limit int) (*UserAssetsPageDTO, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("limit", fmt.Sprintf("%d", limit))

	var dto UserAssetsPageDTO
	if err := c.getJSON(ctx, c.backendURL+"/user/assets?"+q.Encode(), &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// SwapRequest carries the parameters of one exact-input swap submission.
type SwapRequest struct {
	TokenIn          token.Key
	TokenOut         token.Key
	Fee              uint32
	AmountIn         math.LegacyDec
	AmountOutMinimum math.LegacyDec
}

// SubmitSwap signs and submits a swap to the bundler, returning the pending
// transaction handle. The caller must have registered a notification waiter
// before calling Await on the returned id.
func (c *Client) SubmitSwap(ctx context.Context, req SwapRequest) (*PendingTx, error) {
	if c.signer == nil {
		return nil, agenterr.ErrSubmission.Wrap("no signer configured")
	}

	payload := map[string]any{
		"token0":           ClassFromKey(req.TokenIn),
		"token1":           ClassFromKey(req.TokenOut),
		"fee":              req.Fee,
		"amount":           req.AmountIn.String(),
		"amountOutMinimum": req.AmountOutMinimum.String(),
		"recipient":        c.walletAddress,
	}
	signature, err := c.signer.SignObject(payload)
	if err != nil {
		return nil, agenterr.ErrSubmission.Wrapf("signing failed: %v", err)
	}

	body := map[string]any{
		"payload":   payload,
		"signature": signature,
		"user":      c.walletAddress,
		"method":    "Swap",
	}
	var resp struct {
		TxID string `json:"data"`
	}
	if err := c.postJSON(ctx, c.bundlerURL+c.bundlingPath, body, &resp); err != nil {
		if agenterr.ErrTransport.Is(err) {
			return nil, agenterr.ErrSubmission.Wrapf("%v", err)
		}
		return nil, err
	}
	if resp.TxID == "" {
		return nil, agenterr.ErrSubmission.Wrap("bundler returned no transaction id")
	}

	log.WithFields(log.Fields{
		"txId": resp.TxID,
		"in":   req.TokenIn.Symbol(),
		"out":  req.TokenOut.Symbol(),
		"fee":  req.Fee,
	}).Info("Swap submitted")
	return &PendingTx{ID: resp.TxID}, nil
}

// postContract posts to a gateway contract method and unwraps the Data
// envelope. A 404 maps to ErrNoRoute so callers can treat absent pools as a
// routing outcome.
func (c *Client) postContract(ctx context.Context, basePath, method string, body, out any) error {
	endpoint := c.gatewayURL + basePath + "/" + method
	raw, status, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return agenterr.ErrNoRoute.Wrapf("%s: not found", method)
	}
	if status < 200 || status >= 300 {
		return agenterr.ErrTransport.Wrapf("%s: HTTP %d", method, status)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return agenterr.ErrTransport.Wrapf("%s: bad envelope: %v", method, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return agenterr.ErrTransport.Wrapf("%s: response missing Data", method)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return agenterr.ErrTransport.Wrapf("%s: bad Data payload: %v", method, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	raw, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return agenterr.ErrTransport.Wrapf("GET %s: HTTP %d", endpoint, status)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	// Backend endpoints answer both enveloped and bare.
	if err := json.Unmarshal(raw, out); err != nil {
		return agenterr.ErrTransport.Wrapf("GET %s: bad payload: %v", endpoint, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	raw, status, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return agenterr.ErrTransport.Wrapf("POST %s: HTTP %d: %s", endpoint, status, truncate(raw, 200))
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return agenterr.ErrTransport.Wrapf("POST %s: bad payload: %v", endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, agenterr.ErrTransport.Wrapf("encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, agenterr.ErrTransport.Wrapf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, agenterr.ErrCancelled.Wrapf("%v", ctx.Err())
		}
		return nil, 0, agenterr.ErrTransport.Wrapf("%s %s: %v", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, 0, agenterr.ErrTransport.Wrapf("read response: %v", err)
	}
	return raw, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
