package zerox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/xiliaf09/tgbotv4/internal/metrics"
	"github.com/xiliaf09/tgbotv4/internal/telemetry"
)

const (
	apiVersion = "v2"

	defaultPriceTimeout = 1500 * time.Millisecond
	defaultQuoteTimeout = 1200 * time.Millisecond
	defaultCacheTTL     = 5 * time.Second
)

// MaxUint256 is the habitual unlimited-approval amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const erc20ApproveABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "_spender", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// Client talks to the 0x swap API. Price responses are cached for a few
// seconds keyed by request parameters; firm quotes are never cached.
type Client struct {
	apiKey  string
	baseURL string
	chainID int64

	httpClient   *http.Client
	PriceTimeout time.Duration
	QuoteTimeout time.Duration
	CacheTTL     time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	approveABI abi.ABI
	now        func() time.Time
}

type cacheEntry struct {
	price *Price
	at    time.Time
}

func NewClient(apiKey, baseURL string, chainID int64) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is empty")
	}
	approveABI, err := abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("parse approve ABI: %w", err)
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		chainID:      chainID,
		httpClient:   &http.Client{},
		PriceTimeout: defaultPriceTimeout,
		QuoteTimeout: defaultQuoteTimeout,
		CacheTTL:     defaultCacheTTL,
		cache:        make(map[string]cacheEntry),
		approveABI:   approveABI,
		now:          time.Now,
	}, nil
}

// GetPrice fetches an indicative price. Cached responses are served while
// fresh so one orchestration run does not hammer the upstream.
func (c *Client) GetPrice(ctx context.Context, req Request) (*Price, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	c.mu.Lock()
	if e, ok := c.cache[key]; ok && c.now().Sub(e.at) < c.CacheTTL {
		c.mu.Unlock()
		metrics.QuoteCacheHits.Inc()
		return e.price, nil
	}
	c.mu.Unlock()
	metrics.QuoteCacheMisses.Inc()

	var price Price
	if err := c.get(ctx, "/swap/permit2/price", req, c.PriceTimeout, &price); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{price: &price, at: c.now()}
	c.mu.Unlock()
	return &price, nil
}

// GetQuote fetches a firm quote, including the transaction payload or the
// permit2 payload to sign.
func (c *Client) GetQuote(ctx context.Context, req Request) (*Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var quote Quote
	if err := c.get(ctx, "/swap/permit2/quote", req, c.QuoteTimeout, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// NeedsAllowance reports whether an approval step is required: true iff the
// upstream-reported current allowance is exactly zero.
func NeedsAllowance(issues *Issues) bool {
	return issues != nil && issues.Allowance != nil && issues.Allowance.Actual == "0"
}

// AttachSignature assembles the final swap transaction from a
// signature-required quote: base call data, then the signature length as a
// 32-byte big-endian value, then the raw signature bytes.
func AttachSignature(q *Quote, sig []byte) (to common.Address, data []byte, err error) {
	if q.Transaction == nil {
		return common.Address{}, nil, fmt.Errorf("quote carries no transaction")
	}
	base, err := hexutil.Decode(q.Transaction.Data)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("decode quote call data: %w", err)
	}

	lenWord := make([]byte, 32)
	big.NewInt(int64(len(sig))).FillBytes(lenWord)

	data = make([]byte, 0, len(base)+32+len(sig))
	data = append(data, base...)
	data = append(data, lenWord...)
	data = append(data, sig...)

	return common.HexToAddress(q.Transaction.To), data, nil
}

// ApproveCalldata builds ERC20 approve call data for the allowance
// transaction. A nil amount approves max uint256.
func (c *Client) ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil {
		amount = MaxUint256
	}
	return c.approveABI.Pack("approve", spender, amount)
}

func (c *Client) get(ctx context.Context, path string, req Request, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("chainId", strconv.FormatInt(c.chainID, 10))
	q.Set("sellToken", strings.ToLower(req.SellToken.Hex()))
	q.Set("buyToken", strings.ToLower(req.BuyToken.Hex()))
	q.Set("taker", req.Taker.Hex())
	if req.Slippage != "" {
		q.Set("slippagePercentage", req.Slippage)
	}
	if req.SellAmount != nil {
		q.Set("sellAmount", req.SellAmount.String())
	}
	if req.BuyAmount != nil {
		q.Set("buyAmount", req.BuyAmount.String())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("0x-api-key", c.apiKey)
	httpReq.Header.Set("0x-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.QuoteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.APIErrors.WithLabelValues(KindTimeout.String()).Inc()
			return &APIError{Kind: KindTimeout, Reason: fmt.Sprintf("request exceeded %s", timeout)}
		}
		metrics.APIErrors.WithLabelValues(KindUpstream.String()).Inc()
		return &APIError{Kind: KindUpstream, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, json.NewDecoder(resp.Body))
		metrics.APIErrors.WithLabelValues(apiErr.Kind.String()).Inc()
		telemetry.Warnf("[zerox] %s failed: status=%d reason=%q", path, resp.StatusCode, apiErr.Reason)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode 0x response: %w", err)
	}
	return nil
}

type errorBody struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Name    string `json:"name"`
}

func decodeError(status int, dec *json.Decoder) *APIError {
	var body errorBody
	_ = dec.Decode(&body)

	reason := body.Reason
	if reason == "" {
		reason = body.Message
	}
	if reason == "" {
		reason = http.StatusText(status)
	}

	kind := KindUpstream
	upper := strings.ToUpper(reason + " " + body.Code + " " + body.Name)
	switch {
	case strings.Contains(upper, "LIQUIDITY"):
		kind = KindLiquidity
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity ||
		strings.Contains(upper, "VALIDATION") || strings.Contains(upper, "INVALID"):
		kind = KindValidation
	}
	return &APIError{Kind: kind, StatusCode: status, Reason: reason}
}

func cacheKey(req Request) string {
	field, amount := "sell", req.SellAmount
	if amount == nil {
		field, amount = "buy", req.BuyAmount
	}
	return fmt.Sprintf("price_%s_%s_%s_%s_%s",
		strings.ToLower(req.SellToken.Hex()),
		strings.ToLower(req.BuyToken.Hex()),
		field, amount.String(), req.Slippage)
}
