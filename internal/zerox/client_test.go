package zerox

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSellToken = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	testBuyToken  = common.HexToAddress("0x5bA8d32579A4497c12D327289A103C3ad5b64eb1")
	testTaker     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func testRequest() Request {
	return Request{
		SellToken:  testSellToken,
		BuyToken:   testBuyToken,
		SellAmount: big.NewInt(1e18),
		Taker:      testTaker,
		Slippage:   "0.02",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient("test-key", srv.URL, 8453)
	require.NoError(t, err)
	return c
}

func TestRequestValidate(t *testing.T) {
	req := testRequest()
	assert.NoError(t, req.Validate())

	req.BuyAmount = big.NewInt(1)
	assert.Error(t, req.Validate(), "both amounts set")

	req.SellAmount = nil
	req.BuyAmount = nil
	assert.Error(t, req.Validate(), "neither amount set")
}

func TestGetPriceSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/permit2/price", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("0x-api-key"))
		assert.Equal(t, "v2", r.Header.Get("0x-version"))
		assert.Equal(t, "8453", r.URL.Query().Get("chainId"))
		assert.Equal(t, "1000000000000000000", r.URL.Query().Get("sellAmount"))
		_, _ = w.Write([]byte(`{
			"buyAmount": "42000",
			"sellAmount": "1000000000000000000",
			"gas": "210000",
			"totalNetworkFee": "31500000000000",
			"route": {"fills": [{"source": "Uniswap_V3", "proportionBps": "10000"}]},
			"issues": {"allowance": null}
		}`))
	})

	price, err := c.GetPrice(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "42000", price.BuyAmount)
	require.NotNil(t, price.Route)
	require.Len(t, price.Route.Fills, 1)
	assert.Equal(t, "Uniswap_V3", price.Route.Fills[0].Source)
	assert.False(t, NeedsAllowance(price.Issues))
}

func TestGetPriceCaching(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"buyAmount": "1"}`))
	})

	req := testRequest()
	_, err := c.GetPrice(context.Background(), req)
	require.NoError(t, err)
	_, err = c.GetPrice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load(), "second call must hit the cache")

	// Different amount means a different cache key.
	req.SellAmount = big.NewInt(2e18)
	_, err = c.GetPrice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestGetPriceCacheExpiry(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"buyAmount": "1"}`))
	})
	c.CacheTTL = 10 * time.Millisecond

	_, err := c.GetPrice(context.Background(), testRequest())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.GetPrice(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestGetPriceTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"buyAmount": "1"}`))
	})
	c.PriceTimeout = 30 * time.Millisecond

	start := time.Now()
	_, err := c.GetPrice(context.Background(), testRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "must not hang past the bound")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindTimeout, apiErr.Kind)
}

func TestGetQuoteTimeoutIndependentlyTunable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{"buyAmount": "1"}`))
	})
	c.PriceTimeout = 10 * time.Millisecond
	c.QuoteTimeout = 500 * time.Millisecond

	_, err := c.GetQuote(context.Background(), testRequest())
	assert.NoError(t, err, "quote timeout is independent of price timeout")
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   ErrorKind
		reason string
	}{
		{400, `{"reason": "INSUFFICIENT_ASSET_LIQUIDITY"}`, KindLiquidity, "INSUFFICIENT_ASSET_LIQUIDITY"},
		{400, `{"reason": "Validation Failed"}`, KindValidation, "Validation Failed"},
		{422, `{"reason": "SELL_TOKEN_NOT_SUPPORTED"}`, KindValidation, "SELL_TOKEN_NOT_SUPPORTED"},
		{500, `{"reason": "internal upstream error"}`, KindUpstream, "internal upstream error"},
		{502, ``, KindUpstream, "Bad Gateway"},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})

		_, err := c.GetQuote(context.Background(), testRequest())
		require.Error(t, err)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), tc.body)
		assert.Equal(t, tc.kind, apiErr.Kind, tc.body)
		assert.Equal(t, tc.reason, apiErr.Reason, "reason string must be preserved")
	}
}

func TestNeedsAllowance(t *testing.T) {
	assert.False(t, NeedsAllowance(nil))
	assert.False(t, NeedsAllowance(&Issues{}))
	assert.True(t, NeedsAllowance(&Issues{Allowance: &AllowanceIssue{Actual: "0"}}))
	assert.False(t, NeedsAllowance(&Issues{Allowance: &AllowanceIssue{Actual: "1000"}}))
}

func TestAttachSignature(t *testing.T) {
	quote := &Quote{
		Transaction: &Transaction{
			To:   "0x5bA8d32579A4497c12D327289A103C3ad5b64eb1",
			Data: "0xdeadbeef",
		},
	}
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i + 1)
	}

	to, data, err := AttachSignature(quote, sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x5bA8d32579A4497c12D327289A103C3ad5b64eb1"), to)

	// base(4) + length word(32) + signature(65)
	require.Len(t, data, 4+32+65)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, data[:4])

	lenWord := data[4 : 4+32]
	assert.EqualValues(t, 65, binary.BigEndian.Uint64(lenWord[24:]))
	for _, b := range lenWord[:24] {
		assert.Zero(t, b)
	}
	assert.Equal(t, sig, data[36:])
}

func TestAttachSignatureRequiresTransaction(t *testing.T) {
	_, _, err := AttachSignature(&Quote{}, make([]byte, 65))
	assert.Error(t, err)
}

func TestApproveCalldata(t *testing.T) {
	c, err := NewClient("k", "https://api.0x.org", 8453)
	require.NoError(t, err)

	spender := common.HexToAddress("0x000000000022d473030f116ddee9f6b43ac78ba3")
	data, err := c.ApproveCalldata(spender, nil)
	require.NoError(t, err)

	// approve(address,uint256) selector + two words
	require.Len(t, data, 4+32+32)
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, data[:4])
	// nil amount approves max uint256
	assert.Equal(t, MaxUint256.Bytes(), data[36:])
}

func TestQuoteMode(t *testing.T) {
	direct := &Quote{Transaction: &Transaction{To: "0x1", Data: "0x"}}
	assert.Equal(t, ModeDirect, direct.Mode())

	withPermit := &Quote{Permit2: &Permit2{EIP712: nil}}
	assert.Equal(t, ModeDirect, withPermit.Mode(), "permit2 without payload is direct")
}
