package zerox

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Request describes a price or quote lookup. Exactly one of SellAmount and
// BuyAmount must be set; execution always resolves to a sell amount before
// submission.
type Request struct {
	SellToken common.Address
	BuyToken  common.Address

	SellAmount *big.Int
	BuyAmount  *big.Int

	Taker    common.Address
	Slippage string // fraction in [0,1], e.g. "0.02"
}

func (r Request) Validate() error {
	if r.SellToken == (common.Address{}) || r.BuyToken == (common.Address{}) {
		return fmt.Errorf("sell and buy tokens are required")
	}
	if (r.SellAmount == nil) == (r.BuyAmount == nil) {
		return fmt.Errorf("exactly one of sellAmount and buyAmount must be set")
	}
	return nil
}

// Price is the indicative, non-binding response.
type Price struct {
	BuyAmount       string  `json:"buyAmount"`
	SellAmount      string  `json:"sellAmount"`
	Gas             string  `json:"gas"`
	TotalNetworkFee string  `json:"totalNetworkFee"`
	Route           *Route  `json:"route"`
	Issues          *Issues `json:"issues"`
}

// Quote is the firm response: Price data plus either a ready-to-send
// transaction or a permit2 payload that needs an off-chain signature first.
type Quote struct {
	BuyAmount       string       `json:"buyAmount"`
	SellAmount      string       `json:"sellAmount"`
	Gas             string       `json:"gas"`
	TotalNetworkFee string       `json:"totalNetworkFee"`
	Route           *Route       `json:"route"`
	Issues          *Issues      `json:"issues"`
	Permit2         *Permit2     `json:"permit2"`
	Transaction     *Transaction `json:"transaction"`
}

// Mode is the tagged variant the orchestrator branches on once.
type Mode int

const (
	// ModeDirect: the quote carries a ready transaction; nothing to sign.
	ModeDirect Mode = iota
	// ModeSignature: the quote carries an EIP-712 payload whose signature
	// must be appended to the call data before submission.
	ModeSignature
)

func (q *Quote) Mode() Mode {
	if q.Permit2 != nil && q.Permit2.EIP712 != nil {
		return ModeSignature
	}
	return ModeDirect
}

type Route struct {
	Fills  []Fill       `json:"fills"`
	Tokens []RouteToken `json:"tokens"`
}

// Fill is one liquidity source and its share of the route in basis points.
type Fill struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Source        string `json:"source"`
	ProportionBps string `json:"proportionBps"`
}

type RouteToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type Issues struct {
	Allowance            *AllowanceIssue `json:"allowance"`
	Balance              *BalanceIssue   `json:"balance"`
	SimulationIncomplete bool            `json:"simulationIncomplete"`
}

type AllowanceIssue struct {
	Actual  string `json:"actual"`
	Spender string `json:"spender"`
}

type BalanceIssue struct {
	Token    string `json:"token"`
	Actual   string `json:"actual"`
	Expected string `json:"expected"`
}

type Permit2 struct {
	Type   string              `json:"type"`
	Hash   string              `json:"hash"`
	EIP712 *apitypes.TypedData `json:"eip712"`
}

// Transaction mirrors the API's embedded transaction object; all numeric
// fields arrive as decimal strings.
type Transaction struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

func (t *Transaction) ValueWei() *big.Int {
	return parseBig(t.Value)
}

func (t *Transaction) GasLimit() uint64 {
	if g := parseBig(t.Gas); g != nil {
		return g.Uint64()
	}
	return 0
}

func parseBig(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

// ErrorKind classifies upstream failures for display. It carries no retry
// semantics.
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindTimeout
	KindLiquidity
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindLiquidity:
		return "liquidity"
	case KindValidation:
		return "validation"
	default:
		return "upstream"
	}
}

// APIError preserves the upstream reason string alongside its classification.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("0x api error (%s, status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("0x api error (%s): %s", e.Kind, e.Reason)
}
