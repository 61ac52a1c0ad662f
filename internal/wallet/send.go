package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xiliaf09/tgbotv4/internal/telemetry"
)

// Preset parameterizes transaction submission: how much to pad an estimated
// gas limit, how hard to boost the suggested gas price, and how long the
// estimation paths may take before fixed fallbacks kick in. One routine,
// several speeds.
type Preset struct {
	Name string

	GasLimitMarginPct int64
	GasPriceNum       int64 // gas price multiplier numerator
	GasPriceDen       int64 // gas price multiplier denominator
	EstimateTimeout   time.Duration

	FallbackGasLimit uint64
	FallbackGasPrice *big.Int
}

var (
	// PresetStandard: patient estimation, moderate speed premium.
	PresetStandard = Preset{
		Name:              "standard",
		GasLimitMarginPct: 20,
		GasPriceNum:       3, GasPriceDen: 2, // x1.5
		EstimateTimeout:  2 * time.Second,
		FallbackGasLimit: 500_000,
		FallbackGasPrice: big.NewInt(2_000_000_000),
	}
	// PresetFast: tight estimation budget, double gas price.
	PresetFast = Preset{
		Name:              "fast",
		GasLimitMarginPct: 30,
		GasPriceNum:       2, GasPriceDen: 1, // x2.0
		EstimateTimeout:  500 * time.Millisecond,
		FallbackGasLimit: 300_000,
		FallbackGasPrice: big.NewInt(2_000_000_000),
	}
	// PresetHyper: estimation barely tolerated, maximum speed premium.
	PresetHyper = Preset{
		Name:              "hyper",
		GasLimitMarginPct: 20,
		GasPriceNum:       5, GasPriceDen: 2, // x2.5
		EstimateTimeout:  200 * time.Millisecond,
		FallbackGasLimit: 200_000,
		FallbackGasPrice: big.NewInt(3_000_000_000),
	}
)

func (p Preset) padGasLimit(estimated uint64) uint64 {
	return estimated * uint64(100+p.GasLimitMarginPct) / 100
}

func (p Preset) boostGasPrice(base *big.Int) *big.Int {
	out := new(big.Int).Mul(base, big.NewInt(p.GasPriceNum))
	return out.Div(out, big.NewInt(p.GasPriceDen))
}

// TxRequest carries the fields of a transaction to submit. Zero GasLimit and
// nil GasPrice mean "derive one under the preset's budget".
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// Pending is the handle for a submitted transaction.
type Pending struct {
	Tx             *types.Transaction
	From           common.Address
	SubmittedBlock uint64
}

// Send signs and submits a legacy transaction. Gas limit and price are
// estimated under a bounded time budget when absent; estimation never blocks
// submission past the preset's fallbacks.
func (w *Wallet) Send(ctx context.Context, req TxRequest, preset Preset) (*Pending, error) {
	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = w.estimateGasLimit(ctx, req, value, preset)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice = w.deriveGasPrice(ctx, preset)
	}

	tx := types.NewTransaction(nonce, req.To, value, gasLimit, gasPrice, req.Data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	submittedBlock, _ := w.client.BlockNumber(ctx)

	if err := w.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	telemetry.Debugf("[wallet] sent tx %s (preset=%s gas=%d gasPrice=%s)",
		signedTx.Hash().Hex(), preset.Name, gasLimit, gasPrice)

	return &Pending{Tx: signedTx, From: w.address, SubmittedBlock: submittedBlock}, nil
}

func (w *Wallet) estimateGasLimit(ctx context.Context, req TxRequest, value *big.Int, preset Preset) uint64 {
	estCtx, cancel := context.WithTimeout(ctx, preset.EstimateTimeout)
	defer cancel()

	estimated, err := w.client.EstimateGas(estCtx, ethereum.CallMsg{
		From:  w.address,
		To:    &req.To,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		telemetry.Warnf("[wallet] gas estimation failed, using fallback %d: %v",
			preset.FallbackGasLimit, err)
		return preset.FallbackGasLimit
	}
	return preset.padGasLimit(estimated)
}

func (w *Wallet) deriveGasPrice(ctx context.Context, preset Preset) *big.Int {
	priceCtx, cancel := context.WithTimeout(ctx, preset.EstimateTimeout)
	defer cancel()

	suggested, err := w.client.SuggestGasPrice(priceCtx)
	if err != nil {
		telemetry.Warnf("[wallet] gas price lookup failed, using fallback %s: %v",
			preset.FallbackGasPrice, err)
		return new(big.Int).Set(preset.FallbackGasPrice)
	}
	return preset.boostGasPrice(suggested)
}

// PremiumGasPrice pre-computes the hyper-speed gas price for a swap. It
// never fails; RPC trouble falls back to a fixed 3 gwei.
func (w *Wallet) PremiumGasPrice(ctx context.Context) *big.Int {
	return w.deriveGasPrice(ctx, PresetHyper)
}
