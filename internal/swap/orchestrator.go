package swap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/sync/errgroup"

	"github.com/xiliaf09/tgbotv4/internal/metrics"
	"github.com/xiliaf09/tgbotv4/internal/telemetry"
	"github.com/xiliaf09/tgbotv4/internal/wallet"
	"github.com/xiliaf09/tgbotv4/internal/zerox"
)

// QuoteService is the slice of the aggregator client the orchestrator needs.
// The client owns the approve ABI; the wallet only submits what it prepares.
type QuoteService interface {
	GetQuote(ctx context.Context, req zerox.Request) (*zerox.Quote, error)
	ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error)
}

// WalletService is the slice of the wallet the orchestrator needs. Allowance
// never fails; a read error is reported as zero by the implementation.
type WalletService interface {
	Address() common.Address
	Allowance(ctx context.Context, token, spender common.Address) *big.Int
	SetAllowance(ctx context.Context, token common.Address, data []byte) error
	SignTypedData(payload *apitypes.TypedData) ([]byte, error)
	Send(ctx context.Context, req wallet.TxRequest, preset wallet.Preset) (*wallet.Pending, error)
	WaitForReceipt(ctx context.Context, pending *wallet.Pending) (*wallet.Receipt, error)
	PremiumGasPrice(ctx context.Context) *big.Int
}

// Request describes one swap to execute. Exactly one direction: SellAmount
// is always the input side.
type Request struct {
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *big.Int
	Slippage   string
}

// Result is the terminal outcome of a swap attempt. Execute never returns a
// Go error; failures land in Err with Success=false so callers render one
// shape either way.
type Result struct {
	Success     bool
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Replaced    bool
	Err         error
}

// Orchestrator drives a swap end to end: quote, allowance, signature,
// submission, receipt.
type Orchestrator struct {
	quotes  QuoteService
	wallet  WalletService
	permit2 common.Address
	preset  wallet.Preset
}

func New(quotes QuoteService, w WalletService, permit2 common.Address) *Orchestrator {
	return &Orchestrator{
		quotes:  quotes,
		wallet:  w,
		permit2: permit2,
		preset:  wallet.PresetFast,
	}
}

// Execute runs one swap to completion. The firm quote, the on-chain
// allowance read and the gas price fetch run concurrently; when the quote
// reports a missing allowance that the chain confirms, the approval is
// submitted in the background and awaited only at the dispatch point.
func (o *Orchestrator) Execute(ctx context.Context, req Request) Result {
	if req.SellAmount == nil || req.SellAmount.Sign() <= 0 {
		return o.fail(fmt.Errorf("sell amount must be positive"))
	}

	taker := o.wallet.Address()

	var (
		quote     *zerox.Quote
		allowance *big.Int
		gasPrice  *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := o.quotes.GetQuote(gctx, zerox.Request{
			SellToken:  req.SellToken,
			BuyToken:   req.BuyToken,
			SellAmount: req.SellAmount,
			Taker:      taker,
			Slippage:   req.Slippage,
		})
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	g.Go(func() error {
		allowance = o.wallet.Allowance(gctx, req.SellToken, o.permit2)
		return nil
	})
	g.Go(func() error {
		gasPrice = o.wallet.PremiumGasPrice(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return o.fail(err)
	}

	// Approval races transaction assembly; it only gates dispatch.
	var approvalDone chan error
	if zerox.NeedsAllowance(quote.Issues) && allowance.Sign() == 0 {
		approvalDone = make(chan error, 1)
		go func() {
			telemetry.Infof("[swap] approving %s for permit2", req.SellToken.Hex())
			data, err := o.quotes.ApproveCalldata(o.permit2, nil)
			if err != nil {
				approvalDone <- fmt.Errorf("build approval calldata: %w", err)
				return
			}
			approvalDone <- o.wallet.SetAllowance(ctx, req.SellToken, data)
		}()
	}

	txReq, err := o.buildTx(quote)
	if err != nil {
		return o.fail(err)
	}
	txReq.GasPrice = gasPrice

	if approvalDone != nil {
		select {
		case err := <-approvalDone:
			if err != nil {
				return o.fail(fmt.Errorf("set allowance: %w", err))
			}
		case <-ctx.Done():
			return o.fail(ctx.Err())
		}
	}

	pending, err := o.wallet.Send(ctx, txReq, o.preset)
	if err != nil {
		return o.fail(err)
	}
	telemetry.Infof("[swap] submitted %s (%s -> %s, sell %s)",
		pending.Tx.Hash().Hex(), req.SellToken.Hex(), req.BuyToken.Hex(), req.SellAmount)

	receipt, err := o.wallet.WaitForReceipt(ctx, pending)
	if err != nil {
		return o.fail(err)
	}
	if receipt.Status == 0 {
		return o.fail(fmt.Errorf("transaction %s reverted", receipt.TxHash.Hex()))
	}

	metrics.SwapsExecuted.Inc()
	if receipt.Replaced {
		metrics.SwapsReplaced.Inc()
		telemetry.Warnf("[swap] tx %s was replaced; replacement succeeded", pending.Tx.Hash().Hex())
	}
	return Result{
		Success:     true,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		Replaced:    receipt.Replaced,
	}
}

// buildTx turns a firm quote into a submittable request. The signature
// branch signs the permit2 payload and appends the suffixed signature to the
// call data; the direct branch uses the quote's transaction as-is.
func (o *Orchestrator) buildTx(quote *zerox.Quote) (wallet.TxRequest, error) {
	if quote.Transaction == nil {
		return wallet.TxRequest{}, fmt.Errorf("quote carries no transaction")
	}

	switch quote.Mode() {
	case zerox.ModeSignature:
		sig, err := o.wallet.SignTypedData(quote.Permit2.EIP712)
		if err != nil {
			return wallet.TxRequest{}, fmt.Errorf("sign permit2 payload: %w", err)
		}
		to, data, err := zerox.AttachSignature(quote, sig)
		if err != nil {
			return wallet.TxRequest{}, err
		}
		return wallet.TxRequest{
			To:       to,
			Data:     data,
			Value:    quote.Transaction.ValueWei(),
			GasLimit: quote.Transaction.GasLimit(),
		}, nil
	default:
		data := common.FromHex(quote.Transaction.Data)
		return wallet.TxRequest{
			To:       common.HexToAddress(quote.Transaction.To),
			Data:     data,
			Value:    quote.Transaction.ValueWei(),
			GasLimit: quote.Transaction.GasLimit(),
		}, nil
	}
}

func (o *Orchestrator) fail(err error) Result {
	metrics.SwapsFailed.Inc()
	telemetry.Errorf("[swap] %v", err)
	return Result{Success: false, Err: err}
}
