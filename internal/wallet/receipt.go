package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xiliaf09/tgbotv4/internal/telemetry"
)

const (
	receiptPollInterval = 250 * time.Millisecond
	receiptPollAttempts = 40
	receiptWaitFallback = 60 * time.Second

	// How many blocks back the replacement scan is willing to walk.
	replacementScanWindow = 64
)

// ErrReplacedAndFailed marks a transaction that was replaced by a
// higher-fee one which then reverted or vanished.
var ErrReplacedAndFailed = errors.New("transaction replaced and failed")

// Receipt is the confirmation result handed to the orchestrator.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64
	Replaced    bool
}

// WaitForReceipt polls for a mined receipt at a fixed short interval up to a
// bounded number of attempts, then falls back to one blocking wait. A
// transaction replaced by a higher-fee one counts as confirmed when the
// replacement's receipt is successful; the replacement's hash is reported.
func (w *Wallet) WaitForReceipt(ctx context.Context, pending *Pending) (*Receipt, error) {
	hash := pending.Tx.Hash()

	for attempt := 0; attempt < w.pollAttempts; attempt++ {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return fromEthReceipt(receipt, false), nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			telemetry.Debugf("[wallet] receipt poll error for %s: %v", hash.Hex(), err)
		}

		// Every few polls, check whether the nonce moved past us without a
		// receipt: that means the transaction was replaced.
		if attempt > 0 && attempt%8 == 0 {
			if replaced, result, rerr := w.checkReplacement(ctx, pending); replaced {
				return result, rerr
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}

	// Last resort: one blocking wait with a bounded deadline.
	waitCtx, cancel := context.WithTimeout(ctx, w.waitFallback)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, w.client, pending.Tx)
	if err != nil {
		if replaced, result, rerr := w.checkReplacement(ctx, pending); replaced {
			return result, rerr
		}
		return nil, fmt.Errorf("wait for receipt of %s: %w", hash.Hex(), err)
	}
	return fromEthReceipt(receipt, false), nil
}

// checkReplacement detects whether the pending transaction's nonce was
// consumed by a different transaction and, if so, resolves the outcome.
// Returns replaced=false when the outcome is still open: the original may
// land, the node's receipt view may be lagging the nonce view, or the scan
// could not see the consuming transaction yet. A definite failure is only
// reported for a replacement whose receipt reverted.
func (w *Wallet) checkReplacement(ctx context.Context, pending *Pending) (bool, *Receipt, error) {
	nonce, err := w.client.NonceAt(ctx, pending.From, nil)
	if err != nil || nonce <= pending.Tx.Nonce() {
		return false, nil, nil
	}

	// Nonce advanced with no receipt for our hash. Find the transaction
	// that consumed the nonce.
	replacement, ownMined := w.findReplacement(ctx, pending)
	if ownMined {
		// Our own transaction is in a block but its receipt was not
		// visible yet. Serve it directly if the node has it now,
		// otherwise let the poll loop pick it up.
		if receipt, err := w.client.TransactionReceipt(ctx, pending.Tx.Hash()); err == nil && receipt != nil {
			return true, fromEthReceipt(receipt, false), nil
		}
		return false, nil, nil
	}
	if replacement == nil {
		telemetry.Debugf("[wallet] nonce advanced past tx %s but no replacement visible yet",
			pending.Tx.Hash().Hex())
		return false, nil, nil
	}

	receipt, err := w.client.TransactionReceipt(ctx, replacement.Hash())
	if err != nil || receipt == nil {
		return false, nil, nil
	}
	if receipt.Status == 0 {
		return true, nil, fmt.Errorf("%w: replacement %s reverted",
			ErrReplacedAndFailed, replacement.Hash().Hex())
	}

	// Lenient by choice, mirroring the behavior this flow was built around:
	// a successful replacement is treated as overall success even though
	// nothing verifies it encodes the same swap.
	telemetry.Warnf("[wallet] tx %s replaced by %s (confirmed)",
		pending.Tx.Hash().Hex(), replacement.Hash().Hex())
	return true, fromEthReceipt(receipt, true), nil
}

// findReplacement scans a bounded window of blocks since submission for a
// same-sender, same-nonce transaction. ownMined reports that the pending
// transaction itself was found in a block.
func (w *Wallet) findReplacement(ctx context.Context, pending *Pending) (replacement *types.Transaction, ownMined bool) {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return nil, false
	}
	start := pending.SubmittedBlock
	if head > replacementScanWindow && start < head-replacementScanWindow {
		start = head - replacementScanWindow
	}

	signer := types.LatestSignerForChainID(w.chainID)
	for bn := start; bn <= head; bn++ {
		block, err := w.client.BlockByNumber(ctx, new(big.Int).SetUint64(bn))
		if err != nil {
			continue
		}
		for _, tx := range block.Transactions() {
			if tx.Nonce() != pending.Tx.Nonce() {
				continue
			}
			if tx.Hash() == pending.Tx.Hash() {
				return nil, true
			}
			sender, err := types.Sender(signer, tx)
			if err != nil || sender != pending.From {
				continue
			}
			return tx, false
		}
	}
	return nil, false
}

func fromEthReceipt(r *types.Receipt, replaced bool) *Receipt {
	out := &Receipt{
		TxHash:   r.TxHash,
		GasUsed:  r.GasUsed,
		Status:   r.Status,
		Replaced: replaced,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}
