package wallet

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(8453)

// fakeBackend serves canned nonce, block, and receipt views. Receipts can be
// held back for the first N lookups to model a node whose receipt index lags
// its nonce index.
type fakeBackend struct {
	mu           sync.Mutex
	nonce        uint64
	head         uint64
	blocks       map[uint64]*types.Block
	receipts     map[common.Hash]*types.Receipt
	receiptAfter map[common.Hash]int
	lookups      map[common.Hash]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		blocks:       make(map[uint64]*types.Block),
		receipts:     make(map[common.Hash]*types.Receipt),
		receiptAfter: make(map[common.Hash]int),
		lookups:      make(map[common.Hash]int),
	}
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[hash]++
	r, ok := f.receipts[hash]
	if !ok || f.lookups[hash] <= f.receiptAfter[hash] {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeBackend) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.blocks[number.Uint64()]; ok {
		return b, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21_000, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(context.Context, *types.Transaction) error {
	return nil
}

func newReceiptTestWallet(t *testing.T, b backend) *Wallet {
	t.Helper()
	key := testKey(t)
	erc20, err := abi.JSON(strings.NewReader(ERC20ABI))
	require.NoError(t, err)
	return &Wallet{
		client:  b,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(testChainID),
		erc20:   erc20,

		pollInterval: time.Millisecond,
		pollAttempts: 20,
		waitFallback: 50 * time.Millisecond,
	}
}

func signedTestTx(t *testing.T, nonce uint64, gasPrice int64) *types.Transaction {
	t.Helper()
	tx := types.NewTransaction(nonce, common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(0), 21_000, big.NewInt(gasPrice), nil)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(testChainID), testKey(t))
	require.NoError(t, err)
	return signed
}

func blockWithTxs(number uint64, txs ...*types.Transaction) *types.Block {
	header := &types.Header{Number: new(big.Int).SetUint64(number)}
	return types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: txs})
}

func successReceipt(tx *types.Transaction, blockNumber uint64) *types.Receipt {
	return &types.Receipt{
		TxHash:      tx.Hash(),
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: new(big.Int).SetUint64(blockNumber),
		GasUsed:     21_000,
	}
}

func TestWaitForReceiptPollsUntilFound(t *testing.T) {
	backend := newFakeBackend()
	w := newReceiptTestWallet(t, backend)
	tx := signedTestTx(t, 7, 2)

	backend.receipts[tx.Hash()] = successReceipt(tx, 5)
	backend.receiptAfter[tx.Hash()] = 3

	got, err := w.WaitForReceipt(context.Background(), &Pending{Tx: tx, From: w.address})
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), got.TxHash)
	assert.False(t, got.Replaced)
	assert.EqualValues(t, 5, got.BlockNumber)
}

// Nonce view runs ahead of the receipt view: the scan finds our own
// transaction mined. That must never be reported as a failed replacement.
func TestCheckReplacementOwnTxMined(t *testing.T) {
	backend := newFakeBackend()
	w := newReceiptTestWallet(t, backend)
	tx := signedTestTx(t, 7, 2)

	backend.nonce = 8
	backend.head = 3
	backend.blocks[3] = blockWithTxs(3, tx)

	// Receipt still lagging: inconclusive, keep polling.
	replaced, result, err := w.checkReplacement(context.Background(), &Pending{Tx: tx, From: w.address})
	assert.False(t, replaced)
	assert.Nil(t, result)
	assert.NoError(t, err)

	// Receipt now visible: served directly, not as a replacement.
	backend.receipts[tx.Hash()] = successReceipt(tx, 3)
	replaced, result, err = w.checkReplacement(context.Background(), &Pending{Tx: tx, From: w.address})
	require.NoError(t, err)
	require.True(t, replaced)
	assert.Equal(t, tx.Hash(), result.TxHash)
	assert.False(t, result.Replaced)
}

func TestWaitForReceiptRecoversFromReceiptLag(t *testing.T) {
	backend := newFakeBackend()
	w := newReceiptTestWallet(t, backend)
	tx := signedTestTx(t, 7, 2)

	backend.nonce = 8
	backend.head = 3
	backend.blocks[3] = blockWithTxs(3, tx)
	backend.receipts[tx.Hash()] = successReceipt(tx, 3)
	backend.receiptAfter[tx.Hash()] = 10

	got, err := w.WaitForReceipt(context.Background(), &Pending{Tx: tx, From: w.address})
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), got.TxHash)
	assert.False(t, got.Replaced)
}

func TestCheckReplacementInconclusiveScan(t *testing.T) {
	backend := newFakeBackend()
	w := newReceiptTestWallet(t, backend)
	tx := signedTestTx(t, 7, 2)

	// Nonce advanced but no block in the window shows the consuming tx.
	backend.nonce = 8
	backend.head = 3

	replaced, result, err := w.checkReplacement(context.Background(), &Pending{Tx: tx, From: w.address})
	assert.False(t, replaced)
	assert.Nil(t, result)
	assert.NoError(t, err)
}

func TestCheckReplacementSuccessfulReplacement(t *testing.T) {
	backend := newFakeBackend()
	w := newReceiptTestWallet(t, backend)
	original := signedTestTx(t, 7, 2)
	replacement := signedTestTx(t, 7, 9)

	backend.nonce = 8
	backend.head = 4
	backend.blocks[4] = blockWithTxs(4, replacement)
	backend.receipts[replacement.Hash()] = successReceipt(replacement, 4)

	replaced, result, err := w.checkReplacement(context.Background(), &Pending{Tx: original, From: w.address})
	require.NoError(t, err)
	require.True(t, replaced)
	assert.True(t, result.Replaced)
	assert.Equal(t, replacement.Hash(), result.TxHash)
}

func TestCheckReplacementRevertedReplacement(t *testing.T) {
	backend := newFakeBackend()
	w := newReceiptTestWallet(t, backend)
	original := signedTestTx(t, 7, 2)
	replacement := signedTestTx(t, 7, 9)

	backend.nonce = 8
	backend.head = 4
	backend.blocks[4] = blockWithTxs(4, replacement)
	backend.receipts[replacement.Hash()] = &types.Receipt{
		TxHash:      replacement.Hash(),
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(4),
	}

	replaced, result, err := w.checkReplacement(context.Background(), &Pending{Tx: original, From: w.address})
	assert.True(t, replaced)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrReplacedAndFailed)
}

func TestWaitForReceiptReportsReplacedSuccess(t *testing.T) {
	backend := newFakeBackend()
	w := newReceiptTestWallet(t, backend)
	original := signedTestTx(t, 7, 2)
	replacement := signedTestTx(t, 7, 9)

	backend.nonce = 8
	backend.head = 4
	backend.blocks[4] = blockWithTxs(4, replacement)
	backend.receipts[replacement.Hash()] = successReceipt(replacement, 4)

	got, err := w.WaitForReceipt(context.Background(), &Pending{Tx: original, From: w.address})
	require.NoError(t, err)
	assert.True(t, got.Replaced)
	assert.Equal(t, replacement.Hash(), got.TxHash)
}

func TestSetAllowanceNativeIsNoop(t *testing.T) {
	w := newReceiptTestWallet(t, newFakeBackend())
	require.NoError(t, w.SetAllowance(context.Background(), NativeToken, nil))
}

func TestSetAllowanceRejectsEmptyCalldata(t *testing.T) {
	w := newReceiptTestWallet(t, newFakeBackend())
	err := w.SetAllowance(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty approval calldata")
}
