package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/xiliaf09/tgbotv4/internal/helpers"
	"github.com/xiliaf09/tgbotv4/internal/telemetry"
)

// NativeToken is the sentinel address the swap API uses for the chain's
// native asset; it has no contract behind it.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// unlimitedAllowance is returned for the native asset, which has no
// approval concept.
var unlimitedAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func IsNative(token common.Address) bool {
	return token == NativeToken
}

// backend is the node surface the wallet depends on. *ethclient.Client
// satisfies it.
type backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// Wallet holds the signing key and the RPC connection. It signs
// transactions and typed data, reads balances and allowances, and submits
// transactions.
type Wallet struct {
	client  backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	erc20   abi.ABI

	pollInterval time.Duration
	pollAttempts int
	waitFallback time.Duration
}

func New(ctx context.Context, rpcURL, privateKeyHex string) (*Wallet, error) {
	key, address, err := helpers.ValidatePrivateKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("rpc dial: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain ID: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}

	telemetry.Infof("[wallet] connected: %s (chain %s)", address.Hex(), chainID)
	return &Wallet{
		client:  client,
		key:     key,
		address: address,
		chainID: chainID,
		erc20:   erc20,

		pollInterval: receiptPollInterval,
		pollAttempts: receiptPollAttempts,
		waitFallback: receiptWaitFallback,
	}, nil
}

func (w *Wallet) Address() common.Address { return w.address }

func (w *Wallet) ChainID() *big.Int { return new(big.Int).Set(w.chainID) }

// BalanceOf returns the wallet's balance of a token in base units. The
// native sentinel reads the account balance; anything else must be a token
// contract.
func (w *Wallet) BalanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	if IsNative(token) {
		return w.client.BalanceAt(ctx, w.address, nil)
	}

	out, err := w.callERC20(ctx, token, "balanceOf", w.address)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

// TokenInfo is the read-only metadata rendered on the token card.
type TokenInfo struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// TokenInfo reads token metadata. Individual fields fall back to defaults
// when a contract omits them, but an address with no code at all is an error.
func (w *Wallet) TokenInfo(ctx context.Context, token common.Address) (*TokenInfo, error) {
	code, err := w.client.CodeAt(ctx, token, nil)
	if err != nil {
		return nil, fmt.Errorf("code lookup: %w", err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("no contract at %s", token.Hex())
	}

	info := &TokenInfo{
		Address:     token,
		Name:        "Unknown Token",
		Symbol:      "UNK",
		Decimals:    18,
		TotalSupply: big.NewInt(0),
	}
	if name, err := w.callString(ctx, token, "name"); err == nil {
		info.Name = name
	}
	if symbol, err := w.callString(ctx, token, "symbol"); err == nil {
		info.Symbol = symbol
	}
	if out, err := w.callERC20(ctx, token, "decimals"); err == nil && len(out) > 0 {
		info.Decimals = uint8(new(big.Int).SetBytes(out).Uint64())
	}
	if out, err := w.callERC20(ctx, token, "totalSupply"); err == nil {
		info.TotalSupply = new(big.Int).SetBytes(out)
	}
	return info, nil
}

// Allowance returns the current allowance granted to spender. The native
// asset is effectively unlimited. Query failures surface as zero, the
// conservative default that forces an approval attempt.
func (w *Wallet) Allowance(ctx context.Context, token, spender common.Address) *big.Int {
	if IsNative(token) {
		return new(big.Int).Set(unlimitedAllowance)
	}

	out, err := w.callERC20(ctx, token, "allowance", w.address, spender)
	if err != nil {
		telemetry.Warnf("[wallet] allowance read failed for %s, assuming 0: %v", token.Hex(), err)
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(out)
}

// SetAllowance submits prepared approval calldata to the token contract and
// waits for one confirmation. The calldata comes from the quote client so the
// approve ABI lives in one place. No-op for the native asset.
func (w *Wallet) SetAllowance(ctx context.Context, token common.Address, data []byte) error {
	if IsNative(token) {
		return nil
	}
	if len(data) == 0 {
		return fmt.Errorf("empty approval calldata for %s", token.Hex())
	}

	pending, err := w.Send(ctx, TxRequest{To: token, Data: data, Value: big.NewInt(0)}, PresetStandard)
	if err != nil {
		return fmt.Errorf("send approval: %w", err)
	}
	telemetry.Infof("[wallet] approval sent: token=%s tx=%s",
		token.Hex(), pending.Tx.Hash().Hex())

	waitCtx, cancel := context.WithTimeout(ctx, w.waitFallback)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, w.client, pending.Tx)
	if err != nil {
		return fmt.Errorf("wait for approval: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("approval transaction reverted: %s", pending.Tx.Hash().Hex())
	}
	return nil
}

func (w *Wallet) callERC20(ctx context.Context, token common.Address, method string, args ...any) ([]byte, error) {
	data, err := w.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, token.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no data, %s is not a token contract", method, token.Hex())
	}
	return out, nil
}

func (w *Wallet) callString(ctx context.Context, token common.Address, method string) (string, error) {
	out, err := w.callERC20(ctx, token, method)
	if err != nil {
		return "", err
	}
	vals, err := w.erc20.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return "", fmt.Errorf("unpack %s: %w", method, err)
	}
	s, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("%s did not return a string", method)
	}
	return s, nil
}

// Minimal read-only ERC20 surface; approve calldata is built by the quote
// client.
const ERC20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "_owner", "type": "address"},
			{"name": "_spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "name",
		"outputs": [{"name": "", "type": "string"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "symbol",
		"outputs": [{"name": "", "type": "string"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "totalSupply",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	}
]`
