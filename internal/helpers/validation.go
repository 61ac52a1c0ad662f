package helpers

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ValidateAddress checks that a string is a usable, non-zero hex address.
func ValidateAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address format: %s", address)
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address not allowed")
	}
	return addr, nil
}

// ValidateAmount checks that an amount is positive.
func ValidateAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("amount is nil")
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// ValidatePrivateKey parses a hex private key and derives its address.
func ValidatePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, common.Address, error) {
	if privateKeyHex == "" {
		return nil, common.Address{}, fmt.Errorf("private key is empty")
	}
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	if len(privateKeyHex) != 64 {
		return nil, common.Address{}, fmt.Errorf("invalid private key length")
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("invalid public key type")
	}
	return privateKey, crypto.PubkeyToAddress(*publicKey), nil
}

// ValidatePercentage bounds a sell percentage to 1..100.
func ValidatePercentage(pct int) error {
	if pct <= 0 || pct > 100 {
		return fmt.Errorf("percentage must be between 1 and 100")
	}
	return nil
}
