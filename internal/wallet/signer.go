package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignTypedData produces an EIP-712 signature over the payload. The type set
// is normalized first: any submitted EIP712Domain entry is dropped and a
// canonical one is rebuilt from the populated domain fields, so the
// signature is identical whether or not the caller included the entry and
// the domain type can never be hashed twice.
func (w *Wallet) SignTypedData(payload *apitypes.TypedData) ([]byte, error) {
	return signTypedData(w.key, payload)
}

func signTypedData(key *ecdsa.PrivateKey, payload *apitypes.TypedData) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("typed data payload is nil")
	}

	normalized := apitypes.TypedData{
		Types:       normalizeTypes(payload),
		PrimaryType: payload.PrimaryType,
		Domain:      payload.Domain,
		Message:     payload.Message,
	}

	hash, _, err := apitypes.TypedDataAndHash(normalized)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	// Transform V from 0/1 to the 27/28 convention contracts expect.
	sig[64] += 27
	return sig, nil
}

func normalizeTypes(payload *apitypes.TypedData) apitypes.Types {
	types := make(apitypes.Types, len(payload.Types)+1)
	for name, fields := range payload.Types {
		if name == "EIP712Domain" {
			continue
		}
		types[name] = fields
	}
	types["EIP712Domain"] = domainType(payload.Domain)
	return types
}

// domainType derives the EIP712Domain member list from the populated domain
// fields, in the canonical field order.
func domainType(domain apitypes.TypedDataDomain) []apitypes.Type {
	var fields []apitypes.Type
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}
