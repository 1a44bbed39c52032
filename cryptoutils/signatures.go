package cryptoutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned for malformed signatures.
var ErrInvalidSignature = errors.New("invalid signature")

// RecoverSigner returns the address that signed hash with the Ethereum signed
// message prefix. The signature is 65 bytes r||s||v, v being 0/1 or 27/28.
func RecoverSigner(hash common.Hash, signatureHex string) (common.Address, error) {
	if !strings.HasPrefix(signatureHex, "0x") && !strings.HasPrefix(signatureHex, "0X") {
		signatureHex = "0x" + signatureHex
	}
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubkey, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// IsSignatureValid reports whether signatureHex is a signature of hash by
// expected. Malformed signatures are invalid.
func IsSignatureValid(hash common.Hash, signatureHex string, expected common.Address) bool {
	signer, err := RecoverSigner(hash, signatureHex)
	if err != nil {
		return false
	}
	return signer == expected
}

// SignHash signs hash with the Ethereum signed message prefix and returns the
// 0x-prefixed r||s||v signature with v in 27/28.
func SignHash(hash common.Hash, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
