package cryptoutils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EthereumKeypair is a freshly generated secp256k1 identity.
type EthereumKeypair struct {
	Address    string
	PrivateKey string
}

// GenerateEthereumKeypair returns a random keypair with a lower-cased
// address and a 0x-prefixed hex private key.
func GenerateEthereumKeypair() (*EthereumKeypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &EthereumKeypair{
		Address:    hexutil.Encode(crypto.PubkeyToAddress(key.PublicKey).Bytes()),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}, nil
}

// AddressOfPrivateKey derives the lower-cased address of a hex private key.
func AddressOfPrivateKey(privateKeyHex string) (string, error) {
	raw, err := hexutil.Decode(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("invalid private key encoding: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	return hexutil.Encode(crypto.PubkeyToAddress(key.PublicKey).Bytes()), nil
}
