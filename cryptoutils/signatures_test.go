package cryptoutils

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	hash := Web3ReadChallenge(signer.Hex())
	sig, err := SignHash(hash, key)
	require.NoError(t, err)

	recovered, err := RecoverSigner(hash, sig)
	require.NoError(t, err)
	require.Equal(t, signer, recovered)
	require.True(t, IsSignatureValid(hash, sig, signer))

	// Recovery id 0/1 is accepted too.
	raw := hexutil.MustDecode(sig)
	raw[64] -= 27
	require.True(t, IsSignatureValid(hash, hexutil.Encode(raw), signer))
}

func TestInvalidSignatures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	hash := Web3ReadChallenge(signer.Hex())

	sig, err := SignHash(hash, key)
	require.NoError(t, err)

	testCases := []struct {
		name     string
		hash     common.Hash
		sig      string
		expected common.Address
	}{
		{"wrong signer", hash, sig, common.HexToAddress("0x1")},
		{"wrong hash", Web3ReadChallenge("0x2"), sig, signer},
		{"not hex", hash, "signature", signer},
		{"too short", hash, sig[:20], signer},
		{"empty", hash, "", signer},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.False(t, IsSignatureValid(tc.hash, tc.sig, tc.expected))
		})
	}

	_, err = RecoverSigner(hash, "0x1234")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestGenerateEthereumKeypair(t *testing.T) {
	kp, err := GenerateEthereumKeypair()
	require.NoError(t, err)
	require.Len(t, kp.Address, 42)
	require.Len(t, kp.PrivateKey, 66)

	addr, err := AddressOfPrivateKey(kp.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, kp.Address, addr)

	other, err := GenerateEthereumKeypair()
	require.NoError(t, err)
	require.NotEqual(t, kp.Address, other.Address)

	_, err = AddressOfPrivateKey("0xzz")
	require.Error(t, err)
}
