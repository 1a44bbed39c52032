package cryptoutils

import (
	"crypto/sha256"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain separates challenges signed for this service from any other
// message signed with the same keys.
const Domain = "IEXEC_SMS_DOMAIN"

var domainHash = crypto.Keccak256([]byte(Domain))

// ConcatenateAndHash hex-decodes every input, concatenates the bytes and
// returns their keccak256 hash. Odd-length inputs are left-padded.
func ConcatenateAndHash(hexInputs ...string) common.Hash {
	parts := make([][]byte, 0, len(hexInputs))
	for _, in := range hexInputs {
		parts = append(parts, common.FromHex(in))
	}
	return crypto.Keccak256Hash(parts...)
}

func keccakString(s string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(s)))
}

func sha256String(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hexutil.Encode(sum[:])
}

// Web3ReadChallenge is signed by the owner of secretAddress to read its secret.
func Web3ReadChallenge(secretAddress string) common.Hash {
	return ConcatenateAndHash(hexutil.Encode(domainHash), secretAddress)
}

// Web2ReadChallenge is signed by ownerAddress to read its secret stored under
// secretKey.
func Web2ReadChallenge(ownerAddress, secretKey string) common.Hash {
	return ConcatenateAndHash(hexutil.Encode(domainHash), ownerAddress, sha256String(secretKey))
}

// Web3WriteChallenge is signed by the owner of secretAddress to store a secret.
func Web3WriteChallenge(secretAddress, secretValue string) common.Hash {
	return ConcatenateAndHash(hexutil.Encode(domainHash), secretAddress, keccakString(secretValue))
}

// Web2WriteChallenge is signed by ownerAddress to add or update a secret.
func Web2WriteChallenge(ownerAddress, secretKey, secretValue string) common.Hash {
	return ConcatenateAndHash(hexutil.Encode(domainHash), ownerAddress, keccakString(secretKey), keccakString(secretValue))
}

// ComputeWriteChallenge is signed by the owner of appAddress to set a
// runtime secret at index.
func ComputeWriteChallenge(appAddress string, index int, secretValue string) common.Hash {
	return ConcatenateAndHash(hexutil.Encode(domainHash), appAddress, keccakString(strconv.Itoa(index)), keccakString(secretValue))
}

// WorkerpoolAuthorizationHash binds a worker and an enclave challenge to a
// task. The workerpool owner and the worker both sign it.
func WorkerpoolAuthorizationHash(workerAddress, taskID, enclaveChallenge string) common.Hash {
	return ConcatenateAndHash(workerAddress, taskID, enclaveChallenge)
}
