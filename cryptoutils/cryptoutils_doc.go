// Package cryptoutils provides the signature scheme used to authorize
// requests to the secret management service.
//
// # Challenges
//
// Every write or read of a secret, and every session request, is authorized by
// an ECDSA signature over a deterministic challenge hash. Challenges are
// keccak256 hashes over concatenated byte strings: hex inputs (addresses, task
// ids) are decoded, free-form strings (keys, values) are hashed first, and
// owner-signed challenges start with the hash of Domain:
//
//	Web3ReadChallenge           = H(Domain, secretAddress)
//	Web2ReadChallenge           = H(Domain, ownerAddress, sha256(secretKey))
//	Web3WriteChallenge          = H(Domain, secretAddress, secretValue)
//	Web2WriteChallenge          = H(Domain, ownerAddress, secretKey, secretValue)
//	ComputeWriteChallenge       = H(Domain, appAddress, index, secretValue)
//	WorkerpoolAuthorizationHash = H(workerAddress, taskID, enclaveChallenge)
//
// # Signatures
//
// Signatures are 65-byte r||s||v values over the Ethereum signed message
// prefix of the 32-byte challenge, as produced by wallets' personal_sign.
// RecoverSigner and IsSignatureValid verify them; SignHash produces them.
package cryptoutils
