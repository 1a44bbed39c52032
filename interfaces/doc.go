// Package interfaces defines core interfaces and types for the secret
// management service, separating interface definitions from implementations.
//
// The package provides the types shared between components:
//
// # Chain Views
//
// Task, Deal, App and Dataset are read-only views of on-chain state returned by
// a ChainOracle. TaskStatus and TeeFramework decode the enumerations stored on
// chain.
//
// # Secrets
//
// Web2SecretHeader, Web3SecretHeader and ComputeSecretHeader identify the three
// secret kinds by canonical (lower-cased) address plus, respectively, a free-form
// key, nothing, or a numeric index. Secret[H] carries a value that is either
// encrypted or plaintext; the IsEncryptedValue flag must be checked before any
// Encrypt or Decrypt call.
//
// EphemeralCredential is the per-task enclave challenge identity.
//
// # Fingerprints
//
// ParseDatasetFingerprint, ParseServiceFingerprint and ParseAppFingerprint decode
// pipe-delimited enclave identity strings into structured records.
//
// # Sessions
//
// SessionDescriptor describes the enclave stages of a task independently of the
// TEE framework. A SessionDispatcher submits it to a framework backend and
// returns an AccessHandle.
//
// # Errors
//
// The error taxonomy (ErrUnauthorized, ErrNotFound, ErrAlreadyExists,
// ErrKeyIntegrity, InvalidFingerprintError, SessionAssemblyError,
// BackendProvisioningError) is shared by all components so that HTTP handlers
// can map failures with errors.Is and errors.As.
package interfaces
