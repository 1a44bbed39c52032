// Package kms provides the storage encryption key of the service.
//
// A KeyProvider holds one AES-256 key for the lifetime of the process and
// implements interfaces.Cipher with AES-GCM. Ciphertexts are base64 encoded
// nonce||sealed strings so they can be stored in text columns.
//
// LoadOrGenerate obtains the key from a keystore.Backend, generating and
// persisting a fresh one on first boot, and runs a self-test before returning.
// A failed self-test is reported as interfaces.ErrKeyIntegrity and the
// process must not start:
//
//	backend, err := keystore.BackendFor("/data/sms/master.key", log)
//	if err != nil {
//		return err
//	}
//	provider, err := kms.LoadOrGenerate(ctx, backend, log)
//	if err != nil {
//		return err
//	}
//	ciphertext, err := provider.Encrypt("secret")
//
// There is no rotation path: every ciphertext written by the service is
// encrypted with the key loaded at startup.
package kms
