// Package keystore persists the service's master storage key.
//
// The key is a single opaque byte string. A Backend loads it on startup and
// stores it once when it is first generated. Backends are selected by URI:
//
//   - /path/to/key or file:///path/to/key - local file, created with mode 0600
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/object/key?region=us-east-1&endpoint=host
//   - vault://host:port/mount/path?tls=true - HashiCorp Vault KV v2, authenticated
//     with the token from VAULT_TOKEN
//
// All backends return ErrKeyNotFound when no key has been stored yet so the
// caller can decide to generate one.
package keystore
