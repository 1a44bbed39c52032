package keystore

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Load when no key is stored at the location.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBackendUnavailable is returned when the backend cannot be reached.
	ErrBackendUnavailable = errors.New("key backend unavailable")

	// ErrInvalidLocationURI is returned for malformed or unsupported URIs.
	ErrInvalidLocationURI = errors.New("invalid key location URI")
)

// Backend loads and stores a single key.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, key []byte) error

	// Name is a short identifier used in logs.
	Name() string
	// LocationURI identifies the backend with credentials redacted.
	LocationURI() string
}
