package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/ruteri/tee-secret-management/keystore"
)

// KeySize is the size of the AES-256 storage key in bytes.
const KeySize = 32

// SelfTestMessage is encrypted and decrypted once at startup.
const SelfTestMessage = "Hello message to test AES key integrity"

// ErrInvalidCiphertext is returned by Decrypt for inputs that were not
// produced by Encrypt with the same key.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// KeyProvider encrypts and decrypts secret values with a single AES-GCM key.
type KeyProvider struct {
	aead cipher.AEAD
}

var _ interfaces.Cipher = (*KeyProvider)(nil)

// NewKeyProvider creates a provider for a raw 32-byte key.
func NewKeyProvider(key []byte) (*KeyProvider, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", interfaces.ErrKeyIntegrity, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &KeyProvider{aead: aead}, nil
}

// LoadOrGenerate loads the key from backend, or generates and stores a new
// one if the backend has none, then runs the self-test.
func LoadOrGenerate(ctx context.Context, backend keystore.Backend, log *slog.Logger) (*KeyProvider, error) {
	key, err := backend.Load(ctx)
	switch {
	case errors.Is(err, keystore.ErrKeyNotFound):
		log.Warn("No storage key found, generating a new one", slog.String("location", backend.LocationURI()))
		key, err = GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := backend.Store(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to persist storage key: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load storage key from %s: %w", backend.Name(), err)
	default:
		log.Info("Loaded storage key", slog.String("location", backend.LocationURI()))
	}

	provider, err := NewKeyProvider(key)
	if err != nil {
		return nil, err
	}
	if err := provider.SelfTest(); err != nil {
		return nil, err
	}
	return provider, nil
}

// GenerateKey returns a fresh random storage key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate storage key: %w", err)
	}
	return key, nil
}

// SelfTest checks that a known message survives an encrypt/decrypt round trip.
func (p *KeyProvider) SelfTest() error {
	ciphertext, err := p.Encrypt(SelfTestMessage)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrKeyIntegrity, err)
	}
	plaintext, err := p.Decrypt(ciphertext)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrKeyIntegrity, err)
	}
	if plaintext != SelfTestMessage {
		return fmt.Errorf("%w: decrypted message does not match", interfaces.ErrKeyIntegrity)
	}
	return nil
}

// Encrypt seals plaintext with a random nonce.
func (p *KeyProvider) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := p.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (p *KeyProvider) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	nonceSize := p.aead.NonceSize()
	if len(raw) < nonceSize+p.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	plaintext, err := p.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return string(plaintext), nil
}
