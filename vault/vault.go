// Package vault stores secrets encrypted at rest.
//
// A Vault serves one secret kind (web2, web3 or compute) over a persistent
// table. All kinds share one existence cache and one set of metrics. Stored
// values are always encrypted; Get decrypts on request.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ruteri/tee-secret-management/interfaces"
)

// Secret kinds.
const (
	KindWeb2    = "web2"
	KindWeb3    = "web3"
	KindCompute = "compute"
)

// DefaultCacheSize is the default size in bytes of the existence cache.
const DefaultCacheSize = 32 * 1024 * 1024

// Table persists encrypted secrets of one header kind.
type Table[H interfaces.SecretHeader] interface {
	// Find returns nil when no secret exists for header.
	Find(ctx context.Context, header H) (*interfaces.Secret[H], error)
	// Insert returns false when a secret already exists for the header.
	Insert(ctx context.Context, secret *interfaces.Secret[H]) (bool, error)
	// Update returns false when no secret exists for the header.
	Update(ctx context.Context, secret *interfaces.Secret[H]) (bool, error)
	// Upsert returns the secret found under the header, or nil, and whether
	// it wrote. It leaves a found secret in place when unchanged reports true.
	Upsert(ctx context.Context, secret *interfaces.Secret[H], unchanged func(*interfaces.Secret[H]) bool) (*interfaces.Secret[H], bool, error)
}

// Shared holds what every Vault of a process has in common.
type Shared struct {
	Cipher  interfaces.Cipher
	Cache   *fastcache.Cache
	Metrics *Metrics
	Log     *slog.Logger

	// guards the cache check-and-set so the stored gauge counts each
	// header once
	mu sync.Mutex
}

// NewShared creates the shared state with a fresh existence cache.
func NewShared(cipher interfaces.Cipher, metrics *Metrics, log *slog.Logger) *Shared {
	return &Shared{
		Cipher:  cipher,
		Cache:   fastcache.New(DefaultCacheSize),
		Metrics: metrics,
		Log:     log,
	}
}

// Vault stores secrets of one kind.
type Vault[H interfaces.SecretHeader] struct {
	kind   string
	table  Table[H]
	shared *Shared

	// allowOverwrite makes Add replace existing values instead of
	// rejecting them.
	allowOverwrite bool
}

// NewWeb2 returns a vault of user secrets. Existing values are never
// overwritten by Add.
func NewWeb2(table Table[interfaces.Web2SecretHeader], shared *Shared) *Vault[interfaces.Web2SecretHeader] {
	return &Vault[interfaces.Web2SecretHeader]{kind: KindWeb2, table: table, shared: shared}
}

// NewWeb3 returns a vault of address-bound secrets. Existing values are never
// overwritten by Add.
func NewWeb3(table Table[interfaces.Web3SecretHeader], shared *Shared) *Vault[interfaces.Web3SecretHeader] {
	return &Vault[interfaces.Web3SecretHeader]{kind: KindWeb3, table: table, shared: shared}
}

// NewCompute returns a vault of app runtime secrets. Add is last-write-wins.
func NewCompute(table Table[interfaces.ComputeSecretHeader], shared *Shared) *Vault[interfaces.ComputeSecretHeader] {
	return &Vault[interfaces.ComputeSecretHeader]{kind: KindCompute, table: table, shared: shared, allowOverwrite: true}
}

// Kind returns the secret kind served by the vault.
func (v *Vault[H]) Kind() string {
	return v.kind
}

// observe records that a secret exists for header.
func (v *Vault[H]) observe(header H) {
	key := []byte(header.CacheKey())

	v.shared.mu.Lock()
	defer v.shared.mu.Unlock()
	if v.shared.Cache.Has(key) {
		return
	}
	v.shared.Cache.Set(key, []byte{1})
	v.shared.Metrics.incStored(v.kind)
}

// Exists reports whether a secret is stored for header.
func (v *Vault[H]) Exists(ctx context.Context, header H) (bool, error) {
	if v.shared.Cache.Has([]byte(header.CacheKey())) {
		return true, nil
	}

	secret, err := v.table.Find(ctx, header)
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", header, err)
	}
	if secret == nil {
		return false, nil
	}

	v.observe(header)
	return true, nil
}

// Add encrypts and stores value under header and reports whether a write
// happened. Adding the value already stored is a no-op returning false. For
// kinds without overwrite a different existing value is rejected with an
// error wrapping interfaces.ErrAlreadyExists; the compute kind replaces it.
func (v *Vault[H]) Add(ctx context.Context, header H, value string) (bool, error) {
	if !v.allowOverwrite {
		exists, err := v.Exists(ctx, header)
		if err != nil {
			return false, err
		}
		if exists {
			return false, v.checkExisting(ctx, header, value)
		}
	}

	secret := &interfaces.Secret[H]{Header: header, Value: value}
	if err := secret.Encrypt(v.shared.Cipher); err != nil {
		return false, err
	}

	if v.allowOverwrite {
		return v.upsert(ctx, secret, value)
	}

	inserted, err := v.table.Insert(ctx, secret)
	if err != nil {
		return false, fmt.Errorf("storing %s: %w", header, err)
	}
	v.observe(header)
	if !inserted {
		// Lost a race against a concurrent writer.
		return false, v.checkExisting(ctx, header, value)
	}

	v.shared.Metrics.incAdded(v.kind)
	v.shared.Log.Info("Added secret", slog.String("header", header.String()))
	return true, nil
}

// checkExisting returns nil if the secret stored under header holds value.
func (v *Vault[H]) checkExisting(ctx context.Context, header H, value string) error {
	existing, err := v.Get(ctx, header, true)
	if err != nil {
		return err
	}
	if existing.Value != value {
		v.shared.Log.Debug("Secret already exists", slog.String("header", header.String()))
		return fmt.Errorf("%s: %w", header, interfaces.ErrAlreadyExists)
	}
	return nil
}

func (v *Vault[H]) upsert(ctx context.Context, secret *interfaces.Secret[H], plaintext string) (bool, error) {
	unchanged := func(previous *interfaces.Secret[H]) bool {
		if err := previous.Decrypt(v.shared.Cipher); err != nil {
			return false
		}
		return previous.Value == plaintext
	}
	previous, written, err := v.table.Upsert(ctx, secret, unchanged)
	if err != nil {
		return false, fmt.Errorf("storing %s: %w", secret.Header, err)
	}
	v.observe(secret.Header)

	switch {
	case !written:
		return false, nil
	case previous == nil:
		v.shared.Metrics.incAdded(v.kind)
		v.shared.Log.Info("Added secret", slog.String("header", secret.Header.String()))
		return true, nil
	}

	oldHash := "unreadable"
	if !previous.IsEncryptedValue {
		oldHash = valueHash(previous.Value)
	}
	v.shared.Metrics.incUpdated(v.kind)
	v.shared.Log.Info("Updated secret",
		slog.String("header", secret.Header.String()),
		slog.String("oldHash", oldHash),
		slog.String("newHash", valueHash(plaintext)))
	return true, nil
}

// Update replaces the value of an existing secret.
func (v *Vault[H]) Update(ctx context.Context, header H, value string) error {
	previous, err := v.Get(ctx, header, true)
	if err != nil {
		return err
	}

	secret := &interfaces.Secret[H]{Header: header, Value: value}
	if err := secret.Encrypt(v.shared.Cipher); err != nil {
		return err
	}

	updated, err := v.table.Update(ctx, secret)
	if err != nil {
		return fmt.Errorf("updating %s: %w", header, err)
	}
	if !updated {
		return fmt.Errorf("%s: %w", header, interfaces.ErrNotFound)
	}

	v.shared.Metrics.incUpdated(v.kind)
	v.shared.Log.Info("Updated secret",
		slog.String("header", header.String()),
		slog.String("oldHash", valueHash(previous.Value)),
		slog.String("newHash", valueHash(value)))
	return nil
}

// Get returns the secret stored under header, decrypted if decrypt is set.
// It returns an error wrapping interfaces.ErrNotFound if there is none.
func (v *Vault[H]) Get(ctx context.Context, header H, decrypt bool) (*interfaces.Secret[H], error) {
	secret, err := v.table.Find(ctx, header)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", header, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("%s: %w", header, interfaces.ErrNotFound)
	}
	v.observe(header)

	if decrypt && secret.IsEncryptedValue {
		if err := secret.Decrypt(v.shared.Cipher); err != nil {
			return nil, err
		}
	}
	return secret, nil
}

func valueHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
