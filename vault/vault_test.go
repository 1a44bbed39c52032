package vault

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/ruteri/tee-secret-management/kms"
	"github.com/ruteri/tee-secret-management/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0xABCDEF0000000000000000000000000000000001"

type testEnv struct {
	store   *store.Store
	shared  *Shared
	metrics *Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "sms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	key, err := kms.GenerateKey()
	require.NoError(t, err)
	provider, err := kms.NewKeyProvider(key)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)
	metrics := NewMetrics(&fac, "sms", "vault")

	return &testEnv{store: s, shared: NewShared(provider, metrics, slog.Default()), metrics: metrics}
}

func TestWeb2AddExistsGet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := NewWeb2(env.store.Web2Secrets(), env.shared)
	header := interfaces.NewWeb2SecretHeader(owner, "api-key")

	exists, err := v.Exists(ctx, header)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = v.Get(ctx, header, true)
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	added, err := v.Add(ctx, header, "s3cr3t")
	require.NoError(t, err)
	assert.True(t, added)

	exists, err = v.Exists(ctx, interfaces.NewWeb2SecretHeader(header.OwnerAddress, "api-key"))
	require.NoError(t, err)
	assert.True(t, exists)

	encrypted, err := v.Get(ctx, header, false)
	require.NoError(t, err)
	assert.True(t, encrypted.IsEncryptedValue)
	assert.NotEqual(t, "s3cr3t", encrypted.Value)

	decrypted, err := v.Get(ctx, header, true)
	require.NoError(t, err)
	assert.False(t, decrypted.IsEncryptedValue)
	assert.Equal(t, "s3cr3t", decrypted.Value)

	// Decrypting twice is an invariant violation.
	require.ErrorIs(t, decrypted.Decrypt(env.shared.Cipher), interfaces.ErrAlreadyDecrypted)
}

func TestAddIsIdempotentReject(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := NewWeb3(env.store.Web3Secrets(), env.shared)
	header := interfaces.NewWeb3SecretHeader(owner)

	added, err := v.Add(ctx, header, "key|tag")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = v.Add(ctx, header, "key|tag")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = v.Add(ctx, header, "other|tag")
	require.ErrorIs(t, err, interfaces.ErrAlreadyExists)
	assert.False(t, added)

	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.added.WithLabelValues(KindWeb3)))
	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.stored.WithLabelValues(KindWeb3)))

	secret, err := v.Get(ctx, header, true)
	require.NoError(t, err)
	assert.Equal(t, "key|tag", secret.Value)
}

func TestStoredGaugeCountsFirstObservation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	table := env.store.Web3Secrets()
	header := interfaces.NewWeb3SecretHeader(owner)

	// Written before this process started.
	secret := &interfaces.Secret[interfaces.Web3SecretHeader]{Header: header, Value: "v"}
	require.NoError(t, secret.Encrypt(env.shared.Cipher))
	_, err := table.Insert(ctx, secret)
	require.NoError(t, err)

	v := NewWeb3(table, env.shared)
	for i := 0; i < 3; i++ {
		exists, err := v.Exists(ctx, header)
		require.NoError(t, err)
		assert.True(t, exists)
	}

	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.stored.WithLabelValues(KindWeb3)))
	assert.Equal(t, float64(0), promtest.ToFloat64(env.metrics.added.WithLabelValues(KindWeb3)))
}

func TestComputeAddIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := NewCompute(env.store.ComputeSecrets(), env.shared)
	header := interfaces.NewComputeSecretHeader(owner, interfaces.AppDeveloperSecretIndex)

	added, err := v.Add(ctx, header, "v1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = v.Add(ctx, header, "v2")
	require.NoError(t, err)
	assert.True(t, added)

	// Setting the current value again writes nothing and is not an update.
	before, err := env.store.ComputeSecrets().Find(ctx, header)
	require.NoError(t, err)
	added, err = v.Add(ctx, header, "v2")
	require.NoError(t, err)
	assert.False(t, added)
	after, err := env.store.ComputeSecrets().Find(ctx, header)
	require.NoError(t, err)
	assert.Equal(t, before.Value, after.Value)

	secret, err := v.Get(ctx, header, true)
	require.NoError(t, err)
	assert.Equal(t, "v2", secret.Value)

	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.added.WithLabelValues(KindCompute)))
	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.updated.WithLabelValues(KindCompute)))
	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.stored.WithLabelValues(KindCompute)))
}

func TestWeb2Update(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := NewWeb2(env.store.Web2Secrets(), env.shared)
	header := interfaces.NewWeb2SecretHeader(owner, "token")

	require.ErrorIs(t, v.Update(ctx, header, "v1"), interfaces.ErrNotFound)

	_, err := v.Add(ctx, header, "v1")
	require.NoError(t, err)
	require.NoError(t, v.Update(ctx, header, "v2"))

	secret, err := v.Get(ctx, header, true)
	require.NoError(t, err)
	assert.Equal(t, "v2", secret.Value)
}

func TestGetFailsOnUndecryptableValue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	table := env.store.Web3Secrets()
	header := interfaces.NewWeb3SecretHeader(owner)

	_, err := table.Insert(ctx, &interfaces.Secret[interfaces.Web3SecretHeader]{Header: header, Value: "garbage", IsEncryptedValue: true})
	require.NoError(t, err)

	v := NewWeb3(table, env.shared)
	_, err = v.Get(ctx, header, true)
	require.ErrorIs(t, err, kms.ErrInvalidCiphertext)

	// Reading without decryption still works.
	secret, err := v.Get(ctx, header, false)
	require.NoError(t, err)
	assert.Equal(t, "garbage", secret.Value)
}

func TestConcurrentAddSingleInsert(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v := NewWeb2(env.store.Web2Secrets(), env.shared)
	header := interfaces.NewWeb2SecretHeader(owner, "race")

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := v.Add(ctx, header, "value")
			assert.NoError(t, err)
			if added {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.added.WithLabelValues(KindWeb2)))
	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.stored.WithLabelValues(KindWeb2)))
}

func TestNilMetrics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	shared := NewShared(env.shared.Cipher, NewMetrics(nil, "sms", "vault"), slog.Default())
	v := NewWeb3(env.store.Web3Secrets(), shared)

	added, err := v.Add(ctx, interfaces.NewWeb3SecretHeader(owner), "v")
	require.NoError(t, err)
	assert.True(t, added)
}
