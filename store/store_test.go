package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "sms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func encrypted[H interfaces.SecretHeader](h H, value string) *interfaces.Secret[H] {
	return &interfaces.Secret[H]{Header: h, Value: value, IsEncryptedValue: true}
}

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "sms.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
}

func TestSecretTableInsertFind(t *testing.T) {
	ctx := context.Background()
	table := newTestStore(t).Web2Secrets()
	header := interfaces.NewWeb2SecretHeader("0xABCDEF0000000000000000000000000000000001", "api-key")

	got, err := table.Find(ctx, header)
	require.NoError(t, err)
	assert.Nil(t, got)

	inserted, err := table.Insert(ctx, encrypted(header, "c1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = table.Insert(ctx, encrypted(header, "c2"))
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err = table.Find(ctx, header)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c1", got.Value)
	assert.True(t, got.IsEncryptedValue)

	// Same owner, other key.
	other := interfaces.NewWeb2SecretHeader(header.OwnerAddress, "other")
	inserted, err = table.Insert(ctx, encrypted(other, "c3"))
	require.NoError(t, err)
	assert.True(t, inserted)

	n, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSecretTableRejectsPlaintext(t *testing.T) {
	ctx := context.Background()
	table := newTestStore(t).Web3Secrets()
	secret := &interfaces.Secret[interfaces.Web3SecretHeader]{Header: interfaces.NewWeb3SecretHeader("0x01"), Value: "plain"}

	_, err := table.Insert(ctx, secret)
	require.ErrorIs(t, err, ErrPlaintextValue)
	_, err = table.Update(ctx, secret)
	require.ErrorIs(t, err, ErrPlaintextValue)
	_, _, err = table.Upsert(ctx, secret, nil)
	require.ErrorIs(t, err, ErrPlaintextValue)
}

func TestSecretTableUpdate(t *testing.T) {
	ctx := context.Background()
	table := newTestStore(t).Web3Secrets()
	header := interfaces.NewWeb3SecretHeader("0x0000000000000000000000000000000000000abc")

	updated, err := table.Update(ctx, encrypted(header, "v1"))
	require.NoError(t, err)
	assert.False(t, updated)

	_, err = table.Insert(ctx, encrypted(header, "v1"))
	require.NoError(t, err)

	updated, err = table.Update(ctx, encrypted(header, "v2"))
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := table.Find(ctx, header)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Value)
}

func TestSecretTableUpsert(t *testing.T) {
	ctx := context.Background()
	table := newTestStore(t).ComputeSecrets()
	header := interfaces.NewComputeSecretHeader("0x0000000000000000000000000000000000000def", 1)

	previous, written, err := table.Upsert(ctx, encrypted(header, "v1"), nil)
	require.NoError(t, err)
	assert.True(t, written)
	assert.Nil(t, previous)

	previous, written, err = table.Upsert(ctx, encrypted(header, "v2"), nil)
	require.NoError(t, err)
	assert.True(t, written)
	require.NotNil(t, previous)
	assert.Equal(t, "v1", previous.Value)

	got, err := table.Find(ctx, header)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Value)

	// An unchanged value is left in place.
	keep := func(s *interfaces.Secret[interfaces.ComputeSecretHeader]) bool { return s.Value == "v2" }
	previous, written, err = table.Upsert(ctx, encrypted(header, "v2-reencrypted"), keep)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, "v2", previous.Value)

	got, err = table.Find(ctx, header)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Value)

	// Indexes are independent.
	got, err = table.Find(ctx, interfaces.NewComputeSecretHeader(header.AppAddress, 2))
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentInsertSingleWinner(t *testing.T) {
	ctx := context.Background()
	table := newTestStore(t).Web3Secrets()
	header := interfaces.NewWeb3SecretHeader("0x0000000000000000000000000000000000000001")

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := table.Insert(ctx, encrypted(header, "value"))
			assert.NoError(t, err)
			results <- inserted
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for inserted := range results {
		if inserted {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestChallenges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	taskID := "0x" + "aa"

	got, err := s.FindChallenge(ctx, taskID)
	require.NoError(t, err)
	assert.Nil(t, got)

	cred := &interfaces.EphemeralCredential{TaskID: taskID, Address: "0x01", PrivateKey: "enc1", IsEncrypted: true}
	inserted, err := s.InsertChallenge(ctx, cred)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &interfaces.EphemeralCredential{TaskID: taskID, Address: "0x02", PrivateKey: "enc2", IsEncrypted: true}
	inserted, err = s.InsertChallenge(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err = s.FindChallenge(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "0x01", got.Address)
	assert.Equal(t, "enc1", got.PrivateKey)
	assert.True(t, got.IsEncrypted)

	_, err = s.InsertChallenge(ctx, &interfaces.EphemeralCredential{TaskID: "0xbb", PrivateKey: "plain"})
	require.ErrorIs(t, err, ErrPlaintextValue)

	n, err := s.CountChallenges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
