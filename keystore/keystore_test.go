package keystore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys", "master.key")

	backend, err := NewFileBackend(path, slog.Default())
	require.NoError(t, err)

	_, err = backend.Load(ctx)
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, backend.Store(ctx, []byte("0123456789abcdef0123456789abcdef")))

	key, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), key)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, "file://"+path, backend.LocationURI())
}

func TestBackendFor(t *testing.T) {
	dir := t.TempDir()

	testCases := []struct {
		name        string
		uri         string
		wantErr     bool
		wantName    string
		wantURIPart string
	}{
		{name: "plain path", uri: filepath.Join(dir, "a.key"), wantName: "file-a.key"},
		{name: "file uri", uri: "file://" + filepath.Join(dir, "b.key"), wantName: "file-b.key"},
		{name: "s3 with credentials", uri: "s3://AK:SK@bucket/sms/master.key?region=eu-west-1", wantName: "s3-bucket", wantURIPart: "AK:***@"},
		{name: "s3 without object", uri: "s3://bucket", wantErr: true},
		{name: "vault", uri: "vault://127.0.0.1:8200/secret/sms/master", wantName: "vault-secret", wantURIPart: "127.0.0.1:8200/secret/sms/master"},
		{name: "vault without path", uri: "vault://127.0.0.1:8200/secret", wantErr: true},
		{name: "unsupported", uri: "ipfs://localhost:5001/key", wantErr: true},
		{name: "empty", uri: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend, err := BackendFor(tc.uri, slog.Default())
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidLocationURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, backend.Name())
			assert.Contains(t, backend.LocationURI(), tc.wantURIPart)
			assert.NotContains(t, backend.LocationURI(), "SK")
		})
	}
}
