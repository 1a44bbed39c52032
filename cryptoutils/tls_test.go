package cryptoutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientTLSConfig(t *testing.T) {
	_, certPEM, keyPEM, err := RandomCert("localhost")
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "client.crt")
	keyFile := filepath.Join(dir, "client.key")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	cfg, err := NewClientTLSConfig(ClientTLSOpts{CertFile: certFile, KeyFile: keyFile, CAFile: certFile})
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	require.NotNil(t, cfg.RootCAs)

	_, err = NewClientTLSConfig(ClientTLSOpts{CertFile: certFile})
	require.Error(t, err)

	_, err = NewClientTLSConfig(ClientTLSOpts{CAFile: keyFile})
	require.Error(t, err)

	cfg, err = NewClientTLSConfig(ClientTLSOpts{})
	require.NoError(t, err)
	require.Empty(t, cfg.Certificates)
}
