package keystore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

const vaultKeyField = "key"

// VaultBackend keeps the key base64-encoded in a HashiCorp Vault KV v2 secret.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault client for address. The token is read by
// the Vault client from VAULT_TOKEN.
func NewVaultBackend(address, mountPath, dataPath string, log *slog.Logger) (*VaultBackend, error) {
	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	if mountPath == "" || dataPath == "" {
		return nil, fmt.Errorf("%w: vault mount and path are required", ErrInvalidLocationURI)
	}

	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

func (b *VaultBackend) secretPath() string {
	return fmt.Sprintf("%s/data/%s", b.mountPath, b.dataPath)
}

func (b *VaultBackend) Load(ctx context.Context) ([]byte, error) {
	path := b.secretPath()

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read key from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrKeyNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, ErrKeyNotFound
	}
	encoded, ok := data[vaultKeyField].(string)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("invalid key format in Vault data at %s", path)
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding in Vault data: %w", err)
	}

	b.log.Debug("Loaded key from Vault", slog.String("path", path))
	return key, nil
}

func (b *VaultBackend) Store(ctx context.Context, key []byte) error {
	path := b.secretPath()

	_, err := b.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": map[string]interface{}{
			vaultKeyField: base64.StdEncoding.EncodeToString(key),
		},
	})
	if err != nil {
		b.log.Error("Failed to write key to Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	b.log.Info("Stored key in Vault", slog.String("path", path))
	return nil
}

func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s", b.mountPath)
}

func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}
