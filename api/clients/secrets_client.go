package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-secret-management/api"
	"github.com/ruteri/tee-secret-management/cryptoutils"
	"github.com/ruteri/tee-secret-management/interfaces"
)

// ErrConflict is returned when adding a secret whose stored value differs.
var ErrConflict = errors.New("secret already exists")

// SecretsClient talks to the secret management API on behalf of one
// Ethereum account.
type SecretsClient struct {
	baseURL    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewSecretsClient creates a client. privateKey may be nil for clients that
// only check existence or request enclave challenges.
func NewSecretsClient(baseURL string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *SecretsClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &SecretsClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Address returns the account address of the client key.
func (c *SecretsClient) Address() common.Address {
	if c.privateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.privateKey.PublicKey)
}

func (c *SecretsClient) sign(hash common.Hash) (string, error) {
	if c.privateKey == nil {
		return "", errors.New("client has no signing key")
	}
	return cryptoutils.SignHash(hash, c.privateKey)
}

func (c *SecretsClient) do(ctx context.Context, method, path string, query url.Values, signature string, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if signature != "" {
		req.Header.Set(api.AuthorizationHeader, signature)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	return resp, nil
}

// statusError converts a non-success answer into an error wrapping the
// matching interfaces sentinel.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var parsed api.ErrorResponse
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		message = parsed.Error
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return interfaces.ErrUnauthorized
	case http.StatusNotFound:
		return interfaces.ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return fmt.Errorf("request failed with code %d: %s", resp.StatusCode, message)
	}
}

func (c *SecretsClient) exists(ctx context.Context, path string, query url.Values) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, path, query, "", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, statusError(resp)
	}
}

func (c *SecretsClient) write(ctx context.Context, method, path string, query url.Values, hash common.Hash, value string) error {
	signature, err := c.sign(hash)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, method, path, query, signature, []byte(value))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (c *SecretsClient) read(ctx context.Context, path string, query url.Values, hash common.Hash) (string, error) {
	signature, err := c.sign(hash)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodGet, path, query, signature, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}
	var parsed api.SecretResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("could not parse secret response: %w", err)
	}
	return parsed.Value, nil
}

func web2Query(owner common.Address, key string) url.Values {
	return url.Values{"ownerAddress": {owner.Hex()}, "secretName": {key}}
}

// Web2SecretExists checks a user secret of any owner.
func (c *SecretsClient) Web2SecretExists(ctx context.Context, owner common.Address, key string) (bool, error) {
	return c.exists(ctx, "/secrets/web2", web2Query(owner, key))
}

// AddWeb2Secret stores a secret of the client account.
func (c *SecretsClient) AddWeb2Secret(ctx context.Context, key, value string) error {
	owner := c.Address()
	return c.write(ctx, http.MethodPost, "/secrets/web2", web2Query(owner, key),
		cryptoutils.Web2WriteChallenge(owner.Hex(), key, value), value)
}

// UpdateWeb2Secret replaces an existing secret of the client account.
func (c *SecretsClient) UpdateWeb2Secret(ctx context.Context, key, value string) error {
	owner := c.Address()
	return c.write(ctx, http.MethodPut, "/secrets/web2", web2Query(owner, key),
		cryptoutils.Web2WriteChallenge(owner.Hex(), key, value), value)
}

// GetWeb2Secret reads back a secret of the client account.
func (c *SecretsClient) GetWeb2Secret(ctx context.Context, key string) (string, error) {
	owner := c.Address()
	return c.read(ctx, "/secrets/web2", web2Query(owner, key), cryptoutils.Web2ReadChallenge(owner.Hex(), key))
}

// Web3SecretExists checks the secret of an on-chain object.
func (c *SecretsClient) Web3SecretExists(ctx context.Context, address common.Address) (bool, error) {
	return c.exists(ctx, "/secrets/web3", url.Values{"secretAddress": {address.Hex()}})
}

// AddWeb3Secret stores the secret of an on-chain object owned by the client
// account.
func (c *SecretsClient) AddWeb3Secret(ctx context.Context, address common.Address, value string) error {
	return c.write(ctx, http.MethodPost, "/secrets/web3", url.Values{"secretAddress": {address.Hex()}},
		cryptoutils.Web3WriteChallenge(address.Hex(), value), value)
}

// GetWeb3Secret reads back the secret of an on-chain object owned by the
// client account.
func (c *SecretsClient) GetWeb3Secret(ctx context.Context, address common.Address) (string, error) {
	return c.read(ctx, "/secrets/web3", url.Values{"secretAddress": {address.Hex()}},
		cryptoutils.Web3ReadChallenge(address.Hex()))
}

func computePath(app common.Address, index int) string {
	return fmt.Sprintf("/apps/%s/secrets/%d", app.Hex(), index)
}

// ComputeSecretExists checks an app runtime secret.
func (c *SecretsClient) ComputeSecretExists(ctx context.Context, app common.Address, index int) (bool, error) {
	return c.exists(ctx, computePath(app, index), nil)
}

// SetComputeSecret sets a runtime secret of an app owned by the client
// account.
func (c *SecretsClient) SetComputeSecret(ctx context.Context, app common.Address, index int, value string) error {
	return c.write(ctx, http.MethodPost, computePath(app, index), nil,
		cryptoutils.ComputeWriteChallenge(app.Hex(), index, value), value)
}

// EnclaveChallenge returns the enclave challenge address of a task.
func (c *SecretsClient) EnclaveChallenge(ctx context.Context, taskID string) (common.Address, error) {
	resp, err := c.do(ctx, http.MethodPost, "/tee/challenges/"+taskID, nil, "", nil)
	if err != nil {
		return common.Address{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return common.Address{}, statusError(resp)
	}
	var parsed api.ChallengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return common.Address{}, fmt.Errorf("could not parse challenge response: %w", err)
	}
	if !common.IsHexAddress(parsed.Address) {
		return common.Address{}, fmt.Errorf("invalid challenge address %q", parsed.Address)
	}
	return common.HexToAddress(parsed.Address), nil
}

// Framework returns the TEE framework served by the instance.
func (c *SecretsClient) Framework(ctx context.Context) (interfaces.TeeFramework, error) {
	resp, err := c.do(ctx, http.MethodGet, "/tee/framework", nil, "", nil)
	if err != nil {
		return interfaces.FrameworkNone, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return interfaces.FrameworkNone, statusError(resp)
	}
	var parsed api.FrameworkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return interfaces.FrameworkNone, fmt.Errorf("could not parse framework response: %w", err)
	}
	return parsed.Framework, nil
}
