package interfaces

import (
	"fmt"
	"strconv"
)

// Reserved web2 secret keys.
const (
	ResultEncryptionPublicKey = "iexec-result-encryption-public-key"
	IpfsResultStorageToken    = "iexec-result-iexec-ipfs-token"
	DropboxResultStorageToken = "iexec-result-dropbox-token"
)

// AppDeveloperSecretIndex is the compute secret index reserved for the
// application developer.
const AppDeveloperSecretIndex = 1

// Cipher encrypts and decrypts secret material at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SecretHeader identifies a stored secret.
type SecretHeader interface {
	comparable
	// CacheKey returns a key unique across secret kinds.
	CacheKey() string
	String() string
}

// Web2SecretHeader identifies a user secret by owner and free-form key.
type Web2SecretHeader struct {
	OwnerAddress string
	Key          string
}

// NewWeb2SecretHeader returns a header with a canonical owner address.
func NewWeb2SecretHeader(ownerAddress, key string) Web2SecretHeader {
	return Web2SecretHeader{OwnerAddress: CanonicalAddress(ownerAddress), Key: key}
}

func (h Web2SecretHeader) CacheKey() string {
	return "web2|" + h.OwnerAddress + "|" + h.Key
}

func (h Web2SecretHeader) String() string {
	return fmt.Sprintf("web2[owner=%s key=%s]", h.OwnerAddress, h.Key)
}

// Web3SecretHeader identifies a secret bound to an on-chain object, such as
// a dataset.
type Web3SecretHeader struct {
	Address string
}

// NewWeb3SecretHeader returns a header with a canonical address.
func NewWeb3SecretHeader(address string) Web3SecretHeader {
	return Web3SecretHeader{Address: CanonicalAddress(address)}
}

func (h Web3SecretHeader) CacheKey() string {
	return "web3|" + h.Address
}

func (h Web3SecretHeader) String() string {
	return fmt.Sprintf("web3[address=%s]", h.Address)
}

// ComputeSecretHeader identifies an application runtime secret by app
// address and index.
type ComputeSecretHeader struct {
	AppAddress string
	Index      int
}

// NewComputeSecretHeader returns a header with a canonical app address.
func NewComputeSecretHeader(appAddress string, index int) ComputeSecretHeader {
	return ComputeSecretHeader{AppAddress: CanonicalAddress(appAddress), Index: index}
}

func (h ComputeSecretHeader) CacheKey() string {
	return "compute|" + h.AppAddress + "|" + strconv.Itoa(h.Index)
}

func (h ComputeSecretHeader) String() string {
	return fmt.Sprintf("compute[app=%s index=%d]", h.AppAddress, h.Index)
}

// Secret is a header and a value. IsEncryptedValue tells which
// representation Value currently holds.
type Secret[H SecretHeader] struct {
	Header           H
	Value            string
	IsEncryptedValue bool
}

// Encrypt replaces a plaintext value with its ciphertext.
func (s *Secret[H]) Encrypt(c Cipher) error {
	if s.IsEncryptedValue {
		return fmt.Errorf("%s: %w", s.Header, ErrAlreadyEncrypted)
	}
	ciphertext, err := c.Encrypt(s.Value)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", s.Header, err)
	}
	s.Value = ciphertext
	s.IsEncryptedValue = true
	return nil
}

// Decrypt replaces an encrypted value with its plaintext.
func (s *Secret[H]) Decrypt(c Cipher) error {
	if !s.IsEncryptedValue {
		return fmt.Errorf("%s: %w", s.Header, ErrAlreadyDecrypted)
	}
	plaintext, err := c.Decrypt(s.Value)
	if err != nil {
		return fmt.Errorf("decrypting %s: %w", s.Header, err)
	}
	s.Value = plaintext
	s.IsEncryptedValue = false
	return nil
}

// EphemeralCredential is the enclave challenge identity of a task.
type EphemeralCredential struct {
	TaskID      string
	Address     string
	PrivateKey  string
	IsEncrypted bool
}

// Encrypt replaces a plaintext private key with its ciphertext.
func (c *EphemeralCredential) Encrypt(cipher Cipher) error {
	if c.IsEncrypted {
		return fmt.Errorf("challenge of task %s: %w", c.TaskID, ErrAlreadyEncrypted)
	}
	ciphertext, err := cipher.Encrypt(c.PrivateKey)
	if err != nil {
		return fmt.Errorf("encrypting challenge of task %s: %w", c.TaskID, err)
	}
	c.PrivateKey = ciphertext
	c.IsEncrypted = true
	return nil
}

// Decrypt replaces an encrypted private key with its plaintext.
func (c *EphemeralCredential) Decrypt(cipher Cipher) error {
	if !c.IsEncrypted {
		return fmt.Errorf("challenge of task %s: %w", c.TaskID, ErrAlreadyDecrypted)
	}
	plaintext, err := cipher.Decrypt(c.PrivateKey)
	if err != nil {
		return fmt.Errorf("decrypting challenge of task %s: %w", c.TaskID, err)
	}
	c.PrivateKey = plaintext
	c.IsEncrypted = false
	return nil
}
