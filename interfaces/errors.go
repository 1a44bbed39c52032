package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a request fails any authorization check.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a task, deal or secret does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a write targets an existing secret
	// of a kind that cannot be overwritten.
	ErrAlreadyExists = errors.New("already exists")

	// ErrKeyIntegrity is returned when the storage key fails its self-test.
	// The process must not serve requests after this error.
	ErrKeyIntegrity = errors.New("storage key integrity check failed")

	// ErrAlreadyDecrypted is returned when decrypting a plaintext value.
	ErrAlreadyDecrypted = errors.New("value is not encrypted")

	// ErrAlreadyEncrypted is returned when encrypting an encrypted value.
	ErrAlreadyEncrypted = errors.New("value is already encrypted")
)

// Stage names a compute stage of a session.
type Stage string

const (
	StagePreCompute  Stage = "pre-compute"
	StageAppCompute  Stage = "app-compute"
	StagePostCompute Stage = "post-compute"
)

// InvalidFingerprintError reports an unparseable fingerprint for a stage.
type InvalidFingerprintError struct {
	Stage Stage
	Raw   string
}

func (e *InvalidFingerprintError) Error() string {
	return fmt.Sprintf("invalid %s fingerprint %q", e.Stage, e.Raw)
}

// SessionAssemblyError reports a missing secret or malformed input for a
// required stage.
type SessionAssemblyError struct {
	Stage Stage
	Err   error
}

func (e *SessionAssemblyError) Error() string {
	return fmt.Sprintf("%s session assembly failed: %s", e.Stage, e.Err)
}

func (e *SessionAssemblyError) Unwrap() error {
	return e.Err
}

// BackendProvisioningError reports a failed call to a TEE session backend.
// It is never retried by the service.
type BackendProvisioningError struct {
	Framework  TeeFramework
	StatusCode int
	Err        error
}

func (e *BackendProvisioningError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s session storage call failed with status %d: %s", e.Framework, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s session storage call failed: %s", e.Framework, e.Err)
}

func (e *BackendProvisioningError) Unwrap() error {
	return e.Err
}
