package api

import (
	"github.com/ruteri/tee-secret-management/interfaces"
)

// AuthorizationHeader carries the caller signature of a request.
const AuthorizationHeader = "Authorization"

// MaxSecretSize bounds the size of a secret value.
const MaxSecretSize = 4096

// WorkerpoolAuthorization is the scheduler-signed authorization a worker
// presents for a task. Signature is by the workerpool owner over
// hash(workerWallet, chainTaskId, enclaveChallenge).
type WorkerpoolAuthorization struct {
	WorkerWallet     string `json:"workerWallet"`
	ChainTaskID      string `json:"chainTaskId"`
	EnclaveChallenge string `json:"enclaveChallenge"`
	Signature        string `json:"signature"`
}

// SessionRequest converts the authorization into a session request signed
// by the worker with workerSignature.
func (a WorkerpoolAuthorization) SessionRequest(workerSignature string) interfaces.SessionRequest {
	return interfaces.SessionRequest{
		TaskID:              a.ChainTaskID,
		WorkerAddress:       a.WorkerWallet,
		EnclaveChallenge:    a.EnclaveChallenge,
		WorkerpoolSignature: a.Signature,
		WorkerSignature:     workerSignature,
	}
}

// SecretResponse is the answer to an authorized secret read.
type SecretResponse struct {
	Value string `json:"value"`
}

// ChallengeResponse is the public address of a task enclave challenge.
type ChallengeResponse struct {
	TaskID  string `json:"taskId"`
	Address string `json:"address"`
}

// FrameworkResponse names the TEE framework served by this instance.
type FrameworkResponse struct {
	Framework interfaces.TeeFramework `json:"framework"`
}

// SessionResponse is the handle of a provisioned session.
type SessionResponse = interfaces.AccessHandle

// StandardTaskSecretsResponse carries the result secrets of a standard task.
type StandardTaskSecretsResponse struct {
	ResultStorageProvider     string `json:"resultStorageProvider,omitempty"`
	ResultStorageProxy        string `json:"resultStorageProxy,omitempty"`
	ResultStorageToken        string `json:"resultStorageToken,omitempty"`
	ResultEncryptionPublicKey string `json:"resultEncryptionPublicKey,omitempty"`
}

// ErrorResponse is the body of non-2xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
}
