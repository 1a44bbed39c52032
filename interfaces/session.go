package interfaces

import "context"

// ServiceDescriptor describes one enclave stage of a session.
type ServiceDescriptor struct {
	Name        string
	Stage       Stage
	Image       string
	Fingerprint string
	WorkingDir  string
	Command     []string
	Environment map[string]string
	// VolumeKey and VolumeTag protect the stage file system, when the
	// framework supports it.
	VolumeKey string
	VolumeTag string
}

// SessionDescriptor is the framework-independent description of all enclave
// stages of a task. Services are ordered pre-compute, app-compute,
// post-compute.
type SessionDescriptor struct {
	SessionID string
	TaskID    string
	Framework TeeFramework
	Services  []ServiceDescriptor
}

// Service returns the descriptor of the given stage.
func (d *SessionDescriptor) Service(stage Stage) (*ServiceDescriptor, bool) {
	for i := range d.Services {
		if d.Services[i].Stage == stage {
			return &d.Services[i], true
		}
	}
	return nil, false
}

// AccessHandle is what a worker needs to reach its provisioned session.
type AccessHandle struct {
	Framework      TeeFramework `json:"framework"`
	SessionID      string       `json:"sessionId"`
	SessionHash    string       `json:"sessionHash,omitempty"` // scone only
	AttestationURL string       `json:"attestationUrl,omitempty"`
}

// SessionDispatcher submits a session descriptor to a TEE framework backend.
type SessionDispatcher interface {
	// Post submits the descriptor. Any failure is a *BackendProvisioningError.
	Post(ctx context.Context, descriptor *SessionDescriptor) (*AccessHandle, error)

	// Framework returns the framework served by this dispatcher.
	Framework() TeeFramework
}

// SessionRequest is a worker request to provision the session of a task.
type SessionRequest struct {
	TaskID              string
	WorkerAddress       string
	EnclaveChallenge    string
	WorkerpoolSignature string
	// WorkerSignature is optional for endpoints that only require the
	// workerpool signature.
	WorkerSignature string
}
