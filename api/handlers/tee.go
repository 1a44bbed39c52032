package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-secret-management/api"
	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/ruteri/tee-secret-management/session"
)

// maxBodySize is the maximum allowed JSON request body size (1MB).
const maxBodySize = 1024 * 1024

// ChallengeAuthorizer checks enclave challenge requests.
type ChallengeAuthorizer interface {
	CheckChallengeRequest(ctx context.Context, taskID string) error
}

// ChallengeIssuer returns the enclave challenge of a task, creating it on
// first use.
type ChallengeIssuer interface {
	GetOrCreate(ctx context.Context, taskID string, decrypt bool) (*interfaces.EphemeralCredential, error)
}

// SessionProvisioner authorizes and provisions task sessions.
type SessionProvisioner interface {
	Framework() interfaces.TeeFramework
	Generate(ctx context.Context, req interfaces.SessionRequest) (*interfaces.AccessHandle, error)
	StandardTaskSecrets(ctx context.Context, req interfaces.SessionRequest) (*session.StandardTaskSecrets, error)
}

// TeeHandler serves the worker facing endpoints.
type TeeHandler struct {
	gate       ChallengeAuthorizer
	challenges ChallengeIssuer
	sessions   SessionProvisioner
	log        *slog.Logger
}

func NewTeeHandler(gate ChallengeAuthorizer, challenges ChallengeIssuer, sessions SessionProvisioner, log *slog.Logger) *TeeHandler {
	return &TeeHandler{gate: gate, challenges: challenges, sessions: sessions, log: log}
}

func (h *TeeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tee/framework", h.HandleFramework)
	r.Post("/tee/challenges/{taskId}", h.HandleChallenge)
	r.Post("/tee/sessions", h.HandleSession)
	r.Post("/untee/secrets", h.HandleStandardTaskSecrets)
}

// HandleFramework names the TEE framework sessions are provisioned for.
//
// URL format: GET /tee/framework
func (h *TeeHandler) HandleFramework(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, api.FrameworkResponse{Framework: h.sessions.Framework()})
}

// HandleChallenge returns the enclave challenge address of a task, creating
// the challenge on first request. The private key never leaves the service
// through this endpoint.
//
// URL format: POST /tee/challenges/{taskId}
func (h *TeeHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	if err := h.gate.CheckChallengeRequest(r.Context(), taskID); err != nil {
		writeError(w, h.log, err)
		return
	}

	cred, err := h.challenges.GetOrCreate(r.Context(), taskID, false)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, api.ChallengeResponse{TaskID: cred.TaskID, Address: cred.Address})
}

func (h *TeeHandler) decodeAuthorization(w http.ResponseWriter, r *http.Request) (api.WorkerpoolAuthorization, bool) {
	var authorization api.WorkerpoolAuthorization
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&authorization); err != nil {
		h.log.Debug("Invalid workerpool authorization", "err", err)
		badRequest(w, h.log, "invalid workerpool authorization")
		return authorization, false
	}
	return authorization, true
}

// HandleSession provisions the enclave session of a TEE task.
//
// URL format: POST /tee/sessions
//
// Request body: JSON, see api.WorkerpoolAuthorization
// Authorization header: worker signature of the workerpool authorization hash
//
// Response: JSON, see api.SessionResponse
func (h *TeeHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	authorization, ok := h.decodeAuthorization(w, r)
	if !ok {
		return
	}

	handle, err := h.sessions.Generate(r.Context(), authorization.SessionRequest(signature(r)))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, handle)
}

// HandleStandardTaskSecrets returns the result secrets of a task running
// outside of an enclave.
//
// URL format: POST /untee/secrets
//
// Request body: JSON, see api.WorkerpoolAuthorization
// Authorization header: optional worker signature
func (h *TeeHandler) HandleStandardTaskSecrets(w http.ResponseWriter, r *http.Request) {
	authorization, ok := h.decodeAuthorization(w, r)
	if !ok {
		return
	}

	secrets, err := h.sessions.StandardTaskSecrets(r.Context(), authorization.SessionRequest(signature(r)))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, api.StandardTaskSecretsResponse{
		ResultStorageProvider:     secrets.ResultStorageProvider,
		ResultStorageProxy:        secrets.ResultStorageProxy,
		ResultStorageToken:        secrets.ResultStorageToken,
		ResultEncryptionPublicKey: secrets.ResultEncryptionPublicKey,
	})
}
