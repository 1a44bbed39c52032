package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-secret-management/api"
	"github.com/ruteri/tee-secret-management/challenge"
	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/ruteri/tee-secret-management/kms"
	"github.com/ruteri/tee-secret-management/session"
	"github.com/ruteri/tee-secret-management/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTaskID = "0x1111111111111111111111111111111111111111111111111111111111111111"

type stubChallengeGate struct {
	err error
}

func (g stubChallengeGate) CheckChallengeRequest(context.Context, string) error {
	return g.err
}

type stubSessions struct {
	requests []interfaces.SessionRequest
	handle   *interfaces.AccessHandle
	secrets  *session.StandardTaskSecrets
	err      error
}

func (s *stubSessions) Framework() interfaces.TeeFramework { return interfaces.FrameworkGramine }

func (s *stubSessions) Generate(_ context.Context, req interfaces.SessionRequest) (*interfaces.AccessHandle, error) {
	s.requests = append(s.requests, req)
	return s.handle, s.err
}

func (s *stubSessions) StandardTaskSecrets(_ context.Context, req interfaces.SessionRequest) (*session.StandardTaskSecrets, error) {
	s.requests = append(s.requests, req)
	return s.secrets, s.err
}

func newTeeRouter(t *testing.T, gate ChallengeAuthorizer, sessions SessionProvisioner) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.New(filepath.Join(t.TempDir(), "sms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	key, err := kms.GenerateKey()
	require.NoError(t, err)
	provider, err := kms.NewKeyProvider(key)
	require.NoError(t, err)

	router := chi.NewRouter()
	NewTeeHandler(gate, challenge.NewManager(s, provider, logger), sessions, logger).RegisterRoutes(router)
	return router
}

func authorizationBody(t *testing.T) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(api.WorkerpoolAuthorization{
		WorkerWallet:     "0x000000000000000000000000000000000000beef",
		ChainTaskID:      testTaskID,
		EnclaveChallenge: "0x000000000000000000000000000000000000c4a1",
		Signature:        "0xpool",
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestHandleChallengeIsStable(t *testing.T) {
	router := newTeeRouter(t, stubChallengeGate{}, &stubSessions{})

	var addresses []string
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tee/challenges/"+testTaskID, nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp api.ChallengeResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.NotContains(t, rr.Body.String(), "privateKey")
		addresses = append(addresses, resp.Address)
	}
	assert.NotEmpty(t, addresses[0])
	assert.Equal(t, addresses[0], addresses[1])
}

func TestHandleChallengeUnauthorized(t *testing.T) {
	router := newTeeRouter(t, stubChallengeGate{err: fmt.Errorf("%w: not a TEE task", interfaces.ErrUnauthorized)}, &stubSessions{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tee/challenges/"+testTaskID, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotContains(t, rr.Body.String(), "TEE")
}

func TestHandleSession(t *testing.T) {
	sessions := &stubSessions{handle: &interfaces.AccessHandle{Framework: interfaces.FrameworkTDX, SessionID: "abc", AttestationURL: "https://attest/sessions/abc"}}
	router := newTeeRouter(t, stubChallengeGate{}, sessions)

	req := httptest.NewRequest(http.MethodPost, "/tee/sessions", authorizationBody(t))
	req.Header.Set(api.AuthorizationHeader, "0xworker")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"framework":"tdx","sessionId":"abc","attestationUrl":"https://attest/sessions/abc"}`, rr.Body.String())
	require.Len(t, sessions.requests, 1)
	assert.Equal(t, interfaces.SessionRequest{
		TaskID:              testTaskID,
		WorkerAddress:       "0x000000000000000000000000000000000000beef",
		EnclaveChallenge:    "0x000000000000000000000000000000000000c4a1",
		WorkerpoolSignature: "0xpool",
		WorkerSignature:     "0xworker",
	}, sessions.requests[0])
}

func TestHandleSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthorized", fmt.Errorf("%w: invalid worker signature", interfaces.ErrUnauthorized), http.StatusUnauthorized},
		{"task not found", fmt.Errorf("task: %w", interfaces.ErrNotFound), http.StatusNotFound},
		{"missing secret", &interfaces.SessionAssemblyError{Stage: interfaces.StageAppCompute, Err: interfaces.ErrNotFound}, http.StatusUnprocessableEntity},
		{"bad fingerprint", &interfaces.InvalidFingerprintError{Stage: interfaces.StagePreCompute}, http.StatusUnprocessableEntity},
		{"backend", &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkScone, StatusCode: 500, Err: errors.New("boom")}, http.StatusBadGateway},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTeeRouter(t, stubChallengeGate{}, &stubSessions{err: tt.err})
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tee/sessions", authorizationBody(t)))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestHandleSessionInvalidBody(t *testing.T) {
	sessions := &stubSessions{}
	router := newTeeRouter(t, stubChallengeGate{}, sessions)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tee/sessions", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, sessions.requests)
}

func TestHandleStandardTaskSecrets(t *testing.T) {
	sessions := &stubSessions{secrets: &session.StandardTaskSecrets{
		ResultStorageProvider: "ipfs",
		ResultStorageToken:    "token",
	}}
	router := newTeeRouter(t, stubChallengeGate{}, sessions)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/untee/secrets", authorizationBody(t)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"resultStorageProvider":"ipfs","resultStorageToken":"token"}`, rr.Body.String())
	require.Len(t, sessions.requests, 1)
	assert.Empty(t, sessions.requests[0].WorkerSignature)
}

func TestHandleFramework(t *testing.T) {
	router := newTeeRouter(t, stubChallengeGate{}, &stubSessions{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tee/framework", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"framework":"gramine"}`, rr.Body.String())
}
