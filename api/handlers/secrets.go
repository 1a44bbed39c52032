package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-secret-management/api"
	"github.com/ruteri/tee-secret-management/interfaces"
)

// SecretAuthorizer checks owner signatures over secret requests.
type SecretAuthorizer interface {
	CheckWeb2Write(ownerAddress, secretKey, secretValue, signature string) error
	CheckWeb2Read(ownerAddress, secretKey, signature string) error
	CheckWeb3Write(ctx context.Context, secretAddress, secretValue, signature string) error
	CheckWeb3Read(ctx context.Context, secretAddress, signature string) error
	CheckComputeWrite(ctx context.Context, appAddress string, index int, secretValue, signature string) error
}

// SecretStore is the vault of one secret kind.
type SecretStore[H interfaces.SecretHeader] interface {
	Exists(ctx context.Context, header H) (bool, error)
	Add(ctx context.Context, header H, value string) (bool, error)
	Get(ctx context.Context, header H, decrypt bool) (*interfaces.Secret[H], error)
}

// UpdatableSecretStore is a vault that can replace existing values.
type UpdatableSecretStore[H interfaces.SecretHeader] interface {
	SecretStore[H]
	Update(ctx context.Context, header H, value string) error
}

// SecretsHandler serves the secret endpoints.
type SecretsHandler struct {
	gate    SecretAuthorizer
	web2    UpdatableSecretStore[interfaces.Web2SecretHeader]
	web3    SecretStore[interfaces.Web3SecretHeader]
	compute SecretStore[interfaces.ComputeSecretHeader]
	log     *slog.Logger
}

// NewSecretsHandler creates a handler over the three vaults.
func NewSecretsHandler(
	gate SecretAuthorizer,
	web2 UpdatableSecretStore[interfaces.Web2SecretHeader],
	web3 SecretStore[interfaces.Web3SecretHeader],
	compute SecretStore[interfaces.ComputeSecretHeader],
	log *slog.Logger,
) *SecretsHandler {
	return &SecretsHandler{gate: gate, web2: web2, web3: web3, compute: compute, log: log}
}

func (h *SecretsHandler) RegisterRoutes(r chi.Router) {
	r.Head("/secrets/web2", h.HandleWeb2Exists)
	r.Post("/secrets/web2", h.HandleWeb2Add)
	r.Put("/secrets/web2", h.HandleWeb2Update)
	r.Get("/secrets/web2", h.HandleWeb2Get)

	r.Head("/secrets/web3", h.HandleWeb3Exists)
	r.Post("/secrets/web3", h.HandleWeb3Add)
	r.Get("/secrets/web3", h.HandleWeb3Get)

	r.Head("/apps/{appAddress}/secrets/{index}", h.HandleComputeExists)
	r.Post("/apps/{appAddress}/secrets/{index}", h.HandleComputeAdd)
}

func (h *SecretsHandler) web2Header(w http.ResponseWriter, r *http.Request) (interfaces.Web2SecretHeader, bool) {
	owner := r.URL.Query().Get("ownerAddress")
	key := r.URL.Query().Get("secretName")
	if !common.IsHexAddress(owner) {
		badRequest(w, h.log, "invalid owner address")
		return interfaces.Web2SecretHeader{}, false
	}
	if key == "" {
		badRequest(w, h.log, "missing secret name")
		return interfaces.Web2SecretHeader{}, false
	}
	return interfaces.NewWeb2SecretHeader(owner, key), true
}

func (h *SecretsHandler) web3Header(w http.ResponseWriter, r *http.Request) (interfaces.Web3SecretHeader, bool) {
	address := r.URL.Query().Get("secretAddress")
	if !common.IsHexAddress(address) {
		badRequest(w, h.log, "invalid secret address")
		return interfaces.Web3SecretHeader{}, false
	}
	return interfaces.NewWeb3SecretHeader(address), true
}

func (h *SecretsHandler) computeHeader(w http.ResponseWriter, r *http.Request) (interfaces.ComputeSecretHeader, bool) {
	app := chi.URLParam(r, "appAddress")
	if !common.IsHexAddress(app) {
		badRequest(w, h.log, "invalid app address")
		return interfaces.ComputeSecretHeader{}, false
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < interfaces.AppDeveloperSecretIndex {
		badRequest(w, h.log, "invalid secret index")
		return interfaces.ComputeSecretHeader{}, false
	}
	return interfaces.NewComputeSecretHeader(app, index), true
}

// readSecretValue reads the raw request body as a secret value.
func (h *SecretsHandler) readSecretValue(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.MaxSecretSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, h.log, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: fmt.Sprintf("secret exceeds %d bytes", api.MaxSecretSize)})
			return "", false
		}
		badRequest(w, h.log, "failed to read request body")
		return "", false
	}
	if len(body) == 0 {
		badRequest(w, h.log, "empty secret value")
		return "", false
	}
	return string(body), true
}

func signature(r *http.Request) string {
	return r.Header.Get(api.AuthorizationHeader)
}

func (h *SecretsHandler) writeExists(w http.ResponseWriter, exists bool, err error) {
	switch {
	case err != nil:
		h.log.Error("Failed to check secret existence", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	case exists:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// writeAdded answers 204 for a stored or identical value. A different
// existing value is a conflict.
func (h *SecretsHandler) writeAdded(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWeb2Exists answers 204 when the user secret exists, 404 otherwise.
//
// URL format: HEAD /secrets/web2?ownerAddress={address}&secretName={name}
func (h *SecretsHandler) HandleWeb2Exists(w http.ResponseWriter, r *http.Request) {
	header, ok := h.web2Header(w, r)
	if !ok {
		return
	}
	exists, err := h.web2.Exists(r.Context(), header)
	h.writeExists(w, exists, err)
}

// HandleWeb2Add stores a new user secret. The Authorization header must be
// the owner signature of the web2 write challenge.
//
// URL format: POST /secrets/web2?ownerAddress={address}&secretName={name}
func (h *SecretsHandler) HandleWeb2Add(w http.ResponseWriter, r *http.Request) {
	header, ok := h.web2Header(w, r)
	if !ok {
		return
	}
	value, ok := h.readSecretValue(w, r)
	if !ok {
		return
	}
	if err := h.gate.CheckWeb2Write(header.OwnerAddress, header.Key, value, signature(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	_, err := h.web2.Add(r.Context(), header, value)
	h.writeAdded(w, err)
}

// HandleWeb2Update replaces an existing user secret.
//
// URL format: PUT /secrets/web2?ownerAddress={address}&secretName={name}
func (h *SecretsHandler) HandleWeb2Update(w http.ResponseWriter, r *http.Request) {
	header, ok := h.web2Header(w, r)
	if !ok {
		return
	}
	value, ok := h.readSecretValue(w, r)
	if !ok {
		return
	}
	if err := h.gate.CheckWeb2Write(header.OwnerAddress, header.Key, value, signature(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.web2.Update(r.Context(), header, value); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWeb2Get returns a user secret to its owner.
//
// URL format: GET /secrets/web2?ownerAddress={address}&secretName={name}
func (h *SecretsHandler) HandleWeb2Get(w http.ResponseWriter, r *http.Request) {
	header, ok := h.web2Header(w, r)
	if !ok {
		return
	}
	if err := h.gate.CheckWeb2Read(header.OwnerAddress, header.Key, signature(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	secret, err := h.web2.Get(r.Context(), header, true)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, api.SecretResponse{Value: secret.Value})
}

// URL format: HEAD /secrets/web3?secretAddress={address}
func (h *SecretsHandler) HandleWeb3Exists(w http.ResponseWriter, r *http.Request) {
	header, ok := h.web3Header(w, r)
	if !ok {
		return
	}
	exists, err := h.web3.Exists(r.Context(), header)
	h.writeExists(w, exists, err)
}

// HandleWeb3Add stores the secret of an on-chain object, signed by the
// object owner.
//
// URL format: POST /secrets/web3?secretAddress={address}
func (h *SecretsHandler) HandleWeb3Add(w http.ResponseWriter, r *http.Request) {
	header, ok := h.web3Header(w, r)
	if !ok {
		return
	}
	value, ok := h.readSecretValue(w, r)
	if !ok {
		return
	}
	if err := h.gate.CheckWeb3Write(r.Context(), header.Address, value, signature(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	_, err := h.web3.Add(r.Context(), header, value)
	h.writeAdded(w, err)
}

// URL format: GET /secrets/web3?secretAddress={address}
func (h *SecretsHandler) HandleWeb3Get(w http.ResponseWriter, r *http.Request) {
	header, ok := h.web3Header(w, r)
	if !ok {
		return
	}
	if err := h.gate.CheckWeb3Read(r.Context(), header.Address, signature(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	secret, err := h.web3.Get(r.Context(), header, true)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, api.SecretResponse{Value: secret.Value})
}

// URL format: HEAD /apps/{appAddress}/secrets/{index}
func (h *SecretsHandler) HandleComputeExists(w http.ResponseWriter, r *http.Request) {
	header, ok := h.computeHeader(w, r)
	if !ok {
		return
	}
	exists, err := h.compute.Exists(r.Context(), header)
	h.writeExists(w, exists, err)
}

// HandleComputeAdd sets an app runtime secret, signed by the app owner. An
// existing value is replaced.
//
// URL format: POST /apps/{appAddress}/secrets/{index}
func (h *SecretsHandler) HandleComputeAdd(w http.ResponseWriter, r *http.Request) {
	header, ok := h.computeHeader(w, r)
	if !ok {
		return
	}
	value, ok := h.readSecretValue(w, r)
	if !ok {
		return
	}
	if err := h.gate.CheckComputeWrite(r.Context(), header.AppAddress, header.Index, value, signature(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	_, err := h.compute.Add(r.Context(), header, value)
	h.writeAdded(w, err)
}
