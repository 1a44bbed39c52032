// Package dispatch submits session descriptors to TEE framework backends.
//
// Each framework has its own wire format and session-acceptance protocol:
//
//   - scone: a YAML session rendered from a template, posted over mutual TLS
//     to a SCONE Configuration and Attestation Service (CAS)
//   - gramine: a JSON session document posted with basic credentials to a
//     Gramine secret provisioning service (SPS)
//   - tdx: a versioned JSON object posted to a session storage API; the
//     handle is a remote attestation URL
//
// Exactly one dispatcher is constructed at startup by New from the
// configured framework. Backend calls are never retried: any transport error
// or non-2xx answer is returned as *interfaces.BackendProvisioningError.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/tee-secret-management/cryptoutils"
	"github.com/ruteri/tee-secret-management/interfaces"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 30 * time.Second

// maxResponseSize bounds how much of a backend answer is read.
const maxResponseSize = 1 << 20

// Config selects and configures the dispatcher.
type Config struct {
	Framework interfaces.TeeFramework
	Timeout   time.Duration

	Scone   SconeConfig
	Gramine GramineConfig
	TDX     TDXConfig
}

// SconeConfig configures the SCONE CAS client.
type SconeConfig struct {
	CasURL           string
	TLS              cryptoutils.ClientTLSOpts
	Tolerate         []string
	IgnoreAdvisories []string
}

// GramineConfig configures the Gramine SPS client.
type GramineConfig struct {
	SpsURL   string
	User     string
	Password string
}

// TDXConfig configures the TDX session storage client.
type TDXConfig struct {
	StorageURL     string
	AttestationURL string
}

// New constructs the dispatcher of the configured framework.
func New(cfg Config, log *slog.Logger) (interfaces.SessionDispatcher, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	switch cfg.Framework {
	case interfaces.FrameworkScone:
		tlsConfig, err := cryptoutils.NewClientTLSConfig(cfg.Scone.TLS)
		if err != nil {
			return nil, fmt.Errorf("scone: %w", err)
		}
		client := &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		}
		return NewSconeDispatcher(cfg.Scone, client, log)
	case interfaces.FrameworkGramine:
		return NewGramineDispatcher(cfg.Gramine, &http.Client{Timeout: timeout}, log)
	case interfaces.FrameworkTDX:
		return NewTDXDispatcher(cfg.TDX, &http.Client{Timeout: timeout}, log)
	default:
		return nil, fmt.Errorf("unsupported TEE framework %q", cfg.Framework)
	}
}

type request struct {
	url         string
	contentType string
	body        []byte
	user        string
	password    string
}

// post sends req and returns the answer body of a 2xx response.
func post(ctx context.Context, client *http.Client, framework interfaces.TeeFramework, req request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.url, bytes.NewReader(req.body))
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: framework, Err: err}
	}
	httpReq.Header.Set("Content-Type", req.contentType)
	httpReq.Header.Set("Accept", "application/json")
	if req.user != "" {
		httpReq.SetBasicAuth(req.user, req.password)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: framework, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &interfaces.BackendProvisioningError{
			Framework:  framework,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", bytes.TrimSpace(body)),
		}
	}
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: framework, StatusCode: resp.StatusCode, Err: err}
	}
	return body, nil
}
