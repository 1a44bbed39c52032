package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ruteri/tee-secret-management/interfaces"
)

// TDXSessionVersion tags the session format understood by the storage API.
const TDXSessionVersion = "v1"

// TDXService is one stage of a TDX session.
type TDXService struct {
	Name        string            `json:"name"`
	Image       string            `json:"image_name"`
	Fingerprint string            `json:"fingerprint"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment"`
}

// TDXSession is the versioned document stored for a TDX task.
type TDXSession struct {
	Version string `json:"version"`
	Session struct {
		ID       string       `json:"id"`
		TaskID   string       `json:"taskId"`
		Services []TDXService `json:"services"`
	} `json:"session"`
}

// TDXDispatcher stores sessions in the TDX session storage API.
type TDXDispatcher struct {
	cfg    TDXConfig
	client *http.Client
	log    *slog.Logger
}

func NewTDXDispatcher(cfg TDXConfig, client *http.Client, log *slog.Logger) (*TDXDispatcher, error) {
	if _, err := url.ParseRequestURI(cfg.StorageURL); err != nil {
		return nil, fmt.Errorf("invalid session storage url %q: %w", cfg.StorageURL, err)
	}
	if _, err := url.ParseRequestURI(cfg.AttestationURL); err != nil {
		return nil, fmt.Errorf("invalid attestation url %q: %w", cfg.AttestationURL, err)
	}
	return &TDXDispatcher{cfg: cfg, client: client, log: log}, nil
}

func (d *TDXDispatcher) Framework() interfaces.TeeFramework {
	return interfaces.FrameworkTDX
}

func (d *TDXDispatcher) Render(descriptor *interfaces.SessionDescriptor) ([]byte, error) {
	var doc TDXSession
	doc.Version = TDXSessionVersion
	doc.Session.ID = descriptor.SessionID
	doc.Session.TaskID = descriptor.TaskID
	for _, svc := range descriptor.Services {
		env := svc.Environment
		if env == nil {
			env = map[string]string{}
		}
		doc.Session.Services = append(doc.Session.Services, TDXService{
			Name:        string(svc.Stage),
			Image:       svc.Image,
			Fingerprint: svc.Fingerprint,
			Command:     svc.Command,
			Environment: env,
		})
	}
	return json.Marshal(doc)
}

// Post stores the session under {storage}/api/v1/sessions and returns the
// attestation URL workers query for it.
func (d *TDXDispatcher) Post(ctx context.Context, descriptor *interfaces.SessionDescriptor) (*interfaces.AccessHandle, error) {
	doc, err := d.Render(descriptor)
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkTDX, Err: err}
	}

	endpoint, err := url.JoinPath(d.cfg.StorageURL, "api", "v1", "sessions")
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkTDX, Err: err}
	}
	attestationURL, err := url.JoinPath(d.cfg.AttestationURL, "sessions", descriptor.SessionID)
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkTDX, Err: err}
	}

	if _, err := post(ctx, d.client, interfaces.FrameworkTDX, request{
		url:         endpoint,
		contentType: "application/json",
		body:        doc,
	}); err != nil {
		d.log.Error("Session storage rejected session", slog.String("session", descriptor.SessionID), "err", err)
		return nil, err
	}

	d.log.Info("Session stored",
		slog.String("session", descriptor.SessionID),
		slog.String("task", descriptor.TaskID),
		slog.String("attestation", attestationURL))

	return &interfaces.AccessHandle{
		Framework:      interfaces.FrameworkTDX,
		SessionID:      descriptor.SessionID,
		AttestationURL: attestationURL,
	}, nil
}
