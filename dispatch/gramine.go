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

// GramineService is one enclave stage in a Gramine SPS session.
type GramineService struct {
	Name        string            `json:"name"`
	Image       string            `json:"image_name"`
	MrEnclave   string            `json:"mrenclave"`
	Command     []string          `json:"command"`
	WorkingDir  string            `json:"pwd,omitempty"`
	Environment map[string]string `json:"environment"`
}

// GramineSession is the JSON document accepted by the SPS.
type GramineSession struct {
	Session  string           `json:"session"`
	Services []GramineService `json:"services"`
}

// GramineDispatcher posts JSON sessions to a Gramine SPS.
type GramineDispatcher struct {
	cfg    GramineConfig
	client *http.Client
	log    *slog.Logger
}

func NewGramineDispatcher(cfg GramineConfig, client *http.Client, log *slog.Logger) (*GramineDispatcher, error) {
	if _, err := url.ParseRequestURI(cfg.SpsURL); err != nil {
		return nil, fmt.Errorf("invalid SPS url %q: %w", cfg.SpsURL, err)
	}
	return &GramineDispatcher{cfg: cfg, client: client, log: log}, nil
}

func (d *GramineDispatcher) Framework() interfaces.TeeFramework {
	return interfaces.FrameworkGramine
}

// Render produces the SPS session document of a descriptor.
func (d *GramineDispatcher) Render(descriptor *interfaces.SessionDescriptor) ([]byte, error) {
	session := GramineSession{Session: descriptor.SessionID}
	for _, svc := range descriptor.Services {
		env := svc.Environment
		if env == nil {
			env = map[string]string{}
		}
		session.Services = append(session.Services, GramineService{
			Name:        string(svc.Stage),
			Image:       svc.Image,
			MrEnclave:   svc.Fingerprint,
			Command:     svc.Command,
			WorkingDir:  svc.WorkingDir,
			Environment: env,
		})
	}
	return json.Marshal(session)
}

// Post uploads the session to {sps}/api/session/.
func (d *GramineDispatcher) Post(ctx context.Context, descriptor *interfaces.SessionDescriptor) (*interfaces.AccessHandle, error) {
	doc, err := d.Render(descriptor)
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkGramine, Err: err}
	}

	endpoint, err := url.JoinPath(d.cfg.SpsURL, "api", "session/")
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkGramine, Err: err}
	}

	if _, err := post(ctx, d.client, interfaces.FrameworkGramine, request{
		url:         endpoint,
		contentType: "application/json",
		body:        doc,
		user:        d.cfg.User,
		password:    d.cfg.Password,
	}); err != nil {
		d.log.Error("SPS rejected session", slog.String("session", descriptor.SessionID), "err", err)
		return nil, err
	}

	d.log.Info("Session uploaded to SPS",
		slog.String("session", descriptor.SessionID),
		slog.String("task", descriptor.TaskID))

	return &interfaces.AccessHandle{
		Framework: interfaces.FrameworkGramine,
		SessionID: descriptor.SessionID,
	}, nil
}
