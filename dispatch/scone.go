package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"text/template"

	"github.com/ruteri/tee-secret-management/interfaces"
	"gopkg.in/yaml.v3"
)

// SconeSessionVersion is the CAS session format version.
const SconeSessionVersion = "0.3.10"

const sconeSessionTemplate = `name: {{ quote .Name }}
version: {{ quote .Version }}
access_policy:
  read:
    - CREATOR
  update:
    - CREATOR
services:
{{- range .Services }}
  - name: {{ quote .Name }}
    image_name: {{ quote .ImageName }}
    mrenclaves:
      - {{ quote .MrEnclave }}
    pwd: {{ quote .WorkingDir }}
    command: {{ quote .Command }}
    environment:
{{- range .Environment }}
      {{ quote .Key }}: {{ quote .Value }}
{{- end }}
{{- if .VolumeKey }}
    fspf_path: /fspf.pb
    fspf_key: {{ quote .VolumeKey }}
    fspf_tag: {{ quote .VolumeTag }}
{{- end }}
{{- end }}
images:
{{- range .Services }}
  - name: {{ quote .ImageName }}
    volumes:
      - name: iexec_in
        path: /iexec_in
      - name: iexec_out
        path: /iexec_out
{{- end }}
volumes:
  - name: iexec_in
  - name: iexec_out
security:
  attestation:
    tolerate: [{{ join .Tolerate }}]
    ignore_advisories: [{{ join .IgnoreAdvisories }}]
`

type sconeEnv struct {
	Key   string
	Value string
}

type sconeService struct {
	Name        string
	ImageName   string
	MrEnclave   string
	WorkingDir  string
	Command     string
	Environment []sconeEnv
	VolumeKey   string
	VolumeTag   string
}

type sconeSession struct {
	Name             string
	Version          string
	Services         []sconeService
	Tolerate         []string
	IgnoreAdvisories []string
}

// quote renders a string as a double-quoted scalar. JSON strings are valid
// YAML scalars.
func quote(s string) (string, error) {
	b, err := json.Marshal(s)
	return string(b), err
}

func joinQuoted(items []string) (string, error) {
	quoted := make([]string, len(items))
	for i, item := range items {
		q, err := quote(item)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, ", "), nil
}

// SconeDispatcher posts YAML sessions to a SCONE CAS over mutual TLS.
type SconeDispatcher struct {
	cfg    SconeConfig
	client *http.Client
	tmpl   *template.Template
	log    *slog.Logger
}

// NewSconeDispatcher creates a dispatcher using client, which must carry the
// CAS client certificate.
func NewSconeDispatcher(cfg SconeConfig, client *http.Client, log *slog.Logger) (*SconeDispatcher, error) {
	if _, err := url.ParseRequestURI(cfg.CasURL); err != nil {
		return nil, fmt.Errorf("invalid CAS url %q: %w", cfg.CasURL, err)
	}
	tmpl, err := template.New("scone-session").
		Funcs(template.FuncMap{"quote": quote, "join": joinQuoted}).
		Parse(sconeSessionTemplate)
	if err != nil {
		return nil, err
	}
	return &SconeDispatcher{cfg: cfg, client: client, tmpl: tmpl, log: log}, nil
}

func (d *SconeDispatcher) Framework() interfaces.TeeFramework {
	return interfaces.FrameworkScone
}

// Render produces the YAML session document of a descriptor.
func (d *SconeDispatcher) Render(descriptor *interfaces.SessionDescriptor) ([]byte, error) {
	session := sconeSession{
		Name:             descriptor.SessionID,
		Version:          SconeSessionVersion,
		Tolerate:         d.cfg.Tolerate,
		IgnoreAdvisories: d.cfg.IgnoreAdvisories,
	}
	for _, svc := range descriptor.Services {
		session.Services = append(session.Services, sconeService{
			Name:        string(svc.Stage),
			ImageName:   svc.Image,
			MrEnclave:   svc.Fingerprint,
			WorkingDir:  svc.WorkingDir,
			Command:     strings.Join(svc.Command, " "),
			Environment: sortedEnv(svc.Environment),
			VolumeKey:   svc.VolumeKey,
			VolumeTag:   svc.VolumeTag,
		})
	}

	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, session); err != nil {
		return nil, err
	}

	// Values come from requesters; a document that does not parse back must
	// never reach the CAS.
	var check map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &check); err != nil {
		return nil, fmt.Errorf("rendered session is not valid YAML: %w", err)
	}
	return buf.Bytes(), nil
}

type sconeResponse struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// Post uploads the session to {cas}/session. CAS names a session after the
// name field of the uploaded document; the handle carries the name CAS
// answers with, falling back to that document name, and the session hash
// CAS computed. A response body that is not a CAS session reply fails the
// upload.
func (d *SconeDispatcher) Post(ctx context.Context, descriptor *interfaces.SessionDescriptor) (*interfaces.AccessHandle, error) {
	doc, err := d.Render(descriptor)
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkScone, Err: err}
	}

	endpoint, err := url.JoinPath(d.cfg.CasURL, "session")
	if err != nil {
		return nil, &interfaces.BackendProvisioningError{Framework: interfaces.FrameworkScone, Err: err}
	}

	body, err := post(ctx, d.client, interfaces.FrameworkScone, request{
		url:         endpoint,
		contentType: "application/x-yaml",
		body:        doc,
	})
	if err != nil {
		d.log.Error("CAS rejected session", slog.String("session", descriptor.SessionID), "err", err)
		return nil, err
	}

	var resp sconeResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			d.log.Error("Unexpected CAS response body", slog.String("session", descriptor.SessionID), "err", err)
			return nil, &interfaces.BackendProvisioningError{
				Framework: interfaces.FrameworkScone,
				Err:       fmt.Errorf("decoding CAS response: %w", err),
			}
		}
	}

	sessionID := descriptor.SessionID
	if resp.Name != "" {
		sessionID = resp.Name
	}
	d.log.Info("Session uploaded to CAS",
		slog.String("session", sessionID),
		slog.String("task", descriptor.TaskID),
		slog.String("hash", resp.Hash))

	return &interfaces.AccessHandle{
		Framework:   interfaces.FrameworkScone,
		SessionID:   sessionID,
		SessionHash: resp.Hash,
	}, nil
}

func sortedEnv(env map[string]string) []sconeEnv {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]sconeEnv, len(keys))
	for i, k := range keys {
		out[i] = sconeEnv{Key: k, Value: env[k]}
	}
	return out
}
