package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/tee-secret-management/interfaces"
)

// Authorizer checks task requests and returns the task and deal it read.
type Authorizer interface {
	CheckTaskRequest(ctx context.Context, req interfaces.SessionRequest, requireTeeTask bool) (*interfaces.Task, *interfaces.Deal, error)
}

// StandardTaskSecrets are the result secrets handed to a worker running a
// task outside of an enclave.
type StandardTaskSecrets struct {
	ResultStorageProvider     string
	ResultStorageProxy        string
	ResultStorageToken        string
	ResultEncryptionPublicKey string
}

// Service provisions sessions.
type Service struct {
	gate       Authorizer
	assembler  *Assembler
	dispatcher interfaces.SessionDispatcher
	log        *slog.Logger
}

// NewService creates a service dispatching to the single configured backend.
func NewService(gate Authorizer, assembler *Assembler, dispatcher interfaces.SessionDispatcher, log *slog.Logger) *Service {
	return &Service{
		gate:       gate,
		assembler:  assembler,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Framework returns the framework of the configured backend.
func (s *Service) Framework() interfaces.TeeFramework {
	return s.dispatcher.Framework()
}

// Generate authorizes req, assembles its session and posts it to the
// backend.
func (s *Service) Generate(ctx context.Context, req interfaces.SessionRequest) (*interfaces.AccessHandle, error) {
	start := time.Now()

	if req.WorkerSignature == "" {
		s.log.Warn("Unauthorized session request",
			slog.String("taskID", req.TaskID),
			slog.String("reason", "missing worker signature"))
		return nil, fmt.Errorf("%w: missing worker signature", interfaces.ErrUnauthorized)
	}
	task, deal, err := s.gate.CheckTaskRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if framework := deal.Tag.Framework(); framework != s.dispatcher.Framework() {
		s.log.Warn("Unauthorized session request",
			slog.String("taskID", req.TaskID),
			slog.String("reason", "framework mismatch"),
			slog.String("taskFramework", string(framework)),
			slog.String("serviceFramework", string(s.dispatcher.Framework())))
		return nil, fmt.Errorf("%w: task requires framework %q", interfaces.ErrUnauthorized, framework)
	}

	descriptor, err := s.assembler.AssembleFor(ctx, req, task, deal)
	if err != nil {
		s.log.Error("Failed to assemble session", slog.String("taskID", req.TaskID), "err", err)
		return nil, err
	}

	handle, err := s.dispatcher.Post(ctx, descriptor)
	if err != nil {
		s.log.Error("Failed to provision session",
			slog.String("taskID", req.TaskID),
			slog.String("sessionID", descriptor.SessionID),
			"err", err)
		return nil, err
	}

	s.log.Info("Provisioned session",
		slog.String("taskID", req.TaskID),
		slog.String("sessionID", handle.SessionID),
		slog.String("framework", string(handle.Framework)),
		slog.Duration("duration", time.Since(start)))
	return handle, nil
}

// StandardTaskSecrets authorizes req for a task running outside of an
// enclave and returns its result secrets.
func (s *Service) StandardTaskSecrets(ctx context.Context, req interfaces.SessionRequest) (*StandardTaskSecrets, error) {
	_, deal, err := s.gate.CheckTaskRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	secrets := &StandardTaskSecrets{ResultStorageProxy: deal.Params.ResultStorageProxy}
	if !deal.HasCallback() {
		provider, token, err := s.assembler.resultStorageToken(ctx, deal)
		if err != nil {
			return nil, &interfaces.SessionAssemblyError{Stage: interfaces.StagePostCompute, Err: err}
		}
		secrets.ResultStorageProvider = provider
		secrets.ResultStorageToken = token
	}

	if deal.Params.ResultEncryption {
		key, err := s.assembler.web2.Get(ctx, interfaces.NewWeb2SecretHeader(deal.Beneficiary.Hex(), interfaces.ResultEncryptionPublicKey), true)
		if err != nil {
			return nil, &interfaces.SessionAssemblyError{Stage: interfaces.StagePostCompute, Err: fmt.Errorf("beneficiary result encryption key: %w", err)}
		}
		secrets.ResultEncryptionPublicKey = key.Value
	}

	return secrets, nil
}
