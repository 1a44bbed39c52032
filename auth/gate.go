// Package auth decides whether a caller may act on a task or a secret.
//
// Every check is a pure predicate over chain reads and local signature
// verification. Rejections are logged with the specific failing step and
// surfaced to callers only as interfaces.ErrUnauthorized.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-secret-management/cryptoutils"
	"github.com/ruteri/tee-secret-management/interfaces"
)

// Gate authorizes session requests and secret operations.
type Gate struct {
	oracle interfaces.ChainOracle
	log    *slog.Logger
}

// NewGate creates a gate reading chain state from oracle.
func NewGate(oracle interfaces.ChainOracle, log *slog.Logger) *Gate {
	return &Gate{oracle: oracle, log: log}
}

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", interfaces.ErrUnauthorized, fmt.Sprintf(format, args...))
}

// Authorize reports whether req may act on its task. requireTeeTask binds
// the endpoint to the task type.
func (g *Gate) Authorize(ctx context.Context, req interfaces.SessionRequest, requireTeeTask bool) bool {
	_, _, err := g.CheckTaskRequest(ctx, req, requireTeeTask)
	return err == nil
}

// CheckTaskRequest runs the task authorization chain and returns an error
// wrapping interfaces.ErrUnauthorized naming the first failing step. On
// success it returns the task and deal it read, so callers need not read
// them again.
func (g *Gate) CheckTaskRequest(ctx context.Context, req interfaces.SessionRequest, requireTeeTask bool) (*interfaces.Task, *interfaces.Deal, error) {
	task, deal, err := g.checkTaskRequest(ctx, req, requireTeeTask)
	if err != nil {
		g.log.Warn("Unauthorized task request",
			slog.String("taskID", req.TaskID),
			slog.String("worker", req.WorkerAddress),
			slog.String("reason", err.Error()))
		return nil, nil, err
	}
	return task, deal, nil
}

// readTask reads the task and its deal once per request.
func (g *Gate) readTask(ctx context.Context, taskID string) (*interfaces.Task, *interfaces.Deal, error) {
	task, err := g.oracle.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, unauthorized("could not get task: %v", err)
	}
	deal, err := g.oracle.GetDeal(ctx, task.DealID)
	if err != nil {
		return nil, nil, unauthorized("could not get deal %s: %v", task.DealID, err)
	}
	return task, deal, nil
}

func (g *Gate) checkTaskRequest(ctx context.Context, req interfaces.SessionRequest, requireTeeTask bool) (*interfaces.Task, *interfaces.Deal, error) {
	if req.TaskID == "" {
		return nil, nil, unauthorized("empty task id")
	}

	task, deal, err := g.readTask(ctx, req.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if isTee := deal.Tag.IsTee(); isTee != requireTeeTask {
		return nil, nil, unauthorized("task type mismatch (tee=%t, required=%t)", isTee, requireTeeTask)
	}
	if !task.IsActive() {
		return nil, nil, unauthorized("task is %s, not ACTIVE", task.Status)
	}
	if interfaces.IsZeroAddress(deal.WorkerpoolOwner) {
		return nil, nil, unauthorized("deal %s has no workerpool owner", task.DealID)
	}

	hash := cryptoutils.WorkerpoolAuthorizationHash(req.WorkerAddress, req.TaskID, req.EnclaveChallenge)
	if !cryptoutils.IsSignatureValid(hash, req.WorkerpoolSignature, deal.WorkerpoolOwner) {
		return nil, nil, unauthorized("invalid workerpool signature")
	}

	if req.WorkerSignature != "" {
		if !common.IsHexAddress(req.WorkerAddress) {
			return nil, nil, unauthorized("invalid worker address %q", req.WorkerAddress)
		}
		if !cryptoutils.IsSignatureValid(hash, req.WorkerSignature, common.HexToAddress(req.WorkerAddress)) {
			return nil, nil, unauthorized("invalid worker signature")
		}
	}

	return task, deal, nil
}

// CheckChallengeRequest authorizes issuing the enclave challenge of a task.
// Only the public address leaves the service, so no signature is required;
// the task must be an ACTIVE TEE task.
func (g *Gate) CheckChallengeRequest(ctx context.Context, taskID string) error {
	err := g.checkChallengeRequest(ctx, taskID)
	if err != nil {
		g.log.Warn("Unauthorized challenge request",
			slog.String("taskID", taskID),
			slog.String("reason", err.Error()))
	}
	return err
}

func (g *Gate) checkChallengeRequest(ctx context.Context, taskID string) error {
	if len(common.FromHex(taskID)) != common.HashLength {
		return unauthorized("invalid task id %q", taskID)
	}
	task, deal, err := g.readTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !deal.Tag.IsTee() {
		return unauthorized("not a TEE task")
	}
	if !task.IsActive() {
		return unauthorized("task is %s, not ACTIVE", task.Status)
	}
	return nil
}

// CheckSigner verifies that signature is a signature of challenge by expected.
func (g *Gate) CheckSigner(challenge common.Hash, signature string, expected common.Address, operation string) error {
	if cryptoutils.IsSignatureValid(challenge, signature, expected) {
		return nil
	}
	err := unauthorized("%s: signature is not from %s", operation, expected.Hex())
	g.log.Warn("Unauthorized secret request",
		slog.String("operation", operation),
		slog.String("reason", err.Error()))
	return err
}

func (g *Gate) ownerOf(ctx context.Context, address string, operation string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, unauthorized("%s: invalid address %q", operation, address)
	}
	owner, err := g.oracle.OwnerOf(ctx, common.HexToAddress(address))
	if err != nil {
		g.log.Warn("Unauthorized secret request",
			slog.String("operation", operation),
			slog.String("reason", "could not read owner"),
			"err", err)
		return common.Address{}, unauthorized("%s: could not read owner of %s", operation, address)
	}
	if interfaces.IsZeroAddress(owner) {
		return common.Address{}, unauthorized("%s: %s has no owner", operation, address)
	}
	return owner, nil
}

func (g *Gate) parseOwner(owner string, operation string) (common.Address, error) {
	if !common.IsHexAddress(owner) {
		return common.Address{}, unauthorized("%s: invalid owner address %q", operation, owner)
	}
	return common.HexToAddress(owner), nil
}

// CheckWeb2Write authorizes adding or updating a user secret.
func (g *Gate) CheckWeb2Write(ownerAddress, secretKey, secretValue, signature string) error {
	owner, err := g.parseOwner(ownerAddress, "web2 write")
	if err != nil {
		return err
	}
	return g.CheckSigner(cryptoutils.Web2WriteChallenge(ownerAddress, secretKey, secretValue), signature, owner, "web2 write")
}

// CheckWeb2Read authorizes reading a user secret.
func (g *Gate) CheckWeb2Read(ownerAddress, secretKey, signature string) error {
	owner, err := g.parseOwner(ownerAddress, "web2 read")
	if err != nil {
		return err
	}
	return g.CheckSigner(cryptoutils.Web2ReadChallenge(ownerAddress, secretKey), signature, owner, "web2 read")
}

// CheckWeb3Write authorizes adding the secret of an on-chain object. The
// signer must own the object.
func (g *Gate) CheckWeb3Write(ctx context.Context, secretAddress, secretValue, signature string) error {
	owner, err := g.ownerOf(ctx, secretAddress, "web3 write")
	if err != nil {
		return err
	}
	return g.CheckSigner(cryptoutils.Web3WriteChallenge(secretAddress, secretValue), signature, owner, "web3 write")
}

// CheckWeb3Read authorizes reading the secret of an on-chain object.
func (g *Gate) CheckWeb3Read(ctx context.Context, secretAddress, signature string) error {
	owner, err := g.ownerOf(ctx, secretAddress, "web3 read")
	if err != nil {
		return err
	}
	return g.CheckSigner(cryptoutils.Web3ReadChallenge(secretAddress), signature, owner, "web3 read")
}

// CheckComputeWrite authorizes setting an app runtime secret. The signer
// must own the app.
func (g *Gate) CheckComputeWrite(ctx context.Context, appAddress string, index int, secretValue, signature string) error {
	owner, err := g.ownerOf(ctx, appAddress, "compute write")
	if err != nil {
		return err
	}
	return g.CheckSigner(cryptoutils.ComputeWriteChallenge(appAddress, index, secretValue), signature, owner, "compute write")
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, interfaces.ErrUnauthorized)
}
