package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/ruteri/tee-secret-management/interfaces"
)

// SecretReader returns stored secrets of one kind.
type SecretReader[H interfaces.SecretHeader] interface {
	Get(ctx context.Context, header H, decrypt bool) (*interfaces.Secret[H], error)
}

// ChallengeReader returns the enclave challenge credential of a task.
type ChallengeReader interface {
	Get(ctx context.Context, taskID string, decrypt bool) (*interfaces.EphemeralCredential, error)
}

// StageConfig describes a stage image operated by the service.
type StageConfig struct {
	Image string
	// Fingerprint is the "key|tag|mrenclave" fingerprint of the image.
	Fingerprint string
	Entrypoint  string
}

// Config holds the images of the service-operated stages.
type Config struct {
	PreCompute  StageConfig
	PostCompute StageConfig
}

// Assembler builds session descriptors.
type Assembler struct {
	cfg        Config
	oracle     interfaces.ChainOracle
	web2       SecretReader[interfaces.Web2SecretHeader]
	web3       SecretReader[interfaces.Web3SecretHeader]
	compute    SecretReader[interfaces.ComputeSecretHeader]
	challenges ChallengeReader
	log        *slog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(
	cfg Config,
	oracle interfaces.ChainOracle,
	web2 SecretReader[interfaces.Web2SecretHeader],
	web3 SecretReader[interfaces.Web3SecretHeader],
	compute SecretReader[interfaces.ComputeSecretHeader],
	challenges ChallengeReader,
	log *slog.Logger,
) *Assembler {
	return &Assembler{
		cfg:        cfg,
		oracle:     oracle,
		web2:       web2,
		web3:       web3,
		compute:    compute,
		challenges: challenges,
		log:        log,
	}
}

// Assemble fetches the task and deal of req and builds its descriptor.
func (a *Assembler) Assemble(ctx context.Context, req interfaces.SessionRequest) (*interfaces.SessionDescriptor, error) {
	task, err := a.oracle.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	deal, err := a.oracle.GetDeal(ctx, task.DealID)
	if err != nil {
		return nil, err
	}
	return a.AssembleFor(ctx, req, task, deal)
}

// AssembleFor builds the descriptor of an already fetched task and deal.
func (a *Assembler) AssembleFor(ctx context.Context, req interfaces.SessionRequest, task *interfaces.Task, deal *interfaces.Deal) (*interfaces.SessionDescriptor, error) {
	sessionID := strings.ReplaceAll(uuid.NewString(), "-", "")
	descriptor := &interfaces.SessionDescriptor{
		SessionID: sessionID,
		TaskID:    task.TaskID,
		Framework: deal.Tag.Framework(),
	}

	credential, err := a.challenges.Get(ctx, task.TaskID, true)
	if err != nil {
		return nil, &interfaces.SessionAssemblyError{Stage: interfaces.StagePostCompute, Err: fmt.Errorf("enclave challenge: %w", err)}
	}
	if credential.Address != interfaces.CanonicalAddress(req.EnclaveChallenge) {
		return nil, &interfaces.SessionAssemblyError{
			Stage: interfaces.StagePostCompute,
			Err:   fmt.Errorf("enclave challenge %s does not belong to task %s", req.EnclaveChallenge, task.TaskID),
		}
	}

	if deal.HasDataset() {
		pre, err := a.preCompute(ctx, sessionID, task, deal)
		if err != nil {
			return nil, err
		}
		descriptor.Services = append(descriptor.Services, *pre)
	}

	app, err := a.appCompute(ctx, sessionID, task, deal)
	if err != nil {
		return nil, err
	}
	descriptor.Services = append(descriptor.Services, *app)

	post, err := a.postCompute(ctx, sessionID, task, deal, req.WorkerAddress, credential)
	if err != nil {
		return nil, err
	}
	descriptor.Services = append(descriptor.Services, *post)

	a.log.Info("Assembled session",
		slog.String("taskID", task.TaskID),
		slog.String("sessionID", sessionID),
		slog.Int("stages", len(descriptor.Services)))
	return descriptor, nil
}

func (a *Assembler) preCompute(ctx context.Context, sessionID string, task *interfaces.Task, deal *interfaces.Deal) (*interfaces.ServiceDescriptor, error) {
	stage := interfaces.StagePreCompute
	fp, ok := interfaces.ParseServiceFingerprint(a.cfg.PreCompute.Fingerprint)
	if !ok {
		return nil, &interfaces.InvalidFingerprintError{Stage: stage, Raw: a.cfg.PreCompute.Fingerprint}
	}

	dataset, err := a.oracle.GetDataset(ctx, deal.Dataset)
	if err != nil {
		return nil, &interfaces.SessionAssemblyError{Stage: stage, Err: fmt.Errorf("dataset: %w", err)}
	}
	secret, err := a.web3.Get(ctx, interfaces.NewWeb3SecretHeader(deal.Dataset.Hex()), true)
	if err != nil {
		return nil, &interfaces.SessionAssemblyError{Stage: stage, Err: fmt.Errorf("dataset secret: %w", err)}
	}
	datasetFp, ok := interfaces.ParseDatasetFingerprint(secret.Value)
	if !ok {
		// The raw value is a secret and must not be echoed.
		return nil, &interfaces.InvalidFingerprintError{Stage: stage, Raw: "<dataset secret of " + interfaces.CanonicalAddress(deal.Dataset.Hex()) + ">"}
	}

	env := map[string]string{
		EnvTaskID:            task.TaskID,
		EnvPreComputeOut:     InputDir,
		EnvIsDatasetRequired: "true",
		EnvDatasetURL:        dataset.Multiaddr,
		EnvDatasetKey:        datasetFp.Key,
		EnvDatasetTag:        datasetFp.Tag,
		EnvDatasetChecksum:   hexutil.Encode(dataset.Checksum[:]),
		EnvDatasetFilename:   interfaces.CanonicalAddress(deal.Dataset.Hex()),
		EnvInputFilesNumber:  strconv.Itoa(len(deal.Params.InputFiles)),
	}
	for i, url := range deal.Params.InputFiles {
		env[EnvInputFileURLPrefix+strconv.Itoa(i+1)] = url
	}

	return &interfaces.ServiceDescriptor{
		Name:        sessionID + "-" + string(stage),
		Stage:       stage,
		Image:       a.cfg.PreCompute.Image,
		Fingerprint: fp.MrEnclave,
		WorkingDir:  "/",
		Command:     strings.Fields(a.cfg.PreCompute.Entrypoint),
		Environment: env,
		VolumeKey:   fp.Key,
		VolumeTag:   fp.Tag,
	}, nil
}

func (a *Assembler) appCompute(ctx context.Context, sessionID string, task *interfaces.Task, deal *interfaces.Deal) (*interfaces.ServiceDescriptor, error) {
	stage := interfaces.StageAppCompute

	app, err := a.oracle.GetApp(ctx, deal.App)
	if err != nil {
		return nil, &interfaces.SessionAssemblyError{Stage: stage, Err: fmt.Errorf("app: %w", err)}
	}
	fp, ok := interfaces.ParseAppFingerprint(app.MREnclave)
	if !ok {
		return nil, &interfaces.InvalidFingerprintError{Stage: stage, Raw: app.MREnclave}
	}

	env := map[string]string{
		EnvTaskID:           task.TaskID,
		EnvIn:               InputDir,
		EnvOut:              OutputDir,
		EnvInputFilesNumber: strconv.Itoa(len(deal.Params.InputFiles)),
	}
	if deal.BotSize != nil {
		env[EnvBotSize] = deal.BotSize.String()
	}
	if deal.BotFirst != nil {
		env[EnvBotFirstIndex] = deal.BotFirst.String()
	}
	if task.Index != nil {
		env[EnvBotTaskIndex] = task.Index.String()
	}
	if deal.HasDataset() {
		env[EnvDatasetFilename] = interfaces.CanonicalAddress(deal.Dataset.Hex())
	}
	for i, url := range deal.Params.InputFiles {
		env[EnvInputFileNamePrefix+strconv.Itoa(i+1)] = path.Base(url)
	}

	developer, err := a.compute.Get(ctx, interfaces.NewComputeSecretHeader(deal.App.Hex(), interfaces.AppDeveloperSecretIndex), true)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
	case err != nil:
		return nil, &interfaces.SessionAssemblyError{Stage: stage, Err: fmt.Errorf("app developer secret: %w", err)}
	default:
		env[EnvAppDeveloperSecret] = developer.Value
	}

	for idx, key := range deal.Params.RequesterSecrets {
		secret, err := a.web2.Get(ctx, interfaces.NewWeb2SecretHeader(deal.Requester.Hex(), key), true)
		if err != nil {
			return nil, &interfaces.SessionAssemblyError{Stage: stage, Err: fmt.Errorf("requester secret %d (%s): %w", idx, key, err)}
		}
		env[EnvRequesterSecretPrefix+strconv.Itoa(idx)] = secret.Value
	}

	command := strings.Fields(fp.Entrypoint)
	command = append(command, strings.Fields(deal.Params.Args)...)

	return &interfaces.ServiceDescriptor{
		Name:        sessionID + "-" + string(stage),
		Stage:       stage,
		Image:       app.Multiaddr,
		Fingerprint: fp.MrEnclave,
		WorkingDir:  "/",
		Command:     command,
		Environment: env,
		VolumeKey:   fp.Key,
		VolumeTag:   fp.Tag,
	}, nil
}

func (a *Assembler) postCompute(ctx context.Context, sessionID string, task *interfaces.Task, deal *interfaces.Deal, workerAddress string, credential *interfaces.EphemeralCredential) (*interfaces.ServiceDescriptor, error) {
	stage := interfaces.StagePostCompute
	fp, ok := interfaces.ParseServiceFingerprint(a.cfg.PostCompute.Fingerprint)
	if !ok {
		return nil, &interfaces.InvalidFingerprintError{Stage: stage, Raw: a.cfg.PostCompute.Fingerprint}
	}

	env := map[string]string{
		EnvResultTaskID:                  task.TaskID,
		EnvResultSignWorkerAddress:       interfaces.CanonicalAddress(workerAddress),
		EnvResultSignTeeChallengePrivKey: credential.PrivateKey,
		EnvResultEncryption:              yesNo(deal.Params.ResultEncryption),
		EnvResultStorageCallback:         yesNo(deal.HasCallback()),
	}

	if deal.Params.ResultEncryption {
		key, err := a.web2.Get(ctx, interfaces.NewWeb2SecretHeader(deal.Beneficiary.Hex(), interfaces.ResultEncryptionPublicKey), true)
		if err != nil {
			return nil, &interfaces.SessionAssemblyError{Stage: stage, Err: fmt.Errorf("beneficiary result encryption key: %w", err)}
		}
		env[EnvResultEncryptionPublicKey] = key.Value
	}

	if !deal.HasCallback() {
		provider, token, err := a.resultStorageToken(ctx, deal)
		if err != nil {
			return nil, &interfaces.SessionAssemblyError{Stage: stage, Err: err}
		}
		env[EnvResultStorageProvider] = provider
		env[EnvResultStorageProxy] = deal.Params.ResultStorageProxy
		env[EnvResultStorageToken] = token
	}

	return &interfaces.ServiceDescriptor{
		Name:        sessionID + "-" + string(stage),
		Stage:       stage,
		Image:       a.cfg.PostCompute.Image,
		Fingerprint: fp.MrEnclave,
		WorkingDir:  "/",
		Command:     strings.Fields(a.cfg.PostCompute.Entrypoint),
		Environment: env,
		VolumeKey:   fp.Key,
		VolumeTag:   fp.Tag,
	}, nil
}

// resultStorageToken returns the provider of the deal and the requester's
// token for it.
func (a *Assembler) resultStorageToken(ctx context.Context, deal *interfaces.Deal) (string, string, error) {
	provider := strings.ToLower(deal.Params.ResultStorageProvider)
	if provider == "" {
		provider = StorageProviderIPFS
	}

	var key string
	switch provider {
	case StorageProviderIPFS:
		key = interfaces.IpfsResultStorageToken
	case StorageProviderDropbox:
		key = interfaces.DropboxResultStorageToken
	default:
		return "", "", fmt.Errorf("unsupported result storage provider %q", provider)
	}

	token, err := a.web2.Get(ctx, interfaces.NewWeb2SecretHeader(deal.Requester.Hex(), key), true)
	if err != nil {
		return "", "", fmt.Errorf("requester %s storage token: %w", provider, err)
	}
	return provider, token.Value, nil
}
