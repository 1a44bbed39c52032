package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-secret-management/chain"
	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	taskID    = "0x1111111111111111111111111111111111111111111111111111111111111111"
	dealID    = "0x2222222222222222222222222222222222222222222222222222222222222222"
	workerHex = "0x000000000000000000000000000000000000beef"
)

var (
	appAddress     = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	datasetAddress = common.HexToAddress("0x0000000000000000000000000000000000000d00")
	requester      = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
	beneficiary    = common.HexToAddress("0x0000000000000000000000000000000000000e0e")
	challengeAddr  = "0x000000000000000000000000000000000000c4a1"
)

type memSecrets[H interfaces.SecretHeader] map[H]string

func (m memSecrets[H]) Get(_ context.Context, header H, decrypt bool) (*interfaces.Secret[H], error) {
	value, ok := m[header]
	if !ok {
		return nil, fmt.Errorf("%s: %w", header, interfaces.ErrNotFound)
	}
	return &interfaces.Secret[H]{Header: header, Value: value, IsEncryptedValue: !decrypt}, nil
}

type memChallenges map[string]*interfaces.EphemeralCredential

func (m memChallenges) Get(_ context.Context, taskID string, decrypt bool) (*interfaces.EphemeralCredential, error) {
	cred, ok := m[interfaces.CanonicalAddress(taskID)]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	c := *cred
	return &c, nil
}

type fixture struct {
	oracle     *chain.MockOracle
	deal       *interfaces.Deal
	task       *interfaces.Task
	web2       memSecrets[interfaces.Web2SecretHeader]
	web3       memSecrets[interfaces.Web3SecretHeader]
	compute    memSecrets[interfaces.ComputeSecretHeader]
	challenges memChallenges
	cfg        Config
	appMR      string
}

func sconeTag() interfaces.DealTag {
	var tag interfaces.DealTag
	tag[31] = 0x03
	return tag
}

func newFixture(withDataset bool) *fixture {
	f := &fixture{
		oracle: new(chain.MockOracle),
		task:   &interfaces.Task{TaskID: taskID, DealID: dealID, Index: big.NewInt(0), Status: interfaces.TaskActive},
		deal: &interfaces.Deal{
			DealID:      dealID,
			App:         appAddress,
			Requester:   requester,
			Beneficiary: beneficiary,
			Tag:         sconeTag(),
			BotFirst:    big.NewInt(0),
			BotSize:     big.NewInt(1),
			Params: interfaces.DealParams{
				Args:                  "--verbose input.txt",
				InputFiles:            []string{"https://files.example/a/input.txt"},
				ResultStorageProvider: "ipfs",
				ResultStorageProxy:    "https://result.example",
				RequesterSecrets:      map[int]string{1: "db-password"},
			},
		},
		web2: memSecrets[interfaces.Web2SecretHeader]{
			interfaces.NewWeb2SecretHeader(requester.Hex(), "db-password"):                          "hunter2",
			interfaces.NewWeb2SecretHeader(requester.Hex(), interfaces.IpfsResultStorageToken):      "ipfs-token",
			interfaces.NewWeb2SecretHeader(beneficiary.Hex(), interfaces.ResultEncryptionPublicKey): "beneficiary-pubkey",
		},
		web3: memSecrets[interfaces.Web3SecretHeader]{
			interfaces.NewWeb3SecretHeader(datasetAddress.Hex()): "dataset-key|dataset-tag",
		},
		compute: memSecrets[interfaces.ComputeSecretHeader]{
			interfaces.NewComputeSecretHeader(appAddress.Hex(), interfaces.AppDeveloperSecretIndex): "dev-secret",
		},
		challenges: memChallenges{
			taskID: {TaskID: taskID, Address: challengeAddr, PrivateKey: "0xchallengekey"},
		},
		cfg: Config{
			PreCompute:  StageConfig{Image: "registry/pre:1", Fingerprint: "prekey|pretag|premr", Entrypoint: "java -jar /app/pre.jar"},
			PostCompute: StageConfig{Image: "registry/post:1", Fingerprint: "postkey|posttag|postmr", Entrypoint: "java -jar /app/post.jar"},
		},
		appMR: "appkey|apptag|appmr|python3 /app/main.py",
	}
	if withDataset {
		f.deal.Dataset = datasetAddress
	}
	return f
}

func (f *fixture) assembler() *Assembler {
	f.oracle.On("GetTask", mock.Anything, taskID).Return(f.task, nil).Maybe()
	f.oracle.On("GetDeal", mock.Anything, dealID).Return(f.deal, nil).Maybe()
	f.oracle.On("GetApp", mock.Anything, appAddress).Return(&interfaces.App{
		Address:   appAddress,
		Multiaddr: "registry/app:1",
		MREnclave: f.appMR,
	}, nil).Maybe()
	f.oracle.On("GetDataset", mock.Anything, datasetAddress).Return(&interfaces.Dataset{
		Address:   datasetAddress,
		Multiaddr: "https://data.example/set.zip",
		Checksum:  [32]byte{0xab},
	}, nil).Maybe()
	return NewAssembler(f.cfg, f.oracle, f.web2, f.web3, f.compute, f.challenges, slog.Default())
}

func request() interfaces.SessionRequest {
	return interfaces.SessionRequest{
		TaskID:              taskID,
		WorkerAddress:       workerHex,
		EnclaveChallenge:    challengeAddr,
		WorkerpoolSignature: "0xpool",
		WorkerSignature:     "0xworker",
	}
}

func TestAssembleWithDataset(t *testing.T) {
	f := newFixture(true)
	descriptor, err := f.assembler().Assemble(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, descriptor.Services, 3)
	assert.Equal(t, interfaces.StagePreCompute, descriptor.Services[0].Stage)
	assert.Equal(t, interfaces.StageAppCompute, descriptor.Services[1].Stage)
	assert.Equal(t, interfaces.StagePostCompute, descriptor.Services[2].Stage)
	assert.Equal(t, interfaces.FrameworkScone, descriptor.Framework)
	assert.NotEmpty(t, descriptor.SessionID)

	pre, _ := descriptor.Service(interfaces.StagePreCompute)
	assert.Equal(t, "registry/pre:1", pre.Image)
	assert.Equal(t, "premr", pre.Fingerprint)
	assert.Equal(t, []string{"java", "-jar", "/app/pre.jar"}, pre.Command)
	assert.Equal(t, "dataset-key", pre.Environment[EnvDatasetKey])
	assert.Equal(t, "dataset-tag", pre.Environment[EnvDatasetTag])
	assert.Equal(t, "https://data.example/set.zip", pre.Environment[EnvDatasetURL])
	assert.Equal(t, "1", pre.Environment[EnvInputFilesNumber])
	assert.Equal(t, "https://files.example/a/input.txt", pre.Environment[EnvInputFileURLPrefix+"1"])

	app, _ := descriptor.Service(interfaces.StageAppCompute)
	assert.Equal(t, "registry/app:1", app.Image)
	assert.Equal(t, "appmr", app.Fingerprint)
	assert.Equal(t, "appkey", app.VolumeKey)
	assert.Equal(t, []string{"python3", "/app/main.py", "--verbose", "input.txt"}, app.Command)
	assert.Equal(t, "hunter2", app.Environment[EnvRequesterSecretPrefix+"1"])
	assert.Equal(t, "dev-secret", app.Environment[EnvAppDeveloperSecret])
	assert.Equal(t, "input.txt", app.Environment[EnvInputFileNamePrefix+"1"])
	assert.Equal(t, interfaces.CanonicalAddress(datasetAddress.Hex()), app.Environment[EnvDatasetFilename])

	post, _ := descriptor.Service(interfaces.StagePostCompute)
	assert.Equal(t, "postmr", post.Fingerprint)
	assert.Equal(t, "0xchallengekey", post.Environment[EnvResultSignTeeChallengePrivKey])
	assert.Equal(t, workerHex, post.Environment[EnvResultSignWorkerAddress])
	assert.Equal(t, "ipfs-token", post.Environment[EnvResultStorageToken])
	assert.Equal(t, "no", post.Environment[EnvResultEncryption])
	assert.Equal(t, "no", post.Environment[EnvResultStorageCallback])
}

func TestAssembleWithoutDataset(t *testing.T) {
	f := newFixture(false)
	descriptor, err := f.assembler().Assemble(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, descriptor.Services, 2)
	assert.Equal(t, interfaces.StageAppCompute, descriptor.Services[0].Stage)
	assert.Equal(t, interfaces.StagePostCompute, descriptor.Services[1].Stage)
	f.oracle.AssertNotCalled(t, "GetDataset", mock.Anything, mock.Anything)
}

func TestAssembleResultEncryptionAndCallback(t *testing.T) {
	f := newFixture(false)
	f.deal.Params.ResultEncryption = true
	f.deal.Callback = common.HexToAddress("0x0000000000000000000000000000000000000cab")
	delete(f.web2, interfaces.NewWeb2SecretHeader(requester.Hex(), interfaces.IpfsResultStorageToken))

	descriptor, err := f.assembler().Assemble(context.Background(), request())
	require.NoError(t, err)

	post, _ := descriptor.Service(interfaces.StagePostCompute)
	assert.Equal(t, "yes", post.Environment[EnvResultEncryption])
	assert.Equal(t, "beneficiary-pubkey", post.Environment[EnvResultEncryptionPublicKey])
	assert.Equal(t, "yes", post.Environment[EnvResultStorageCallback])
	assert.NotContains(t, post.Environment, EnvResultStorageToken)
}

func TestAssembleOptionalDeveloperSecret(t *testing.T) {
	f := newFixture(false)
	f.compute = memSecrets[interfaces.ComputeSecretHeader]{}

	descriptor, err := f.assembler().Assemble(context.Background(), request())
	require.NoError(t, err)
	app, _ := descriptor.Service(interfaces.StageAppCompute)
	assert.NotContains(t, app.Environment, EnvAppDeveloperSecret)
}

func TestAssembleFailures(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*fixture)
		req       func(*interfaces.SessionRequest)
		stage     interfaces.Stage
		badFp     bool
		wantError error
	}{
		{
			name:      "missing requester secret",
			mutate:    func(f *fixture) { f.deal.Params.RequesterSecrets[2] = "unknown" },
			stage:     interfaces.StageAppCompute,
			wantError: interfaces.ErrNotFound,
		},
		{
			name:   "bad app fingerprint",
			mutate: func(f *fixture) { f.appMR = "appkey|apptag|appmr" },
			stage:  interfaces.StageAppCompute,
			badFp:  true,
		},
		{
			name:   "bad pre-compute fingerprint",
			mutate: func(f *fixture) { f.cfg.PreCompute.Fingerprint = "a|b|" },
			stage:  interfaces.StagePreCompute,
			badFp:  true,
		},
		{
			name:   "bad post-compute fingerprint",
			mutate: func(f *fixture) { f.cfg.PostCompute.Fingerprint = "" },
			stage:  interfaces.StagePostCompute,
			badFp:  true,
		},
		{
			name:      "missing dataset secret",
			mutate:    func(f *fixture) { f.web3 = memSecrets[interfaces.Web3SecretHeader]{} },
			stage:     interfaces.StagePreCompute,
			wantError: interfaces.ErrNotFound,
		},
		{
			name: "malformed dataset secret",
			mutate: func(f *fixture) {
				f.web3[interfaces.NewWeb3SecretHeader(datasetAddress.Hex())] = "only-a-key"
			},
			stage: interfaces.StagePreCompute,
			badFp: true,
		},
		{
			name:      "missing storage token",
			mutate:    func(f *fixture) { delete(f.web2, interfaces.NewWeb2SecretHeader(requester.Hex(), interfaces.IpfsResultStorageToken)) },
			stage:     interfaces.StagePostCompute,
			wantError: interfaces.ErrNotFound,
		},
		{
			name: "missing beneficiary key",
			mutate: func(f *fixture) {
				f.deal.Params.ResultEncryption = true
				delete(f.web2, interfaces.NewWeb2SecretHeader(beneficiary.Hex(), interfaces.ResultEncryptionPublicKey))
			},
			stage:     interfaces.StagePostCompute,
			wantError: interfaces.ErrNotFound,
		},
		{
			name:  "foreign enclave challenge",
			req:   func(r *interfaces.SessionRequest) { r.EnclaveChallenge = "0x0000000000000000000000000000000000000bad" },
			stage: interfaces.StagePostCompute,
		},
		{
			name:      "no enclave challenge issued",
			mutate:    func(f *fixture) { f.challenges = memChallenges{} },
			stage:     interfaces.StagePostCompute,
			wantError: interfaces.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(true)
			if tc.mutate != nil {
				tc.mutate(f)
			}
			req := request()
			if tc.req != nil {
				tc.req(&req)
			}

			descriptor, err := f.assembler().Assemble(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, descriptor)

			if tc.badFp {
				var fpErr *interfaces.InvalidFingerprintError
				require.True(t, errors.As(err, &fpErr))
				assert.Equal(t, tc.stage, fpErr.Stage)
				assert.NotContains(t, err.Error(), "only-a-key")
				return
			}

			var asmErr *interfaces.SessionAssemblyError
			require.True(t, errors.As(err, &asmErr))
			assert.Equal(t, tc.stage, asmErr.Stage)
			if tc.wantError != nil {
				assert.ErrorIs(t, err, tc.wantError)
			}
		})
	}
}
