// Package chain reads task, deal, application and dataset state from an
// Ethereum JSON-RPC node.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/tee-secret-management/interfaces"
)

type resource struct {
	Pointer common.Address
	Owner   common.Address
	Price   *big.Int
}

type hubTask struct {
	Status               uint8
	Dealid               [32]byte
	Idx                  *big.Int
	Timeref              *big.Int
	ContributionDeadline *big.Int
	RevealDeadline       *big.Int
	FinalDeadline        *big.Int
	ConsensusValue       [32]byte
	RevealCounter        *big.Int
	WinnerCounter        *big.Int
	Contributors         []common.Address
	ResultDigest         [32]byte
	Results              []byte
	ResultsTimestamp     *big.Int
	ResultsCallback      []byte
}

type hubDeal struct {
	App                  resource
	Dataset              resource
	Workerpool           resource
	Trust                *big.Int
	Category             *big.Int
	Tag                  [32]byte
	Requester            common.Address
	Beneficiary          common.Address
	Callback             common.Address
	Params               string
	StartTime            *big.Int
	BotFirst             *big.Int
	BotSize              *big.Int
	WorkerStake          *big.Int
	SchedulerRewardRatio *big.Int
	Sponsor              common.Address
}

// Oracle implements interfaces.ChainOracle over contract calls.
type Oracle struct {
	caller bind.ContractCaller
	hub    *bind.BoundContract
	log    *slog.Logger

	// CallTimeout bounds every contract call when positive.
	CallTimeout time.Duration

	appABI     abi.ABI
	datasetABI abi.ABI
	ownableABI abi.ABI
}

var _ interfaces.ChainOracle = (*Oracle)(nil)

// Dial connects to the node at rpcAddr.
func Dial(ctx context.Context, rpcAddr string, hubAddress common.Address, log *slog.Logger) (*Oracle, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", rpcAddr, err)
	}
	oracle, err := NewOracle(client, hubAddress, log)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return oracle, client, nil
}

// NewOracle creates an oracle reading the hub contract at hubAddress.
func NewOracle(caller bind.ContractCaller, hubAddress common.Address, log *slog.Logger) (*Oracle, error) {
	parsed := make([]abi.ABI, 4)
	for i, def := range []string{hubABI, appABI, datasetABI, ownableABI} {
		a, err := abi.JSON(strings.NewReader(def))
		if err != nil {
			return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
		}
		parsed[i] = a
	}

	return &Oracle{
		caller:     caller,
		hub:        bind.NewBoundContract(hubAddress, parsed[0], caller, nil, nil),
		log:        log,
		appABI:     parsed[1],
		datasetABI: parsed[2],
		ownableABI: parsed[3],
	}, nil
}

func (o *Oracle) call(ctx context.Context, contract *bind.BoundContract, method string, params ...interface{}) ([]interface{}, error) {
	if o.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.CallTimeout)
		defer cancel()
	}

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

// GetTask returns the task or an error wrapping interfaces.ErrNotFound.
func (o *Oracle) GetTask(ctx context.Context, taskID string) (*interfaces.Task, error) {
	id, err := parseBytes32(taskID)
	if err != nil {
		return nil, err
	}

	out, err := o.call(ctx, o.hub, "viewTask", id)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new(hubTask)).(*hubTask)

	if raw.Dealid == ([32]byte{}) {
		return nil, fmt.Errorf("task %s: %w", taskID, interfaces.ErrNotFound)
	}

	return &interfaces.Task{
		TaskID: interfaces.CanonicalAddress(taskID),
		DealID: hexutil.Encode(raw.Dealid[:]),
		Index:  raw.Idx,
		Status: interfaces.TaskStatus(raw.Status),
	}, nil
}

// GetDeal returns the deal or an error wrapping interfaces.ErrNotFound.
func (o *Oracle) GetDeal(ctx context.Context, dealID string) (*interfaces.Deal, error) {
	id, err := parseBytes32(dealID)
	if err != nil {
		return nil, err
	}

	out, err := o.call(ctx, o.hub, "viewDeal", id)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new(hubDeal)).(*hubDeal)

	if interfaces.IsZeroAddress(raw.App.Pointer) {
		return nil, fmt.Errorf("deal %s: %w", dealID, interfaces.ErrNotFound)
	}

	return &interfaces.Deal{
		DealID:          interfaces.CanonicalAddress(dealID),
		App:             raw.App.Pointer,
		AppOwner:        raw.App.Owner,
		Dataset:         raw.Dataset.Pointer,
		DatasetOwner:    raw.Dataset.Owner,
		Workerpool:      raw.Workerpool.Pointer,
		WorkerpoolOwner: raw.Workerpool.Owner,
		Requester:       raw.Requester,
		Beneficiary:     raw.Beneficiary,
		Callback:        raw.Callback,
		Tag:             interfaces.DealTag(raw.Tag),
		BotFirst:        raw.BotFirst,
		BotSize:         raw.BotSize,
		Params:          ParseDealParams(raw.Params),
	}, nil
}

// GetApp returns the application registered at address.
func (o *Oracle) GetApp(ctx context.Context, address common.Address) (*interfaces.App, error) {
	contract := bind.NewBoundContract(address, o.appABI, o.caller, nil, nil)

	owner, err := o.call(ctx, contract, "owner")
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", address.Hex(), err)
	}
	multiaddr, err := o.call(ctx, contract, "m_appMultiaddr")
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", address.Hex(), err)
	}
	checksum, err := o.call(ctx, contract, "m_appChecksum")
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", address.Hex(), err)
	}
	mrenclave, err := o.call(ctx, contract, "m_appMREnclave")
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", address.Hex(), err)
	}

	return &interfaces.App{
		Address:   address,
		Owner:     *abi.ConvertType(owner[0], new(common.Address)).(*common.Address),
		Multiaddr: decodeMultiaddr(*abi.ConvertType(multiaddr[0], new([]byte)).(*[]byte)),
		Checksum:  *abi.ConvertType(checksum[0], new([32]byte)).(*[32]byte),
		MREnclave: string(*abi.ConvertType(mrenclave[0], new([]byte)).(*[]byte)),
	}, nil
}

// GetDataset returns the dataset registered at address.
func (o *Oracle) GetDataset(ctx context.Context, address common.Address) (*interfaces.Dataset, error) {
	contract := bind.NewBoundContract(address, o.datasetABI, o.caller, nil, nil)

	owner, err := o.call(ctx, contract, "owner")
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", address.Hex(), err)
	}
	multiaddr, err := o.call(ctx, contract, "m_datasetMultiaddr")
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", address.Hex(), err)
	}
	checksum, err := o.call(ctx, contract, "m_datasetChecksum")
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", address.Hex(), err)
	}

	return &interfaces.Dataset{
		Address:   address,
		Owner:     *abi.ConvertType(owner[0], new(common.Address)).(*common.Address),
		Multiaddr: decodeMultiaddr(*abi.ConvertType(multiaddr[0], new([]byte)).(*[]byte)),
		Checksum:  *abi.ConvertType(checksum[0], new([32]byte)).(*[32]byte),
	}, nil
}

// OwnerOf returns the owner of an ownable contract.
func (o *Oracle) OwnerOf(ctx context.Context, address common.Address) (common.Address, error) {
	contract := bind.NewBoundContract(address, o.ownableABI, o.caller, nil, nil)
	out, err := o.call(ctx, contract, "owner")
	if err != nil {
		return common.Address{}, fmt.Errorf("contract %s: %w", address.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// IsTeeTask reports whether the deal of the task requires a TEE.
func (o *Oracle) IsTeeTask(ctx context.Context, taskID string) (bool, error) {
	task, err := o.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	deal, err := o.GetDeal(ctx, task.DealID)
	if err != nil {
		return false, err
	}
	return deal.Tag.IsTee(), nil
}

func parseBytes32(id string) ([32]byte, error) {
	raw, err := hexutil.Decode(interfaces.CanonicalAddress(id))
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("invalid 32-byte identifier %q: %w", id, interfaces.ErrNotFound)
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

// decodeMultiaddr returns URL-like multiaddrs as text and anything else as hex.
func decodeMultiaddr(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return hexutil.Encode(raw)
}
