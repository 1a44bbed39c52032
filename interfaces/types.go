package interfaces

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CanonicalAddress returns the lower-cased, 0x-prefixed form of an address.
// Secret headers and credential lookups only ever use this form.
func CanonicalAddress(addr string) string {
	clean := strings.ToLower(strings.TrimSpace(addr))
	if clean == "" {
		return ""
	}
	if !strings.HasPrefix(clean, "0x") {
		clean = "0x" + clean
	}
	return clean
}

// IsZeroAddress reports whether addr is empty or the zero address.
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

// TaskStatus is the on-chain status of a task.
type TaskStatus uint8

const (
	TaskUnset TaskStatus = iota
	TaskActive
	TaskRevealing
	TaskCompleted
	TaskFailed
)

// String returns the status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskUnset:
		return "UNSET"
	case TaskActive:
		return "ACTIVE"
	case TaskRevealing:
		return "REVEALING"
	case TaskCompleted:
		return "COMPLETED"
	case TaskFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// TeeFramework identifies the TEE framework a task must run with.
type TeeFramework string

const (
	FrameworkNone    TeeFramework = ""
	FrameworkScone   TeeFramework = "scone"
	FrameworkGramine TeeFramework = "gramine"
	FrameworkTDX     TeeFramework = "tdx"
)

// Deal tag bits.
const (
	tagBitTee     = 0
	tagBitScone   = 1
	tagBitGramine = 2
	tagBitTDX     = 3
)

// ParseTeeFramework converts a configuration value into a TeeFramework.
func ParseTeeFramework(name string) (TeeFramework, bool) {
	switch TeeFramework(strings.ToLower(strings.TrimSpace(name))) {
	case FrameworkScone:
		return FrameworkScone, true
	case FrameworkGramine:
		return FrameworkGramine, true
	case FrameworkTDX:
		return FrameworkTDX, true
	default:
		return FrameworkNone, false
	}
}

// DealTag is the 32-byte tag of a deal.
type DealTag [32]byte

func (t DealTag) bit(n uint) bool {
	return t[31-n/8]&(1<<(n%8)) != 0
}

// IsTee reports whether the deal requires a TEE.
func (t DealTag) IsTee() bool {
	return t.bit(tagBitTee)
}

// Framework returns the TEE framework encoded in the tag, FrameworkNone for
// standard tasks or tags that do not name exactly one framework.
func (t DealTag) Framework() TeeFramework {
	if !t.IsTee() {
		return FrameworkNone
	}
	var found []TeeFramework
	if t.bit(tagBitScone) {
		found = append(found, FrameworkScone)
	}
	if t.bit(tagBitGramine) {
		found = append(found, FrameworkGramine)
	}
	if t.bit(tagBitTDX) {
		found = append(found, FrameworkTDX)
	}
	if len(found) != 1 {
		return FrameworkNone
	}
	return found[0]
}

// Task is the on-chain view of a task.
type Task struct {
	TaskID string
	DealID string
	Index  *big.Int
	Status TaskStatus
}

// IsActive reports whether the task accepts execution requests.
func (t *Task) IsActive() bool {
	return t.Status == TaskActive
}

// DealParams holds the requester-supplied task parameters of a deal.
type DealParams struct {
	Args                  string
	InputFiles            []string
	ResultEncryption      bool
	ResultStorageProvider string
	ResultStorageProxy    string
	// RequesterSecrets maps an index to the key of a requester web2 secret.
	RequesterSecrets map[int]string
}

// Deal is the on-chain view of a deal.
type Deal struct {
	DealID          string
	App             common.Address
	AppOwner        common.Address
	Dataset         common.Address
	DatasetOwner    common.Address
	Workerpool      common.Address
	WorkerpoolOwner common.Address
	Requester       common.Address
	Beneficiary     common.Address
	Callback        common.Address
	Tag             DealTag
	BotFirst        *big.Int
	BotSize         *big.Int
	Params          DealParams
}

// HasDataset reports whether the deal references a dataset.
func (d *Deal) HasDataset() bool {
	return !IsZeroAddress(d.Dataset)
}

// HasCallback reports whether results are delivered through a callback contract.
func (d *Deal) HasCallback() bool {
	return !IsZeroAddress(d.Callback)
}

// App is the on-chain view of an application.
type App struct {
	Address   common.Address
	Owner     common.Address
	Multiaddr string
	Checksum  [32]byte
	// MREnclave is the raw on-chain enclave fingerprint string.
	MREnclave string
}

// Dataset is the on-chain view of a dataset.
type Dataset struct {
	Address   common.Address
	Owner     common.Address
	Multiaddr string
	Checksum  [32]byte
}

// ChainOracle exposes the read-only blockchain queries the service relies on.
type ChainOracle interface {
	// GetTask returns the task or ErrNotFound.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetDeal returns the deal or ErrNotFound.
	GetDeal(ctx context.Context, dealID string) (*Deal, error)

	// GetApp returns the application registered at address.
	GetApp(ctx context.Context, address common.Address) (*App, error)

	// GetDataset returns the dataset registered at address.
	GetDataset(ctx context.Context, address common.Address) (*Dataset, error)

	// OwnerOf returns the owner of an ownable contract.
	OwnerOf(ctx context.Context, address common.Address) (common.Address, error)

	// IsTeeTask reports whether the deal of the task requires a TEE.
	IsTeeTask(ctx context.Context, taskID string) (bool, error)
}
