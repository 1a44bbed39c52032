package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockOracle mocks the interfaces.ChainOracle interface
type MockOracle struct {
	mock.Mock
}

var _ interfaces.ChainOracle = (*MockOracle)(nil)

// GetTask mocks the GetTask method
func (m *MockOracle) GetTask(ctx context.Context, taskID string) (*interfaces.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Task), args.Error(1)
}

// GetDeal mocks the GetDeal method
func (m *MockOracle) GetDeal(ctx context.Context, dealID string) (*interfaces.Deal, error) {
	args := m.Called(ctx, dealID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Deal), args.Error(1)
}

// GetApp mocks the GetApp method
func (m *MockOracle) GetApp(ctx context.Context, address common.Address) (*interfaces.App, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.App), args.Error(1)
}

// GetDataset mocks the GetDataset method
func (m *MockOracle) GetDataset(ctx context.Context, address common.Address) (*interfaces.Dataset, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Dataset), args.Error(1)
}

// OwnerOf mocks the OwnerOf method
func (m *MockOracle) OwnerOf(ctx context.Context, address common.Address) (common.Address, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(common.Address), args.Error(1)
}

// IsTeeTask mocks the IsTeeTask method
func (m *MockOracle) IsTeeTask(ctx context.Context, taskID string) (bool, error) {
	args := m.Called(ctx, taskID)
	return args.Bool(0), args.Error(1)
}
