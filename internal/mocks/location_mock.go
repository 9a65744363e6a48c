package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

// MockLastKnownStore is a mock implementation of the LastKnownStore interface
type MockLastKnownStore struct {
	mock.Mock
}

func (m *MockLastKnownStore) SaveLastKnown(ctx context.Context, loc location.DeviceLocation) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *MockLastKnownStore) LoadLastKnown(ctx context.Context, deviceID string) (*location.DeviceLocation, error) {
	args := m.Called(ctx, deviceID)
	if v := args.Get(0); v != nil {
		return v.(*location.DeviceLocation), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockLocationForwarder is a mock implementation of the LocationForwarder interface
type MockLocationForwarder struct {
	mock.Mock
}

func (m *MockLocationForwarder) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLocationForwarder) Forward(ctx context.Context, loc location.DeviceLocation) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}
