package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/invoicing"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/s3"
)

// MockQuerier is a mock implementation of the backend.Querier interface
type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) RPC(ctx context.Context, fn string, params any, out any) error {
	return m.Called(ctx, fn, params, out).Error(0)
}

func (m *MockQuerier) Select(ctx context.Context, table string, q backend.Query, out any) error {
	return m.Called(ctx, table, q, out).Error(0)
}

func (m *MockQuerier) Insert(ctx context.Context, table string, row any, out any) error {
	return m.Called(ctx, table, row, out).Error(0)
}

func (m *MockQuerier) Update(ctx context.Context, table string, filters []backend.Filter, patch any, out any) error {
	return m.Called(ctx, table, filters, patch, out).Error(0)
}

func (m *MockQuerier) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	return m.Called(ctx, table, filters).Error(0)
}

// MockInvoiceSender is a mock implementation of the InvoiceSender interface
type MockInvoiceSender struct {
	mock.Mock
}

func (m *MockInvoiceSender) SendInvoice(ctx context.Context, inv invoicing.Invoice) (invoicing.Result, error) {
	args := m.Called(ctx, inv)
	return args.Get(0).(invoicing.Result), args.Error(1)
}

// MockObjectStorage is a mock implementation of the s3.ObjectStorageClient interface
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Upload(ctx context.Context, objectName string, content io.Reader, size int64, contentType string) (s3.Object, error) {
	args := m.Called(ctx, objectName, content, size, contentType)
	return args.Get(0).(s3.Object), args.Error(1)
}

func (m *MockObjectStorage) PresignedURL(ctx context.Context, objectName string) (string, error) {
	args := m.Called(ctx, objectName)
	return args.String(0), args.Error(1)
}
