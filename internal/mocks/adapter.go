package mocks

import (
	"context"
	"net/http"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/metrics"
	"github.com/stretchr/testify/mock"
)

// MockFileAdapter implements memfs.FileAdapter for testing across packages
type MockFileAdapter struct {
	mock.Mock
}

func (m *MockFileAdapter) Read(ctx context.Context, offset int64, size int64, buf []byte) (int, error) {
	args := m.Called(ctx, offset, size, buf)

	// Function returns let tests fill buf
	if fn, ok := args.Get(0).(func(context.Context, int64, int64, []byte) int); ok {
		return fn(ctx, offset, size, buf), args.Error(1)
	}

	if args.Get(0) == nil {
		return 0, args.Error(1)
	}
	return args.Get(0).(int), args.Error(1)
}

func (m *MockFileAdapter) GetMeta(ctx context.Context) (*memfs.FileMetadata, error) {
	args := m.Called(ctx)

	if fn, ok := args.Get(0).(func(context.Context) *memfs.FileMetadata); ok {
		return fn(ctx), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*memfs.FileMetadata), args.Error(1)
}

var _ memfs.FileAdapter = (*MockFileAdapter)(nil)

// MockAdapterProvider implements memfs.AdapterProvider for testing across packages
type MockAdapterProvider struct {
	mock.Mock
}

func (m *MockAdapterProvider) NewAdapter(raw []byte) (memfs.FileAdapter, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(memfs.FileAdapter), args.Error(1)
}

var _ memfs.AdapterProvider = (*MockAdapterProvider)(nil)

// MockHTTPClient stands in for *http.Client in adapter tests
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if fn, ok := args.Get(0).(func(*http.Request) *http.Response); ok {
		return fn(req), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

// MockLookupMetrics implements metrics.LookupMetrics
type MockLookupMetrics struct {
	mock.Mock
}

func (m *MockLookupMetrics) ObserveLookup(status string, hops int) {
	m.Called(status, hops)
}

func (m *MockLookupMetrics) RecordTooManyLinks() {
	m.Called()
}

var _ metrics.LookupMetrics = (*MockLookupMetrics)(nil)
