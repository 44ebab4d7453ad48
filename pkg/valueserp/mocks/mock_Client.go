// Package mocks provides test doubles for the valueserp client.
package mocks

import (
	"context"

	valueserp "github.com/sells-group/places-crawler/pkg/valueserp"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, req
func (_m *MockClient) Search(ctx context.Context, req valueserp.SearchRequest) (*valueserp.SearchResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 *valueserp.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, valueserp.SearchRequest) (*valueserp.SearchResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, valueserp.SearchRequest) *valueserp.SearchResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*valueserp.SearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, valueserp.SearchRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
