// Package mocks provides test doubles for the anonymizer client.
package mocks

import (
	"context"

	anonymizer "github.com/sells-group/doctrans/pkg/anonymizer"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Anonymize provides a mock function with given fields: ctx, text, language
func (_m *MockClient) Anonymize(ctx context.Context, text string, language string) (*anonymizer.Result, error) {
	ret := _m.Called(ctx, text, language)

	if len(ret) == 0 {
		panic("no return value specified for Anonymize")
	}

	var r0 *anonymizer.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*anonymizer.Result, error)); ok {
		return rf(ctx, text, language)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *anonymizer.Result); ok {
		r0 = rf(ctx, text, language)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*anonymizer.Result)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, text, language)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// AnonymizeBatch provides a mock function with given fields: ctx, items
func (_m *MockClient) AnonymizeBatch(ctx context.Context, items []anonymizer.Item) ([]anonymizer.Result, error) {
	ret := _m.Called(ctx, items)

	if len(ret) == 0 {
		panic("no return value specified for AnonymizeBatch")
	}

	var r0 []anonymizer.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []anonymizer.Item) ([]anonymizer.Result, error)); ok {
		return rf(ctx, items)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []anonymizer.Item) []anonymizer.Result); ok {
		r0 = rf(ctx, items)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]anonymizer.Result)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []anonymizer.Item) error); ok {
		r1 = rf(ctx, items)
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
