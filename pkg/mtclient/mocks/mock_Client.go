// Package mocks provides test doubles for the MT client.
package mocks

import (
	"context"

	mtclient "github.com/sells-group/doctrans/pkg/mtclient"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Translate provides a mock function with given fields: ctx, items, sourceLang, targetLang
func (_m *MockClient) Translate(ctx context.Context, items []mtclient.Item, sourceLang string, targetLang string) ([]mtclient.Result, error) {
	ret := _m.Called(ctx, items, sourceLang, targetLang)

	if len(ret) == 0 {
		panic("no return value specified for Translate")
	}

	var r0 []mtclient.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []mtclient.Item, string, string) ([]mtclient.Result, error)); ok {
		return rf(ctx, items, sourceLang, targetLang)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]mtclient.Result)
	}
	r1 = ret.Error(1)

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
