// Package mocks provides test doubles for the finetune client.
package mocks

import (
	"context"

	finetune "github.com/sells-group/finetune-cli/pkg/finetune"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// UploadFile provides a mock function with given fields: ctx, path
func (_m *MockClient) UploadFile(ctx context.Context, path string) (*finetune.File, error) {
	ret := _m.Called(ctx, path)

	if len(ret) == 0 {
		panic("no return value specified for UploadFile")
	}

	var r0 *finetune.File
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*finetune.File)
	}
	return r0, ret.Error(1)
}

// CreateJob provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateJob(ctx context.Context, req finetune.CreateJobRequest) (*finetune.Job, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreateJob")
	}

	var r0 *finetune.Job
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*finetune.Job)
	}
	return r0, ret.Error(1)
}

// GetJob provides a mock function with given fields: ctx, id
func (_m *MockClient) GetJob(ctx context.Context, id string) (*finetune.Job, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for GetJob")
	}

	var r0 *finetune.Job
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*finetune.Job)
	}
	return r0, ret.Error(1)
}

// ListModels provides a mock function with given fields: ctx
func (_m *MockClient) ListModels(ctx context.Context) ([]finetune.Model, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for ListModels")
	}

	var r0 []finetune.Model
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]finetune.Model)
	}
	return r0, ret.Error(1)
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
