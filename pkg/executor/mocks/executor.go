package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor"
)

// Executor is a mock of the executor.Executor interface.
type Executor struct {
	mock.Mock
}

// Execute provides a mock function with given fields: command
func (_m *Executor) Execute(command string) (executor.TaskHandle, error) {
	ret := _m.Called(command)

	var r0 executor.TaskHandle
	if rf, ok := ret.Get(0).(func(string) executor.TaskHandle); ok {
		r0 = rf(command)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(executor.TaskHandle)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(string) error); ok {
		r1 = rf(command)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Name provides a mock function with no fields.
func (_m *Executor) Name() string {
	ret := _m.Called()

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}
