package fio

import (
	"fmt"

	"github.com/pkg/errors"
)

// MissingDependencyError indicates that a tool required for benchmarking is
// not available on the execution host. It is checked before any workload
// starts, finding out mid-run would waste an expensive measurement.
type MissingDependencyError struct {
	Tool string
	Host string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("required tool %q is not available on %q", e.Tool, e.Host)
}

// IsMissingDependency tells whether the cause of the given error is a
// MissingDependencyError.
func IsMissingDependency(err error) bool {
	_, ok := errors.Cause(err).(*MissingDependencyError)
	return ok
}
