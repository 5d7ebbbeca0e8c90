package stack

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError indicates missing or invalid run parameters. It is
// fatal and surfaced immediately, before any partial run is attempted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// NewConfigurationError creates a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError tells whether the cause of the given error is a
// ConfigurationError.
func IsConfigurationError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigurationError)
	return ok
}
