package remote

import (
	"fmt"

	"github.com/pkg/errors"
)

// Phase names the delegation stage a remote failure happened in.
type Phase string

const (
	// PhaseStage covers copying the runner binary to the target.
	PhaseStage Phase = "stage"
	// PhaseReset covers wiping leftovers of a previous run on the target.
	PhaseReset Phase = "reset"
	// PhaseInvoke covers executing the runner on the target.
	PhaseInvoke Phase = "invoke"
	// PhaseChown covers handing artifact ownership back to the ssh user.
	PhaseChown Phase = "chown"
	// PhaseRetrieve covers pulling the artifact tree off the target.
	PhaseRetrieve Phase = "retrieve"
)

// Error ties a delegation failure to the host and the phase it failed in, so
// an operator reading the log knows whether the target never started the
// benchmark or produced artifacts that could not be collected.
type Error struct {
	Host  string
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s phase failed on %q: %v", e.Phase, e.Host, e.Err)
}

// FailedPhase extracts the delegation phase from an error chain. The second
// return value is false when the error did not come from a delegation.
func FailedPhase(err error) (Phase, bool) {
	delegationErr, ok := errors.Cause(err).(*Error)
	if !ok {
		return "", false
	}
	return delegationErr.Phase, true
}
