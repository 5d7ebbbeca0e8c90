// Package remote delegates a benchmark to a target host over ssh. The runner
// binary is staged on the target, executed there against the local storage
// stack and the artifact tree it produces is pulled back to the orchestrator.
package remote

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/uuid"
)

// CompletionMarker is the file the delegation drops at the root of the remote
// artifact tree once the runner finished. A retrieved tree without it is a
// partial run.
const CompletionMarker = ".complete"

// Delegate runs a staged benchmark on one target host.
type Delegate struct {
	host     string
	exec     executor.Executor
	transfer transfer
	elevate  bool
}

// NewDelegate creates a delegate for the given target. Benchmarks against
// levels below the virtual machine touch devices and ceph volumes, so those
// run under sudo on the target.
func NewDelegate(sshConfig *executor.SSHConfig, level stack.Level) *Delegate {
	return &Delegate{
		host:     sshConfig.Host,
		exec:     executor.NewRemote(sshConfig),
		transfer: newSSHTransfer(sshConfig),
		elevate:  level.RequiresElevation(),
	}
}

// RunBenchmark stages the runner binary on the target, executes it with the
// given arguments writing under remoteDir and retrieves the artifact tree
// into localDir. The target is locked for the whole delegation.
func (d *Delegate) RunBenchmark(runnerPath string, args []string, remoteDir, localDir string) error {
	release := AcquireHostLock(d.host)
	defer release()

	remoteRunner := path.Join("/tmp", fmt.Sprintf("perftest_runner_%s", uuid.New()))

	log.Infof("staging %s on %s", filepath.Base(runnerPath), d.host)
	if err := d.transfer.push(runnerPath, remoteRunner); err != nil {
		return &Error{Host: d.host, Phase: PhaseStage, Err: err}
	}
	defer d.cleanup(remoteRunner, remoteDir)

	if err := d.reset(remoteDir); err != nil {
		return &Error{Host: d.host, Phase: PhaseReset, Err: err}
	}

	log.Infof("running benchmark on %s (elevated: %t)", d.host, d.elevate)
	if err := d.invoke(remoteRunner, args, remoteDir); err != nil {
		return &Error{Host: d.host, Phase: PhaseInvoke, Err: err}
	}

	if err := d.chown(remoteDir); err != nil {
		return &Error{Host: d.host, Phase: PhaseChown, Err: err}
	}

	log.Infof("retrieving artifacts from %s", d.host)
	if err := d.retrieve(remoteDir, localDir); err != nil {
		return &Error{Host: d.host, Phase: PhaseRetrieve, Err: err}
	}

	return nil
}

// reset wipes leftovers of an aborted run and recreates the artifact
// directory owned by the ssh user.
func (d *Delegate) reset(remoteDir string) error {
	command := fmt.Sprintf("rm -rf %s && mkdir -p %s", remoteDir, remoteDir)
	if d.elevate {
		// Leftovers of an elevated run are owned by root.
		command = fmt.Sprintf("sudo rm -rf %s && mkdir -p %s", remoteDir, remoteDir)
	}
	return executor.RunAndWait(d.exec, command)
}

// invoke executes the staged runner and drops the completion marker once it
// succeeded.
func (d *Delegate) invoke(remoteRunner string, args []string, remoteDir string) error {
	command := strings.Join(append([]string{remoteRunner}, args...), " ")
	if d.elevate {
		command = "sudo " + command
	}
	command = fmt.Sprintf("%s && touch %s", command, path.Join(remoteDir, CompletionMarker))

	return executor.RunAndWait(d.exec, command)
}

// chown hands the artifact tree of an elevated run back to the ssh user so it
// can be tarred up without sudo.
func (d *Delegate) chown(remoteDir string) error {
	if !d.elevate {
		return nil
	}

	command := fmt.Sprintf("sudo chown -R $(id -un):$(id -gn) %s", remoteDir)
	return executor.RunAndWait(d.exec, command)
}

// retrieve pulls the artifact tree and validates its completion marker.
func (d *Delegate) retrieve(remoteDir, localDir string) error {
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return errors.Wrapf(err, "could not create %q", localDir)
	}

	if err := d.transfer.pull(remoteDir, localDir); err != nil {
		return err
	}

	marker := filepath.Join(localDir, CompletionMarker)
	if _, err := os.Stat(marker); err != nil {
		return errors.Errorf("retrieved tree has no completion marker, the run did not finish")
	}

	// The marker is a delegation detail, not an artifact.
	return os.Remove(marker)
}

// cleanup removes the staged runner and the artifact tree from the target.
// Failures are logged only, the benchmark result is already decided.
func (d *Delegate) cleanup(remoteRunner, remoteDir string) {
	command := fmt.Sprintf("rm -f %s && rm -rf %s", remoteRunner, remoteDir)
	if d.elevate {
		command = "sudo " + command
	}

	if err := executor.RunAndWait(d.exec, command); err != nil {
		log.Warnf("could not clean up %s: %v", d.host, err)
	}
}
