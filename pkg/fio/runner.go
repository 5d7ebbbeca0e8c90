package fio

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor"
)

// Runner is the target-acquisition strategy of a test run. The two variants
// guarantee the same artifact layout, so downstream result assembly does not
// care which one produced a tree.
type Runner interface {
	// Name returns user-friendly name of the runner mode.
	Name() string
	// IOEngine returns the fio engine the runner drives.
	IOEngine() string
	// Dependencies returns the tools that must be present on the execution
	// host before any workload starts.
	Dependencies() []string
	// Prepare brings the target to an identical state before the matrix
	// runs.
	Prepare(exec executor.Executor) error
	// TargetArgs returns the target-specific part of the fio command line.
	TargetArgs() []string
	// PassCleanup removes per-pass leftovers on the target.
	PassCleanup(exec executor.Executor) error
}

// DeviceRunner writes and reads directly against a device or file path using
// the linux native asynchronous I/O engine.
type DeviceRunner struct {
	// Path of the block device or file to test against.
	Path string
	// Throwaway marks the path as a disposable file. It is recreated by fio
	// and deleted after every pass, reusing data written by a previous pass
	// would bias the measurement.
	Throwaway bool
	// Size of the data set. Required for file targets, ignored for block
	// devices which provide their own bounds.
	Size string
}

// Name returns user-friendly name of the runner mode.
func (r DeviceRunner) Name() string {
	return fmt.Sprintf("Device Runner (%s)", r.Path)
}

// IOEngine returns the fio engine the runner drives.
func (r DeviceRunner) IOEngine() string {
	return "libaio"
}

// Dependencies returns the tools required on the execution host.
func (r DeviceRunner) Dependencies() []string {
	return []string{"fio"}
}

// Prepare removes a stale throwaway file left over from an aborted run.
func (r DeviceRunner) Prepare(exec executor.Executor) error {
	if !r.Throwaway {
		return nil
	}

	return executor.RunAndWait(exec, fmt.Sprintf("rm -f %s", r.Path))
}

// TargetArgs returns the target-specific part of the fio command line.
func (r DeviceRunner) TargetArgs() []string {
	args := []string{
		fmt.Sprintf("--ioengine=%s", r.IOEngine()),
		fmt.Sprintf("--filename=%s", r.Path),
	}
	if r.Throwaway {
		args = append(args, fmt.Sprintf("--size=%s", r.Size))
	}
	return args
}

// PassCleanup deletes the throwaway file after a pass.
func (r DeviceRunner) PassCleanup(exec executor.Executor) error {
	if !r.Throwaway {
		return nil
	}

	return executor.RunAndWait(exec, fmt.Sprintf("rm -f %s", r.Path))
}

// VolumeRunner tests a named RBD volume through librbd. The volume is
// destroyed and thick-provisioned from scratch before the matrix runs, so
// every measurement starts from an identical allocation state without
// copy-on-write warm-up skew.
type VolumeRunner struct {
	// Pool is the ceph pool holding the test volume.
	Pool string
	// Volume is the name of the test volume inside the pool.
	Volume string
	// Size of the provisioned volume.
	Size string
}

// Name returns user-friendly name of the runner mode.
func (r VolumeRunner) Name() string {
	return fmt.Sprintf("Volume Runner (%s/%s)", r.Pool, r.Volume)
}

// IOEngine returns the fio engine the runner drives.
func (r VolumeRunner) IOEngine() string {
	return "rbd"
}

// Dependencies returns the tools required on the execution host.
func (r VolumeRunner) Dependencies() []string {
	return []string{"fio", "rbd"}
}

// Prepare destroys any pre-existing volume of the same name and provisions a
// fresh one. Re-invoking it never fails because of leftovers from a previous
// run.
func (r VolumeRunner) Prepare(exec executor.Executor) error {
	spec := fmt.Sprintf("%s/%s", r.Pool, r.Volume)

	// The volume may legitimately not exist yet, so the removal result is
	// ignored.
	removeCommand := fmt.Sprintf("rbd rm --no-progress %s || true", spec)
	if err := executor.RunAndWait(exec, removeCommand); err != nil {
		return errors.Wrapf(err, "could not remove stale volume %q", spec)
	}

	createCommand := fmt.Sprintf("rbd create --size %s --thick-provision --no-progress %s", r.Size, spec)
	if err := executor.RunAndWait(exec, createCommand); err != nil {
		return errors.Wrapf(err, "could not provision volume %q", spec)
	}

	log.Debugf("provisioned fresh volume %q (%s)", spec, r.Size)
	return nil
}

// TargetArgs returns the target-specific part of the fio command line.
func (r VolumeRunner) TargetArgs() []string {
	return []string{
		fmt.Sprintf("--ioengine=%s", r.IOEngine()),
		fmt.Sprintf("--pool=%s", r.Pool),
		fmt.Sprintf("--rbdname=%s", r.Volume),
		"--clientname=admin",
	}
}

// PassCleanup does nothing for volumes, the allocation state is reset by
// Prepare on the next run.
func (r VolumeRunner) PassCleanup(exec executor.Executor) error {
	return nil
}

// checkDependencies fails fast with a MissingDependencyError when a tool
// required by the runner is absent on the execution host.
func checkDependencies(exec executor.Executor, runner Runner) error {
	for _, tool := range runner.Dependencies() {
		command := fmt.Sprintf("command -v %s", tool)
		if err := executor.RunAndWait(exec, command); err != nil {
			return &MissingDependencyError{Tool: tool, Host: exec.Name()}
		}
	}
	return nil
}

// quoteArgs joins fio arguments into a command line fragment.
func quoteArgs(args []string) string {
	return strings.Join(args, " ")
}
