// Package session binds one stack level to one host and runs the full
// workload matrix there, producing a self-describing test record. The matrix
// runs in-process when the host is the local machine and is delegated over
// ssh otherwise.
package session

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/remote"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/netutil"
)

const (
	// ThrowawayFilePath is the disposable file tested at the vm_disk level.
	ThrowawayFilePath = "./performance_test.tmp"

	// VolumeName is the test volume provisioned at the rbd levels.
	VolumeName = "performance_test"

	// RunnerScript is the name of the runner binary, recorded in the run
	// side record.
	RunnerScript = "runfio"

	// defaultRemoteDir is the scratch artifact directory on a delegation
	// target.
	defaultRemoteDir = "/tmp/perftest_results"
)

// PoolName returns the ceph pool tested at the rbd levels of a site.
func PoolName(site string) string {
	return site + "-compute"
}

// target keeps the level-specific part of a runner invocation.
type target struct {
	device   string
	pool     string
	filePath string
}

// runnerForLevel maps a stack level and target onto the fio runner driving
// it.
func runnerForLevel(level stack.Level, t target, config fio.Config) (fio.Runner, error) {
	switch level {
	case stack.OSDDisk:
		if t.device == "" {
			return nil, stack.NewConfigurationError("level %s requires a block device", level)
		}
		return fio.DeviceRunner{Path: t.device}, nil

	case stack.RBDFromOSD, stack.RBDFromHypervisor:
		if t.pool == "" {
			return nil, stack.NewConfigurationError("level %s requires a ceph pool", level)
		}
		return fio.VolumeRunner{Pool: t.pool, Volume: VolumeName, Size: config.FileSize}, nil

	case stack.VMDisk:
		if t.filePath == "" {
			return nil, stack.NewConfigurationError("level %s requires a file path", level)
		}
		return fio.DeviceRunner{Path: t.filePath, Throwaway: true, Size: config.FileSize}, nil
	}

	return nil, stack.NewConfigurationError("no runner for level %s", level)
}

// delegator is the remote delegation seam, satisfied by remote.Delegate.
type delegator interface {
	RunBenchmark(runnerPath string, args []string, remoteDir, localDir string) error
}

// Session runs the workload matrix for one stack level on one host.
type Session struct {
	Level stack.Level
	Host  stack.HostInfo
	Site  string

	// Device is the raw block device tested at the osd_disk level.
	Device string

	Config fio.Config

	// RunnerBinary is the local path of the runner staged on delegation
	// targets.
	RunnerBinary string

	// newDelegate is replaced in tests.
	newDelegate func(host string, level stack.Level) (delegator, error)
}

// Validate checks the session parameters. It runs before any remote work so
// a misconfigured session never touches a target.
func (s Session) Validate() error {
	if err := s.Host.Validate(s.Level); err != nil {
		return err
	}

	if s.Level == stack.OSDDisk && s.Device == "" {
		return stack.NewConfigurationError("level %s requires a block device", s.Level)
	}

	if s.Level.IOEngine() == "rbd" && s.Site == "" {
		return stack.NewConfigurationError("level %s requires a site to derive the ceph pool from", s.Level)
	}

	return nil
}

// Run executes the matrix on the bound host. Artifacts land under
// <outDir>/<level>/<fqdn> and the returned record points at them.
func (s Session) Run(outDir string) (stack.TestRecord, error) {
	if err := s.Validate(); err != nil {
		return stack.TestRecord{}, err
	}

	localDir := filepath.Join(outDir, s.Level.String(), s.Host.FQDN)

	if netutil.IsAddrLocal(s.Host.FQDN) {
		log.Infof("running %s matrix locally on %s", s.Level, s.Host.FQDN)
		if err := s.runLocally(localDir); err != nil {
			return stack.TestRecord{}, err
		}
	} else {
		log.Infof("delegating %s matrix to %s", s.Level, s.Host.FQDN)
		if err := s.delegate(localDir); err != nil {
			return stack.TestRecord{}, err
		}
	}

	metadata, err := stack.LoadRunMetadata(localDir)
	if err != nil {
		return stack.TestRecord{}, errors.Wrapf(err, "artifact tree of %s on %q has no run metadata", s.Level, s.Host.FQDN)
	}

	return stack.TestRecord{
		StackLevel:    s.Level,
		HostInfo:      s.Host,
		TestInfo:      metadata.TestInfo,
		ArtifactDir:   localDir,
		FailedConfigs: metadata.FailedConfigs,
	}, nil
}

func (s Session) runLocally(localDir string) error {
	runner, err := runnerForLevel(s.Level, s.localTarget(), s.Config)
	if err != nil {
		return err
	}

	return ExecuteLocal(s.Level, runner, s.Config, localDir)
}

func (s Session) delegate(localDir string) error {
	if s.RunnerBinary == "" {
		return stack.NewConfigurationError("no runner binary to stage on %q", s.Host.FQDN)
	}

	newDelegate := s.newDelegate
	if newDelegate == nil {
		newDelegate = sshDelegate
	}

	delegate, err := newDelegate(s.Host.FQDN, s.Level)
	if err != nil {
		return err
	}

	return delegate.RunBenchmark(s.RunnerBinary, s.runnerArgs(), defaultRemoteDir, localDir)
}

func sshDelegate(host string, level stack.Level) (delegator, error) {
	sshConfig, err := executor.NewSSHConfigForCurrentUser(host)
	if err != nil {
		return nil, err
	}
	return remote.NewDelegate(sshConfig, level), nil
}

// runnerArgs builds the runner invocation for a delegation, mirroring the
// flags RunnerSettings parses.
func (s Session) runnerArgs() []string {
	args := []string{
		"--stack_level", s.Level.String(),
		"--outdir", defaultRemoteDir,
		"--num_passes", strconv.Itoa(s.Config.NumPasses),
		"--run_duration", s.Config.RunDuration.String(),
		"--sampling_interval", s.Config.SamplingInterval.String(),
		"--file_size", s.Config.FileSize,
	}

	switch s.Level {
	case stack.OSDDisk:
		args = append(args, "--device", s.Device)
	case stack.RBDFromOSD, stack.RBDFromHypervisor:
		args = append(args, "--pool", PoolName(s.Site))
	case stack.VMDisk:
		args = append(args, "--file_path", ThrowawayFilePath)
	}

	return args
}

func (s Session) localTarget() target {
	return target{
		device:   s.Device,
		pool:     PoolName(s.Site),
		filePath: ThrowawayFilePath,
	}
}

// ExecuteLocal runs the workload matrix in-process and writes the run side
// record next to the artifact tree. The runner binary calls this on the
// delegation target, the session calls it directly when the target is the
// local machine.
func ExecuteLocal(level stack.Level, runner fio.Runner, config fio.Config, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return errors.Wrapf(err, "could not create %q", outDir)
	}

	failed, err := fio.NewTestRunner(executor.NewLocal(), runner, config, outDir).Run()
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return errors.Wrap(err, "could not read local hostname")
	}

	metadata := stack.RunMetadata{
		TestInfo: stack.TestInfo{
			NumPasses:  config.NumPasses,
			StackLevel: level,
			Script:     RunnerScript,
			Host:       hostname,
		},
		FailedConfigs: failed,
	}

	return stack.WriteRunMetadata(outDir, metadata)
}
