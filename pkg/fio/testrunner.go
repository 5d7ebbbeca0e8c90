package fio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor"
)

const (
	// SummaryFileName is the compressed fio job summary inside a pass
	// directory.
	SummaryFileName = "run_stats.log.gz"

	// TranscriptFileName is the captured fio stdout/stderr transcript
	// inside a pass directory.
	TranscriptFileName = "transcript.log"
)

// TestRunner executes the full workload matrix against one target with a
// fixed pass count, on the machine it runs on. Passes within a configuration
// and configurations within the matrix run strictly sequentially, parallel
// load on the same target would invalidate the measurement.
type TestRunner struct {
	exec   executor.Executor
	runner Runner
	config Config
	outDir string
}

// NewTestRunner creates a test runner writing its artifact tree under
// outDir.
func NewTestRunner(exec executor.Executor, runner Runner, config Config, outDir string) *TestRunner {
	return &TestRunner{
		exec:   exec,
		runner: runner,
		config: config,
		outDir: outDir,
	}
}

// Run executes every workload configuration of the matrix. It returns the
// artifact directory names of configurations whose passes did not all
// complete. A failing pass aborts the remaining passes of its configuration
// but not the later configurations; the partial artifacts are preserved.
// Failed passes are never retried, a skewed measurement from a retry would
// be indistinguishable from a clean one.
func (t *TestRunner) Run() (failedConfigs []string, err error) {
	if err := checkDependencies(t.exec, t.runner); err != nil {
		return nil, err
	}

	if err := t.runner.Prepare(t.exec); err != nil {
		return nil, errors.Wrapf(err, "could not prepare target for %q", t.runner.Name())
	}

	for _, workloadConfig := range Matrix() {
		configDirName := workloadConfig.DirName(t.runner.IOEngine())

		log.Infof("running %s (%d passes)", configDirName, t.config.NumPasses)

		if err := t.runConfig(workloadConfig, configDirName); err != nil {
			log.Warnf("configuration %s failed, keeping partial artifacts and moving on: %v",
				configDirName, err)
			failedConfigs = append(failedConfigs, configDirName)
		}
	}

	return failedConfigs, nil
}

// runConfig executes all passes of one workload configuration.
func (t *TestRunner) runConfig(workloadConfig WorkloadConfig, configDirName string) error {
	for pass := 1; pass <= t.config.NumPasses; pass++ {
		passDir := filepath.Join(t.outDir, configDirName, RunDirName(pass))
		if err := os.MkdirAll(passDir, 0755); err != nil {
			return errors.Wrapf(err, "could not create pass directory %q", passDir)
		}

		if err := t.runPass(workloadConfig, passDir); err != nil {
			return errors.Wrapf(err, "pass %d failed", pass)
		}

		if err := t.runner.PassCleanup(t.exec); err != nil {
			return errors.Wrapf(err, "cleanup after pass %d failed", pass)
		}
	}

	return nil
}

// runPass runs fio once for the given configuration and compresses the
// captured logs in place.
func (t *TestRunner) runPass(workloadConfig WorkloadConfig, passDir string) error {
	command := t.fioCommand(workloadConfig, passDir)

	handle, err := t.exec.Execute(command)
	if err != nil {
		return err
	}
	defer handle.EraseOutput()
	defer handle.Clean()

	handle.Wait(0)

	// The transcript is kept even when the pass failed, it is the only
	// trace of what went wrong on the target.
	if transcriptErr := t.writeTranscript(handle, passDir); transcriptErr != nil {
		log.Warnf("could not capture fio transcript: %v", transcriptErr)
	}

	exitCode, err := handle.ExitCode()
	if err != nil {
		return errors.Wrap(err, "could not get fio exit code")
	}
	if exitCode != 0 {
		return errors.Errorf("fio exited with code %d", exitCode)
	}

	return t.compressArtifacts(passDir)
}

// fioCommand builds the full fio invocation for one pass. The job runs for a
// fixed duration with direct (non-cached) I/O and emits per-sample latency,
// bandwidth and IOPS logs next to a JSON job summary.
func (t *TestRunner) fioCommand(workloadConfig WorkloadConfig, passDir string) string {
	args := []string{
		fmt.Sprintf("--name=%s", workloadConfig.Key()),
		fmt.Sprintf("--rw=%s", workloadConfig.Pattern),
		fmt.Sprintf("--bs=%s", workloadConfig.BlockSize),
		fmt.Sprintf("--iodepth=%d", workloadConfig.QueueDepth),
		fmt.Sprintf("--runtime=%d", int(t.config.RunDuration.Seconds())),
		"--time_based",
		"--direct=1",
		"--output-format=json+",
		"--output=run_stats.log",
		"--write_lat_log=data",
		"--write_bw_log=data",
		"--write_iops_log=data",
		fmt.Sprintf("--log_avg_msec=%d", t.config.SamplingInterval.Milliseconds()),
	}
	args = append(args, t.runner.TargetArgs()...)

	return fmt.Sprintf("cd %s && fio %s", passDir, quoteArgs(args))
}

// compressArtifacts normalizes the fio log names and gzips them in place.
// fio suffixes sample logs with the job index, which would make the tree
// layout depend on the fio version.
func (t *TestRunner) compressArtifacts(passDir string) error {
	command := fmt.Sprintf(
		"cd %s && for f in data_*.1.log; do [ -e \"$f\" ] && mv \"$f\" \"${f%%.1.log}.log\"; done; "+
			"rm -f data_clat.log data_slat.log && "+
			"gzip -f data_lat.log data_bw.log data_iops.log run_stats.log",
		passDir)

	if err := executor.RunAndWait(t.exec, command); err != nil {
		return errors.Wrapf(err, "could not compress artifacts in %q", passDir)
	}

	return nil
}

// writeTranscript copies the fio stdout and stderr into the pass directory.
func (t *TestRunner) writeTranscript(handle executor.TaskHandle, passDir string) error {
	transcript, err := os.Create(filepath.Join(passDir, TranscriptFileName))
	if err != nil {
		return errors.Wrap(err, "could not create transcript file")
	}
	defer transcript.Close()

	for _, stream := range []struct {
		name   string
		fileFn func() (*os.File, error)
	}{
		{"stdout", handle.StdoutFile},
		{"stderr", handle.StderrFile},
	} {
		file, err := stream.fileFn()
		if err != nil {
			return errors.Wrapf(err, "could not read fio %s", stream.name)
		}
		fmt.Fprintf(transcript, "--- %s ---\n", stream.name)
		if _, err := io.Copy(transcript, file); err != nil {
			return errors.Wrapf(err, "could not copy fio %s", stream.name)
		}
	}

	return nil
}
