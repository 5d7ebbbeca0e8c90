package session

import (
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

// Flags shared between the orchestrator building a runner invocation and the
// runner binary parsing one.
var (
	stackLevelFlag = conf.NewStringFlag(
		"stack_level", "Storage stack level the benchmark runs against", "")
	deviceFlag = conf.NewStringFlag(
		"device", "Block device to test at the osd_disk level", "")
	poolFlag = conf.NewStringFlag(
		"pool", "Ceph pool holding the test volume at the rbd levels", "")
	filePathFlag = conf.NewStringFlag(
		"file_path", "Throwaway file tested at the vm_disk level", ThrowawayFilePath)
	outdirFlag = conf.NewStringFlag(
		"outdir", "Directory the artifact tree is written under", "")
)

// Device returns the flag-configured block device for the osd_disk level.
func Device() string {
	return deviceFlag.Value()
}

// OutputDir returns the flag-configured artifact directory. Empty when the
// caller should derive one.
func OutputDir() string {
	return outdirFlag.Value()
}

// RunnerSettings resolves the flag-configured runner invocation of the
// staged runner binary.
func RunnerSettings(config fio.Config) (stack.Level, fio.Runner, string, error) {
	level, err := stack.ParseLevel(stackLevelFlag.Value())
	if err != nil {
		return 0, nil, "", err
	}

	outDir := outdirFlag.Value()
	if outDir == "" {
		return 0, nil, "", stack.NewConfigurationError("no output directory given")
	}

	runner, err := runnerForLevel(level, target{
		device:   deviceFlag.Value(),
		pool:     poolFlag.Value(),
		filePath: filePathFlag.Value(),
	}, config)
	if err != nil {
		return 0, nil, "", err
	}

	return level, runner, outDir, nil
}
