package fio

import (
	"time"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
)

var (
	numPassesFlag = conf.NewIntFlag(
		"num_passes", "Number of passes to run for each workload configuration", 3)
	runDurationFlag = conf.NewDurationFlag(
		"run_duration", "Duration of a single workload pass", 60*time.Second)
	samplingIntervalFlag = conf.NewDurationFlag(
		"sampling_interval", "Averaging window for the fio latency/bandwidth/iops sample logs", 50*time.Millisecond)
	fileSizeFlag = conf.NewStringFlag(
		"file_size", "Size of the data set when the target is a file or a provisioned volume", "4G")
)

// Config keeps the process-wide workload defaults. It is built once from the
// flags and threaded explicitly through every component so that the runner
// stays testable without ambient state.
type Config struct {
	NumPasses        int
	RunDuration      time.Duration
	SamplingInterval time.Duration
	FileSize         string
}

// DefaultConfig returns the workload configuration taken from flags.
func DefaultConfig() Config {
	return Config{
		NumPasses:        numPassesFlag.Value(),
		RunDuration:      runDurationFlag.Value(),
		SamplingInterval: samplingIntervalFlag.Value(),
		FileSize:         fileSizeFlag.Value(),
	}
}
