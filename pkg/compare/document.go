// Package compare aligns two benchmark runs and produces a self-contained
// comparison document. Configurations are matched by their engine-agnostic
// identity, so a level measured through librbd stays comparable with one
// measured through libaio.
package compare

import (
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

var noiseThresholdFlag = conf.NewFloatFlag(
	"noise_threshold",
	"Relative change below which a metric counts as unchanged",
	0.03)

// Config tunes the comparison.
type Config struct {
	// NoiseThreshold is the relative change treated as run-to-run noise.
	// A change at exactly the threshold still counts as unchanged.
	NoiseThreshold float64
}

// DefaultConfig returns the comparison configuration taken from flags.
func DefaultConfig() Config {
	return Config{NoiseThreshold: noiseThresholdFlag.Value()}
}

// Direction classifies a metric change between two runs.
type Direction string

const (
	// Improved means the metric moved the desirable way beyond noise.
	Improved Direction = "improved"
	// Regressed means the metric moved the undesirable way beyond noise.
	Regressed Direction = "regressed"
	// Unchanged means the change stayed within the noise threshold.
	Unchanged Direction = "unchanged"
	// Missing means only one run carries the data point.
	Missing Direction = "missing"
)

// The compared metrics, in report order. Latency is lower-better, bandwidth
// and IOPS are higher-better.
const (
	MetricLatencyMean   = "latency_ms_mean"
	MetricLatencyP90    = "latency_ms_p90"
	MetricBandwidthMean = "bandwidth_mib_mean"
	MetricIOPSMean      = "iops_mean"
)

func metricNames() []string {
	return []string{MetricLatencyMean, MetricLatencyP90, MetricBandwidthMean, MetricIOPSMean}
}

var lowerIsBetter = map[string]bool{
	MetricLatencyMean:   true,
	MetricLatencyP90:    true,
	MetricBandwidthMean: false,
	MetricIOPSMean:      false,
}

// MetricDelta is the change of one metric between two runs.
type MetricDelta struct {
	Metric    string    `json:"metric"`
	Before    float64   `json:"before"`
	After     float64   `json:"after"`
	PctChange float64   `json:"pct_change"`
	Direction Direction `json:"direction"`
}

// ConfigComparison is the change of one workload configuration between two
// runs. MissingIn names the run the configuration is absent from; the deltas
// are empty then.
type ConfigComparison struct {
	Config    fio.WorkloadConfig `json:"config"`
	MissingIn string             `json:"missing_in,omitempty"`
	Deltas    []MetricDelta      `json:"deltas,omitempty"`
}

// LevelComparison is the change of one stack level between two runs.
// Configurations appear in matrix order. MissingIn names the run the whole
// level is absent from.
type LevelComparison struct {
	Level     stack.Level        `json:"level"`
	MissingIn string             `json:"missing_in,omitempty"`
	Configs   []ConfigComparison `json:"configs,omitempty"`
}

// RunRef identifies one side of a comparison.
type RunRef struct {
	Date string `json:"date"`
	Site string `json:"site"`
}

// Document is the complete comparison of two runs. Levels appear in
// canonical stack order, it serializes deterministically.
type Document struct {
	Before RunRef            `json:"before"`
	After  RunRef            `json:"after"`
	Levels []LevelComparison `json:"levels"`
}

// ConfigSummary is the cross-pass aggregate of one workload configuration of
// one run.
type ConfigSummary struct {
	Config  fio.WorkloadConfig `json:"config"`
	Passes  int                `json:"passes"`
	Metrics map[string]float64 `json:"metrics"`
}
