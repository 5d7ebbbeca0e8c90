// Package fio drives the fio benchmarking tool through a fixed matrix of
// I/O workload configurations and organizes the captured metric logs into a
// deterministic artifact tree.
package fio

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// Pattern is a fio read/write access pattern.
type Pattern string

const (
	// SequentialWrite is the fio `write` pattern.
	SequentialWrite Pattern = "write"
	// SequentialRead is the fio `read` pattern.
	SequentialRead Pattern = "read"
	// RandomWrite is the fio `randwrite` pattern.
	RandomWrite Pattern = "randwrite"
	// RandomRead is the fio `randread` pattern.
	RandomRead Pattern = "randread"
)

// IsRead returns true for the read-side patterns.
func (p Pattern) IsRead() bool {
	return p == SequentialRead || p == RandomRead
}

// WorkloadConfig is a single point of the I/O parameter space.
type WorkloadConfig struct {
	BlockSize  string  `json:"block_size"`
	QueueDepth int     `json:"queue_depth"`
	Pattern    Pattern `json:"pattern"`
}

// Key returns the engine-agnostic identity of the configuration. Results
// captured with different fio engines (librbd vs libaio) stay comparable
// through this key.
func (c WorkloadConfig) Key() string {
	return fmt.Sprintf("bs_%s.iodepth_%d.rw_%s", c.BlockSize, c.QueueDepth, c.Pattern)
}

// DirName returns the artifact directory name for the configuration when
// measured with the given fio engine.
func (c WorkloadConfig) DirName(ioEngine string) string {
	return fmt.Sprintf("ioengine_%s.%s", ioEngine, c.Key())
}

func (c WorkloadConfig) String() string {
	return c.Key()
}

// RunDirName returns the artifact subdirectory name of a single pass.
func RunDirName(pass int) string {
	return fmt.Sprintf("run_%d", pass)
}

var configDirRegexp = regexp.MustCompile(
	`^ioengine_([a-z0-9]+)\.bs_([0-9]+[kKmM]?)\.iodepth_([0-9]+)\.rw_(read|write|randread|randwrite)$`)

// ParseConfigDirName decodes an artifact directory name back into the fio
// engine and the workload configuration it was captured for.
func ParseConfigDirName(name string) (ioEngine string, config WorkloadConfig, err error) {
	groups := configDirRegexp.FindStringSubmatch(name)
	if groups == nil {
		return "", WorkloadConfig{}, errors.Errorf("%q is not a workload artifact directory name", name)
	}

	queueDepth, err := strconv.Atoi(groups[3])
	if err != nil {
		return "", WorkloadConfig{}, errors.Wrapf(err, "bad queue depth in %q", name)
	}

	return groups[1], WorkloadConfig{
		BlockSize:  groups[2],
		QueueDepth: queueDepth,
		Pattern:    Pattern(groups[4]),
	}, nil
}

// Matrix returns the fixed, ordered set of workload configurations every
// test run exercises: large block sequential I/O at a moderate queue depth
// and small block random I/O at the queue depth extremes. The order must not
// vary, it is what makes artifact trees from different runs and stack levels
// comparable. Every call returns a fresh slice in the same order.
func Matrix() []WorkloadConfig {
	return []WorkloadConfig{
		{BlockSize: "4M", QueueDepth: 16, Pattern: SequentialWrite},
		{BlockSize: "4M", QueueDepth: 16, Pattern: SequentialRead},
		{BlockSize: "4k", QueueDepth: 1, Pattern: RandomWrite},
		{BlockSize: "4k", QueueDepth: 1, Pattern: RandomRead},
		{BlockSize: "4k", QueueDepth: 128, Pattern: RandomWrite},
		{BlockSize: "4k", QueueDepth: 128, Pattern: RandomRead},
	}
}
