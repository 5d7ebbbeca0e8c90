package compare

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

const summaryTemplate = `{
    "global options": {"ioengine": "%s"},
    "jobs": [{
        "job options": {"rw": "%s", "bs": "%s", "iodepth": "%d"},
        "read": %s,
        "write": %s
    }]
}`

func sideStatsJSON(latencyMeanMs, latencyP90Ms, bandwidthKiB, iops float64) string {
	return fmt.Sprintf(`{
        "clat_ns": {
            "min": 0, "max": 0, "stddev": 0,
            "mean": %f,
            "percentile": {"90.000000": %f}
        },
        "bw_min": 0, "bw_max": 0, "bw_dev": 0, "bw_mean": %f,
        "iops_min": 0, "iops_max": 0, "iops_stddev": 0, "iops_mean": %f
    }`, latencyMeanMs*1e6, latencyP90Ms*1e6, bandwidthKiB, iops)
}

// writePass materializes one gzipped fio pass summary in the artifact tree.
func writePass(t *testing.T, treeDir, ioEngine string, workloadConfig fio.WorkloadConfig,
	pass int, latencyMeanMs, latencyP90Ms, bandwidthKiB, iops float64) {

	sideStats := sideStatsJSON(latencyMeanMs, latencyP90Ms, bandwidthKiB, iops)
	emptySide := sideStatsJSON(0, 0, 0, 0)
	readSide, writeSide := emptySide, sideStats
	if workloadConfig.Pattern.IsRead() {
		readSide, writeSide = sideStats, emptySide
	}

	document := fmt.Sprintf(summaryTemplate,
		ioEngine, workloadConfig.Pattern, workloadConfig.BlockSize, workloadConfig.QueueDepth,
		readSide, writeSide)

	passDir := filepath.Join(treeDir, workloadConfig.DirName(ioEngine), fio.RunDirName(pass))
	if err := os.MkdirAll(passDir, 0755); err != nil {
		t.Fatal(err)
	}

	file, err := os.Create(filepath.Join(passDir, fio.SummaryFileName))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	if _, err := gzipWriter.Write([]byte(document)); err != nil {
		t.Fatal(err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRecordSummaries(t *testing.T) {
	Convey("While aggregating an artifact tree", t, func() {
		treeDir, err := os.MkdirTemp("", "perftest_tree_")
		So(err, ShouldBeNil)
		defer os.RemoveAll(treeDir)

		record := stack.TestRecord{
			StackLevel:  stack.RBDFromOSD,
			ArtifactDir: treeDir,
		}

		Convey("Pass metrics should be averaged per configuration", func() {
			workloadConfig := fio.Matrix()[0]
			writePass(t, treeDir, "rbd", workloadConfig, 1, 10, 15, 1024, 500)
			writePass(t, treeDir, "rbd", workloadConfig, 2, 20, 25, 3072, 1500)

			summaries, err := LoadRecordSummaries(record)
			So(err, ShouldBeNil)
			So(summaries, ShouldHaveLength, 1)

			summary := summaries[workloadConfig.Key()]
			So(summary.Passes, ShouldEqual, 2)
			So(summary.Metrics[MetricLatencyMean], ShouldAlmostEqual, 15)
			So(summary.Metrics[MetricLatencyP90], ShouldAlmostEqual, 20)
			// fio reports bandwidth in KiB/s, the aggregate is in MiB/s.
			So(summary.Metrics[MetricBandwidthMean], ShouldAlmostEqual, 2)
			So(summary.Metrics[MetricIOPSMean], ShouldAlmostEqual, 1000)
		})

		Convey("Failed configurations should be skipped", func() {
			complete := fio.Matrix()[0]
			failed := fio.Matrix()[1]
			writePass(t, treeDir, "rbd", complete, 1, 10, 15, 1024, 500)
			writePass(t, treeDir, "rbd", failed, 1, 10, 15, 1024, 500)

			record.FailedConfigs = []string{failed.DirName("rbd")}

			summaries, err := LoadRecordSummaries(record)
			So(err, ShouldBeNil)
			So(summaries, ShouldHaveLength, 1)
			_, ok := summaries[failed.Key()]
			So(ok, ShouldBeFalse)
		})

		Convey("Stray files and directories should be ignored", func() {
			writePass(t, treeDir, "rbd", fio.Matrix()[0], 1, 10, 15, 1024, 500)
			So(os.WriteFile(filepath.Join(treeDir, stack.MetadataFileName), []byte("{}"), 0644), ShouldBeNil)
			So(os.MkdirAll(filepath.Join(treeDir, "lost+found"), 0755), ShouldBeNil)

			summaries, err := LoadRecordSummaries(record)
			So(err, ShouldBeNil)
			So(summaries, ShouldHaveLength, 1)
		})

		Convey("A missing tree should fail", func() {
			record.ArtifactDir = filepath.Join(treeDir, "nope")
			_, err := LoadRecordSummaries(record)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCompareRecords(t *testing.T) {
	Convey("While comparing two records through their artifact trees", t, func() {
		beforeDir, err := os.MkdirTemp("", "perftest_before_")
		So(err, ShouldBeNil)
		defer os.RemoveAll(beforeDir)

		afterDir, err := os.MkdirTemp("", "perftest_after_")
		So(err, ShouldBeNil)
		defer os.RemoveAll(afterDir)

		// The before side was measured through librbd on an osd host, the
		// after side through libaio inside a VM. Alignment must survive the
		// engine difference.
		for _, workloadConfig := range fio.Matrix() {
			writePass(t, beforeDir, "rbd", workloadConfig, 1, 20, 40, 2048, 1000)
			writePass(t, afterDir, "libaio", workloadConfig, 1, 10, 20, 4096, 2000)
		}

		level := stack.RBDFromOSD
		comparison, err := CompareRecords(
			stack.TestRecord{StackLevel: level, ArtifactDir: beforeDir},
			stack.TestRecord{StackLevel: level, ArtifactDir: afterDir},
			Config{NoiseThreshold: 0.03})
		So(err, ShouldBeNil)

		So(comparison.Configs, ShouldHaveLength, len(fio.Matrix()))
		for _, configComparison := range comparison.Configs {
			So(configComparison.MissingIn, ShouldBeEmpty)
			So(deltaFor(configComparison, MetricLatencyMean).Direction, ShouldEqual, Improved)
			So(deltaFor(configComparison, MetricBandwidthMean).Direction, ShouldEqual, Improved)
			So(deltaFor(configComparison, MetricIOPSMean).PctChange, ShouldAlmostEqual, 1.0)
		}
	})
}
