package compare

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

func summariesWith(latency, p90, bandwidth, iops float64) map[string]ConfigSummary {
	summaries := map[string]ConfigSummary{}
	for _, workloadConfig := range fio.Matrix() {
		summaries[workloadConfig.Key()] = ConfigSummary{
			Config: workloadConfig,
			Passes: 3,
			Metrics: map[string]float64{
				MetricLatencyMean:   latency,
				MetricLatencyP90:    p90,
				MetricBandwidthMean: bandwidth,
				MetricIOPSMean:      iops,
			},
		}
	}
	return summaries
}

func deltaFor(comparison ConfigComparison, metric string) MetricDelta {
	for _, delta := range comparison.Deltas {
		if delta.Metric == metric {
			return delta
		}
	}
	return MetricDelta{}
}

func TestCompareMetric(t *testing.T) {
	Convey("While classifying metric changes with a 3% noise threshold", t, func() {
		Convey("A halved latency should be a 50% improvement", func() {
			delta := compareMetric(MetricLatencyMean, 10, 5, 0.03)
			So(delta.PctChange, ShouldAlmostEqual, -0.5)
			So(delta.Direction, ShouldEqual, Improved)
		})

		Convey("Grown latency should be a regression", func() {
			delta := compareMetric(MetricLatencyP90, 10, 12, 0.03)
			So(delta.PctChange, ShouldAlmostEqual, 0.2)
			So(delta.Direction, ShouldEqual, Regressed)
		})

		Convey("Grown throughput should be an improvement", func() {
			So(compareMetric(MetricIOPSMean, 1000, 1200, 0.03).Direction, ShouldEqual, Improved)
			So(compareMetric(MetricBandwidthMean, 100, 120, 0.03).Direction, ShouldEqual, Improved)
		})

		Convey("Shrunk throughput should be a regression", func() {
			So(compareMetric(MetricIOPSMean, 1200, 1000, 0.03).Direction, ShouldEqual, Regressed)
		})

		Convey("A change at the threshold should still count as noise", func() {
			delta := compareMetric(MetricIOPSMean, 1000, 1030, 0.03)
			So(delta.PctChange, ShouldAlmostEqual, 0.03)
			So(delta.Direction, ShouldEqual, Unchanged)
		})

		Convey("Identical values should be unchanged with a zero change", func() {
			delta := compareMetric(MetricLatencyMean, 10, 10, 0.03)
			So(delta.PctChange, ShouldEqual, 0)
			So(delta.Direction, ShouldEqual, Unchanged)
		})
	})
}

func TestCompareSummaries(t *testing.T) {
	config := Config{NoiseThreshold: 0.03}

	Convey("While aligning two aggregated runs of one level", t, func() {
		Convey("A self-comparison should be unchanged everywhere", func() {
			summaries := summariesWith(10, 20, 100, 1000)

			level := CompareSummaries(stack.RBDFromOSD, summaries, summaries, config)

			So(level.Level, ShouldEqual, stack.RBDFromOSD)
			So(level.Configs, ShouldHaveLength, len(fio.Matrix()))
			for _, configComparison := range level.Configs {
				So(configComparison.MissingIn, ShouldBeEmpty)
				for _, delta := range configComparison.Deltas {
					So(delta.PctChange, ShouldEqual, 0)
					So(delta.Direction, ShouldEqual, Unchanged)
				}
			}
		})

		Convey("Configurations should stay in matrix order", func() {
			level := CompareSummaries(stack.VMDisk,
				summariesWith(10, 20, 100, 1000), summariesWith(5, 10, 200, 2000), config)

			for index, workloadConfig := range fio.Matrix() {
				So(level.Configs[index].Config, ShouldResemble, workloadConfig)
			}
		})

		Convey("A configuration present on one side only should surface as missing", func() {
			before := summariesWith(10, 20, 100, 1000)
			after := summariesWith(10, 20, 100, 1000)
			missingKey := fio.Matrix()[3].Key()
			delete(after, missingKey)

			level := CompareSummaries(stack.OSDDisk, before, after, config)

			So(level.Configs, ShouldHaveLength, len(fio.Matrix()))
			missing := level.Configs[3]
			So(missing.Config.Key(), ShouldEqual, missingKey)
			So(missing.MissingIn, ShouldEqual, "after")
			So(missing.Deltas, ShouldBeEmpty)
		})

		Convey("Engine disagreement between sides should not break the alignment", func() {
			// The same configurations measured through librbd on one side
			// and libaio on the other align by their engine-agnostic key.
			delta := deltaFor(CompareSummaries(stack.RBDFromOSD,
				summariesWith(10, 20, 100, 1000),
				summariesWith(5, 10, 100, 1000), config).Configs[0], MetricLatencyMean)
			So(delta.Direction, ShouldEqual, Improved)
		})
	})
}

func TestCompareResultSets(t *testing.T) {
	Convey("While aligning two full runs", t, func() {
		before := stack.ResultSet{
			Date: "2026-08-01_10-00-00",
			Site: "eqiad1",
			Tests: map[stack.Level]stack.TestRecord{
				stack.RBDFromOSD: {StackLevel: stack.RBDFromOSD, ArtifactDir: "/nonexistent"},
			},
		}
		after := stack.ResultSet{
			Date: "2026-08-15_10-00-00",
			Site: "eqiad1",
			Tests: map[stack.Level]stack.TestRecord{
				stack.VMDisk: {StackLevel: stack.VMDisk, ArtifactDir: "/nonexistent"},
			},
		}

		document, err := CompareResultSets(before, after, Config{NoiseThreshold: 0.03})
		So(err, ShouldBeNil)

		Convey("The run references should identify both sides", func() {
			So(document.Before, ShouldResemble, RunRef{Date: "2026-08-01_10-00-00", Site: "eqiad1"})
			So(document.After, ShouldResemble, RunRef{Date: "2026-08-15_10-00-00", Site: "eqiad1"})
		})

		Convey("One-sided levels should surface as missing in canonical order", func() {
			So(document.Levels, ShouldResemble, []LevelComparison{
				{Level: stack.RBDFromOSD, MissingIn: "after"},
				{Level: stack.VMDisk, MissingIn: "before"},
			})
		})
	})
}

func TestWriteTable(t *testing.T) {
	Convey("While rendering a comparison document", t, func() {
		document, err := CompareResultSets(
			stack.ResultSet{Date: "a", Site: "eqiad1",
				Tests: map[stack.Level]stack.TestRecord{stack.OSDDisk: {StackLevel: stack.OSDDisk}}},
			stack.ResultSet{Date: "b", Site: "eqiad1", Tests: map[stack.Level]stack.TestRecord{}},
			Config{NoiseThreshold: 0.03})
		So(err, ShouldBeNil)

		buffer := &bytes.Buffer{}
		WriteTable(buffer, document)

		So(buffer.String(), ShouldContainSubstring, "osd_disk")
		So(buffer.String(), ShouldContainSubstring, "missing in after run")
	})
}
