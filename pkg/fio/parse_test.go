package fio

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const readSummary = `{
  "fio version" : "fio-3.12",
  "global options" : {
    "ioengine" : "rbd"
  },
  "jobs" : [
    {
      "jobname" : "bs_4k.iodepth_128.rw_randread",
      "job options" : {
        "rw" : "randread",
        "bs" : "4k",
        "iodepth" : "128"
      },
      "read" : {
        "clat_ns" : {
          "min" : 1000000,
          "max" : 40000000,
          "mean" : 10000000,
          "stddev" : 2000000,
          "percentile" : {
            "90.000000" : 20000000
          }
        },
        "bw_min" : 1024,
        "bw_max" : 4096,
        "bw_mean" : 2048,
        "bw_dev" : 512,
        "iops_min" : 900,
        "iops_max" : 1100,
        "iops_mean" : 1000,
        "iops_stddev" : 50
      },
      "write" : {
        "clat_ns" : {
          "min" : 0,
          "max" : 0,
          "mean" : 0,
          "stddev" : 0,
          "percentile" : {}
        },
        "bw_min" : 0,
        "bw_max" : 0,
        "bw_mean" : 0,
        "bw_dev" : 0,
        "iops_min" : 0,
        "iops_max" : 0,
        "iops_mean" : 0,
        "iops_stddev" : 0
      }
    }
  ]
}`

func TestParseJobSummary(t *testing.T) {
	Convey("While parsing a fio job summary", t, func() {
		Convey("A read pattern should take stats from the read side", func() {
			summary, err := ParseJobSummary(strings.NewReader(readSummary))
			So(err, ShouldBeNil)

			So(summary.IOEngine, ShouldEqual, "rbd")
			So(summary.Config, ShouldResemble, WorkloadConfig{BlockSize: "4k", QueueDepth: 128, Pattern: RandomRead})

			Convey("Latency should be converted from nanoseconds to milliseconds", func() {
				So(summary.Latency.Mean, ShouldAlmostEqual, 10.0)
				So(summary.Latency.P90, ShouldAlmostEqual, 20.0)
				So(summary.Latency.Max, ShouldAlmostEqual, 40.0)
			})

			Convey("Bandwidth should be converted from KiB/s to MiB/s", func() {
				So(summary.Bandwidth.Mean, ShouldAlmostEqual, 2.0)
				So(summary.Bandwidth.Max, ShouldAlmostEqual, 4.0)
			})

			Convey("IOPS should stay untouched", func() {
				So(summary.IOPS.Mean, ShouldAlmostEqual, 1000.0)
			})
		})

		Convey("A warning prefix before the JSON document should be tolerated", func() {
			prefixed := "fio: engine rbd not loadable\n" + readSummary
			summary, err := ParseJobSummary(strings.NewReader(prefixed))
			So(err, ShouldBeNil)
			So(summary.IOPS.Mean, ShouldAlmostEqual, 1000.0)
		})

		Convey("A summary without jobs should be rejected", func() {
			_, err := ParseJobSummary(strings.NewReader(`{"jobs": []}`))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoadPassSummary(t *testing.T) {
	Convey("While loading a pass summary from disk", t, func() {
		dir, err := os.MkdirTemp("", "perftest_fio_")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		Convey("A gzip compressed summary should load transparently", func() {
			path := filepath.Join(dir, SummaryFileName)
			file, err := os.Create(path)
			So(err, ShouldBeNil)

			writer := gzip.NewWriter(file)
			_, err = writer.Write([]byte(readSummary))
			So(err, ShouldBeNil)
			So(writer.Close(), ShouldBeNil)
			So(file.Close(), ShouldBeNil)

			summary, err := LoadPassSummary(path)
			So(err, ShouldBeNil)
			So(summary.Latency.Mean, ShouldAlmostEqual, 10.0)
		})

		Convey("A missing file should surface a wrapped error", func() {
			_, err := LoadPassSummary(filepath.Join(dir, "absent.log.gz"))
			So(err, ShouldNotBeNil)
		})
	})
}
