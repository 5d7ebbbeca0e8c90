package fio

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMatrix(t *testing.T) {
	Convey("While iterating the workload matrix", t, func() {
		Convey("It should have exactly six entries", func() {
			So(len(Matrix()), ShouldEqual, 6)
		})

		Convey("Repeated iterations should yield an identical, order-stable sequence", func() {
			first := Matrix()
			for i := 0; i < 10; i++ {
				So(Matrix(), ShouldResemble, first)
			}
		})

		Convey("Large block sequential entries should come before the random ones", func() {
			matrix := Matrix()
			So(matrix[0], ShouldResemble, WorkloadConfig{BlockSize: "4M", QueueDepth: 16, Pattern: SequentialWrite})
			So(matrix[1], ShouldResemble, WorkloadConfig{BlockSize: "4M", QueueDepth: 16, Pattern: SequentialRead})
			for _, config := range matrix[2:] {
				So(config.BlockSize, ShouldEqual, "4k")
				So(config.Pattern.IsRead() || config.Pattern == RandomWrite, ShouldBeTrue)
			}
		})

		Convey("Mutating a returned slice should not affect later calls", func() {
			mutated := Matrix()
			mutated[0].BlockSize = "1M"
			So(Matrix()[0].BlockSize, ShouldEqual, "4M")
		})
	})
}

func TestArtifactNaming(t *testing.T) {
	Convey("While deriving artifact directory names", t, func() {
		config := WorkloadConfig{BlockSize: "4k", QueueDepth: 128, Pattern: RandomRead}

		Convey("The directory name should encode engine, block size, queue depth and pattern", func() {
			So(config.DirName("libaio"), ShouldEqual, "ioengine_libaio.bs_4k.iodepth_128.rw_randread")
			So(config.DirName("rbd"), ShouldEqual, "ioengine_rbd.bs_4k.iodepth_128.rw_randread")
		})

		Convey("The key should ignore the engine so levels stay comparable", func() {
			So(config.Key(), ShouldEqual, "bs_4k.iodepth_128.rw_randread")
		})

		Convey("Pass directories should be numbered from one", func() {
			So(RunDirName(1), ShouldEqual, "run_1")
			So(RunDirName(3), ShouldEqual, "run_3")
		})

		Convey("Directory names should parse back to engine and configuration", func() {
			engine, parsed, err := ParseConfigDirName("ioengine_rbd.bs_4M.iodepth_16.rw_write")
			So(err, ShouldBeNil)
			So(engine, ShouldEqual, "rbd")
			So(parsed, ShouldResemble, WorkloadConfig{BlockSize: "4M", QueueDepth: 16, Pattern: SequentialWrite})
		})

		Convey("Every matrix entry should round-trip through its directory name", func() {
			for _, config := range Matrix() {
				engine, parsed, err := ParseConfigDirName(config.DirName("libaio"))
				So(err, ShouldBeNil)
				So(engine, ShouldEqual, "libaio")
				So(parsed, ShouldResemble, config)
			}
		})

		Convey("Garbage should not parse", func() {
			_, _, err := ParseConfigDirName("metadata.json")
			So(err, ShouldNotBeNil)
		})
	})
}
