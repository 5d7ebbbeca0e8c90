package executor

import (
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

// TestLocal tests the execution of process on local machine.
func TestLocal(t *testing.T) {
	log.SetLevel(log.ErrorLevel)

	Convey("While using Local Shell", t, func() {
		l := NewLocal()

		Convey("When command `echo output` is executed and we wait for it", func() {
			task, err := l.Execute("echo output")
			So(err, ShouldBeNil)

			defer task.EraseOutput()
			defer task.Clean()

			terminated := task.Wait(5 * time.Second)

			Convey("The task should be terminated with exit code 0", func() {
				So(terminated, ShouldBeTrue)
				So(task.Status(), ShouldEqual, TERMINATED)

				exitCode, err := task.ExitCode()
				So(err, ShouldBeNil)
				So(exitCode, ShouldEqual, 0)
			})

			Convey("The output should be captured in the stdout file", func() {
				stdoutFile, err := task.StdoutFile()
				So(err, ShouldBeNil)

				data, err := io.ReadAll(stdoutFile)
				So(err, ShouldBeNil)
				So(string(data), ShouldStartWith, "output")
			})
		})

		Convey("When command which does not exist is executed", func() {
			task, err := l.Execute("commandThatDoesNotExists")
			So(err, ShouldBeNil)

			defer task.EraseOutput()
			defer task.Clean()

			task.Wait(5 * time.Second)

			Convey("The exit code should not be zero", func() {
				exitCode, err := task.ExitCode()
				So(err, ShouldBeNil)
				So(exitCode, ShouldNotEqual, 0)
			})
		})

		Convey("When blocking sleep command is executed", func() {
			task, err := l.Execute("sleep 30")
			So(err, ShouldBeNil)

			defer task.EraseOutput()
			defer task.Clean()

			Convey("Task should be running and have no exit code available", func() {
				So(task.Status(), ShouldEqual, RUNNING)

				_, err := task.ExitCode()
				So(err, ShouldNotBeNil)

				So(task.Stop(), ShouldBeNil)
			})

			Convey("After stop it should be terminated with negated signal as exit code", func() {
				err := task.Stop()
				So(err, ShouldBeNil)
				So(task.Status(), ShouldEqual, TERMINATED)

				exitCode, err := task.ExitCode()
				So(err, ShouldBeNil)
				So(exitCode, ShouldEqual, -9)
			})

			Convey("Wait with short timeout should return false while it is running", func() {
				So(task.Wait(10*time.Millisecond), ShouldBeFalse)
				So(task.Stop(), ShouldBeNil)
			})
		})
	})
}
