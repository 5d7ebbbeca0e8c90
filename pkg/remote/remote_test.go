package remote

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor/mocks"
)

// fakeTransfer records transfers and materializes a retrieved artifact tree
// locally.
type fakeTransfer struct {
	pushed    [][2]string
	pulled    [][2]string
	pushErr   error
	treeFiles []string
}

func (f *fakeTransfer) push(localPath, remotePath string) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, [2]string{localPath, remotePath})
	return nil
}

func (f *fakeTransfer) pull(remoteDir, localDir string) error {
	f.pulled = append(f.pulled, [2]string{remoteDir, localDir})
	for _, name := range f.treeFiles {
		path := filepath.Join(localDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte("artifact"), 0644); err != nil {
			return err
		}
	}
	return nil
}

func terminatedHandle(t *testing.T, exitCode int) *mocks.TaskHandle {
	stdout, err := os.CreateTemp("", "perftest_test_stdout_")
	if err != nil {
		t.Fatal(err)
	}
	stderr, err := os.CreateTemp("", "perftest_test_stderr_")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Remove(stdout.Name())
		os.Remove(stderr.Name())
	})

	handle := new(mocks.TaskHandle)
	handle.On("Wait", mock.Anything).Return(true)
	handle.On("Status").Return(executor.TERMINATED)
	handle.On("ExitCode").Return(exitCode, nil)
	handle.On("StdoutFile").Return(stdout, nil)
	handle.On("StderrFile").Return(stderr, nil)
	handle.On("Clean").Return(nil)
	handle.On("EraseOutput").Return(nil)
	handle.On("Address").Return("cloudcephosd1001.eqiad.wmnet")
	return handle
}

func executedCommands(exec *mocks.Executor) []string {
	commands := []string{}
	for _, call := range exec.Calls {
		if call.Method == "Execute" {
			commands = append(commands, call.Arguments.String(0))
		}
	}
	return commands
}

func TestDelegate(t *testing.T) {
	Convey("While delegating a benchmark to a target host", t, func() {
		localDir, err := os.MkdirTemp("", "perftest_delegate_")
		So(err, ShouldBeNil)
		defer os.RemoveAll(localDir)

		exec := new(mocks.Executor)
		exec.On("Name").Return("Mock Executor")
		exec.On("Execute", mock.Anything).Return(terminatedHandle(t, 0), nil)

		transfer := &fakeTransfer{treeFiles: []string{
			CompletionMarker,
			"ioengine_libaio.bs_4k.iodepth_1.rw_randread/run_1/run_stats.log.gz",
		}}

		args := []string{"--level", "osd_disk", "--device", "/dev/sdc"}

		Convey("An elevated delegation should run the full phase sequence", func() {
			delegate := &Delegate{
				host:     "cloudcephosd1001.eqiad.wmnet",
				exec:     exec,
				transfer: transfer,
				elevate:  true,
			}

			err := delegate.RunBenchmark("/usr/local/bin/runfio", args, "/tmp/perftest", localDir)
			So(err, ShouldBeNil)

			Convey("The runner should be staged exactly once", func() {
				So(transfer.pushed, ShouldHaveLength, 1)
				So(transfer.pushed[0][0], ShouldEqual, "/usr/local/bin/runfio")
				So(transfer.pushed[0][1], ShouldStartWith, "/tmp/perftest_runner_")
			})

			Convey("The target commands should reset, invoke under sudo, chown and clean up", func() {
				commands := executedCommands(exec)
				So(commands, ShouldHaveLength, 4)
				So(commands[0], ShouldEqual, "sudo rm -rf /tmp/perftest && mkdir -p /tmp/perftest")
				So(commands[1], ShouldStartWith, "sudo "+transfer.pushed[0][1])
				So(commands[1], ShouldContainSubstring, "--level osd_disk --device /dev/sdc")
				So(commands[1], ShouldEndWith, "&& touch /tmp/perftest/"+CompletionMarker)
				So(commands[2], ShouldEqual, "sudo chown -R $(id -un):$(id -gn) /tmp/perftest")
				So(commands[3], ShouldStartWith, "sudo rm -f "+transfer.pushed[0][1])
			})

			Convey("The artifact tree should be retrieved without the completion marker", func() {
				So(transfer.pulled, ShouldResemble, [][2]string{{"/tmp/perftest", localDir}})

				_, err := os.Stat(filepath.Join(localDir,
					"ioengine_libaio.bs_4k.iodepth_1.rw_randread/run_1/run_stats.log.gz"))
				So(err, ShouldBeNil)

				_, err = os.Stat(filepath.Join(localDir, CompletionMarker))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("A guest-level delegation should never use sudo", func() {
			delegate := &Delegate{
				host:     "perftest.admin-monitoring.eqiad1.wikimedia.cloud",
				exec:     exec,
				transfer: transfer,
				elevate:  false,
			}

			err := delegate.RunBenchmark("/usr/local/bin/runfio", args, "/tmp/perftest", localDir)
			So(err, ShouldBeNil)

			commands := executedCommands(exec)
			// No chown phase without elevation.
			So(commands, ShouldHaveLength, 3)
			for _, command := range commands {
				So(command, ShouldNotContainSubstring, "sudo")
			}
		})

		Convey("When staging fails, the failure should carry the stage phase", func() {
			failing := &fakeTransfer{pushErr: os.ErrPermission}
			delegate := &Delegate{
				host:     "cloudcephosd1001.eqiad.wmnet",
				exec:     exec,
				transfer: failing,
				elevate:  true,
			}

			err := delegate.RunBenchmark("/usr/local/bin/runfio", args, "/tmp/perftest", localDir)
			So(err, ShouldNotBeNil)

			phase, ok := FailedPhase(err)
			So(ok, ShouldBeTrue)
			So(phase, ShouldEqual, PhaseStage)

			Convey("And nothing should have run on the target", func() {
				So(executedCommands(exec), ShouldBeEmpty)
			})
		})

		Convey("A retrieved tree without the completion marker should fail the retrieve phase", func() {
			partial := &fakeTransfer{treeFiles: []string{
				"ioengine_libaio.bs_4k.iodepth_1.rw_randread/run_1/run_stats.log.gz",
			}}
			delegate := &Delegate{
				host:     "cloudcephosd1001.eqiad.wmnet",
				exec:     exec,
				transfer: partial,
				elevate:  true,
			}

			err := delegate.RunBenchmark("/usr/local/bin/runfio", args, "/tmp/perftest", localDir)
			So(err, ShouldNotBeNil)

			phase, ok := FailedPhase(err)
			So(ok, ShouldBeTrue)
			So(phase, ShouldEqual, PhaseRetrieve)
		})

		Convey("When the runner exits nonzero, the failure should carry the invoke phase", func() {
			failingExec := new(mocks.Executor)
			failingExec.On("Name").Return("Mock Executor")
			failingExec.On("Execute", mock.MatchedBy(func(command string) bool {
				return strings.Contains(command, "perftest_runner_")
			})).Return(terminatedHandle(t, 1), nil)
			failingExec.On("Execute", mock.Anything).Return(terminatedHandle(t, 0), nil)

			delegate := &Delegate{
				host:     "cloudcephosd1001.eqiad.wmnet",
				exec:     failingExec,
				transfer: transfer,
				elevate:  true,
			}

			err := delegate.RunBenchmark("/usr/local/bin/runfio", args, "/tmp/perftest", localDir)
			So(err, ShouldNotBeNil)

			phase, ok := FailedPhase(err)
			So(ok, ShouldBeTrue)
			So(phase, ShouldEqual, PhaseInvoke)
		})
	})
}
