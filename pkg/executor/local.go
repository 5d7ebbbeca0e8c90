package executor

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Local provisioning is responsible for providing the execution environment
// on local machine via exec.Command.
// It runs command as current user.
type Local struct {
}

// NewLocal returns instance of local executors.
func NewLocal() Local {
	return Local{}
}

// Name returns user-friendly name of executor.
func (l Local) Name() string {
	return "Local Executor"
}

// Execute runs the command given as input.
// Returned TaskHandle is able to stop & monitor the provisioned process.
func (l Local) Execute(command string) (TaskHandle, error) {
	log.Debug("Starting ", command, " locally ")

	cmd := exec.Command("sh", "-c", command)

	// It is important to set additional Process Group ID for parent process
	// and his children to have ability to kill all the children processes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutFile, stderrFile, err := createOutputFiles("")
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create output files for command %q", command)
	}
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile

	err = cmd.Start()
	if err != nil {
		removeOutputFiles(stdoutFile, stderrFile)
		return nil, errors.Wrapf(err, "cannot start command %q", command)
	}

	log.Debug("Started with pid ", cmd.Process.Pid)

	// waitEndChannel is closed when the command stops running.
	waitEndChannel := make(chan struct{})

	taskHandle := &localTaskHandle{
		cmdHandler:     cmd,
		stdoutFile:     stdoutFile,
		stderrFile:     stderrFile,
		command:        command,
		waitEndChannel: waitEndChannel,
	}

	// Wait for local task in goroutine.
	go func() {
		defer close(waitEndChannel)

		// Wait for task completion.
		// NOTE: Wait() returns an error. We grab the process state in any
		// case (success or failure) below, so the error object matters less
		// in the status handling for now.
		cmd.Wait()

		log.Debug("Ended ", command,
			" with output in file: ", stdoutFile.Name(),
			" with err output in file: ", stderrFile.Name(),
			" with status code: ", taskHandle.getExitCode())
	}()

	return taskHandle, nil
}

// localTaskHandle implements TaskHandle interface.
type localTaskHandle struct {
	cmdHandler *exec.Cmd
	stdoutFile *os.File
	stderrFile *os.File
	command    string

	// waitEndChannel is closed when the task is terminated.
	waitEndChannel chan struct{}

	stopMutex sync.Mutex
}

// isTerminated checks if waitEndChannel is closed. If it is closed, it means
// that wait ended and task is in terminated state.
func (taskHandle *localTaskHandle) isTerminated() bool {
	select {
	case <-taskHandle.waitEndChannel:
		return true
	default:
		return false
	}
}

func (taskHandle *localTaskHandle) getPid() int {
	return taskHandle.cmdHandler.Process.Pid
}

func (taskHandle *localTaskHandle) getExitCode() int {
	waitStatus := taskHandle.cmdHandler.ProcessState.Sys().(syscall.WaitStatus)
	if waitStatus.Exited() {
		return waitStatus.ExitStatus()
	}
	// Show what signal caused the termination.
	return -int(waitStatus.Signal())
}

// Stop terminates the local task.
func (taskHandle *localTaskHandle) Stop() error {
	taskHandle.stopMutex.Lock()
	defer taskHandle.stopMutex.Unlock()

	if taskHandle.isTerminated() {
		return nil
	}

	// We signal the entire process group.
	// The kill syscall interprets a negated PID N as the process group N
	// belongs to.
	log.Debug("Sending SIGKILL to PID ", -taskHandle.getPid())
	err := syscall.Kill(-taskHandle.getPid(), syscall.SIGKILL)
	if err != nil {
		return errors.Wrapf(err, "cannot signal process group %d", taskHandle.getPid())
	}

	// Checking if kill was successful.
	isTerminated := taskHandle.Wait(5 * time.Second)
	if !isTerminated {
		return errors.Errorf("cannot terminate task %q", taskHandle.command)
	}

	return nil
}

// Status returns a state of the task.
func (taskHandle *localTaskHandle) Status() TaskState {
	if !taskHandle.isTerminated() {
		return RUNNING
	}

	return TERMINATED
}

// ExitCode returns a exitCode. If task is not terminated it returns error.
func (taskHandle *localTaskHandle) ExitCode() (int, error) {
	if !taskHandle.isTerminated() {
		return -1, errors.New("task is not terminated")
	}

	return taskHandle.getExitCode(), nil
}

// StdoutFile returns a file handle for file to the task's stdout file.
func (taskHandle *localTaskHandle) StdoutFile() (*os.File, error) {
	return syncAndRewind(taskHandle.stdoutFile)
}

// StderrFile returns a file handle for file to the task's stderr file.
func (taskHandle *localTaskHandle) StderrFile() (*os.File, error) {
	return syncAndRewind(taskHandle.stderrFile)
}

// Clean closes the task's stdout & stderr files.
func (taskHandle *localTaskHandle) Clean() error {
	for _, file := range []*os.File{taskHandle.stdoutFile, taskHandle.stderrFile} {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil {
			return errors.Wrapf(err, "could not close file %q", file.Name())
		}
	}
	return nil
}

// EraseOutput removes task's stdout & stderr files.
func (taskHandle *localTaskHandle) EraseOutput() error {
	return removeOutputFiles(taskHandle.stdoutFile, taskHandle.stderrFile)
}

// Wait waits for the command to finish with the given timeout time.
// It returns true if task is terminated.
func (taskHandle *localTaskHandle) Wait(timeout time.Duration) bool {
	if taskHandle.isTerminated() {
		return true
	}

	var timeoutChannel <-chan time.Time
	if timeout != 0 {
		// In case of wait with timeout set the timeout channel.
		timeoutChannel = time.After(timeout)
	}

	select {
	case <-taskHandle.waitEndChannel:
		// If waitEndChannel is closed then task is terminated.
		return true
	case <-timeoutChannel:
		// If timeout time exceeded return then task did not terminate yet.
		return false
	}
}

// Address returns address of the localhost.
func (taskHandle *localTaskHandle) Address() string {
	return "127.0.0.1"
}
