package executor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Remote provisioning is responsible for providing the execution environment
// on remote machine via ssh.
type Remote struct {
	sshConfig *SSHConfig
}

// NewRemote returns instance of remote executors.
func NewRemote(sshConfig *SSHConfig) Remote {
	return Remote{
		sshConfig: sshConfig,
	}
}

// NewRemoteFromIP returns a remote executor with default ssh config for the
// current user.
func NewRemoteFromIP(address string) (Remote, error) {
	sshConfig, err := NewSSHConfigForCurrentUser(address)
	if err != nil {
		return Remote{}, err
	}

	return NewRemote(sshConfig), nil
}

// Name returns user-friendly name of executor.
func (remote Remote) Name() string {
	return fmt.Sprintf("Remote Executor (%s)", remote.sshConfig.Host)
}

// Execute runs the command given as input.
// Returned TaskHandle is able to stop & monitor the provisioned process.
func (remote Remote) Execute(command string) (TaskHandle, error) {
	connection, err := ssh.Dial(
		"tcp",
		fmt.Sprintf("%s:%d", remote.sshConfig.Host, remote.sshConfig.Port),
		remote.sshConfig.ClientConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "ssh connection to %q failed", remote.sshConfig.Host)
	}

	session, err := connection.NewSession()
	if err != nil {
		connection.Close()
		return nil, errors.Wrapf(err, "could not create ssh session on %q", remote.sshConfig.Host)
	}

	terminal := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	err = session.RequestPty("xterm", 80, 40, terminal)
	if err != nil {
		session.Close()
		connection.Close()
		return nil, errors.Wrapf(err, "could not request pty on %q", remote.sshConfig.Host)
	}

	stdoutFile, stderrFile, err := createOutputFiles("")
	if err != nil {
		session.Close()
		connection.Close()
		return nil, errors.Wrapf(err, "cannot create output files for command %q", command)
	}
	session.Stdout = stdoutFile
	session.Stderr = stderrFile

	log.Debug("Starting '", command, "' remotely on ", remote.sshConfig.Host)

	err = session.Start(command)
	if err != nil {
		removeOutputFiles(stdoutFile, stderrFile)
		session.Close()
		connection.Close()
		return nil, errors.Wrapf(err, "cannot start command %q on %q", command, remote.sshConfig.Host)
	}

	waitEndChannel := make(chan struct{})

	taskHandle := &remoteTaskHandle{
		session:        session,
		connection:     connection,
		stdoutFile:     stdoutFile,
		stderrFile:     stderrFile,
		host:           remote.sshConfig.Host,
		command:        command,
		waitEndChannel: waitEndChannel,
		exitCode:       -1,
	}

	// Wait for remote task in goroutine.
	go func() {
		defer close(waitEndChannel)
		defer connection.Close()
		defer session.Close()

		err := session.Wait()
		if err == nil {
			taskHandle.exitCode = 0
		} else if exitError, ok := err.(*ssh.ExitError); ok {
			taskHandle.exitCode = exitError.ExitStatus()
		} else {
			// Connection broke before the command reported its status.
			log.Errorf("command %q on %q ended without exit status: %s",
				command, taskHandle.host, err.Error())
			taskHandle.exitCode = -1
		}

		log.Debug("Ended ", command,
			" on ", taskHandle.host,
			" with status code: ", taskHandle.exitCode)
	}()

	return taskHandle, nil
}

// remoteTaskHandle implements TaskHandle interface.
type remoteTaskHandle struct {
	session    *ssh.Session
	connection *ssh.Client
	stdoutFile *os.File
	stderrFile *os.File
	host       string
	command    string

	// waitEndChannel is closed when the task is terminated.
	waitEndChannel chan struct{}
	exitCode       int

	stopMutex sync.Mutex
}

// isTerminated checks if waitEndChannel is closed. If it is closed, it means
// that wait ended and task is in terminated state.
func (taskHandle *remoteTaskHandle) isTerminated() bool {
	select {
	case <-taskHandle.waitEndChannel:
		return true
	default:
		return false
	}
}

// Stop terminates the remote task.
func (taskHandle *remoteTaskHandle) Stop() error {
	taskHandle.stopMutex.Lock()
	defer taskHandle.stopMutex.Unlock()

	if taskHandle.isTerminated() {
		return nil
	}

	err := taskHandle.session.Signal(ssh.SIGKILL)
	if err != nil {
		return errors.Wrapf(err, "cannot kill remote task %q on %q",
			taskHandle.command, taskHandle.host)
	}

	isTerminated := taskHandle.Wait(5 * time.Second)
	if !isTerminated {
		// SIGKILL through the ssh channel is not delivered by some sshd
		// versions. Closing the session tears the remote process down with
		// the pty.
		taskHandle.session.Close()
		if !taskHandle.Wait(5 * time.Second) {
			return errors.Errorf("cannot terminate remote task %q on %q",
				taskHandle.command, taskHandle.host)
		}
	}

	return nil
}

// Status returns a state of the task.
func (taskHandle *remoteTaskHandle) Status() TaskState {
	if !taskHandle.isTerminated() {
		return RUNNING
	}

	return TERMINATED
}

// ExitCode returns a exitCode. If task is not terminated it returns error.
func (taskHandle *remoteTaskHandle) ExitCode() (int, error) {
	if !taskHandle.isTerminated() {
		return -1, errors.New("task is not terminated")
	}

	return taskHandle.exitCode, nil
}

// StdoutFile returns a file handle for file to the task's stdout file.
func (taskHandle *remoteTaskHandle) StdoutFile() (*os.File, error) {
	return syncAndRewind(taskHandle.stdoutFile)
}

// StderrFile returns a file handle for file to the task's stderr file.
func (taskHandle *remoteTaskHandle) StderrFile() (*os.File, error) {
	return syncAndRewind(taskHandle.stderrFile)
}

// Clean closes the task's stdout & stderr files.
func (taskHandle *remoteTaskHandle) Clean() error {
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
func (taskHandle *remoteTaskHandle) EraseOutput() error {
	return removeOutputFiles(taskHandle.stdoutFile, taskHandle.stderrFile)
}

// Wait waits for the command to finish with the given timeout time.
// It returns true if task is terminated.
func (taskHandle *remoteTaskHandle) Wait(timeout time.Duration) bool {
	if taskHandle.isTerminated() {
		return true
	}

	var timeoutChannel <-chan time.Time
	if timeout != 0 {
		timeoutChannel = time.After(timeout)
	}

	select {
	case <-taskHandle.waitEndChannel:
		return true
	case <-timeoutChannel:
		return false
	}
}

// Address returns remote host address.
func (taskHandle *remoteTaskHandle) Address() string {
	return taskHandle.host
}
