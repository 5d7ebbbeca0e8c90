package executor

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RunAndWait is a helper which executes a command, waits for its termination
// and validates the exit code. Commands usually fail because of wrong
// parameters or a binary that is not installed properly on the target host.
func RunAndWait(exec Executor, command string) error {
	handle, err := exec.Execute(command)
	if err != nil {
		return err
	}
	defer handle.EraseOutput()
	defer handle.Clean()

	handle.Wait(0)

	exitCode, err := handle.ExitCode()
	if err != nil {
		log.Errorf("task %q launched on %q failed, cannot get exit code: %s",
			command, exec.Name(), err.Error())
		logOutput(handle)
		return errors.Wrapf(err, "task %q launched on %q failed, cannot get exit code",
			command, exec.Name())
	}
	if exitCode != 0 {
		log.Errorf("task %q launched on %q failed: exit code %d",
			command, exec.Name(), exitCode)
		logOutput(handle)
		return errors.Errorf("task %q launched on %q failed: exit code %d",
			command, exec.Name(), exitCode)
	}

	log.Debugf("task %q launched on %q has ended successfully", command, exec.Name())
	return nil
}

// logOutput prints stdout and stderr of the given task to the debug log.
func logOutput(handle TaskHandle) {
	for name, fileFn := range map[string]func() (io.Reader, error){
		"stdout": func() (io.Reader, error) { return handle.StdoutFile() },
		"stderr": func() (io.Reader, error) { return handle.StderrFile() },
	} {
		reader, err := fileFn()
		if err != nil {
			log.Debugf("could not read task %s: %s", name, err.Error())
			continue
		}
		output, err := io.ReadAll(reader)
		if err != nil {
			log.Debugf("could not read task %s: %s", name, err.Error())
			continue
		}
		log.Debugf("task %s:\n%s", name, string(output))
	}
}
