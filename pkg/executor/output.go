package executor

import (
	"os"

	"github.com/pkg/errors"
)

// createOutputFiles creates stdout and stderr files for executed command
// inside the given directory. Empty directory means the default directory
// for temporary files.
func createOutputFiles(dir string) (stdout *os.File, stderr *os.File, err error) {
	stdout, err = os.CreateTemp(dir, "perftest_stdout_")
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not create stdout file")
	}

	stderr, err = os.CreateTemp(dir, "perftest_stderr_")
	if err != nil {
		stdout.Close()
		os.Remove(stdout.Name())
		return nil, nil, errors.Wrap(err, "could not create stderr file")
	}

	return stdout, stderr, nil
}

// removeOutputFiles closes and removes files created by createOutputFiles.
func removeOutputFiles(stdout *os.File, stderr *os.File) error {
	for _, file := range []*os.File{stdout, stderr} {
		if file == nil {
			continue
		}
		file.Close()
		if err := os.Remove(file.Name()); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "could not remove output file %q", file.Name())
		}
	}
	return nil
}

// syncAndRewind flushes and rewinds an output file so consumers can read
// everything written by the task.
func syncAndRewind(file *os.File) (*os.File, error) {
	if file == nil {
		return nil, errors.New("output file is not available")
	}
	if err := file.Sync(); err != nil {
		return nil, errors.Wrapf(err, "could not sync output file %q", file.Name())
	}
	if _, err := file.Seek(0, 0); err != nil {
		return nil, errors.Wrapf(err, "could not rewind output file %q", file.Name())
	}
	return file, nil
}
