package remote

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/executor"
)

// transfer moves files between the orchestrator and a benchmark target.
type transfer interface {
	// push copies a local file to the target and makes it executable.
	push(localPath, remotePath string) error
	// pull copies a directory tree off the target into localDir.
	pull(remoteDir, localDir string) error
}

// sshTransfer streams files over dedicated ssh sessions. Uploads go through
// a remote shell reading stdin, downloads come back as a gzipped tar stream,
// so the target needs nothing beyond a shell and tar.
type sshTransfer struct {
	sshConfig *executor.SSHConfig
}

func newSSHTransfer(sshConfig *executor.SSHConfig) *sshTransfer {
	return &sshTransfer{sshConfig: sshConfig}
}

func (t *sshTransfer) session() (*ssh.Client, *ssh.Session, error) {
	connection, err := ssh.Dial(
		"tcp",
		fmt.Sprintf("%s:%d", t.sshConfig.Host, t.sshConfig.Port),
		t.sshConfig.ClientConfig)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "ssh connection to %q failed", t.sshConfig.Host)
	}

	session, err := connection.NewSession()
	if err != nil {
		connection.Close()
		return nil, nil, errors.Wrapf(err, "could not create ssh session on %q", t.sshConfig.Host)
	}

	return connection, session, nil
}

func (t *sshTransfer) push(localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "could not open %q", localPath)
	}
	defer file.Close()

	connection, session, err := t.session()
	if err != nil {
		return err
	}
	defer connection.Close()
	defer session.Close()

	session.Stdin = file
	command := fmt.Sprintf("cat > %s && chmod 0755 %s", remotePath, remotePath)
	if err := session.Run(command); err != nil {
		return errors.Wrapf(err, "could not upload %q to %q on %q",
			localPath, remotePath, t.sshConfig.Host)
	}

	return nil
}

func (t *sshTransfer) pull(remoteDir, localDir string) error {
	connection, session, err := t.session()
	if err != nil {
		return err
	}
	defer connection.Close()
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "could not open ssh stdout pipe")
	}

	command := fmt.Sprintf("tar -C %s -czf - .", remoteDir)
	if err := session.Start(command); err != nil {
		return errors.Wrapf(err, "could not start %q on %q", command, t.sshConfig.Host)
	}

	if err := extractTree(stdout, localDir); err != nil {
		return errors.Wrapf(err, "could not extract artifact tree from %q", t.sshConfig.Host)
	}

	if err := session.Wait(); err != nil {
		return errors.Wrapf(err, "%q failed on %q", command, t.sshConfig.Host)
	}

	return nil
}

// extractTree unpacks a gzipped tar stream into localDir.
func extractTree(stream io.Reader, localDir string) error {
	gzipReader, err := gzip.NewReader(stream)
	if err != nil {
		return errors.Wrap(err, "stream is not gzipped")
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "corrupted tar stream")
		}

		targetPath, err := treePath(localDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return errors.Wrapf(err, "could not create directory %q", targetPath)
			}
		case tar.TypeReg:
			if err := writeTreeFile(targetPath, tarReader, header.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Sockets, devices and links have no business in an artifact
			// tree.
			return errors.Errorf("unexpected entry type %d for %q", header.Typeflag, header.Name)
		}
	}
}

// treePath resolves a tar entry name under root and rejects entries escaping
// it.
func treePath(root, name string) (string, error) {
	targetPath := filepath.Join(root, filepath.Clean(name))
	if targetPath != root && !strings.HasPrefix(targetPath, root+string(os.PathSeparator)) {
		return "", errors.Errorf("tar entry %q escapes the artifact tree", name)
	}
	return targetPath, nil
}

func writeTreeFile(targetPath string, content io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return errors.Wrapf(err, "could not create directory for %q", targetPath)
	}

	file, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "could not create %q", targetPath)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		return errors.Wrapf(err, "could not write %q", targetPath)
	}

	return nil
}
