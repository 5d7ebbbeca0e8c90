package executor

import (
	"os"
	"os/user"
	"path"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

const (
	// DefaultSSHPort represents default port of SSH server (22).
	DefaultSSHPort = 22

	defaultSSHKeyRelativePath = ".ssh/id_rsa"
)

// SSHConfig keeps the ssh client configuration along with target host & port.
type SSHConfig struct {
	ClientConfig *ssh.ClientConfig
	Host         string
	Port         int
}

// getAuthMethod which uses given key.
func getAuthMethod(keyPath string) (ssh.AuthMethod, error) {
	buffer, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read ssh key from %q", keyPath)
	}

	key, err := ssh.ParsePrivateKey(buffer)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse ssh key from %q", keyPath)
	}

	return ssh.PublicKeys(key), nil
}

// NewSSHConfig creates a new ssh config for the given user.
// NOTE: Assumed that the private key is available in the user's default
// location (<home_dir>/.ssh/id_rsa).
func NewSSHConfig(host string, port int, user *user.User) (*SSHConfig, error) {
	keyPath := path.Join(user.HomeDir, defaultSSHKeyRelativePath)
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		return nil, errors.Errorf("ssh key not found in %q", keyPath)
	}

	authMethod, err := getAuthMethod(keyPath)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User: user.Username,
		Auth: []ssh.AuthMethod{
			authMethod,
		},
		// Benchmark targets are picked dynamically from inventory so their
		// host keys cannot be pinned up front.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	return &SSHConfig{
		ClientConfig: clientConfig,
		Host:         host,
		Port:         port,
	}, nil
}

// NewSSHConfigForCurrentUser creates a new ssh config for the user running
// the process.
func NewSSHConfigForCurrentUser(host string) (*SSHConfig, error) {
	currentUser, err := user.Current()
	if err != nil {
		return nil, errors.Wrap(err, "could not get current user")
	}

	return NewSSHConfig(host, DefaultSSHPort, currentUser)
}
