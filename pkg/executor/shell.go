package executor

import "github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/netutil"

// NewShell is a wrapper constructor for NewLocal or NewRemote executor
// depending on the address provided.
func NewShell(address string) (Executor, error) {
	if netutil.IsAddrLocal(address) {
		return NewLocal(), nil
	}
	return NewRemoteFromIP(address)
}
