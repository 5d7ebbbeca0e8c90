package remote

import "sync"

var hostLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{locks: map[string]*sync.Mutex{}}

// AcquireHostLock blocks until the caller holds the exclusive benchmark lock
// for the given host and returns its release function. Two benchmarks hitting
// the same target concurrently would contend for the same disks and skew both
// measurements.
func AcquireHostLock(host string) (release func()) {
	hostLocks.Lock()
	lock, ok := hostLocks.locks[host]
	if !ok {
		lock = &sync.Mutex{}
		hostLocks.locks[host] = lock
	}
	hostLocks.Unlock()

	lock.Lock()
	return lock.Unlock
}
