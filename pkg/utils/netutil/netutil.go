package netutil

import (
	"net"
	"os"
	"strings"
	"time"
)

const retries = 30

// IsAddrLocal returns true when given address points to the local machine.
// Benchmark hosts are addressed by FQDN, so the local hostname is checked
// next to the loopback forms.
func IsAddrLocal(addr string) bool {
	if addr == "127.0.0.1" || addr == "localhost" {
		return true
	}

	hostname, err := os.Hostname()
	if err != nil {
		return false
	}

	return addr == hostname || strings.HasPrefix(addr, hostname+".")
}

// IsListening tries to establish TCP connection to given address in a form
// of `host:port`. It returns true when it was able to connect to given
// endpoint within timeout time.
func IsListening(address string, timeout time.Duration) bool {
	sleepTime := time.Duration(timeout.Nanoseconds() / int64(retries))
	for i := 0; i < retries; i++ {
		conn, err := net.Dial("tcp", address)
		if err != nil {
			time.Sleep(sleepTime)
			continue
		}
		conn.Close()
		return true
	}

	return false
}
