//go:build !windows

package singleton

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/agentfleet/orchestrator/internal/orcerr"
)

// fileLock wraps a POSIX advisory flock, per the REDESIGN FLAG in
// spec.md §9: "fcntl-style advisory locks on POSIX and equivalent
// atomic-create-rename on Windows."
type fileLock struct {
	f *os.File
}

// acquireFileLock blocks with a short timeout trying to take an
// exclusive, non-blocking flock in a retry loop, matching spec.md
// §4.6 step 1's "blocking acquire with short timeout — fail fast
// otherwise".
func acquireFileLock(path string, timeout time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, &orcerr.TransportError{Op: "flock " + path, Err: err}
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, &orcerr.TimeoutError{Op: "acquire start lock " + path, Timeout: timeout.String()}
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Release drops the lock and closes the underlying file.
func (l *fileLock) Release() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}
