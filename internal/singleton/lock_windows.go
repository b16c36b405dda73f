//go:build windows

package singleton

import (
	"syscall"
	"time"

	"golang.org/x/sys/windows"

	"github.com/agentfleet/orchestrator/internal/orcerr"
)

// fileLock wraps an exclusive, non-shared Windows file handle — the
// equivalent-atomic-create mechanism the REDESIGN FLAG in spec.md §9
// calls for on platforms without fcntl/flock, adapted from the
// teacher's internal/instance.AcquireLock.
type fileLock struct {
	handle windows.Handle
}

func acquireFileLock(path string, timeout time.Duration) (*fileLock, error) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		handle, err := windows.CreateFile(
			pathPtr,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			0, // exclusive: no sharing
			nil,
			windows.CREATE_ALWAYS,
			windows.FILE_ATTRIBUTE_NORMAL,
			0,
		)
		if err == nil {
			return &fileLock{handle: handle}, nil
		}
		if time.Now().After(deadline) {
			return nil, &orcerr.TimeoutError{Op: "acquire start lock " + path, Timeout: timeout.String()}
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (l *fileLock) Release() error {
	if l.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(l.handle)
	l.handle = 0
	return err
}
