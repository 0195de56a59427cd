//go:build !windows
// +build !windows

package proc_lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// CreateLockFile creates the named file and takes an exclusive lock on it, recording our PID.
// Returns an error if another process already holds the lock.
func CreateLockFile(filename string) (*os.File, error) {
	dirName := filepath.Dir(filename)
	if err := os.MkdirAll(dirName, 0755); err != nil {
		return nil, fmt.Errorf("error ensuring lock file directory %q exists: %w", dirName, err)
	}

	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		file.Close()
		return nil, err
	}

	contents := strconv.Itoa(os.Getpid())
	if err := file.Truncate(0); err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.WriteString(contents); err != nil {
		file.Close()
		return nil, err
	}

	return file, nil
}
