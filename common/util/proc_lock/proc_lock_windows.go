//go:build windows
// +build windows

package proc_lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CreateLockFile creates the named file and takes an exclusive lock on it, recording our PID.
// Returns an error if another process already holds the lock.
func CreateLockFile(filename string) (*os.File, error) {
	dirName := filepath.Dir(filename)
	if err := os.MkdirAll(dirName, 0755); err != nil {
		return nil, fmt.Errorf("error ensuring lock file directory %q exists: %w", dirName, err)
	}

	if _, err := os.Stat(filename); err == nil {
		// If the files exists, we first try to remove it
		if err = os.Remove(filename); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		file.Close()
		return nil, err
	}

	return file, nil
}
