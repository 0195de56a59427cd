package proc_lock

import (
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
)

// LockFileName is the lock file taken in a work dir by the process executing runs in it.
const LockFileName = ".depchain.lock"

// WorkDirLockFile returns the path of the lock file guarding workDir.
func WorkDirLockFile(workDir string) string {
	return filepath.Join(workDir, LockFileName)
}

// GetLockFilePid returns the PID of the process currently holding the lock defined by filename, or zero if
// no process currently holds the lock.
func GetLockFilePid(filename string) (int, error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(contents)))
}
