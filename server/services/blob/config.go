package blob

import (
	"fmt"
	"strings"
)

const (
	AWSS3BlobStoreType BlobStoreType = "AWS_S3"
	LocalBlobStoreType BlobStoreType = "LOCAL"
)

type BlobStoreType string

func (s BlobStoreType) String() string {
	return string(s)
}

func BlobStoreTypes() []string {
	return []string{AWSS3BlobStoreType.String(), LocalBlobStoreType.String()}
}

// RunOutputKeyPrefix returns the prefix under which a run's artifacts are stored; this is the run's output area.
func RunOutputKeyPrefix(runID fmt.Stringer) string {
	return fmt.Sprintf("runs/%s/", runID)
}

// validateKey rejects keys that could escape the store's root when mapped onto a filesystem.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("error blob key must be set")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("error blob keys cannot begin with /")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("error blob key %q must not contain '..'", key)
		}
	}
	return nil
}
