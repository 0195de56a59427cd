package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/common/util"
)

type LocalBlobStoreDirectory string

func (l LocalBlobStoreDirectory) String() string {
	return string(l)
}

type blobStoreFile struct {
	os.FileInfo
	// RelPath is a path to the file relative to the root of the blob store.
	// This path is unescaped and is guaranteed to use forward slashes.
	RelPath string
}

// LocalBlobStore maps blob keys onto files under a directory. Each part of a key is escaped
// so any key is a valid file name.
type LocalBlobStore struct {
	path string
}

func NewLocalBlobStore(path LocalBlobStoreDirectory) *LocalBlobStore {
	return &LocalBlobStore{
		path: string(path),
	}
}

// PutBlob writes all data in the source reader to a blob identified by key.
// The data is written to a temporary file first so a failed write never leaves a partial blob behind.
// The caller is responsible for closing the reader.
func (s *LocalBlobStore) PutBlob(ctx context.Context, key string, source io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	blobPath := s.makeBlobPath(key)
	err := os.MkdirAll(filepath.Dir(blobPath), 0700)
	if err != nil {
		return errors.Wrap(err, "error making blob directory")
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(blobPath), ".blob-*")
	if err != nil {
		return errors.Wrapf(err, "error opening temporary file for blob %s", blobPath)
	}
	defer os.Remove(tmpFile.Name()) // no-op once renamed
	_, err = io.Copy(tmpFile, source)
	if err != nil {
		tmpFile.Close()
		return errors.Wrapf(err, "error writing data to blob %s", blobPath)
	}
	err = tmpFile.Sync()
	if err != nil {
		tmpFile.Close()
		return errors.Wrapf(err, "error syncing blob %s", blobPath)
	}
	err = tmpFile.Close()
	if err != nil {
		return errors.Wrapf(err, "error closing blob %s", blobPath)
	}
	err = os.Rename(tmpFile.Name(), blobPath)
	if err != nil {
		return errors.Wrapf(err, "error moving blob into place at %s", blobPath)
	}
	return nil
}

// GetBlob returns a reader positioned at the beginning of the blob identified by key.
// The caller is responsible for closing the reader.
func (s *LocalBlobStore) GetBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.GetBlobRange(ctx, key, 0, -1)
}

// GetBlobRange returns a reader positioned at the specified offset of the blob identified
// by key, which will read up to length bytes, or to the end of the blob if length is negative.
// The caller is responsible for closing the reader.
func (s *LocalBlobStore) GetBlobRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	blobPath := s.makeBlobPath(key)
	blobFile, err := os.Open(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerror.NewErrNotFound("Not Found").Wrap(err).IDetail("key", key)
		}
		return nil, errors.Wrapf(err, "error opening blob %s for reading", blobPath)
	}
	if offset > 0 {
		_, err = blobFile.Seek(offset, io.SeekStart)
		if err != nil {
			blobFile.Close()
			return nil, errors.Wrapf(err, "unable to seek blob %s to offset %v", blobPath, offset)
		}
	}
	if length >= 0 {
		return NewLimitReaderCloser(blobFile, length), nil
	}
	return blobFile, nil
}

// DeleteBlob deletes a blob. Returns nil if the blob does not exist.
func (s *LocalBlobStore) DeleteBlob(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	blobPath := s.makeBlobPath(key)
	err := os.Remove(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error deleting blob %s: %w", blobPath, err)
	}
	return nil
}

// ListBlobs lists up to limit blobs whose keys start with prefix, in key order, starting after marker.
func (s *LocalBlobStore) ListBlobs(ctx context.Context, prefix string, marker string, limit int) ([]*models.BlobDescriptor, string, error) {
	// NOTE: All inputs/outputs of the blob store use forward slash separators to be s3-compatible.
	// Internally however we're dealing with a filesystem that might use forward slashes (Unix systems)
	// or backslashes (Windows), so we need to convert to/from these two path styles as appropriate.
	if strings.HasPrefix(prefix, "/") {
		return nil, "", fmt.Errorf("error blob keys cannot begin with /")
	}
	if limit <= 0 {
		limit = models.DefaultPaginationLimit
	}

	rootPath := s.path
	if dir := filepath.Dir(filepath.FromSlash(prefix)); dir != "." {
		rootPath = s.makeBlobPath(filepath.ToSlash(dir))
	}
	_, err := os.Stat(rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("error stating root path: %w", err)
	}

	var listing []blobStoreFile
	err = filepath.Walk(rootPath,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || strings.HasPrefix(info.Name(), ".blob-") {
				return nil
			}
			rel, err := filepath.Rel(s.path, path)
			if err != nil {
				return fmt.Errorf("error getting relative path: %w", err)
			}
			unescaped, err := util.UnescapeFileName(rel)
			if err != nil {
				return fmt.Errorf("error unescaping path: %w", err)
			}
			listing = append(listing, blobStoreFile{FileInfo: info, RelPath: filepath.ToSlash(unescaped)})
			return nil
		})
	if err != nil {
		return nil, "", fmt.Errorf("error during walk: %w", err)
	}
	// Escaping can change the order of keys, so sort on the unescaped keys
	sort.Slice(listing, func(i, j int) bool { return listing[i].RelPath < listing[j].RelPath })

	var results []*models.BlobDescriptor
	for _, candidate := range listing {
		if !strings.HasPrefix(candidate.RelPath, prefix) {
			continue
		}
		if marker != "" && marker >= candidate.RelPath {
			continue
		}
		results = append(results, &models.BlobDescriptor{Key: candidate.RelPath, SizeBytes: candidate.Size()})
		if len(results) >= limit+1 { // read one more, so we can determine if there is another page
			break
		}
	}

	var nextMarker string
	if len(results) > limit {
		results = results[:limit]
		nextMarker = results[len(results)-1].Key
	}
	return results, nextMarker, nil
}

// makeBlobPath makes a path to a blob on the local filesystem.
func (s *LocalBlobStore) makeBlobPath(key string) string {
	return filepath.Join(s.path, util.EscapeFileName(filepath.FromSlash(key)))
}
