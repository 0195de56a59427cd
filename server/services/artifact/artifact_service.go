package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/benbjohnson/clock"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/common/util"
	"github.com/buildbeaver/depchain/server/services"
	"github.com/buildbeaver/depchain/server/services/blob"
	"github.com/buildbeaver/depchain/server/store"
)

// mimeSniffLen is the number of leading bytes filetype needs to recognise every type it knows.
const mimeSniffLen = 261

type ArtifactService struct {
	db            *store.DB
	artifactStore store.ArtifactStore
	blobStore     services.BlobStore
	clock         clock.Clock
	logger.Log
}

func NewArtifactService(
	db *store.DB,
	artifactStore store.ArtifactStore,
	blobStore services.BlobStore,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *ArtifactService {
	return &ArtifactService{
		db:            db,
		artifactStore: artifactStore,
		blobStore:     blobStore,
		clock:         clk,
		Log:           logFactory("ArtifactService"),
	}
}

// Read an existing artifact, looking it up by ID.
func (s *ArtifactService) Read(ctx context.Context, txOrNil *store.Tx, id models.ArtifactID) (*models.Artifact, error) {
	return s.artifactStore.Read(ctx, txOrNil, id)
}

// ListByRun lists the artifacts published by a run, ordered by path.
func (s *ArtifactService) ListByRun(ctx context.Context, txOrNil *store.Tx, runID models.RunID) ([]*models.Artifact, error) {
	return s.artifactStore.ListByRun(ctx, txOrNil, runID)
}

// GetArtifactData returns a reader over the artifact's content, starting at offset and reading at most
// length bytes (or to the end if length is negative). It is the caller's responsibility to close the reader.
func (s *ArtifactService) GetArtifactData(ctx context.Context, artifact *models.Artifact, offset int64, length int64) (io.ReadCloser, error) {
	if offset < 0 || (offset > 0 && uint64(offset) > artifact.Size) {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("Offset %d is outside of artifact %s (%d bytes)", offset, artifact.ID, artifact.Size))
	}
	return s.blobStore.GetBlobRange(ctx, artifact.BlobKey, offset, length)
}

// Publish uploads the files in workspace matching rules to the run's output area and records them
// as the run's artifacts. Files keep their workspace-relative path unless the matching rule has a
// destination. If several files map to the same path the first match wins.
// Returns gerror.ErrArtifactNotFound if an include rule matches no files.
func (s *ArtifactService) Publish(ctx context.Context, run *models.Run, workspace string, rules models.ArtifactRules) ([]*models.Artifact, error) {
	includes := rules.Includes()
	if len(includes) == 0 {
		return nil, nil
	}
	files, err := listWorkspaceFiles(workspace)
	if err != nil {
		return nil, gerror.NewErrArtifactPublishFailed("Error listing workspace files", err)
	}

	sources := make(map[string]string) // target path -> workspace path
	for _, rule := range includes {
		matched := 0
		for _, file := range files {
			ok, err := matches(rule, rules, file)
			if err != nil {
				return nil, gerror.NewErrArtifactPublishFailed(fmt.Sprintf("Error matching artifact rule %q", rule), err)
			}
			if !ok {
				continue
			}
			matched++
			target := rule.PublishPath(file)
			if existing, ok := sources[target]; ok && existing != file {
				s.Warnf("Skipping %s: %s is already published from %s", file, target, existing)
				continue
			}
			sources[target] = file
		}
		if matched == 0 {
			return nil, gerror.NewErrArtifactNotFound(rule.String())
		}
	}

	targets := make([]string, 0, len(sources))
	for target := range sources {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	// Upload outside of any transaction, then record everything at once
	var artifacts []*models.Artifact
	for _, target := range targets {
		artifact, err := s.upload(ctx, run, workspace, sources[target], target)
		if err != nil {
			return nil, gerror.NewErrArtifactPublishFailed(fmt.Sprintf("Error publishing %s", sources[target]), err)
		}
		artifacts = append(artifacts, artifact)
	}
	err = s.db.WithTx(ctx, nil, func(tx *store.Tx) error {
		for _, artifact := range artifacts {
			if err := s.artifactStore.Create(ctx, tx, artifact); err != nil {
				return fmt.Errorf("error recording artifact %s: %w", artifact.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.WithField("run_id", run.ID).Infof("Published %d artifact(s)", len(artifacts))
	return artifacts, nil
}

func (s *ArtifactService) upload(ctx context.Context, run *models.Run, workspace string, relPath string, target string) (*models.Artifact, error) {
	file, err := os.Open(filepath.Join(workspace, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, errors.Wrap(err, "error opening artifact file for reading")
	}
	defer file.Close()

	header := make([]byte, mimeSniffLen)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errors.Wrap(err, "error reading artifact file")
	}
	header = header[:n]
	mime := ""
	if kind, err := filetype.Match(header); err == nil && kind != filetype.Unknown {
		mime = kind.MIME.Value
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	reader := util.NewHashingReader(io.MultiReader(bytes.NewReader(header), file), hasher)
	key := blob.RunOutputKeyPrefix(run.ID) + target
	if err := s.blobStore.PutBlob(ctx, key, reader); err != nil {
		return nil, fmt.Errorf("error writing artifact data to blob store: %w", err)
	}
	s.Tracef("Uploaded %s (%d bytes) to %s", relPath, reader.Count(), key)
	return models.NewArtifact(
		models.NewTime(s.clock.Now()),
		run.ID,
		target,
		reader.Count(),
		models.HashTypeBlake2b,
		reader.HexSum(),
		mime,
		key,
	), nil
}

// RemoveOutputs deletes the files in workspace matching rules, so that a run can only publish
// files its own commands produced. Returns the number of files removed.
func (s *ArtifactService) RemoveOutputs(ctx context.Context, workspace string, rules models.ArtifactRules) (int, error) {
	includes := rules.Includes()
	if len(includes) == 0 {
		return 0, nil
	}
	files, err := listWorkspaceFiles(workspace)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("error listing workspace files: %w", err)
	}
	removed := 0
	for _, file := range files {
		for _, rule := range includes {
			ok, err := matches(rule, rules, file)
			if err != nil {
				return removed, fmt.Errorf("error matching artifact rule %q: %w", rule, err)
			}
			if !ok {
				continue
			}
			if err := os.Remove(filepath.Join(workspace, filepath.FromSlash(file))); err != nil && !os.IsNotExist(err) {
				return removed, errors.Wrapf(err, "error removing previous output %s", file)
			}
			removed++
			break
		}
	}
	if removed > 0 {
		s.Debugf("Removed %d previous output(s) from %s", removed, workspace)
	}
	return removed, nil
}

// CleanDestinations empties the destination directories in workspace of every link that asks for a
// clean destination. The directories themselves are kept.
func (s *ArtifactService) CleanDestinations(ctx context.Context, links []*models.DependencyLink, workspace string) error {
	cleaned := make(map[string]bool)
	for _, link := range links {
		if !link.HasArtifacts() || !link.Artifacts.CleanDestination {
			continue
		}
		for _, dest := range link.Artifacts.Rules.Destinations() {
			if cleaned[dest] {
				continue
			}
			cleaned[dest] = true
			dir, err := util.SafeJoin(workspace, dest)
			if err != nil {
				return gerror.NewErrArtifactTransferFailed(fmt.Sprintf("Invalid destination %q on %s", dest, link), err)
			}
			if err := emptyDir(dir); err != nil {
				return gerror.NewErrArtifactTransferFailed(fmt.Sprintf("Error cleaning destination %q", dest), err)
			}
			s.Debugf("Cleaned destination %q for %s", dest, link)
		}
	}
	return nil
}

// Transfer copies the artifacts of source matching the link's artifact rules into workspace,
// verifying the size and hash of each file.
// Returns gerror.ErrArtifactNotFound if an include rule matches none of the source run's artifacts.
func (s *ArtifactService) Transfer(ctx context.Context, source *models.Run, link *models.DependencyLink, workspace string) (int, error) {
	if !link.HasArtifacts() {
		return 0, nil
	}
	artifacts, err := s.artifactStore.ListByRun(ctx, nil, source.ID)
	if err != nil {
		return 0, fmt.Errorf("error listing artifacts of run %s: %w", source.ID, err)
	}

	rules := link.Artifacts.Rules
	copies := make(map[string]*models.Artifact) // target path -> artifact
	for _, rule := range rules.Includes() {
		matched := 0
		for _, artifact := range artifacts {
			ok, err := matches(rule, rules, artifact.Path)
			if err != nil {
				return 0, gerror.NewErrArtifactTransferFailed(fmt.Sprintf("Error matching artifact rule %q", rule), err)
			}
			if ok {
				matched++
				copies[rule.TargetPath(artifact.Path)] = artifact
			}
		}
		if matched == 0 {
			return 0, gerror.NewErrArtifactNotFound(rule.String()).
				IDetail("source_run_id", source.ID.String()).
				IDetail("link", link.String())
		}
	}

	targets := make([]string, 0, len(copies))
	for target := range copies {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		if err := s.download(ctx, copies[target], workspace, target); err != nil {
			return 0, gerror.NewErrArtifactTransferFailed(fmt.Sprintf("Error transferring %s from %s", copies[target].Path, link.Target), err)
		}
	}
	s.WithFields(logger.Fields{"source_run_id": source.ID, "link": link.String()}).
		Infof("Transferred %d artifact(s)", len(targets))
	return len(targets), nil
}

// download copies a single artifact to target in workspace. The file is written to a temporary file
// alongside the target and only renamed into place once its size and hash have been verified.
func (s *ArtifactService) download(ctx context.Context, artifact *models.Artifact, workspace string, target string) error {
	absolutePath, err := util.SafeJoin(workspace, target)
	if err != nil {
		return err
	}
	if artifact.HashType != models.HashTypeBlake2b {
		return fmt.Errorf("error unsupported hash type: %s", artifact.HashType)
	}
	if err := os.MkdirAll(filepath.Dir(absolutePath), 0755); err != nil {
		return fmt.Errorf("error creating artifact directory: %w", err)
	}
	reader, err := s.blobStore.GetBlob(ctx, artifact.BlobKey)
	if err != nil {
		return errors.Wrap(err, "error getting artifact data")
	}
	defer reader.Close()

	tmp, err := os.CreateTemp(filepath.Dir(absolutePath), "."+path.Base(target)+".*")
	if err != nil {
		return errors.Wrap(err, "error opening artifact file for writing")
	}
	defer os.Remove(tmp.Name())
	hasher, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		return err
	}
	hashingReader := util.NewHashingReader(reader, hasher)
	_, err = io.Copy(tmp, hashingReader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, "error writing artifact file")
	}
	if hashingReader.Count() != artifact.Size {
		return fmt.Errorf("error artifact size mismatch: expected %d bytes, read %d", artifact.Size, hashingReader.Count())
	}
	if hashingReader.HexSum() != artifact.Hash {
		return errors.New("error artifact hash mismatch")
	}
	if err := os.Rename(tmp.Name(), absolutePath); err != nil {
		return errors.Wrap(err, "error moving artifact file into place")
	}
	return nil
}

// matches returns true if relPath is selected by the include rule and not by any exclude rule.
func matches(include models.ArtifactRule, rules models.ArtifactRules, relPath string) (bool, error) {
	ok, err := include.Matches(relPath)
	if err != nil || !ok {
		return false, err
	}
	excluded, err := rules.Excluded(relPath)
	if err != nil {
		return false, err
	}
	return !excluded, nil
}

// listWorkspaceFiles returns the slash-separated paths of every regular file under workspace, sorted.
func listWorkspaceFiles(workspace string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(workspace, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(workspace, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// emptyDir removes everything inside dir, creating dir if it doesn't exist.
func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0755)
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
