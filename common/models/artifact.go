package models

import (
	"fmt"
	"path"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type ArtifactID struct {
	ResourceID
}

func NewArtifactID() ArtifactID {
	return ArtifactID{ResourceID: NewResourceID(ArtifactResourceKind)}
}

func ArtifactIDFromResourceID(id ResourceID) ArtifactID {
	return ArtifactID{ResourceID: id}
}

func ParseArtifactID(str string) (ArtifactID, error) {
	id, err := ParseResourceID(str)
	if err != nil {
		return ArtifactID{}, errors.Wrap(err, "error parsing artifact id")
	}
	if id.Kind() != ArtifactResourceKind {
		return ArtifactID{}, fmt.Errorf("error expected artifact id, found %q", str)
	}
	return ArtifactIDFromResourceID(id), nil
}

// Artifact is a file in a run's output area. Artifacts are immutable once recorded.
type Artifact struct {
	ID        ArtifactID `json:"id" db:"artifact_id"`
	CreatedAt Time       `json:"created_at" db:"artifact_created_at"`
	RunID     RunID      `json:"run_id" db:"artifact_run_id"`
	// Path is the slash-separated path of the file within the run's output area.
	Path string `json:"path" db:"artifact_path"`
	// Size of the file in bytes.
	Size uint64 `json:"size" db:"artifact_size"`
	// Hash is the hex-encoded hash of the file contents.
	Hash     string   `json:"hash" db:"artifact_hash"`
	HashType HashType `json:"hash_type" db:"artifact_hash_type"`
	// Mime type of the file, or empty if not known.
	Mime string `json:"mime" db:"artifact_mime"`
	// BlobKey locates the file contents in the blob store.
	BlobKey string `json:"-" db:"artifact_blob_key"`
}

func NewArtifact(now Time, runID RunID, relPath string, size uint64, hashType HashType, hash string, mime string, blobKey string) *Artifact {
	return &Artifact{
		ID:        NewArtifactID(),
		CreatedAt: now,
		RunID:     runID,
		Path:      relPath,
		Size:      size,
		HashType:  hashType,
		Hash:      hash,
		Mime:      mime,
		BlobKey:   blobKey,
	}
}

func (m *Artifact) GetKind() ResourceKind {
	return ArtifactResourceKind
}

func (m *Artifact) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Artifact) GetID() ResourceID {
	return m.ID.ResourceID
}

// Name returns the file name of the artifact.
func (m *Artifact) Name() string {
	return path.Base(m.Path)
}

func (m *Artifact) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if !m.RunID.Valid() {
		result = multierror.Append(result, errors.New("error run id must be set"))
	}
	if m.Path == "" {
		result = multierror.Append(result, errors.New("error path must be set"))
	} else if err := validateRelativeRulePath(m.Path); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "error invalid path %q", m.Path))
	}
	if !m.HashType.Valid() {
		result = multierror.Append(result, fmt.Errorf("error invalid hash type %q", m.HashType))
	}
	if m.BlobKey == "" {
		result = multierror.Append(result, errors.New("error blob key must be set"))
	}
	return result.ErrorOrNil()
}
