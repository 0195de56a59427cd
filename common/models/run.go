package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type RunID struct {
	ResourceID
}

func NewRunID() RunID {
	return RunID{ResourceID: NewResourceID(RunResourceKind)}
}

func RunIDFromResourceID(id ResourceID) RunID {
	return RunID{ResourceID: id}
}

func ParseRunID(str string) (RunID, error) {
	id, err := ParseResourceID(str)
	if err != nil {
		return RunID{}, errors.Wrap(err, "error parsing run id")
	}
	if id.Kind() != RunResourceKind {
		return RunID{}, fmt.Errorf("error expected run id, found %q", str)
	}
	return RunIDFromResourceID(id), nil
}

// Run is one evaluation of a BuildJob as part of an execution plan. Runs are the append-only run
// history: they are created, move forward through their statuses, and are never deleted.
type Run struct {
	ID        RunID `json:"id" goqu:"skipupdate" db:"run_id"`
	CreatedAt Time  `json:"created_at" goqu:"skipupdate" db:"run_created_at"`
	UpdatedAt Time  `json:"updated_at" db:"run_updated_at"`
	ETag      ETag  `json:"etag" db:"run_etag" hash:"ignore"`
	RunData
}

type RunData struct {
	JobID  JobID     `json:"job_id" goqu:"skipupdate" db:"run_job_id"`
	PlanID PlanID    `json:"plan_id" goqu:"skipupdate" db:"run_plan_id"`
	Status RunStatus `json:"status" db:"run_status"`
	// Params are the effective params the run was created with (job params plus overrides).
	Params Params `json:"params" goqu:"skipupdate" db:"run_params"`
	// Fingerprint is the hash of the job definition and effective params; runs with equal
	// fingerprints are interchangeable for REUSE_EXISTING.
	Fingerprint         string   `json:"fingerprint" goqu:"skipupdate" db:"run_fingerprint"`
	FingerprintHashType HashType `json:"fingerprint_hash_type" goqu:"skipupdate" db:"run_fingerprint_hash_type"`
	// Dependencies records the target run chosen for each of the job's links.
	Dependencies RunDependencies `json:"dependencies" db:"run_dependencies"`
	// Error is set if the run failed or was not started.
	Error   *Error     `json:"error" db:"run_error"`
	Timings RunTimings `json:"timings" db:"run_timings"`
	// Workspace is the directory the run executed in, or empty if it never reached running.
	Workspace string `json:"workspace" db:"run_workspace"`
}

func NewRun(now Time, planID PlanID, jobID JobID, params Params, fingerprint string, hashType HashType) *Run {
	return &Run{
		ID:        NewRunID(),
		CreatedAt: now,
		UpdatedAt: now,
		RunData: RunData{
			JobID:               jobID,
			PlanID:              planID,
			Status:              RunStatusPending,
			Params:              params,
			Fingerprint:         fingerprint,
			FingerprintHashType: hashType,
			Timings:             RunTimings{PendingAt: &now},
		},
	}
}

func (m *Run) GetKind() ResourceKind {
	return RunResourceKind
}

func (m *Run) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Run) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Run) GetUpdatedAt() Time {
	return m.UpdatedAt
}

func (m *Run) SetUpdatedAt(t Time) {
	m.UpdatedAt = t
}

func (m *Run) GetETag() ETag {
	return m.ETag
}

func (m *Run) SetETag(eTag ETag) {
	m.ETag = eTag
}

func (m *Run) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if !m.PlanID.Valid() {
		result = multierror.Append(result, errors.New("error plan id must be set"))
	}
	if err := m.JobID.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, fmt.Errorf("error invalid status %q", m.Status))
	}
	if m.Fingerprint == "" {
		result = multierror.Append(result, errors.New("error fingerprint must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	return result.ErrorOrNil()
}

// RunDependency records which run satisfied one of the job's links.
type RunDependency struct {
	TargetJobID JobID     `json:"target_job_id"`
	RunID       RunID     `json:"run_id"`
	Status      RunStatus `json:"status"`
	// Reused is true if the target run was taken from history rather than built by the same plan.
	Reused bool `json:"reused"`
	// ArtifactsTransferred is the number of files copied into the workspace from the target run.
	ArtifactsTransferred int `json:"artifacts_transferred"`
}

type RunDependencies []*RunDependency

func (m *RunDependencies) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	return scanJSON(src, m)
}

func (m RunDependencies) Value() (driver.Value, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling run dependencies to JSON: %w", err)
	}
	return string(buf), nil
}

// RunTimings records the times at which the run transitioned between statuses.
type RunTimings struct {
	PendingAt  *Time `json:"pending_at"`
	BlockedAt  *Time `json:"blocked_at"`
	RunningAt  *Time `json:"running_at"`
	FinishedAt *Time `json:"finished_at"`
}

// Record sets the timestamp corresponding to status.
func (m *RunTimings) Record(status RunStatus, now Time) {
	switch status {
	case RunStatusPending:
		m.PendingAt = &now
	case RunStatusBlockedOnDependency:
		m.BlockedAt = &now
	case RunStatusRunning:
		m.RunningAt = &now
	default:
		if status.HasFinished() {
			m.FinishedAt = &now
		}
	}
}

func (m *RunTimings) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	return scanJSON(src, m)
}

func (m RunTimings) Value() (driver.Value, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling run timings to JSON: %w", err)
	}
	return string(buf), nil
}
