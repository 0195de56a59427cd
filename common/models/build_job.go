package models

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// JobID identifies a BuildJob across every file of a pipeline. Ids are absolute: a dependency
// on a job declared in another file names it by the same id.
type JobID string

func (s JobID) String() string {
	return string(s)
}

func (s JobID) Validate() error {
	if err := ResourceName(s).Validate(); err != nil {
		return errors.Wrap(err, "error invalid job id")
	}
	return nil
}

// BuildJob is the static definition of a unit of CI work. Definitions are loaded once and never
// mutated afterwards; each trigger creates Runs instead.
type BuildJob struct {
	ID JobID `json:"id"`
	// Name and Description are for display only and don't contribute to the job's fingerprint.
	Name        string `json:"name" hash:"ignore"`
	Description string `json:"description,omitempty" hash:"ignore"`
	// Params are string parameters of the job. Params named "env.X" are exported to commands as
	// environment variable X; every param is available to commands as ${{ params.<name> }}.
	Params Params `json:"params"`
	// ArtifactRules select the files in the workspace that are published when the job succeeds.
	ArtifactRules ArtifactRules `json:"artifact_rules"`
	// Commands are run in order through the shell, in the job's workspace.
	Commands     []string          `json:"commands"`
	Dependencies []*DependencyLink `json:"dependencies"`
	// SourceFile is the pipeline file the job was declared in.
	SourceFile string `json:"source_file,omitempty" hash:"ignore"`
}

// DisplayName returns the job's name, falling back to its id.
func (m *BuildJob) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID.String()
}

// DependencyTargets returns the ids of the jobs this job links to, sorted and without duplicates.
func (m *BuildJob) DependencyTargets() []JobID {
	seen := make(map[JobID]bool, len(m.Dependencies))
	var targets []JobID
	for _, link := range m.Dependencies {
		if !seen[link.Target] {
			seen[link.Target] = true
			targets = append(targets, link.Target)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

func (m *BuildJob) GetNodeID() JobID {
	return m.ID
}

func (m *BuildJob) GetNodeDependencies() []JobID {
	return m.DependencyTargets()
}

// FindLink returns the job's link to target, or nil.
func (m *BuildJob) FindLink(target JobID) *DependencyLink {
	for _, link := range m.Dependencies {
		if link.Target == target {
			return link
		}
	}
	return nil
}

func (m *BuildJob) Validate() error {
	var result *multierror.Error
	if err := m.ID.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.Params.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.ArtifactRules.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error invalid artifact rules"))
	}
	seen := make(map[JobID]bool, len(m.Dependencies))
	for _, link := range m.Dependencies {
		if link.Owner != m.ID {
			result = multierror.Append(result, fmt.Errorf("error dependency on %q is owned by %q, expected %q", link.Target, link.Owner, m.ID))
		}
		if link.Target == m.ID {
			result = multierror.Append(result, fmt.Errorf("error job %q cannot depend on itself", m.ID))
		}
		if seen[link.Target] {
			result = multierror.Append(result, fmt.Errorf("error job %q declares more than one dependency on %q", m.ID, link.Target))
		}
		seen[link.Target] = true
		if err := link.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
