package models

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	// ReusePolicyReuseExisting reuses the most recent successful run of the target with a matching
	// fingerprint, if there is one.
	ReusePolicyReuseExisting ReusePolicy = "REUSE_EXISTING"
	// ReusePolicyAlwaysRebuild schedules a fresh run of the target every time the dependent runs.
	ReusePolicyAlwaysRebuild ReusePolicy = "ALWAYS_REBUILD"

	DefaultReusePolicy = ReusePolicyReuseExisting
)

var reusePolicies = map[string]ReusePolicy{
	string(ReusePolicyReuseExisting): ReusePolicyReuseExisting,
	"SUCCESSFUL":                     ReusePolicyReuseExisting,
	string(ReusePolicyAlwaysRebuild): ReusePolicyAlwaysRebuild,
	"NO":                             ReusePolicyAlwaysRebuild,
}

type ReusePolicy string

// ParseReusePolicy parses a reuse policy, accepting the SUCCESSFUL and NO aliases.
// An empty string yields the default policy.
func ParseReusePolicy(str string) (ReusePolicy, error) {
	if str == "" {
		return DefaultReusePolicy, nil
	}
	policy, ok := reusePolicies[strings.ToUpper(strings.TrimSpace(str))]
	if !ok {
		return "", fmt.Errorf("error unknown reuse policy %q (expected %s or %s)", str, ReusePolicyReuseExisting, ReusePolicyAlwaysRebuild)
	}
	return policy, nil
}

func (s ReusePolicy) Valid() bool {
	return s == ReusePolicyReuseExisting || s == ReusePolicyAlwaysRebuild
}

func (s ReusePolicy) String() string {
	return string(s)
}

const (
	// FailurePolicyFailToStart leaves the dependent run NOT_STARTED when the target did not succeed.
	FailurePolicyFailToStart FailurePolicy = "FAIL_TO_START"
	// FailurePolicyFailDependent fails the dependent run, without executing it, when the target did not succeed.
	FailurePolicyFailDependent FailurePolicy = "FAIL_DEPENDENT"
	// FailurePolicyIgnore runs the dependent anyway; artifacts from the failed target are not transferred.
	FailurePolicyIgnore FailurePolicy = "IGNORE"

	DefaultFailurePolicy = FailurePolicyFailToStart
)

var failurePolicies = map[string]FailurePolicy{
	string(FailurePolicyFailToStart):   FailurePolicyFailToStart,
	string(FailurePolicyFailDependent): FailurePolicyFailDependent,
	string(FailurePolicyIgnore):        FailurePolicyIgnore,
}

type FailurePolicy string

// ParseFailurePolicy parses a failure policy. An empty string yields the default policy.
func ParseFailurePolicy(str string) (FailurePolicy, error) {
	if str == "" {
		return DefaultFailurePolicy, nil
	}
	policy, ok := failurePolicies[strings.ToUpper(strings.TrimSpace(str))]
	if !ok {
		return "", fmt.Errorf("error unknown dependency failure policy %q (expected %s, %s or %s)",
			str, FailurePolicyFailToStart, FailurePolicyFailDependent, FailurePolicyIgnore)
	}
	return policy, nil
}

func (s FailurePolicy) Valid() bool {
	_, ok := failurePolicies[string(s)]
	return ok
}

func (s FailurePolicy) String() string {
	return string(s)
}

// DependencyLink is a declared dependency of the Owner job on the Target job.
type DependencyLink struct {
	Owner               JobID         `json:"owner"`
	Target              JobID         `json:"target"`
	ReuseBuilds         ReusePolicy   `json:"reuse_builds"`
	OnDependencyFailure FailurePolicy `json:"on_dependency_failure"`
	// Artifacts is nil for a snapshot-only dependency that doesn't pull any files.
	Artifacts *ArtifactDependency `json:"artifacts,omitempty"`
}

// ArtifactDependency selects files from the target run's output area and says where to put them
// in the dependent's workspace.
type ArtifactDependency struct {
	// CleanDestination clears every destination directory named by Rules before copying.
	CleanDestination bool          `json:"clean_destination"`
	Rules            ArtifactRules `json:"artifact_rules"`
}

func (m *DependencyLink) String() string {
	return fmt.Sprintf("%s -> %s", m.Owner, m.Target)
}

// HasArtifacts returns true if the link transfers files.
func (m *DependencyLink) HasArtifacts() bool {
	return m.Artifacts != nil && len(m.Artifacts.Rules.Includes()) > 0
}

func (m *DependencyLink) Validate() error {
	var result *multierror.Error
	if err := m.Target.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error invalid dependency target"))
	}
	if !m.ReuseBuilds.Valid() {
		result = multierror.Append(result, fmt.Errorf("error invalid reuse policy %q on %s", m.ReuseBuilds, m))
	}
	if !m.OnDependencyFailure.Valid() {
		result = multierror.Append(result, fmt.Errorf("error invalid dependency failure policy %q on %s", m.OnDependencyFailure, m))
	}
	if m.Artifacts != nil {
		if err := m.Artifacts.Rules.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error invalid artifact rules on %s", m))
		}
	}
	return result.ErrorOrNil()
}
