package models

import (
	"database/sql/driver"
	"fmt"
)

const (
	// RunStatusPending indicates the run has been created as part of a plan and has not been looked at yet.
	RunStatusPending RunStatus = "pending"
	// RunStatusBlockedOnDependency indicates the run is waiting for the runs it depends on, or is
	// pulling their artifacts.
	RunStatusBlockedOnDependency RunStatus = "blocked_on_dependency"
	// RunStatusRunning indicates the job's commands are executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates the commands succeeded and the artifacts were published.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed indicates the run failed while running, or could not satisfy its dependencies.
	RunStatusFailed RunStatus = "failed"
	// RunStatusNotStarted indicates the run was never started because a FAIL_TO_START dependency
	// did not succeed. It is not a failure of the job itself.
	RunStatusNotStarted RunStatus = "not_started"
)

var runStatuses = map[string]RunStatus{
	string(RunStatusPending):             RunStatusPending,
	string(RunStatusBlockedOnDependency): RunStatusBlockedOnDependency,
	string(RunStatusRunning):             RunStatusRunning,
	string(RunStatusSucceeded):           RunStatusSucceeded,
	string(RunStatusFailed):              RunStatusFailed,
	string(RunStatusNotStarted):          RunStatusNotStarted,
}

var runStatusTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:             {RunStatusBlockedOnDependency, RunStatusRunning, RunStatusFailed},
	RunStatusBlockedOnDependency: {RunStatusRunning, RunStatusNotStarted, RunStatusFailed},
	RunStatusRunning:             {RunStatusSucceeded, RunStatusFailed},
}

type RunStatus string

func ParseRunStatus(str string) (RunStatus, error) {
	status, ok := runStatuses[str]
	if !ok {
		return "", fmt.Errorf("error unknown run status %q", str)
	}
	return status, nil
}

func (s RunStatus) Valid() bool {
	_, ok := runStatuses[string(s)]
	return ok
}

// HasFinished returns true if the status is terminal.
func (s RunStatus) HasFinished() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusNotStarted
}

// CanTransitionTo returns true if a run may move from this status to next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range runStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s RunStatus) String() string {
	return string(s)
}

func (s *RunStatus) Scan(src interface{}) error {
	var str string
	switch t := src.(type) {
	case nil:
		*s = ""
		return nil
	case string:
		str = t
	case []byte:
		str = string(t)
	default:
		return fmt.Errorf("unsupported type for run status: %[1]T (%[1]v)", src)
	}
	// Plan level events carry no status
	if str == "" {
		*s = ""
		return nil
	}
	status, err := ParseRunStatus(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

func (s RunStatus) Value() (driver.Value, error) {
	return string(s), nil
}
