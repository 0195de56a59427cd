package models

import (
	"database/sql/driver"
	"fmt"
)

const (
	RunResourceKind      ResourceKind = "run"
	ArtifactResourceKind ResourceKind = "artifact"
	PlanResourceKind     ResourceKind = "plan"
	EventResourceKind    ResourceKind = "event"
	// JobResourceKind is used in API documents; jobs are defined in pipeline files and have no resource id.
	JobResourceKind ResourceKind = "job"
)

type ResourceKind string

func (s ResourceKind) String() string {
	return string(s)
}

func (s *ResourceKind) Scan(src interface{}) error {
	if src == nil {
		*s = ""
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected string: %#v", src)
	}
	*s = ResourceKind(t)
	return nil
}

func (s ResourceKind) Value() (driver.Value, error) {
	return string(s), nil
}
