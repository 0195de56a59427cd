package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const resourceIDSeparator = ":"

// ResourceID globally identifies a persisted resource. Its string form is "kind:uuid",
// e.g. "run:4f0d7d0c-2a4e-4d3a-9a53-7b2f0f6f4b1e".
type ResourceID struct {
	kind ResourceKind
	uuid uuid.UUID
}

func NewResourceID(kind ResourceKind) ResourceID {
	return ResourceID{kind: kind, uuid: uuid.New()}
}

func ParseResourceID(str string) (ResourceID, error) {
	parts := strings.SplitN(str, resourceIDSeparator, 2)
	if len(parts) != 2 || parts[0] == "" {
		return ResourceID{}, fmt.Errorf("error resource id %q is not of the form kind:uuid", str)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return ResourceID{}, errors.Wrapf(err, "error parsing uuid of resource id %q", str)
	}
	return ResourceID{kind: ResourceKind(parts[0]), uuid: id}, nil
}

func (s ResourceID) Kind() ResourceKind {
	return s.kind
}

func (s ResourceID) Valid() bool {
	return s.kind != "" && s.uuid != uuid.Nil
}

func (s ResourceID) Equal(other ResourceID) bool {
	return s.kind == other.kind && s.uuid == other.uuid
}

func (s ResourceID) String() string {
	if !s.Valid() {
		return ""
	}
	return s.kind.String() + resourceIDSeparator + s.uuid.String()
}

func (s ResourceID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ResourceID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = ResourceID{}
		return nil
	}
	id, err := ParseResourceID(string(text))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

func (s *ResourceID) Scan(src interface{}) error {
	switch t := src.(type) {
	case nil:
		*s = ResourceID{}
		return nil
	case string:
		return s.UnmarshalText([]byte(t))
	case []byte:
		return s.UnmarshalText(t)
	default:
		return fmt.Errorf("error expected string for resource id: %#v", src)
	}
}

func (s ResourceID) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, nil
	}
	return s.String(), nil
}
