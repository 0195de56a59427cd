package models

import (
	"database/sql/driver"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

const resourceNameMaxLength = 100
const ResourceNameRegexStr = "^[a-zA-Z0-9_-]{1,100}$"

var ResourceNameRegex = regexp.MustCompile(ResourceNameRegexStr)

// ResourceName is a human-specified identifier that must conform to the length and character set
// requirements of ResourceNameRegex. Names appear in templates and URLs so they are kept simple.
type ResourceName string

func (s ResourceName) String() string {
	return string(s)
}

func (s *ResourceName) Scan(src interface{}) error {
	if src == nil {
		*s = ""
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected string: %#v", src)
	}
	*s = ResourceName(t)
	return nil
}

func (s ResourceName) Value() (driver.Value, error) {
	return string(s), nil
}

func (s ResourceName) Valid() bool {
	return s.Validate() == nil
}

func (s ResourceName) Validate() error {
	if s == "" {
		return errors.New("error name must be set")
	}
	if len(s) > resourceNameMaxLength {
		return fmt.Errorf("error name must not exceed %d characters", resourceNameMaxLength)
	}
	if !ResourceNameRegex.MatchString(s.String()) {
		return fmt.Errorf("error name must only contain alphanumeric, dash or underscore characters: '%s'", s)
	}
	return nil
}
