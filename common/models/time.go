package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const timestampStorageFormat = "2006-01-02 15:04:05.999999-07:00"

type Time struct {
	time.Time
}

// NewTime rounds to microseconds because that is all Postgres stores; values read back then
// compare equal to the values written.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC().Round(time.Microsecond)}
}

func NewTimePtr(t time.Time) *Time {
	newTime := NewTime(t)
	return &newTime
}

// Scan accepts time.Time (Postgres) or the storage string format (sqlite).
func (s *Time) Scan(src interface{}) error {
	switch t := src.(type) {
	case nil:
		return nil
	case time.Time:
		*s = NewTime(t)
	case string:
		parsed, err := time.Parse(timestampStorageFormat, t)
		if err != nil {
			return errors.Wrap(err, "error parsing time")
		}
		*s = Time{Time: parsed.UTC()}
	default:
		return fmt.Errorf("unsupported type: %[1]T (%[1]v)", src)
	}
	return nil
}

// Value converts a time into a format that can be passed to the database, for example in a WHERE clause
// of a query.
func (s Time) Value() (driver.Value, error) {
	return s.Format(timestampStorageFormat), nil
}
