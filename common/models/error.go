package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/gerror"
)

// Error is an error recorded against a run. It keeps the gerror code (if any) so that readers of the run
// history can still tell e.g. a DependencyBlocked run from an ArtifactNotFound one.
type Error struct {
	err  error
	code gerror.Code
}

type errorJSON struct {
	Code    gerror.Code `json:"code,omitempty"`
	Message string      `json:"message"`
}

func NewError(err error) *Error {
	if err == nil {
		return nil
	}
	e := &Error{err: err}
	if gErr := gerror.ToError(err, ""); gErr != nil {
		e.code = gErr.Code()
	}
	return e
}

func (e *Error) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the gerror code the error was recorded with, or empty if it was not a coded error.
func (e *Error) Code() gerror.Code {
	if e == nil {
		return ""
	}
	return e.code
}

func (e *Error) Valid() bool {
	return e != nil && e.err != nil && e.err.Error() != ""
}

func (e *Error) MarshalJSON() ([]byte, error) {
	if !e.Valid() {
		return json.Marshal(nil)
	}
	return json.Marshal(errorJSON{Code: e.code, Message: e.Error()})
}

func (e *Error) UnmarshalJSON(data []byte) error {
	var m *errorJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m != nil && m.Message != "" {
		e.err = errors.New(m.Message)
		e.code = m.Code
	}
	return nil
}

func (e *Error) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	return scanJSON(src, e)
}

func (e *Error) Value() (driver.Value, error) {
	if !e.Valid() {
		return nil, nil
	}
	buf, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// scanJSON unmarshals a JSON column, which sqlite returns as a string and some drivers as bytes.
func scanJSON(src interface{}, dest interface{}) error {
	var buf []byte
	switch t := src.(type) {
	case string:
		buf = []byte(t)
	case []byte:
		buf = t
	default:
		return errors.Errorf("unsupported type for JSON column: %[1]T (%[1]v)", src)
	}
	if err := json.Unmarshal(buf, dest); err != nil {
		return errors.Wrap(err, "error unmarshalling from JSON")
	}
	return nil
}
