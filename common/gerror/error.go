package gerror

import (
	"fmt"
	"sort"
	"strings"
)

const (
	AudienceInternal Audience = "internal"
	AudienceExternal Audience = "external"
)

type Audience string
type Code string
type DetailKey string
type Details map[DetailKey]Detail

// Error is a coded error. The message is safe to show to the audience the error is intended for;
// Error() returns the full chain including details and inner errors, for logs.
type Error struct {
	innerErr       error
	errorText      string
	message        string
	details        Details
	audience       Audience
	code           Code
	httpStatusCode int
}

func NewError(message string, audience Audience, code Code, httpStatusCode int, inner error) Error {
	return NewErrorWithDetails(message, nil, audience, code, httpStatusCode, inner)
}

func NewErrorWithDetails(message string, details Details, audience Audience, code Code, httpStatusCode int, inner error) Error {
	return Error{
		innerErr:       inner,
		message:        message,
		errorText:      makeErrorText(message, details, inner),
		details:        details,
		audience:       audience,
		code:           code,
		httpStatusCode: httpStatusCode,
	}
}

func (e Error) Error() string {
	if e.errorText == "" {
		return e.message
	}
	return e.errorText
}

func (e Error) Unwrap() error {
	return e.innerErr
}

func (e Error) Message() string {
	return e.message
}

func (e Error) Details() Details {
	m := make(Details, len(e.details))
	for k, v := range e.details {
		m[k] = v
	}
	return m
}

func (e Error) Audience() Audience {
	return e.audience
}

// IsExternal returns true if the error's message may be shown to API callers.
func (e Error) IsExternal() bool {
	return e.audience == AudienceExternal
}

func (e Error) Code() Code {
	return e.code
}

func (e Error) HTTPStatusCode() int {
	return e.httpStatusCode
}

// HasHTTPStatusCode returns true iff the supplied error chain contains a gerror.Error with the specified HTTP status code.
func HasHTTPStatusCode(err error, statusCode int) bool {
	gErr := ToError(err, "")
	return gErr != nil && gErr.HTTPStatusCode() == statusCode
}

// Wrap returns a copy of the error with the inner error set to the specified err.
func (e Error) Wrap(innerErr error) Error {
	return NewErrorWithDetails(e.message, e.Details(), e.audience, e.code, e.httpStatusCode, innerErr)
}

// IDetail returns a copy of the error with a new internal detail appended to it.
func (e Error) IDetail(key DetailKey, value interface{}) Error {
	return e.withDetail(AudienceInternal, key, value)
}

// EDetail returns a copy of the error with a new external detail appended to it.
func (e Error) EDetail(key DetailKey, value interface{}) Error {
	return e.withDetail(AudienceExternal, key, value)
}

func (e Error) withDetail(audience Audience, key DetailKey, value interface{}) Error {
	details := e.Details()
	details[key] = NewDetail(audience, key, value)
	return NewErrorWithDetails(e.message, details, e.audience, e.code, e.httpStatusCode, e.innerErr)
}

func makeErrorText(message string, details Details, inner error) string {
	text := message
	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, details[DetailKey(k)].value))
		}
		text += " [" + strings.Join(pairs, ", ") + "]"
	}
	if inner != nil {
		text += fmt.Sprintf(": %v", inner)
	}
	return text
}

type Detail struct {
	audience Audience
	key      DetailKey
	value    interface{}
}

func NewDetail(audience Audience, key DetailKey, value interface{}) Detail {
	return Detail{
		audience: audience,
		key:      key,
		value:    value,
	}
}

func (a Detail) Audience() Audience {
	return a.audience
}

func (a Detail) Key() DetailKey {
	return a.key
}

func (a Detail) Value() interface{} {
	return a.value
}
