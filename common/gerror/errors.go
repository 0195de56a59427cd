package gerror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
)

const (
	ErrCodeInternal                Code = "Internal"
	ErrCodeValidationFailed        Code = "ValidationFailed"
	ErrCodeInvalidQueryParameter   Code = "InvalidQueryParameter"
	ErrCodeNotFound                Code = "NotFound"
	ErrCodeAlreadyExists           Code = "AlreadyExists"
	ErrCodeOptimisticLockFailed    Code = "OptimisticLockFailed"
	ErrCodeTimeout                 Code = "Timeout"
	ErrCodeHttpOperationFailed     Code = "HttpOperationFailed"
	ErrCodeUnresolvedDependency    Code = "UnresolvedDependency"
	ErrCodeDependencyCycle         Code = "DependencyCycle"
	ErrCodeArtifactNotFound        Code = "ArtifactNotFound"
	ErrCodeArtifactPublishFailed   Code = "ArtifactPublishFailed"
	ErrCodeArtifactTransferFailed  Code = "ArtifactTransferFailed"
	ErrCodeDependencyBlocked       Code = "DependencyBlocked"
	ErrCodeDependencyFailed        Code = "DependencyFailed"
	ErrCodeInvalidStatusTransition Code = "InvalidStatusTransition"
)

// ToError locates an Error in the provided error chain and returns it if it
// matches the provided code. An empty code matches any Error. Otherwise, returns nil.
// Every Error in the chain is checked, including the causes of Errors that don't match and
// each of the errors in a multierror.
func ToError(err error, code Code) *Error {
	for err != nil {
		switch e := err.(type) {
		case Error:
			if code == "" || e.Code() == code {
				return &e
			}
		case *Error:
			if e == nil {
				return nil
			}
			if code == "" || e.Code() == code {
				return e
			}
		case *multierror.Error:
			for _, inner := range e.Errors {
				if gErr := ToError(inner, code); gErr != nil {
					return gErr
				}
			}
			return nil
		}
		err = errors.Unwrap(err)
	}
	return nil
}

func NewErrInternal() Error {
	return NewError(
		"An internal server error occurred",
		AudienceExternal,
		ErrCodeInternal,
		http.StatusInternalServerError,
		nil,
	)
}

func ToInternal(err error) *Error {
	return ToError(err, ErrCodeInternal)
}

func IsInternal(err error) bool {
	return ToInternal(err) != nil
}

func NewErrValidationFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeValidationFailed, http.StatusBadRequest, nil)
}

func ToValidationFailed(err error) *Error {
	return ToError(err, ErrCodeValidationFailed)
}

func IsValidationFailed(err error) bool {
	return ToValidationFailed(err) != nil
}

func NewErrInvalidQueryParameter(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeInvalidQueryParameter, http.StatusBadRequest, nil)
}

func ToInvalidQueryParameter(err error) *Error {
	return ToError(err, ErrCodeInvalidQueryParameter)
}

func IsInvalidQueryParameter(err error) bool {
	return ToInvalidQueryParameter(err) != nil
}

func NewErrNotFound(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeNotFound, http.StatusNotFound, nil)
}

func ToNotFound(err error) *Error {
	return ToError(err, ErrCodeNotFound)
}

func IsNotFound(err error) bool {
	return ToNotFound(err) != nil
}

func NewErrAlreadyExists(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeAlreadyExists, http.StatusBadRequest, nil)
}

func ToAlreadyExists(err error) *Error {
	return ToError(err, ErrCodeAlreadyExists)
}

func IsAlreadyExists(err error) bool {
	return ToAlreadyExists(err) != nil
}

func NewErrOptimisticLockFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeOptimisticLockFailed, http.StatusPreconditionFailed, nil)
}

func ToOptimisticLockFailed(err error) *Error {
	return ToError(err, ErrCodeOptimisticLockFailed)
}

func IsOptimisticLockFailed(err error) bool {
	return ToOptimisticLockFailed(err) != nil
}

func NewErrTimeout(description string) Error {
	return NewError("Timeout: "+description, AudienceInternal, ErrCodeTimeout, http.StatusInternalServerError, nil)
}

func ToTimeout(err error) *Error {
	return ToError(err, ErrCodeTimeout)
}

func IsTimeout(err error) bool {
	return ToTimeout(err) != nil
}

func NewErrHttpOperationFailed(message string, httpStatusCode int) Error {
	return NewError(message, AudienceExternal, ErrCodeHttpOperationFailed, httpStatusCode, nil)
}

func ToHttpOperationFailed(err error) *Error {
	return ToError(err, ErrCodeHttpOperationFailed)
}

func IsHttpOperationFailed(err error) bool {
	return ToHttpOperationFailed(err) != nil
}

// NewErrUnresolvedDependency is returned at load time when a dependency names a job that
// does not exist in the pipeline.
func NewErrUnresolvedDependency(owner string, target string) Error {
	return NewError(
		fmt.Sprintf("Job %q depends on unknown job %q", owner, target),
		AudienceExternal,
		ErrCodeUnresolvedDependency,
		http.StatusBadRequest,
		nil,
	).EDetail("owner", owner).EDetail("target", target)
}

func ToUnresolvedDependency(err error) *Error {
	return ToError(err, ErrCodeUnresolvedDependency)
}

func IsUnresolvedDependency(err error) bool {
	return ToUnresolvedDependency(err) != nil
}

func NewErrDependencyCycle(path []string) Error {
	return NewError(
		fmt.Sprintf("Dependency cycle detected: %s", strings.Join(path, " -> ")),
		AudienceExternal,
		ErrCodeDependencyCycle,
		http.StatusBadRequest,
		nil,
	)
}

func ToDependencyCycle(err error) *Error {
	return ToError(err, ErrCodeDependencyCycle)
}

func IsDependencyCycle(err error) bool {
	return ToDependencyCycle(err) != nil
}

// NewErrArtifactNotFound is returned when an artifact rule matches no files. It is always
// fatal to the run that declared the rule.
func NewErrArtifactNotFound(pattern string) Error {
	return NewError(
		fmt.Sprintf("No artifacts matched %q", pattern),
		AudienceExternal,
		ErrCodeArtifactNotFound,
		http.StatusNotFound,
		nil,
	).EDetail("pattern", pattern)
}

func ToArtifactNotFound(err error) *Error {
	return ToError(err, ErrCodeArtifactNotFound)
}

func IsArtifactNotFound(err error) bool {
	return ToArtifactNotFound(err) != nil
}

func NewErrArtifactPublishFailed(message string, err error) Error {
	return NewError(message, AudienceInternal, ErrCodeArtifactPublishFailed, http.StatusInternalServerError, err)
}

func ToArtifactPublishFailed(err error) *Error {
	return ToError(err, ErrCodeArtifactPublishFailed)
}

func IsArtifactPublishFailed(err error) bool {
	return ToArtifactPublishFailed(err) != nil
}

func NewErrArtifactTransferFailed(message string, err error) Error {
	return NewError(message, AudienceInternal, ErrCodeArtifactTransferFailed, http.StatusInternalServerError, err)
}

func ToArtifactTransferFailed(err error) *Error {
	return ToError(err, ErrCodeArtifactTransferFailed)
}

func IsArtifactTransferFailed(err error) bool {
	return ToArtifactTransferFailed(err) != nil
}

// NewErrDependencyBlocked is recorded on runs that were never started because a dependency
// did not succeed and the link's policy is FAIL_TO_START.
func NewErrDependencyBlocked(target string, targetStatus string) Error {
	return NewError(
		fmt.Sprintf("Not started: dependency %q finished with status %s", target, targetStatus),
		AudienceExternal,
		ErrCodeDependencyBlocked,
		http.StatusConflict,
		nil,
	).EDetail("target", target)
}

func ToDependencyBlocked(err error) *Error {
	return ToError(err, ErrCodeDependencyBlocked)
}

func IsDependencyBlocked(err error) bool {
	return ToDependencyBlocked(err) != nil
}

func NewErrDependencyFailed(target string, targetStatus string) Error {
	return NewError(
		fmt.Sprintf("Dependency %q finished with status %s", target, targetStatus),
		AudienceExternal,
		ErrCodeDependencyFailed,
		http.StatusConflict,
		nil,
	).EDetail("target", target)
}

func ToDependencyFailed(err error) *Error {
	return ToError(err, ErrCodeDependencyFailed)
}

func IsDependencyFailed(err error) bool {
	return ToDependencyFailed(err) != nil
}

func NewErrInvalidStatusTransition(from string, to string) Error {
	return NewError(
		fmt.Sprintf("Invalid status transition from %s to %s", from, to),
		AudienceInternal,
		ErrCodeInvalidStatusTransition,
		http.StatusConflict,
		nil,
	)
}

func ToInvalidStatusTransition(err error) *Error {
	return ToError(err, ErrCodeInvalidStatusTransition)
}

func IsInvalidStatusTransition(err error) bool {
	return ToInvalidStatusTransition(err) != nil
}
