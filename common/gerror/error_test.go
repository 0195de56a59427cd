package gerror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	err := NewErrAlreadyExists("foo already exists")
	err = err.Wrap(fmt.Errorf("i'm a scary internal error"))
	require.Equal(t, "foo already exists: i'm a scary internal error", err.Error())
	require.Equal(t, "foo already exists", err.Message())

	err = err.EDetail("foo", "bar").IDetail("alpha", 1)
	require.Equal(t, "foo already exists [alpha=1, foo=bar]: i'm a scary internal error", err.Error())
	require.Equal(t, "foo already exists", err.Message())
	require.Equal(t, AudienceInternal, err.Details()["alpha"].Audience())

	err = err.Wrap(NewErrNotFound("foo does not exist").Wrap(fmt.Errorf("i'm a scary internal error")))
	require.Equal(t, "foo already exists [alpha=1, foo=bar]: foo does not exist: i'm a scary internal error", err.Error())
	require.True(t, IsNotFound(err))
}

func TestMultiError(t *testing.T) {
	var results *multierror.Error
	results = multierror.Append(results, fmt.Errorf("error 1: %w", errors.New("1")))
	results = multierror.Append(results, NewErrArtifactNotFound("dist/**"))
	results = multierror.Append(results, fmt.Errorf("error 3: %w", errors.New("3")))

	err := results.ErrorOrNil()
	require.True(t, IsArtifactNotFound(err))

	var outerResults *multierror.Error
	outerResults = multierror.Append(err, fmt.Errorf("outer error 1: %w", errors.New("11")))
	require.True(t, IsArtifactNotFound(outerResults.ErrorOrNil()))
	require.False(t, IsDependencyBlocked(outerResults.ErrorOrNil()))

	// An earlier Error with another code does not hide a later match
	mixed := multierror.Append(nil, NewErrNotFound("run not found"), NewErrArtifactNotFound("out/**"))
	require.True(t, IsArtifactNotFound(mixed))
	require.True(t, IsNotFound(mixed))
	require.False(t, IsTimeout(mixed))
}

func TestNestedErrors(t *testing.T) {
	inner := NewErrArtifactNotFound("docs/**").Wrap(fmt.Errorf("no files"))
	outer := NewErrArtifactTransferFailed("Error transferring from compile", inner)
	err := pkgerrors.Wrap(fmt.Errorf("error running package: %w", outer), "error running plan")
	require.True(t, IsArtifactTransferFailed(err))
	require.True(t, IsArtifactNotFound(err))
	require.Equal(t, ErrCodeArtifactNotFound, ToArtifactNotFound(err).Code())
	require.Equal(t, ErrCodeArtifactTransferFailed, ToError(err, "").Code())
	require.False(t, IsDependencyFailed(err))
}

func TestDependencyErrors(t *testing.T) {
	err := pkgerrors.Wrap(NewErrDependencyBlocked("Lib_Build", "failed"), "error evaluating link")
	require.True(t, IsDependencyBlocked(err))
	require.False(t, IsDependencyFailed(err))
	require.True(t, HasHTTPStatusCode(err, http.StatusConflict))

	unresolved := NewErrUnresolvedDependency("Docs", "Missing")
	require.Equal(t, "Missing", unresolved.Details()["target"].Value())
	require.True(t, unresolved.IsExternal())
}
