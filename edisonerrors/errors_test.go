package edisonerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorMessage(t *testing.T) {
	err := New(KindConfig, "missing key")
	assert.Equal(t, "missing key", err.Error())
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindGit, "whatever", nil))
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindPersistence, "write failed", cause)
	require.NotNil(t, err)
	assert.Equal(t, "write failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWithRemediationAppendsHint(t *testing.T) {
	err := New(KindValidator, "timed out").WithRemediation("increase the timeout")
	assert.Contains(t, err.Error(), "try: increase the timeout")
}

func TestWithViolations(t *testing.T) {
	err := New(KindTransitionBlocked, "guard failed").WithViolations("missing approval", "stale round")
	assert.Equal(t, []string{"missing approval", "stale round"}, err.Violations)
}

func TestIsMatchesSameKind(t *testing.T) {
	err := New(KindEntityNotFound, "no such task")
	assert.True(t, errors.Is(err, New(KindEntityNotFound, "")))
	assert.False(t, errors.Is(err, New(KindGit, "")))
}

func TestOfReturnsKind(t *testing.T) {
	kind, ok := Of(New(KindTemplate, "bad expr"))
	require.True(t, ok)
	assert.Equal(t, KindTemplate, kind)

	_, ok = Of(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsHelperFunction(t *testing.T) {
	err := Wrap(KindGit, "fetch failed", errors.New("network"))
	assert.True(t, Is(err, KindGit))
	assert.False(t, Is(err, KindConfig))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindPersistence, "save failed", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
