package rpcerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOfTaggedErrors(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, Transient, CategoryOf(TransientErr(cause)))
	assert.Equal(t, Missing, CategoryOf(MissingErr(cause)))
	assert.Equal(t, Fatal, CategoryOf(FatalErr(cause)))
}

func TestCategoryOfUntaggedDefaultsFatal(t *testing.T) {
	assert.Equal(t, Fatal, CategoryOf(errors.New("plain")))
}

func TestIsTransientIsMissing(t *testing.T) {
	assert.True(t, IsTransient(TransientErr(nil)))
	assert.False(t, IsTransient(MissingErr(nil)))

	assert.True(t, IsMissing(MissingErr(nil)))
	assert.False(t, IsMissing(FatalErr(nil)))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := TransientErr(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "root cause")
	assert.Contains(t, err.Error(), "transient")
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "missing", Missing.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "unknown", Category(99).String())
}
