package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesOnCodeAlone(t *testing.T) {
	err := Wrap(StorageBackend, "put group", fmt.Errorf("disk full"))
	assert.True(t, errors.Is(err, New(StorageBackend, "")))
	assert.False(t, errors.Is(err, New(NotFound, "")))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(StorageBackend, "put group", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestMissingKeyPackageForCarriesMember(t *testing.T) {
	err := MissingKeyPackageFor("npub1abc")
	code, ok := Of(err)
	assert.True(t, ok)
	assert.Equal(t, MissingKeyPackage, code)
	assert.Contains(t, err.Error(), "npub1abc")
}

func TestOfReportsFalseForForeignErrors(t *testing.T) {
	_, ok := Of(fmt.Errorf("plain error"))
	assert.False(t, ok)
}
