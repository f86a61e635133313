package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Key string `validate:"required,min=16"`
}

type sample struct {
	Name  string `validate:"required"`
	Port  int    `validate:"required"`
	Notes string `validate:"max=10"`
	Inner nested
}

func TestValidatePasses(t *testing.T) {
	s := sample{
		Name:  "api",
		Port:  8080,
		Notes: "short",
		Inner: nested{Key: "0123456789abcdef"},
	}
	require.NoError(t, New().Validate(&s))
}

func TestValidateRequired(t *testing.T) {
	s := sample{Port: 8080, Inner: nested{Key: "0123456789abcdef"}}
	err := New().Validate(&s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name is required")
}

func TestValidateNestedFieldPath(t *testing.T) {
	s := sample{Name: "api", Port: 8080, Inner: nested{Key: "short"}}
	err := New().Validate(&s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Inner.Key")
	assert.Contains(t, err.Error(), "at least 16")
}

func TestValidateMax(t *testing.T) {
	s := sample{
		Name:  "api",
		Port:  8080,
		Notes: "far too many characters here",
		Inner: nested{Key: "0123456789abcdef"},
	}
	err := New().Validate(&s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Notes")
}

func TestValidateZeroInt(t *testing.T) {
	s := sample{Name: "api", Inner: nested{Key: "0123456789abcdef"}}
	err := New().Validate(&s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Port is required")
}
