package tool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistrySkipsNilAndEmptyNameSpecs(t *testing.T) {
	reg := NewRegistry([]*Spec{
		nil,
		{Name: ""},
		{Name: "fs:read"},
	})
	require.Equal(t, []string{"fs:read"}, reg.Names())
}

func TestNewRegistryKeepsFirstOccurrenceOnDuplicateName(t *testing.T) {
	reg := NewRegistry([]*Spec{
		{Name: "fs:read", Description: "first"},
		{Name: "fs:read", Description: "second"},
	})
	spec, ok := reg.Spec("fs:read")
	require.True(t, ok)
	require.Equal(t, "first", spec.Description)
}

func TestRegistrySpecUnknownNameReturnsFalse(t *testing.T) {
	reg := NewRegistry(nil)
	_, ok := reg.Spec("does:not-exist")
	require.False(t, ok)
}

func TestRegistryNamesReturnsACopy(t *testing.T) {
	reg := NewRegistry([]*Spec{{Name: "fs:read"}})
	names := reg.Names()
	names[0] = "mutated"

	require.Equal(t, []string{"fs:read"}, reg.Names())
}
