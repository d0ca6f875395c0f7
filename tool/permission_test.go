package tool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowsToolEmptyAllowListPermitsEverythingNotDenied(t *testing.T) {
	p := Permissions{Deny: []string{"shell:*"}}
	require.True(t, p.AllowsTool("fs:read"))
	require.False(t, p.AllowsTool("shell:exec"))
}

func TestAllowsToolDenyWinsOverAllow(t *testing.T) {
	p := Permissions{Allow: []string{"shell:*"}, Deny: []string{"shell:exec"}}
	require.True(t, p.AllowsTool("shell:ls"))
	require.False(t, p.AllowsTool("shell:exec"))
}

func TestAllowsToolNonEmptyAllowListDeniesUnlisted(t *testing.T) {
	p := Permissions{Allow: []string{"fs:*"}}
	require.True(t, p.AllowsTool("fs:read"))
	require.False(t, p.AllowsTool("shell:exec"))
}

func TestAllowsArgMatchesGlobAgainstArgument(t *testing.T) {
	p := Permissions{Deny: []string{"/etc/*"}}
	require.True(t, p.AllowsArg("/home/user/file.go"))
	require.False(t, p.AllowsArg("/etc/passwd"))
}
