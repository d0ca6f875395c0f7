package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsPrefixAndUniqueness(t *testing.T) {
	cases := []struct {
		prefix string
		gen    func() string
	}{
		{"run_", NewRunID},
		{"sess_", NewSessionID},
		{"trace_", NewTraceID},
		{"inv_", NewInvocationID},
		{"chg_", NewChangeID},
		{"corr_", NewCorrectionID},
	}
	for _, c := range cases {
		a, b := c.gen(), c.gen()
		require.True(t, strings.HasPrefix(a, c.prefix))
		require.NotEqual(t, a, b)
	}
}

func TestNewAgentIDUsesGivenPrefix(t *testing.T) {
	id := NewAgentID("worker")
	require.True(t, strings.HasPrefix(id, "worker_"))
}

func TestNewAgentIDDefaultsToAgentWhenPrefixEmpty(t *testing.T) {
	id := NewAgentID("")
	require.True(t, strings.HasPrefix(id, "agent_"))
}
