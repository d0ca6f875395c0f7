// Package ids generates the opaque identifiers used throughout the runtime:
// run IDs, trace IDs, invocation IDs, and file-history change IDs. Callers
// should treat every value returned here as opaque and never parse
// structure out of it.
package ids

import "github.com/google/uuid"

// NewRunID returns a new opaque run identifier.
func NewRunID() string { return "run_" + uuid.NewString() }

// NewSessionID returns a new opaque session identifier.
func NewSessionID() string { return "sess_" + uuid.NewString() }

// NewTraceID returns a new opaque tool-trace identifier.
func NewTraceID() string { return "trace_" + uuid.NewString() }

// NewInvocationID returns a new opaque tool-invocation identifier.
func NewInvocationID() string { return "inv_" + uuid.NewString() }

// NewChangeID returns a new opaque file-history change identifier.
func NewChangeID() string { return "chg_" + uuid.NewString() }

// NewAgentID returns a new opaque agent-run identifier, used to distinguish
// concurrent worker/orchestrator instances sharing an agent definition.
func NewAgentID(prefix string) string {
	if prefix == "" {
		prefix = "agent"
	}
	return prefix + "_" + uuid.NewString()
}

// NewCorrectionID returns a new opaque correction identifier.
func NewCorrectionID() string { return "corr_" + uuid.NewString() }
