// Package tool defines the generic tool contract consumed by the iteration
// loop: names, specs, the executor interface, and the reserved tool names
// the runtime treats specially. Individual tool implementations (fs, shell,
// search, ...) are external collaborators — this package only
// describes the boundary.
package tool

import "context"

// Reserved tool names with runtime-defined semantics.
const (
	// Report is the terminal-answer tool. Calling it stops the iteration
	// loop with stop code report_complete.
	Report = "report"
	// SpawnAgent delegates to a worker; available only to orchestrators.
	SpawnAgent = "spawn_agent"
	// AskOrchestrator lets a worker request orchestrator-level guidance.
	AskOrchestrator = "ask_orchestrator"
	// ArchiveRecall queries the memory archive (external collaborator).
	ArchiveRecall = "archive_recall"
	// ReflectOnProgress requests an operational reflection (see builtin.Reflection).
	ReflectOnProgress = "reflect_on_progress"
)

type (
	// ErrorInfo is a structured tool failure returned alongside a failed
	// Result, carrying a stable code for programmatic handling.
	ErrorInfo struct {
		Code    string
		Message string
	}

	// Result is what a tool execution reports back to the caller.
	Result struct {
		Success  bool
		Output   []byte
		Error    *ErrorInfo
		Metadata map[string]any
	}

	// Executor executes a single named tool call. Names follow
	// "namespace:operation" (e.g. "fs:read", "shell:exec",
	// "mind:rag-query"). The abort signal is observed cooperatively:
	// long-running tools should poll ctx.Done() and return promptly.
	Executor interface {
		Execute(ctx context.Context, name string, input []byte, abort <-chan struct{}) (*Result, error)
	}

	// Spec describes one tool's metadata for planners, permission checks,
	// and documentation. Payload/Result schemas are opaque JSON schema
	// documents produced by the external tool-definition layer.
	Spec struct {
		Name           string
		Description    string
		PayloadSchema  []byte
		ResultSchema   []byte
		TerminalRun    bool
		Tags           []string
	}

	// Registry resolves tool names to specs. Permission checks match glob
	// patterns on names and worker.ToolStrategy works on model.Tool lists;
	// neither consults a Registry.
	Registry interface {
		Spec(name string) (*Spec, bool)
		Names() []string
	}
)

// staticRegistry is a Registry backed by a fixed slice of specs.
type staticRegistry struct {
	specs map[string]*Spec
	names []string
}

// NewRegistry returns a Registry over the given specs. Duplicate names keep
// the first occurrence.
func NewRegistry(specs []*Spec) Registry {
	r := &staticRegistry{specs: make(map[string]*Spec, len(specs))}
	for _, s := range specs {
		if s == nil || s.Name == "" {
			continue
		}
		if _, dup := r.specs[s.Name]; dup {
			continue
		}
		r.specs[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	return r
}

func (r *staticRegistry) Spec(name string) (*Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

func (r *staticRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
