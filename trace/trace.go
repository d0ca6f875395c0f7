// Package trace implements the Tool Trace Store & Recorder: an append-only record of every tool invocation a worker
// makes, and the source of truth the Output Verifier checks claims against.
package trace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fenwick-ai/agentrt/ids"
)

// Purpose distinguishes invocations made to advance the task from ones made
// solely to verify a prior claim.
type Purpose string

const (
	PurposeExecution    Purpose = "execution"
	PurposeVerification Purpose = "verification"
)

// Status is the terminal state of a tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// EvidenceKind classifies the proof tag attached to an invocation.
type EvidenceKind string

const (
	EvidenceFile    EvidenceKind = "file"
	EvidenceLog     EvidenceKind = "log"
	EvidenceReceipt EvidenceKind = "receipt"
)

type (
	// EvidenceRef is a structured proof tag attached to an invocation,
	// keyed by kind.
	EvidenceRef struct {
		Kind EvidenceKind
		Ref  string
		Hash string // SHA-256 hex, when applicable
	}

	// Digest records cheap-to-check summary data for an invocation so the
	// verifier and UI do not need to parse full tool output.
	Digest struct {
		KeyEvents []string
		Counters  map[string]int
	}

	// Invocation is one tool call recorded in a trace. It is created as a
	// placeholder before execution and mutated in place once the tool
	// returns.
	Invocation struct {
		InvocationID string
		Tool         string
		ArgsHash     string
		Args         json.RawMessage
		Timestamp    time.Time
		Purpose      Purpose
		Status       Status
		Output       json.RawMessage
		DurationMS   int64
		Error        string
		EvidenceRefs []EvidenceRef
		Digest       Digest
	}

	// Trace is the append-only ordered log of invocations for one worker
	// run.
	Trace struct {
		TraceID      string
		SessionID    string
		SpecialistID string
		Invocations  []*Invocation
		CreatedAt    time.Time
		CompletedAt  *time.Time
	}

	// Store persists traces and their invocations. The in-memory
	// implementation below is the default; production deployments may back
	// it with a durable store instead.
	Store interface {
		Create(ctx context.Context, sessionID, specialistID string) (string, error)
		Append(ctx context.Context, traceID string, inv *Invocation) error
		Mutate(ctx context.Context, traceID, invocationID string, fn func(*Invocation)) error
		Load(ctx context.Context, ref string) (*Trace, error)
		Complete(ctx context.Context, traceID string) error
		Delete(ctx context.Context, traceID string) error
		GetBySession(ctx context.Context, sessionID string) ([]*Trace, error)
	}
)

// Ref renders a traceID into the opaque "trace:<id>" form referenced from
// worker outputs.
func Ref(traceID string) string { return "trace:" + traceID }

// ParseRef extracts the traceID from an opaque "trace:<id>" reference. It
// returns false if ref does not carry the expected prefix.
func ParseRef(ref string) (string, bool) {
	const prefix = "trace:"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", false
	}
	return ref[len(prefix):], true
}

// CanonicalJSON re-marshals v with sorted object keys so argsHash is stable
// regardless of field declaration order upstream.
func CanonicalJSON(v any) ([]byte, error) {
	// Round-trip through map[string]any (via generic any) so json.Marshal's
	// deterministic key-sort for map keys normalizes field order.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := marshalSorted(t[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		buf := []byte{'['}
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(t)
	}
}

// ArgsHash computes the SHA-256 of the canonicalized args, hex-encoded.
func ArgsHash(args any) (string, error) {
	canon, err := CanonicalJSON(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// ErrNotFound is returned by Load/Append/Mutate/Complete/Delete when the
// referenced trace does not exist.
var ErrNotFound = errors.New("trace: not found")

// ErrCompleted is returned by Append/Mutate when the trace has already been
// completed. Appending to a completed trace is a programmer bug, not a
// recoverable runtime condition.
var ErrCompleted = errors.New("trace: already completed")

// memStore is an in-memory Store, safe for concurrent use. Each trace has
// exactly one writer (the recorder) by convention; the mutex
// here additionally protects concurrent reads from the Verifier.
type memStore struct {
	mu     sync.Mutex
	traces map[string]*Trace
}

// NewMemStore returns a process-local, in-memory Store.
func NewMemStore() Store {
	return &memStore{traces: make(map[string]*Trace)}
}

func (s *memStore) Create(_ context.Context, sessionID, specialistID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ids.NewTraceID()
	s.traces[id] = &Trace{
		TraceID:      id,
		SessionID:    sessionID,
		SpecialistID: specialistID,
		CreatedAt:    time.Now(),
	}
	return id, nil
}

func (s *memStore) Append(_ context.Context, traceID string, inv *Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.traces[traceID]
	if !ok {
		return ErrNotFound
	}
	if t.CompletedAt != nil {
		return ErrCompleted
	}
	t.Invocations = append(t.Invocations, inv)
	return nil
}

func (s *memStore) Mutate(_ context.Context, traceID, invocationID string, fn func(*Invocation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.traces[traceID]
	if !ok {
		return ErrNotFound
	}
	if t.CompletedAt != nil {
		return ErrCompleted
	}
	for _, inv := range t.Invocations {
		if inv.InvocationID == invocationID {
			fn(inv)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) Load(_ context.Context, ref string) (*Trace, error) {
	id := ref
	if parsed, ok := ParseRef(ref); ok {
		id = parsed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.traces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTrace(t), nil
}

func (s *memStore) Complete(_ context.Context, traceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.traces[traceID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

func (s *memStore) Delete(_ context.Context, traceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.traces[traceID]; !ok {
		return ErrNotFound
	}
	delete(s.traces, traceID)
	return nil
}

func (s *memStore) GetBySession(_ context.Context, sessionID string) ([]*Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Trace
	for _, t := range s.traces {
		if t.SessionID == sessionID {
			out = append(out, cloneTrace(t))
		}
	}
	return out, nil
}

func cloneTrace(t *Trace) *Trace {
	cp := *t
	cp.Invocations = make([]*Invocation, len(t.Invocations))
	for i, inv := range t.Invocations {
		invCopy := *inv
		cp.Invocations[i] = &invCopy
	}
	return &cp
}
