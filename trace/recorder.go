package trace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/fenwick-ai/agentrt/ids"
	"github.com/fenwick-ai/agentrt/tool"
)

// Recorder wraps every tool invocation with a before/execute/after
// protocol: a placeholder invocation is appended before execution, then
// mutated in place with the final outcome.
type Recorder struct {
	store   Store
	traceID string
}

// NewRecorder returns a Recorder bound to an already-created trace.
func NewRecorder(store Store, traceID string) *Recorder {
	return &Recorder{store: store, traceID: traceID}
}

// Record executes fn, recording a placeholder invocation beforehand and
// mutating it with the final status/output/evidence/digest afterward. The
// returned *tool.Result and error are exactly what fn returned; Record never
// swallows a tool error, it only observes it.
func (r *Recorder) Record(ctx context.Context, name string, args []byte, purpose Purpose, fn func(context.Context) (*tool.Result, error)) (*tool.Result, error) {
	argsHash, _ := ArgsHash(json.RawMessage(rawOrEmpty(args)))
	inv := &Invocation{
		InvocationID: ids.NewInvocationID(),
		Tool:         name,
		ArgsHash:     argsHash,
		Args:         rawOrEmpty(args),
		Timestamp:    time.Now(),
		Purpose:      purpose,
		Status:       StatusSuccess, // placeholder, overwritten below
	}
	if err := r.store.Append(ctx, r.traceID, inv); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := fn(ctx)
	duration := time.Since(start)

	_ = r.store.Mutate(ctx, r.traceID, inv.InvocationID, func(final *Invocation) {
		final.DurationMS = duration.Milliseconds()
		switch {
		case err != nil:
			final.Status = StatusError
			final.Error = err.Error()
		case res == nil:
			final.Status = StatusError
			final.Error = "tool returned no result"
		case !res.Success:
			final.Status = StatusFailed
			if res.Error != nil {
				final.Error = res.Error.Message
			}
		default:
			final.Status = StatusSuccess
			final.Output = rawOrEmpty(res.Output)
		}
		final.EvidenceRefs = evidenceFor(name, res)
		final.Digest = digestFor(name, res, err)
	})

	return res, err
}

func rawOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

// evidenceFor derives the evidence-ref kind for a tool family.
func evidenceFor(name string, res *tool.Result) []EvidenceRef {
	if res == nil {
		return nil
	}
	switch {
	case strings.HasPrefix(name, "fs:read"):
		return []EvidenceRef{{Kind: EvidenceFile, Ref: pathFromMetadata(res)}}
	case strings.HasPrefix(name, "fs:write"), strings.HasPrefix(name, "fs:edit"):
		sum := sha256.Sum256(res.Output)
		return []EvidenceRef{{
			Kind: EvidenceFile,
			Ref:  pathFromMetadata(res),
			Hash: hex.EncodeToString(sum[:]),
		}}
	case strings.HasPrefix(name, "shell:"):
		return []EvidenceRef{{Kind: EvidenceLog, Ref: "shell:" + commandFromMetadata(res)}}
	default:
		hash, _ := ArgsHash(res.Metadata)
		return []EvidenceRef{{Kind: EvidenceReceipt, Ref: name, Hash: hash}}
	}
}

func pathFromMetadata(res *tool.Result) string {
	if res == nil || res.Metadata == nil {
		return ""
	}
	if p, ok := res.Metadata["path"].(string); ok {
		return p
	}
	return ""
}

func commandFromMetadata(res *tool.Result) string {
	if res == nil || res.Metadata == nil {
		return ""
	}
	if c, ok := res.Metadata["command"].(string); ok {
		return c
	}
	return ""
}

// digestFor builds the cheap-to-check key-events/counters summary.
func digestFor(name string, res *tool.Result, callErr error) Digest {
	d := Digest{Counters: map[string]int{}}
	switch {
	case callErr != nil:
		d.KeyEvents = append(d.KeyEvents, "failed")
		d.Counters["errors"] = 1
	case res == nil || !res.Success:
		d.KeyEvents = append(d.KeyEvents, "failed")
		d.Counters["errors"] = 1
	default:
		switch {
		case strings.HasPrefix(name, "fs:write"):
			d.KeyEvents = append(d.KeyEvents, "file_created")
			d.Counters["files_written"] = 1
		case strings.HasPrefix(name, "fs:read"):
			d.KeyEvents = append(d.KeyEvents, "file_read")
		case strings.HasPrefix(name, "shell:"):
			d.Counters["commands_executed"] = 1
		}
		if res != nil && res.Metadata != nil {
			if fromCache, _ := res.Metadata["from_cache"].(bool); fromCache {
				d.KeyEvents = append(d.KeyEvents, "from_cache")
			}
		}
	}
	return d
}
