package middleware

import (
	"context"
	"sort"

	"github.com/fenwick-ai/agentrt/agenterr"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

// Pipeline orders a set of Middlewares and implements the execution rules:
// pre-hooks ascending by order, post-hooks descending; first non-continue
// wins for beforeIteration; patches merge ascending, last wins; any "skip"
// vote wins for beforeToolExec.
type Pipeline struct {
	mws []Middleware
}

// NewPipeline returns a Pipeline with mws sorted by Order ascending. The
// pipeline re-sorts defensively so callers do not need to pre-sort.
func NewPipeline(mws ...Middleware) *Pipeline {
	sorted := append([]Middleware(nil), mws...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return &Pipeline{mws: sorted}
}

func (p *Pipeline) ascending() []Middleware { return p.mws }

func (p *Pipeline) descending() []Middleware {
	out := make([]Middleware, len(p.mws))
	for i, mw := range p.mws {
		out[len(p.mws)-1-i] = mw
	}
	return out
}

// runHook executes a single hook under its middleware's declared timeout and
// fail policy, returning fallback on a fail-open failure or an error (to
// abort the run) on fail-closed: an *agenterr.Error is returned as is, any
// other error is wrapped as agenterr.KindTimeout.
func runHook[T any](ctx context.Context, mw Middleware, fallback T, fn func(context.Context) (T, error)) (T, error) {
	hctx, cancel := withTimeout(ctx, mw.Config.TimeoutMS)
	defer cancel()

	result, err := fn(hctx)
	if err == nil {
		return result, nil
	}
	if mw.Config.FailPolicy == FailOpen {
		return fallback, nil
	}
	if ae, ok := agenterr.As(err); ok {
		return fallback, ae
	}
	return fallback, agenterr.Wrap(agenterr.KindTimeout, "middleware "+mw.Name+" failed", err)
}

// OnStart invokes every enabled middleware's OnStart hook in ascending
// order. The first fail-closed error aborts and is returned.
func (p *Pipeline) OnStart(ctx context.Context, run RunRef) error {
	for _, mw := range p.ascending() {
		if mw.OnStart == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		if _, err := runHook(ctx, mw, struct{}{}, func(hctx context.Context) (struct{}, error) {
			return struct{}{}, mw.OnStart(hctx, run)
		}); err != nil {
			return err
		}
	}
	return nil
}

// OnStop invokes every enabled middleware's OnStop hook in descending
// order. Unlike other hooks, OnStop always runs for every middleware even
// if an earlier one fails fail-closed; the first such error is returned
// after all hooks have run.
func (p *Pipeline) OnStop(ctx context.Context, run RunRef, reason string) error {
	var first error
	for _, mw := range p.descending() {
		if mw.OnStop == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		if _, err := runHook(ctx, mw, struct{}{}, func(hctx context.Context) (struct{}, error) {
			return struct{}{}, mw.OnStop(hctx, run, reason)
		}); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OnComplete invokes every enabled middleware's OnComplete hook in
// descending order, same all-run semantics as OnStop.
func (p *Pipeline) OnComplete(ctx context.Context, run RunRef) error {
	var first error
	for _, mw := range p.descending() {
		if mw.OnComplete == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		if _, err := runHook(ctx, mw, struct{}{}, func(hctx context.Context) (struct{}, error) {
			return struct{}{}, mw.OnComplete(hctx, run)
		}); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BeforeIteration runs every enabled middleware's BeforeIteration hook in
// ascending order; the first non-continue Action short-circuits the rest.
func (p *Pipeline) BeforeIteration(ctx context.Context, run RunRef, meta *Meta) (Action, error) {
	for _, mw := range p.ascending() {
		if mw.BeforeIteration == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		action, err := runHook(ctx, mw, ActionContinue, func(hctx context.Context) (Action, error) {
			return mw.BeforeIteration(hctx, run, meta)
		})
		if err != nil {
			return ActionContinue, err
		}
		if action != ActionContinue {
			return action, nil
		}
	}
	return ActionContinue, nil
}

// AfterIteration runs every enabled middleware's AfterIteration hook in
// descending order.
func (p *Pipeline) AfterIteration(ctx context.Context, run RunRef, meta *Meta) error {
	for _, mw := range p.descending() {
		if mw.AfterIteration == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		if _, err := runHook(ctx, mw, struct{}{}, func(hctx context.Context) (struct{}, error) {
			return struct{}{}, mw.AfterIteration(hctx, run, meta)
		}); err != nil {
			return err
		}
	}
	return nil
}

// BeforeLLMCall runs every enabled middleware's BeforeLLMCall hook in
// ascending order, merging returned patches field-wise (last wins).
func (p *Pipeline) BeforeLLMCall(ctx context.Context, run RunRef, call LLMCallContext, meta *Meta) (Patch, error) {
	var patch Patch
	for _, mw := range p.ascending() {
		if mw.BeforeLLMCall == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		next, err := runHook(ctx, mw, (*Patch)(nil), func(hctx context.Context) (*Patch, error) {
			return mw.BeforeLLMCall(hctx, call, meta)
		})
		if err != nil {
			return patch, err
		}
		if next != nil {
			patch = patch.Merge(*next)
		}
	}
	return patch, nil
}

// AfterLLMCall runs every enabled middleware's AfterLLMCall hook in
// descending order.
func (p *Pipeline) AfterLLMCall(ctx context.Context, run RunRef, call LLMCallContext, result *model.Response, meta *Meta) error {
	for _, mw := range p.descending() {
		if mw.AfterLLMCall == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		if _, err := runHook(ctx, mw, struct{}{}, func(hctx context.Context) (struct{}, error) {
			return struct{}{}, mw.AfterLLMCall(hctx, call, result, meta)
		}); err != nil {
			return err
		}
	}
	return nil
}

// BeforeToolExec runs every enabled middleware's BeforeToolExec hook in
// ascending order; any "skip" vote wins regardless of order.
func (p *Pipeline) BeforeToolExec(ctx context.Context, run RunRef, call ToolExecContext, meta *Meta) (ToolDecision, error) {
	decision := ToolExecute
	for _, mw := range p.ascending() {
		if mw.BeforeToolExec == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		d, err := runHook(ctx, mw, ToolExecute, func(hctx context.Context) (ToolDecision, error) {
			return mw.BeforeToolExec(hctx, call, meta)
		})
		if err != nil {
			return ToolExecute, err
		}
		if d == ToolSkip {
			decision = ToolSkip
		}
	}
	return decision, nil
}

// AfterToolExec runs every enabled middleware's AfterToolExec hook in
// descending order.
func (p *Pipeline) AfterToolExec(ctx context.Context, run RunRef, call ToolExecContext, result *tool.Result, meta *Meta) error {
	for _, mw := range p.descending() {
		if mw.AfterToolExec == nil || !isEnabled(ctx, mw, run) {
			continue
		}
		if _, err := runHook(ctx, mw, struct{}{}, func(hctx context.Context) (struct{}, error) {
			return struct{}{}, mw.AfterToolExec(hctx, call, result, meta)
		}); err != nil {
			return err
		}
	}
	return nil
}
