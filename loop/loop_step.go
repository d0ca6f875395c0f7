package loop

import (
	"context"
	"encoding/json"

	"github.com/fenwick-ai/agentrt/agenterr"
	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
	"github.com/fenwick-ai/agentrt/trace"
)

// stepOne runs the model-call and tool-dispatch body of one iteration: steps
// 3-10 of the iteration procedure. It returns nil when the iteration
// produced no stop condition and the loop should continue.
func (l *Loop) stepOne(ctx context.Context) *Outcome {
	callCtx := middleware.LLMCallContext{
		Run:         l.cfg.Run,
		Iteration:   l.iteration,
		Messages:    l.messages,
		Tools:       l.cfg.Tools,
		Temperature: l.cfg.Temperature,
	}

	patch, err := l.cfg.Pipeline.BeforeLLMCall(ctx, l.cfg.Run, callCtx, l.meta)
	if err != nil {
		return l.errOutcome(err)
	}

	messages := l.messages
	if len(patch.Messages) > 0 {
		messages = patch.Messages
	}
	tools := l.cfg.Tools
	if len(patch.Tools) > 0 {
		tools = patch.Tools
	}
	temperature := l.cfg.Temperature
	if patch.Temperature != nil {
		temperature = *patch.Temperature
	}

	l.emit(events.TypeLLMStart, map[string]any{"iteration": l.iteration})
	llmCtx, endLLMSpan := l.cfg.Tracer.StartSpan(ctx, "llm.chat")
	resp, chatErr := l.cfg.LLM.Chat(llmCtx, messages, tools, temperature, 0)
	endLLMSpan()
	l.emit(events.TypeLLMEnd, map[string]any{"iteration": l.iteration})
	if chatErr != nil {
		l.cfg.Logger.Warn(ctx, "llm call failed", "iteration", l.iteration, "error", chatErr.Error())
	}

	if afterErr := l.cfg.Pipeline.AfterLLMCall(ctx, l.cfg.Run, callCtx, resp, l.meta); afterErr != nil {
		return l.errOutcome(afterErr)
	}
	if chatErr != nil {
		return l.errOutcome(chatErr)
	}
	if resp == nil {
		return l.errOutcome(agenterr.New(agenterr.KindUnknown, "llm client returned no response"))
	}

	l.totalTokens += resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	l.messages = append(l.messages, assistantMessage(resp))

	if len(resp.ToolCalls) == 0 && resp.Content != "" {
		return &Outcome{
			StopCode:   StopNoToolCalls,
			Answer:     resp.Content,
			Messages:   l.messages,
			TokensUsed: l.totalTokens,
			Iterations: l.iteration,
		}
	}

	if call, ok := findReportCall(resp.ToolCalls); ok {
		return &Outcome{
			StopCode:   StopReportComplete,
			Answer:     extractAnswer(call.Input),
			Messages:   l.messages,
			TokensUsed: l.totalTokens,
			Iterations: l.iteration,
		}
	}

	signatures := make([]string, 0, len(resp.ToolCalls))
	madeProgress := false
	for _, call := range resp.ToolCalls {
		sig, result, toolErr := l.dispatchTool(ctx, call)
		if toolErr != nil {
			return l.errOutcome(toolErr)
		}
		signatures = append(signatures, sig)
		l.messages = append(l.messages, toolResultMessage(call, result))
		if result != nil && result.Success && len(result.Output) > 0 {
			madeProgress = true
		}
	}

	// Period-3 repetition is one of the core stop conditions and fires immediately, independent of the progress signal
	// below.
	if l.detector.observeIteration(signatures) {
		return &Outcome{StopCode: StopLoopDetected, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
	}

	if madeProgress {
		l.iterationsSinceProgress = 0
	} else {
		l.iterationsSinceProgress++
	}
	l.meta.Set("progress", "iterationsSinceProgress", l.iterationsSinceProgress)
	l.meta.Set("progress", "stuck", l.iterationsSinceProgress >= stuckThreshold)

	if err := l.cfg.Pipeline.AfterIteration(ctx, l.cfg.Run, l.meta); err != nil {
		return l.errOutcome(err)
	}
	return nil
}

// dispatchTool runs beforeToolExec, enforces permissions, records the
// invocation through the Recorder when executed, and runs afterToolExec. It
// returns the tool-call signature fed to the loop detector alongside the
// result.
func (l *Loop) dispatchTool(ctx context.Context, call model.ToolCall) (signature string, result *tool.Result, err error) {
	argsHash, _ := trace.ArgsHash(json.RawMessage(nonEmpty(call.Input)))
	signature = call.Name + ":" + argsHash

	execCtx := middleware.ToolExecContext{
		Run:       l.cfg.Run,
		ToolName:  call.Name,
		Args:      call.Input,
		Iteration: l.iteration,
	}

	if !l.cfg.Permissions.AllowsTool(call.Name) {
		denied := &tool.Result{Success: false, Error: &tool.ErrorInfo{Code: "policy_denied", Message: "tool not permitted"}}
		_ = l.cfg.Pipeline.AfterToolExec(ctx, l.cfg.Run, execCtx, denied, l.meta)
		return signature, denied, nil
	}

	decision, err := l.cfg.Pipeline.BeforeToolExec(ctx, l.cfg.Run, execCtx, l.meta)
	if err != nil {
		return signature, nil, err
	}
	if decision == middleware.ToolSkip {
		// A middleware (e.g. ContextFilter's dedup cache) may have stashed a
		// real result to substitute for re-execution; fall back to a
		// synthetic "skipped" placeholder step 7.
		if cached, ok := l.meta.Get("toolresult", signature); ok {
			if result, ok := cached.(*tool.Result); ok {
				return signature, result, nil
			}
		}
		skipped := &tool.Result{Success: false, Error: &tool.ErrorInfo{Code: "skipped", Message: "skipped by middleware"}}
		return signature, skipped, nil
	}

	l.emit(events.TypeToolStart, map[string]any{"tool": call.Name, "iteration": l.iteration})
	toolCtx, endToolSpan := l.cfg.Tracer.StartSpan(ctx, "tool."+call.Name)
	result, recErr := l.cfg.Recorder.Record(toolCtx, call.Name, call.Input, trace.PurposeExecution, func(rctx context.Context) (*tool.Result, error) {
		return l.cfg.ToolExecutor.Execute(rctx, call.Name, call.Input, l.cfg.Abort)
	})
	endToolSpan()
	if recErr != nil {
		l.emit(events.TypeToolError, map[string]any{"tool": call.Name, "error": recErr.Error()})
		l.cfg.Logger.Warn(ctx, "tool execution failed", "tool", call.Name, "error", recErr.Error())
	} else {
		l.emit(events.TypeToolEnd, map[string]any{"tool": call.Name, "iteration": l.iteration})
	}

	if afterErr := l.cfg.Pipeline.AfterToolExec(ctx, l.cfg.Run, execCtx, result, l.meta); afterErr != nil {
		return signature, result, afterErr
	}
	return signature, result, nil
}

func (l *Loop) errOutcome(err error) *Outcome {
	return &Outcome{StopCode: StopIterationError, Err: err, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
}

func findReportCall(calls []model.ToolCall) (model.ToolCall, bool) {
	for _, c := range calls {
		if c.Name == tool.Report {
			return c, true
		}
	}
	return model.ToolCall{}, false
}

// extractAnswer pulls the "answer" field out of a report tool call's input,
// falling back to the raw input when it is not a JSON object shaped that way.
func extractAnswer(input []byte) string {
	var payload struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(input, &payload); err == nil && payload.Answer != "" {
		return payload.Answer
	}
	return string(input)
}

func assistantMessage(resp *model.Response) model.Message {
	msg := model.Message{Role: model.RoleAssistant}
	if resp.Content != "" {
		msg.Parts = append(msg.Parts, model.TextPart{Text: resp.Content})
	}
	for _, call := range resp.ToolCalls {
		msg.Parts = append(msg.Parts, model.ToolUsePart{ID: call.ID, Name: call.Name, Input: call.Input})
	}
	return msg
}

func toolResultMessage(call model.ToolCall, result *tool.Result) model.Message {
	part := model.ToolResultPart{ToolUseID: call.ID}
	switch {
	case result == nil:
		part.IsError = true
		part.Content = "tool returned no result"
	case !result.Success:
		part.IsError = true
		if result.Error != nil {
			part.Content = result.Error.Message
		} else {
			part.Content = "tool failed"
		}
	default:
		part.Content = string(result.Output)
	}
	return model.Message{Role: model.RoleUser, Parts: []model.Part{part}}
}

func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
