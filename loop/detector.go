package loop

// stuckThreshold is the default number of consecutive no-progress iterations
// before the "stuck" progress signal fires.
const stuckThreshold = 4

// detector implements a period-3 loop-detection heuristic: a sliding window
// of the last six tool-call signatures (name plus canonicalized-args hash).
// The progress counter (iterations since any
// successful, non-empty tool output) is tracked separately on Loop itself,
// since it resets on tool-result content rather than on window shape.
type detector struct {
	window []string
}

func newDetector() *detector {
	return &detector{}
}

// observeIteration folds every tool-call signature made during one iteration
// into the sliding window and reports whether a period-3 repeat now holds:
// the last three signatures exactly match the three before them. Unlike the
// stuck-progress signal, this fires immediately on the iteration the repeat
// completes — it is one of the core stop conditions, not an opt-in
// escalation. Iterations with no tool calls at all are not fed to the
// window; callers handle that case as the no_tool_calls stop condition
// instead.
func (d *detector) observeIteration(signatures []string) (loopDetected bool) {
	if len(signatures) == 0 {
		return false
	}
	d.window = append(d.window, signatures...)
	if max := 6; len(d.window) > max {
		d.window = d.window[len(d.window)-max:]
	}
	return d.repeats()
}

// repeats reports whether the current window holds two identical halves of
// three signatures each.
func (d *detector) repeats() bool {
	if len(d.window) < 6 {
		return false
	}
	for i := 0; i < 3; i++ {
		if d.window[i] != d.window[i+3] {
			return false
		}
	}
	return true
}
