package agent

import "fmt"

// PhaseLLMCall is the LoopError phase for provider failures.
const PhaseLLMCall = "llm_call"

// LoopError wraps a failure inside a loop iteration with the phase
// and iteration it occurred on.
type LoopError struct {
	Phase     string
	Iteration int
	Cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

func (e *LoopError) Unwrap() error { return e.Cause }
