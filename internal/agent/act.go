package agent

import (
	"fmt"
	"strings"
	"sync"
)

const (
	confidentThreshold = 0.8
	confidentPrefix    = "I understand you want to"
	tentativePrefix    = "I think you're asking me to"
	continuityPhrase   = "Based on our conversation so far, "
)

// Capability executes a single plan step.
type Capability interface {
	Execute(step string) ExecutionResult
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(step string) ExecutionResult

func (f CapabilityFunc) Execute(step string) ExecutionResult {
	return f(step)
}

// placeholder marks a step as done without doing any work.
var placeholder = CapabilityFunc(func(step string) ExecutionResult {
	return ExecutionResult{
		StepName: step,
		Status:   StatusCompleted,
		Output:   fmt.Sprintf("Executed %s", step),
	}
})

// Registry maps plan step names to capabilities. Steps without a registered
// capability run the placeholder. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register binds a capability to a step name, replacing any previous binding.
func (r *Registry) Register(step string, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[step] = c
}

// Execute runs the capability bound to step.
func (r *Registry) Execute(step string) ExecutionResult {
	r.mu.RLock()
	c, ok := r.caps[step]
	r.mu.RUnlock()
	if !ok {
		c = placeholder
	}
	res := c.Execute(step)
	if res.StepName == "" {
		res.StepName = step
	}
	if res.Status == "" {
		res.Status = StatusCompleted
	}
	return res
}

// Act executes every plan step and composes the response. interactions is the
// size of the session's interaction store, including the current turn.
func Act(rs Reasoning, interactions int, exec Capability) (string, []ExecutionResult) {
	results := make([]ExecutionResult, 0, len(rs.Plan.Steps))
	for _, step := range rs.Plan.Steps {
		results = append(results, exec.Execute(step))
	}
	return ComposeResponse(rs, interactions, len(results)), results
}

// ComposeResponse builds the acknowledgment sentence for a turn.
func ComposeResponse(rs Reasoning, interactions, steps int) string {
	prefix := tentativePrefix
	if rs.Confidence > confidentThreshold {
		prefix = confidentPrefix
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s. ", prefix, strings.ToLower(rs.Goal))
	if interactions > 1 {
		sb.WriteString(continuityPhrase)
	}
	fmt.Fprintf(&sb, "I've analyzed your request and completed %d reasoning steps.", steps)
	return sb.String()
}
