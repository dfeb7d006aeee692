package models

// AgentType identifies the role an agent plays in a session.
type AgentType string

const (
	// AgentCoordinator decomposes work and delegates to other agents.
	AgentCoordinator AgentType = "coordinator"
	// AgentReader gathers context: reads files, searches, summarizes.
	AgentReader AgentType = "reader"
	// AgentCoder writes and edits code.
	AgentCoder AgentType = "coder"
	// AgentReviewer reviews produced changes for correctness and style.
	AgentReviewer AgentType = "reviewer"
)

// SystemSender is the reserved sender name for messages not originated
// by any agent.
const SystemSender = "system"

// BroadcastTarget is the reserved recipient name addressing every agent.
const BroadcastTarget = "all"

// AllAgentTypes lists every agent type in declaration order.
// Classification ties are broken by this order.
var AllAgentTypes = []AgentType{
	AgentCoordinator,
	AgentReader,
	AgentCoder,
	AgentReviewer,
}

// Valid returns true if the agent type is a known value.
func (a AgentType) Valid() bool {
	switch a {
	case AgentCoordinator, AgentReader, AgentCoder, AgentReviewer:
		return true
	default:
		return false
	}
}

// String returns the agent type name.
func (a AgentType) String() string {
	return string(a)
}

// ExecutionMode selects how the orchestrator runs a task.
type ExecutionMode string

const (
	// ModeSingle runs one agent on the whole task.
	ModeSingle ExecutionMode = "single"
	// ModeParallel splits the task into independent subtasks run concurrently.
	ModeParallel ExecutionMode = "parallel"
	// ModeReact drives one agent through iterative think/act cycles.
	ModeReact ExecutionMode = "react"
	// ModeCoordinator runs the fixed reader -> coder -> reviewer pipeline.
	ModeCoordinator ExecutionMode = "coordinator"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSingle, ModeParallel, ModeReact, ModeCoordinator:
		return true
	default:
		return false
	}
}

// String returns the mode name.
func (m ExecutionMode) String() string {
	return string(m)
}
