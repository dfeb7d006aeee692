package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is being worked on.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed, timed out, or was cancelled.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Task represents one unit of work assigned to an agent.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Agent is the agent type this task is assigned to.
	Agent AgentType `json:"agent"`
	// Text is the task description handed to the agent.
	Text string `json:"text"`
	// Context is optional supporting context (e.g. output of an upstream task).
	Context string `json:"context,omitempty"`
	// Priority orders dispatch; higher priorities run first.
	Priority int `json:"priority"`
	// DependsOn lists task IDs that must complete before this task starts.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result holds the execution result once the task finishes.
	Result *Result `json:"result,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// Result is the immutable outcome of one task execution.
type Result struct {
	// Agent is the agent type that produced this result.
	Agent AgentType `json:"agent"`
	// Task is the task text that was executed.
	Task string `json:"task"`
	// Output is the agent's output text.
	Output string `json:"output"`
	// Success reports whether the execution succeeded.
	Success bool `json:"success"`
	// Duration is how long the execution took.
	Duration time.Duration `json:"duration"`
	// SessionID links the result to a session, if any.
	SessionID string `json:"session_id,omitempty"`
	// Usage holds token accounting for the execution, if reported.
	Usage *Usage `json:"usage,omitempty"`
	// Error carries the failure description when Success is false.
	Error string `json:"error,omitempty"`
}
