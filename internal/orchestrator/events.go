// Package orchestrator selects an execution mode and coordinates agents.
package orchestrator

import (
	"time"

	"github.com/mwhitaker/conclave/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventModeSelected indicates an execution mode was chosen for a run.
	EventModeSelected EventType = "mode_selected"
	// EventTaskQueued indicates a task was submitted to the pool.
	EventTaskQueued EventType = "task_queued"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventStageStarted indicates a coordinator pipeline stage has started.
	EventStageStarted EventType = "stage_started"
	// EventStageSkipped indicates a pipeline stage was skipped because an
	// earlier stage failed.
	EventStageSkipped EventType = "stage_skipped"
	// EventRunDone indicates the whole run is complete.
	EventRunDone EventType = "run_done"
)

// Event represents an event emitted by the orchestrator. These events
// are used by callers to track run progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// Mode is the execution mode of the run, if applicable.
	Mode models.ExecutionMode
	// Agent is the agent type of the related task, if applicable.
	Agent models.AgentType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time (for run_done events).
	Duration time.Duration
}
