package models

import "time"

// Action is one tool invocation requested by a thinking step.
type Action struct {
	// Tool is the name of the tool to invoke.
	Tool string `json:"tool"`
	// Input is the tool input text.
	Input string `json:"input"`
}

// ReActStep records one completed reason/act iteration.
type ReActStep struct {
	// Iteration is the 1-based iteration number.
	Iteration int `json:"iteration"`
	// Thought is the reasoning produced before acting.
	Thought string `json:"thought"`
	// Action is the tool invocation chosen by the step.
	Action Action `json:"action"`
	// Observation is the tool output fed into the next iteration.
	Observation string `json:"observation"`
	// Timestamp is when the step completed.
	Timestamp time.Time `json:"timestamp"`
}
