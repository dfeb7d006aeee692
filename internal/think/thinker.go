package think

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwhitaker/conclave/internal/react"
	"github.com/mwhitaker/conclave/pkg/models"
)

// Thinker produces react reasoning steps through the Anthropic API.
type Thinker struct {
	client *Client
	agent  models.AgentType
}

// NewThinker creates a Thinker for the given agent.
func NewThinker(client *Client, agent models.AgentType) *Thinker {
	return &Thinker{client: client, agent: agent}
}

// Think asks the model for the next step given the latest observation
// and the run history.
func (t *Thinker) Think(ctx context.Context, observation string, history []models.ReActStep) (*react.Thought, error) {
	system := SystemPrompt(t.agent) + reactPromptSuffix

	var prompt strings.Builder
	for _, step := range history {
		fmt.Fprintf(&prompt, "Thought: %s\n", step.Thought)
		fmt.Fprintf(&prompt, "Action: %s: %s\n", step.Action.Tool, step.Action.Input)
		fmt.Fprintf(&prompt, "Observation: %s\n\n", step.Observation)
	}
	fmt.Fprintf(&prompt, "Observation: %s\n", observation)

	text, err := t.client.complete(ctx, system, prompt.String(), 4096)
	if err != nil {
		return nil, err
	}

	thought, err := parseThought(text)
	if err != nil {
		return nil, fmt.Errorf("parse step: %w", err)
	}
	return thought, nil
}

// parseThought extracts a Thought from model output. The model either
// takes an action (Thought/Action lines) or finishes (Final line).
func parseThought(text string) (*react.Thought, error) {
	lines := strings.Split(text, "\n")

	var thought react.Thought
	var sawAction bool
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Final:"):
			final := strings.TrimSpace(strings.TrimPrefix(trimmed, "Final:"))
			return &react.Thought{Text: final, ShouldStop: true}, nil

		case strings.HasPrefix(trimmed, "Thought:"):
			thought.Text = strings.TrimSpace(strings.TrimPrefix(trimmed, "Thought:"))

		case strings.HasPrefix(trimmed, "Action:"):
			action := strings.TrimSpace(strings.TrimPrefix(trimmed, "Action:"))
			tool, input, found := strings.Cut(action, ":")
			if !found {
				tool = action
			}
			thought.Action = models.Action{
				Tool:  strings.TrimSpace(tool),
				Input: strings.TrimSpace(input),
			}
			sawAction = true
		}
	}

	if !sawAction {
		// No recognizable step; treat the whole output as a final answer.
		return &react.Thought{Text: strings.TrimSpace(text), ShouldStop: true}, nil
	}
	return &thought, nil
}
