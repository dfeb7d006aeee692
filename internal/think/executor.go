package think

import (
	"context"
	"time"

	"github.com/mwhitaker/conclave/pkg/models"
)

// Executor runs pool tasks as single completion calls, one per task,
// using the agent's system prompt.
type Executor struct {
	client    *Client
	maxTokens int64
}

// NewExecutor creates an Executor on the given client.
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client, maxTokens: 8192}
}

// Execute completes one task. API failures become failed results so
// the pool can aggregate partial successes.
func (e *Executor) Execute(ctx context.Context, task *models.Task) (*models.Result, error) {
	start := time.Now()

	prompt := task.Text
	if task.Context != "" {
		prompt = "Context:\n" + task.Context + "\n\nTask:\n" + task.Text
	}

	before := e.client.Usage().Total()
	output, err := e.client.complete(ctx, SystemPrompt(task.Agent), prompt, e.maxTokens)
	after := e.client.Usage().Total()

	usage := &models.Usage{
		InputTokens:  after.InputTokens - before.InputTokens,
		OutputTokens: after.OutputTokens - before.OutputTokens,
	}

	res := &models.Result{
		Agent:    task.Agent,
		Task:     task.Text,
		Duration: time.Since(start),
		Usage:    usage,
	}
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res, nil
	}

	res.Output = output
	res.Success = true
	return res, nil
}

// Dispatches extracts delegation requests from a coordinator result.
func Dispatches(res *models.Result) []Dispatch {
	if res == nil || !res.Success {
		return nil
	}
	return ParseDispatches(res.Output)
}
