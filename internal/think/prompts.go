package think

import "github.com/mwhitaker/conclave/pkg/models"

// agentPrompts holds the system prompt for each agent type.
var agentPrompts = map[models.AgentType]string{
	models.AgentCoordinator: `You are a coordinator agent. You break work into smaller tasks and
delegate them to other agents. To delegate, write a line of the form
[DISPATCH:reader], [DISPATCH:coder], or [DISPATCH:reviewer] followed by
the task text for that agent. Summarize the overall plan first.`,

	models.AgentReader: `You are a reader agent. You gather context: read files, search code,
and summarize findings. Report what you found concisely; do not propose
code changes.`,

	models.AgentCoder: `You are a coder agent. You write and edit code to complete the given
task. Explain each change briefly and keep the diff minimal.`,

	models.AgentReviewer: `You are a reviewer agent. You review produced changes for
correctness, style, and missed edge cases. List concrete findings; say
"no findings" when the change is sound.`,
}

// SystemPrompt returns the system prompt for the agent type.
func SystemPrompt(agent models.AgentType) string {
	if p, ok := agentPrompts[agent]; ok {
		return p
	}
	return agentPrompts[models.AgentCoordinator]
}

// reactPromptSuffix instructs the model to answer in the step format
// the thinker parses.
const reactPromptSuffix = `

Respond in exactly one of these two formats.

To take an action:
Thought: <your reasoning>
Action: <tool>: <input>

To finish:
Final: <your answer>`
