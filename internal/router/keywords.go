// Package router classifies free-text tasks into agent types and execution modes.
package router

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/mwhitaker/conclave/pkg/models"
)

// Keywords is the single source of truth for classification keywords.
// Per-type lists are matched with word-boundary regexes; skill phrases are
// matched as exact substrings and short-circuit with full confidence.
type Keywords struct {
	// Skills maps exact invocation phrases to an agent type.
	Skills map[string]models.AgentType `yaml:"skills"`

	// Coordinator keywords indicate planning and multi-step delegation.
	Coordinator []string `yaml:"coordinator"`
	// Reader keywords indicate exploration and comprehension tasks.
	Reader []string `yaml:"reader"`
	// Coder keywords indicate implementation and bug-fixing tasks.
	Coder []string `yaml:"coder"`
	// Reviewer keywords indicate verification and quality tasks.
	Reviewer []string `yaml:"reviewer"`

	// ModeCoordinator keywords recommend the reader/coder/reviewer pipeline.
	ModeCoordinator []string `yaml:"mode_coordinator"`
	// ModeReact keywords recommend iterative think/act execution.
	ModeReact []string `yaml:"mode_react"`
	// Conjunctions split parallelizable tasks into subtasks.
	Conjunctions []string `yaml:"conjunctions"`

	// Complex keywords weigh 2 in complexity scoring.
	Complex []string `yaml:"complex"`
	// Medium keywords weigh 1 in complexity scoring.
	Medium []string `yaml:"medium"`
}

// DefaultKeywords returns the authoritative keyword mappings.
func DefaultKeywords() Keywords {
	return Keywords{
		Skills: map[string]models.AgentType{
			"code review":       models.AgentReviewer,
			"review my changes": models.AgentReviewer,
			"summarize codebase": models.AgentReader,
			"explain codebase":  models.AgentReader,
			"plan the work":     models.AgentCoordinator,
		},

		Coordinator: []string{
			"plan", "coordinate", "organize", "manage", "delegate",
			"pipeline", "workflow", "orchestrate",
		},
		Reader: []string{
			"read", "analyze", "explain", "summarize", "understand",
			"find", "search", "list", "show", "where", "what", "which",
			"docs", "documentation",
		},
		Coder: []string{
			"fix", "bug", "implement", "write", "create", "add", "build",
			"code", "function", "class", "method", "update", "change",
			"rename", "typo",
		},
		Reviewer: []string{
			"review", "check", "verify", "validate", "test", "audit",
			"lint", "quality", "correct",
		},

		ModeCoordinator: []string{
			"refactor", "redesign", "restructure", "rewrite", "overhaul",
			"migrate", "migration", "reorganize",
		},
		ModeReact: []string{
			"debug", "diagnose", "investigate", "troubleshoot", "reproduce",
			"why", "failing", "crash",
		},
		Conjunctions: []string{
			" and ", " then ", "; ", " also ", " plus ",
		},

		Complex: []string{
			"refactor", "migrate", "redesign", "architecture", "rewrite",
			"security", "database", "entire", "all", "system",
		},
		Medium: []string{
			"implement", "add", "update", "fix", "create", "test",
			"endpoint", "feature",
		},
	}
}

// LoadKeywords reads keyword overrides from a YAML file. Lists present in
// the file replace the defaults; absent lists keep the defaults.
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()

	data, err := os.ReadFile(path)
	if err != nil {
		return kw, fmt.Errorf("read keywords file: %w", err)
	}

	var override Keywords
	if err := yaml.Unmarshal(data, &override); err != nil {
		return kw, fmt.Errorf("parse keywords file: %w", err)
	}

	if len(override.Skills) > 0 {
		kw.Skills = override.Skills
	}
	if len(override.Coordinator) > 0 {
		kw.Coordinator = override.Coordinator
	}
	if len(override.Reader) > 0 {
		kw.Reader = override.Reader
	}
	if len(override.Coder) > 0 {
		kw.Coder = override.Coder
	}
	if len(override.Reviewer) > 0 {
		kw.Reviewer = override.Reviewer
	}
	if len(override.ModeCoordinator) > 0 {
		kw.ModeCoordinator = override.ModeCoordinator
	}
	if len(override.ModeReact) > 0 {
		kw.ModeReact = override.ModeReact
	}
	if len(override.Conjunctions) > 0 {
		kw.Conjunctions = override.Conjunctions
	}
	if len(override.Complex) > 0 {
		kw.Complex = override.Complex
	}
	if len(override.Medium) > 0 {
		kw.Medium = override.Medium
	}

	return kw, nil
}

// forType returns the keyword list declared for an agent type.
func (k Keywords) forType(a models.AgentType) []string {
	switch a {
	case models.AgentCoordinator:
		return k.Coordinator
	case models.AgentReader:
		return k.Reader
	case models.AgentCoder:
		return k.Coder
	case models.AgentReviewer:
		return k.Reviewer
	default:
		return nil
	}
}
