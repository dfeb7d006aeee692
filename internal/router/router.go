package router

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/mwhitaker/conclave/pkg/models"
)

// DefaultConfidence is the confidence assigned when no keyword matches
// and the task falls back to the coordinator.
const DefaultConfidence = 0.3

// SkillConfidence is the confidence assigned to exact skill-phrase matches.
const SkillConfidence = 1.0

// Classification is the result of classifying a task into an agent type.
type Classification struct {
	// Agent is the selected agent type.
	Agent models.AgentType
	// Confidence is how confident the selection is (0.0-1.0).
	Confidence float64
	// Reason explains why this agent type was selected.
	Reason string
}

// ComplexityLevel grades how involved a task is.
type ComplexityLevel string

const (
	// ComplexitySimple indicates a single-agent quick task.
	ComplexitySimple ComplexityLevel = "simple"
	// ComplexityMedium indicates a standard implementation task.
	ComplexityMedium ComplexityLevel = "medium"
	// ComplexityComplex indicates a multi-agent design-heavy task.
	ComplexityComplex ComplexityLevel = "complex"
)

// Complexity is the result of analyzing task complexity.
type Complexity struct {
	// Level is the graded complexity.
	Level ComplexityLevel
	// SuggestedAgents lists the agent types suggested for the task.
	SuggestedAgents []models.AgentType
}

// complexity score thresholds: >=4 complex, >=2 medium.
const (
	complexThreshold = 4
	mediumThreshold  = 2
)

// Router classifies tasks using keyword matching. Keywords can be swapped
// at runtime (see Watcher), so access is mutex-protected.
type Router struct {
	mu       sync.RWMutex
	keywords Keywords
	patterns map[string]*regexp.Regexp
}

// New creates a Router with the default keywords.
func New() *Router {
	r := &Router{}
	r.SetKeywords(DefaultKeywords())
	return r
}

// NewWithKeywords creates a Router with the given keywords.
func NewWithKeywords(kw Keywords) *Router {
	r := &Router{}
	r.SetKeywords(kw)
	return r
}

// SetKeywords replaces the router's keyword set and recompiles patterns.
func (r *Router) SetKeywords(kw Keywords) {
	patterns := make(map[string]*regexp.Regexp)
	compile := func(words []string) {
		for _, w := range words {
			if _, ok := patterns[w]; ok {
				continue
			}
			patterns[w] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
		}
	}
	for _, a := range models.AllAgentTypes {
		compile(kw.forType(a))
	}
	compile(kw.ModeCoordinator)
	compile(kw.ModeReact)
	compile(kw.Complex)
	compile(kw.Medium)

	r.mu.Lock()
	r.keywords = kw
	r.patterns = patterns
	r.mu.Unlock()
}

// Classify selects an agent type for the task text.
// Exact skill phrases win with full confidence. Otherwise the agent type
// with the most word-boundary keyword hits wins with confidence
// min(hits/3, 1.0); ties keep the first-declared type. With no hits at
// all the task falls back to the coordinator at low confidence.
func (r *Router) Classify(taskText string) Classification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(taskText)

	for phrase, agent := range r.keywords.Skills {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return Classification{
				Agent:      agent,
				Confidence: SkillConfidence,
				Reason:     fmt.Sprintf("matched skill phrase %q", phrase),
			}
		}
	}

	best := Classification{
		Agent:      models.AgentCoordinator,
		Confidence: DefaultConfidence,
		Reason:     "no keyword match, defaulting to coordinator",
	}
	bestHits := 0

	for _, agent := range models.AllAgentTypes {
		hits := r.countHitsLocked(r.keywords.forType(agent), taskText)
		if hits > bestHits {
			bestHits = hits
			confidence := float64(hits) / 3.0
			if confidence > 1.0 {
				confidence = 1.0
			}
			best = Classification{
				Agent:      agent,
				Confidence: confidence,
				Reason:     fmt.Sprintf("%d keyword hits for %s", hits, agent),
			}
		}
	}

	return best
}

// RecommendMode picks an execution mode for the task text.
// Refactor-class keywords recommend the coordinator pipeline, debugging
// keywords recommend react, conjunctions recommend parallel, and
// everything else runs single.
func (r *Router) RecommendMode(taskText string) models.ExecutionMode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.countHitsLocked(r.keywords.ModeCoordinator, taskText) > 0 {
		return models.ModeCoordinator
	}
	if r.countHitsLocked(r.keywords.ModeReact, taskText) > 0 {
		return models.ModeReact
	}
	if len(r.splitConjunctionsLocked(taskText)) > 1 {
		return models.ModeParallel
	}
	return models.ModeSingle
}

// AnalyzeComplexity grades the task using weighted keyword scoring:
// complex indicators weigh 2, medium indicators weigh 1.
func (r *Router) AnalyzeComplexity(taskText string) Complexity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	score := 2*r.countHitsLocked(r.keywords.Complex, taskText) +
		r.countHitsLocked(r.keywords.Medium, taskText)

	switch {
	case score >= complexThreshold:
		return Complexity{
			Level:           ComplexityComplex,
			SuggestedAgents: []models.AgentType{models.AgentReader, models.AgentCoder, models.AgentReviewer},
		}
	case score >= mediumThreshold:
		return Complexity{
			Level:           ComplexityMedium,
			SuggestedAgents: []models.AgentType{models.AgentCoder, models.AgentReviewer},
		}
	default:
		return Complexity{
			Level:           ComplexitySimple,
			SuggestedAgents: []models.AgentType{models.AgentCoder},
		}
	}
}

// SplitConjunctions splits the task text on conjunction markers into
// independent subtask texts. Returns the whole text as a single element
// when no split point exists.
func (r *Router) SplitConjunctions(taskText string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.splitConjunctionsLocked(taskText)
}

func (r *Router) splitConjunctionsLocked(taskText string) []string {
	parts := []string{taskText}
	for _, conj := range r.keywords.Conjunctions {
		var next []string
		for _, p := range parts {
			for _, piece := range strings.Split(p, conj) {
				piece = strings.TrimSpace(piece)
				if piece != "" {
					next = append(next, piece)
				}
			}
		}
		parts = next
	}
	return parts
}

// countHitsLocked counts how many keywords from the list appear in the
// text on a word boundary. Caller must hold r.mu.
func (r *Router) countHitsLocked(words []string, text string) int {
	hits := 0
	for _, w := range words {
		if p, ok := r.patterns[w]; ok && p.MatchString(text) {
			hits++
		}
	}
	return hits
}
