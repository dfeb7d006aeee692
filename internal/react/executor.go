// Package react drives an agent through iterative reason/act cycles.
package react

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mwhitaker/conclave/internal/bus"
	"github.com/mwhitaker/conclave/internal/compress"
	"github.com/mwhitaker/conclave/internal/loopdetect"
	"github.com/mwhitaker/conclave/internal/shared"
	"github.com/mwhitaker/conclave/pkg/models"
)

// State is the executor's run state.
type State string

const (
	// StateIdle means no run has started yet.
	StateIdle State = "idle"
	// StateRunning means an iteration loop is in progress.
	StateRunning State = "running"
	// StateSuccess means the thinker signalled completion.
	StateSuccess State = "success"
	// StateMaxIterations means the iteration budget ran out.
	StateMaxIterations State = "max_iterations"
	// StateAborted means the run was stopped by a loop or by Abort.
	StateAborted State = "aborted"
	// StateNeedsInput means the run paused waiting for user input.
	// It is resumable via InjectUserInput followed by Resume.
	StateNeedsInput State = "needs_input"
)

// Terminal reports whether s ends a run. needs_input is terminal for
// the current Run call but can re-enter running.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateMaxIterations, StateAborted, StateNeedsInput:
		return true
	}
	return false
}

// Thought is one reasoning step produced by the Thinker.
type Thought struct {
	// Text is the reasoning behind the chosen action.
	Text string
	// Action is the tool invocation to perform next.
	Action models.Action
	// ShouldStop signals that the task is complete and Text is the
	// final answer.
	ShouldStop bool
}

// Thinker produces the next reasoning step. It is supplied by whatever
// connects to a language model and is opaque to the executor.
type Thinker interface {
	Think(ctx context.Context, observation string, history []models.ReActStep) (*Thought, error)
}

// ThinkerFunc adapts a function to the Thinker interface.
type ThinkerFunc func(ctx context.Context, observation string, history []models.ReActStep) (*Thought, error)

// Think calls f.
func (f ThinkerFunc) Think(ctx context.Context, observation string, history []models.ReActStep) (*Thought, error) {
	return f(ctx, observation, history)
}

// Actor executes one tool invocation and returns its output.
type Actor interface {
	Act(ctx context.Context, action models.Action) (string, error)
}

// ActorFunc adapts a function to the Actor interface.
type ActorFunc func(ctx context.Context, action models.Action) (string, error)

// Act calls f.
func (f ActorFunc) Act(ctx context.Context, action models.Action) (string, error) {
	return f(ctx, action)
}

// DefaultMaxIterations bounds a run when the thinker never stops.
const DefaultMaxIterations = 10

// Outcome summarizes a finished or paused run.
type Outcome struct {
	// State is the state the run ended in.
	State State
	// Output is the final answer on success, or the last observation
	// otherwise.
	Output string
	// Steps is the append-only iteration log.
	Steps []models.ReActStep
	// Iterations is how many iterations completed.
	Iterations int
	// EscalationPrompt describes what the user should resolve when the
	// state is needs_input.
	EscalationPrompt string
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxIterations overrides the iteration budget.
func WithMaxIterations(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithDetector replaces the loop detector.
func WithDetector(d *loopdetect.Detector) Option {
	return func(e *Executor) { e.detector = d }
}

// WithCompressor replaces the context compressor.
func WithCompressor(c *compress.Compressor) Option {
	return func(e *Executor) { e.compressor = c }
}

// WithStore attaches a shared store for cross-step scratch state.
func WithStore(s *shared.Store) Option {
	return func(e *Executor) { e.store = s }
}

// WithBus attaches a message bus for step events.
func WithBus(b *bus.MessageBus) Option {
	return func(e *Executor) { e.bus = b }
}

// Executor runs one agent through think/act iterations until the
// thinker stops, the budget runs out, or a loop forces a stop.
type Executor struct {
	agent      models.AgentType
	thinker    Thinker
	actor      Actor
	detector   *loopdetect.Detector
	compressor *compress.Compressor
	store      *shared.Store
	bus        *bus.MessageBus

	maxIterations int

	mu          sync.Mutex
	state       State
	steps       []models.ReActStep
	messages    []compress.Message
	observation string
	iteration   int
	abortFlag   bool
}

// New creates an Executor for the given agent.
func New(agent models.AgentType, thinker Thinker, actor Actor, opts ...Option) *Executor {
	e := &Executor{
		agent:         agent,
		thinker:       thinker,
		actor:         actor,
		detector:      loopdetect.New(),
		compressor:    compress.New(),
		maxIterations: DefaultMaxIterations,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts a fresh iteration loop over the task text. It returns
// when a terminal state is reached; needs_input outcomes can be
// continued with InjectUserInput and Resume.
func (e *Executor) Run(ctx context.Context, task string) (*Outcome, error) {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return nil, fmt.Errorf("executor is already running")
	}
	e.state = StateRunning
	e.steps = nil
	e.messages = []compress.Message{{Role: "user", Content: task, Important: true}}
	e.observation = task
	e.iteration = 0
	e.abortFlag = false
	e.mu.Unlock()

	// The loop detector is deliberately not reset here. Its escalation
	// counter persists across Run calls so that a retry of a run that
	// aborted on a loop escalates to the user instead of aborting again.
	// Reset clears it.
	return e.loop(ctx)
}

// Resume continues a run paused in needs_input after InjectUserInput.
func (e *Executor) Resume(ctx context.Context) (*Outcome, error) {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("cannot resume from state %s", state)
	}
	e.mu.Unlock()
	return e.loop(ctx)
}

// InjectUserInput feeds user input into a run paused in needs_input
// and re-enters the running state. The input becomes the next
// observation.
func (e *Executor) InjectUserInput(input string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateNeedsInput {
		return fmt.Errorf("cannot inject input in state %s", e.state)
	}
	e.observation = input
	e.messages = append(e.messages, compress.Message{Role: "user", Content: input, Important: true})
	e.state = StateRunning
	return nil
}

// Abort requests a cooperative stop. It takes effect between
// iterations.
func (e *Executor) Abort() {
	e.mu.Lock()
	e.abortFlag = true
	e.mu.Unlock()
}

// State returns the current run state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Steps returns a copy of the iteration log so far.
func (e *Executor) Steps() []models.ReActStep {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ReActStep(nil), e.steps...)
}

// Reset clears all run state, the step log included.
func (e *Executor) Reset() {
	e.mu.Lock()
	e.state = StateIdle
	e.steps = nil
	e.messages = nil
	e.observation = ""
	e.iteration = 0
	e.abortFlag = false
	e.mu.Unlock()
	e.detector.Reset()
}

func (e *Executor) loop(ctx context.Context) (*Outcome, error) {
	for {
		e.mu.Lock()
		if e.abortFlag {
			e.state = StateAborted
			out := e.outcomeLocked("aborted by caller")
			e.mu.Unlock()
			return out, nil
		}
		if e.iteration >= e.maxIterations {
			e.state = StateMaxIterations
			out := e.outcomeLocked("")
			e.mu.Unlock()
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			e.state = StateAborted
			out := e.outcomeLocked(err.Error())
			e.mu.Unlock()
			return out, nil
		}

		e.iteration++
		iteration := e.iteration
		if e.compressor.NeedsCompression(e.messages) {
			res := e.compressor.Compress(e.messages)
			e.messages = res.Messages
		}
		observation := e.observation
		history := append([]models.ReActStep(nil), e.steps...)
		e.mu.Unlock()

		thought, err := e.thinker.Think(ctx, observation, history)
		if err != nil {
			e.mu.Lock()
			e.state = StateAborted
			out := e.outcomeLocked(fmt.Sprintf("think failed: %v", err))
			e.mu.Unlock()
			return out, nil
		}

		if thought.ShouldStop {
			e.mu.Lock()
			e.state = StateSuccess
			e.observation = thought.Text
			out := e.outcomeLocked("")
			e.mu.Unlock()
			e.emitState(StateSuccess, iteration)
			return out, nil
		}

		obs, err := e.actor.Act(ctx, thought.Action)
		if err != nil {
			// Tool failures are observations, not run failures. The
			// thinker decides how to recover.
			obs = fmt.Sprintf("tool error: %v", err)
		}
		obs = e.compressor.TruncateToolOutput(obs)

		step := models.ReActStep{
			Iteration:   iteration,
			Thought:     thought.Text,
			Action:      thought.Action,
			Observation: obs,
			Timestamp:   time.Now(),
		}

		e.detector.Record(thought.Action.Tool, thought.Action.Input, obs)
		det := e.detector.Detect()

		next := obs
		var stopState State
		var escalation string
		if det.Detected {
			strategy := e.detector.BreakLoop(det)
			switch strategy.Kind {
			case loopdetect.StrategyInjectHint:
				next = obs + "\n\n" + strategy.Hint
			case loopdetect.StrategyForceDifferentTool:
				next = obs + "\n\n" + strategy.Hint
				if len(strategy.ExcludeTools) > 0 {
					next += "\nDo not use: " + strings.Join(strategy.ExcludeTools, ", ")
				}
			case loopdetect.StrategyEscalateToUser:
				stopState = StateNeedsInput
				escalation = fmt.Sprintf("repeated loop detected (%s): %s", det.Type, det.Details)
			case loopdetect.StrategyAbort:
				stopState = StateAborted
				escalation = fmt.Sprintf("loop detected (%s): %s", det.Type, det.Details)
			}
		}

		e.mu.Lock()
		e.steps = append(e.steps, step)
		e.messages = append(e.messages,
			compress.Message{Role: "assistant", Content: thought.Text},
			compress.Message{Role: "tool", Content: obs, Tool: thought.Action.Tool},
		)
		e.observation = next
		if stopState != "" {
			e.state = stopState
		}
		out := e.outcomeLocked(escalation)
		state := e.state
		e.mu.Unlock()

		e.recordScratch(step)
		e.emitStep(step)

		if state.Terminal() {
			e.emitState(state, iteration)
			return out, nil
		}
	}
}

// outcomeLocked builds an Outcome snapshot. Callers must hold e.mu.
func (e *Executor) outcomeLocked(escalation string) *Outcome {
	return &Outcome{
		State:            e.state,
		Output:           e.observation,
		Steps:            append([]models.ReActStep(nil), e.steps...),
		Iterations:       e.iteration,
		EscalationPrompt: escalation,
	}
}

// recordScratch mirrors the latest step into the shared store so other
// agents can inspect run progress.
func (e *Executor) recordScratch(step models.ReActStep) {
	if e.store == nil {
		return
	}
	prefix := "react:" + string(e.agent)
	e.store.Set(prefix+":iteration", step.Iteration, string(e.agent))
	e.store.Set(prefix+":last_tool", step.Action.Tool, string(e.agent))
	e.store.Set(prefix+":last_observation", step.Observation, string(e.agent))
}

func (e *Executor) emitStep(step models.ReActStep) {
	if e.bus == nil {
		return
	}
	e.bus.Event(models.BroadcastTarget,
		fmt.Sprintf("iteration %d: %s(%s)", step.Iteration, step.Action.Tool, step.Action.Input),
		models.MessageMeta{Extra: map[string]string{
			"event": "react_step",
			"agent": string(e.agent),
		}})
}

func (e *Executor) emitState(state State, iteration int) {
	if e.bus == nil {
		return
	}
	e.bus.Event(models.BroadcastTarget,
		fmt.Sprintf("run finished after %d iterations", iteration),
		models.MessageMeta{Extra: map[string]string{
			"event": "react_state",
			"agent": string(e.agent),
			"state": string(state),
		}})
}
