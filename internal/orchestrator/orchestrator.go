// Package orchestrator selects an execution mode and coordinates agents.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mwhitaker/conclave/internal/bus"
	"github.com/mwhitaker/conclave/internal/compress"
	"github.com/mwhitaker/conclave/internal/loopdetect"
	"github.com/mwhitaker/conclave/internal/pool"
	"github.com/mwhitaker/conclave/internal/react"
	"github.com/mwhitaker/conclave/internal/router"
	"github.com/mwhitaker/conclave/internal/shared"
	"github.com/mwhitaker/conclave/internal/think"
	"github.com/mwhitaker/conclave/pkg/models"
)

// Result is the aggregated outcome of one Execute call.
type Result struct {
	// Mode is the execution mode the run used.
	Mode models.ExecutionMode `json:"mode"`
	// Success reports whether every task in the run succeeded.
	Success bool `json:"success"`
	// Results holds each task's result in completion order.
	Results []*models.Result `json:"results"`
	// Duration is the wall-clock time of the whole run.
	Duration time.Duration `json:"duration"`
	// Summary is a short human-readable account of the run.
	Summary string `json:"summary"`
}

// Orchestrator is the top-level entry point. It classifies a task,
// picks an execution mode, and drives the agent pool or a react
// executor to produce a result set.
type Orchestrator struct {
	executor pool.Executor
	router   *router.Router
	bus      *bus.MessageBus
	store    *shared.Store
	emitter  *EventEmitter
	logger   *DebugLogger

	poolCfg       pool.Config
	maxIterations int
	compressorCfg *compress.Config
	loopCfg       *loopdetect.Config
	thinkerFor    ThinkerFactory
	actor         react.Actor
}

// New creates an Orchestrator around the given task executor.
func New(executor pool.Executor, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{
		maxIterations: react.DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.router == nil {
		o.router = router.New()
	}
	if o.messageBus == nil {
		o.messageBus = bus.New()
	}
	if o.store == nil {
		o.store = shared.New()
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}

	poolCfg := pool.DefaultConfig()
	if o.maxConcurrent > 0 {
		poolCfg.MaxConcurrent = o.maxConcurrent
	}
	if o.taskTimeout > 0 {
		poolCfg.TaskTimeout = o.taskTimeout
	}

	return &Orchestrator{
		executor:      executor,
		router:        o.router,
		bus:           o.messageBus,
		store:         o.store,
		emitter:       o.emitter,
		logger:        o.logger,
		poolCfg:       poolCfg,
		maxIterations: o.maxIterations,
		compressorCfg: o.compressorCfg,
		loopCfg:       o.loopCfg,
		thinkerFor:    o.thinkerFor,
		actor:         o.actor,
	}
}

// Bus returns the message bus shared with pools and executors.
func (o *Orchestrator) Bus() *bus.MessageBus { return o.bus }

// Store returns the shared context store.
func (o *Orchestrator) Store() *shared.Store { return o.store }

// Execute runs the task text under the given mode. An empty mode asks
// the router to recommend one. The context text is passed along to the
// first task of the run. Unexpected failures are converted into a
// single failed result rather than propagating.
func (o *Orchestrator) Execute(ctx context.Context, taskText string, mode models.ExecutionMode, contextText string) (res *Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Log("execute panicked: %v", r)
			res = o.failedResult(mode, start, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if mode == "" {
		mode = o.router.RecommendMode(taskText)
	}
	if !mode.Valid() {
		return o.failedResult(mode, start, fmt.Sprintf("unknown execution mode %q", mode))
	}

	o.logger.Log("execute: mode=%s task=%q", mode, taskText)
	o.emit(Event{Type: EventModeSelected, Mode: mode, Message: taskText})

	var results []*models.Result
	switch mode {
	case models.ModeSingle:
		results = o.executeSingle(ctx, taskText, contextText)
	case models.ModeParallel:
		results = o.executeParallel(ctx, taskText, contextText)
	case models.ModeReact:
		results = o.executeReact(ctx, taskText, contextText)
	case models.ModeCoordinator:
		results = o.executeCoordinator(ctx, taskText, contextText)
	}

	out := &Result{
		Mode:     mode,
		Results:  results,
		Duration: time.Since(start),
	}
	out.Success = len(results) > 0
	for _, r := range results {
		if !r.Success {
			out.Success = false
		}
	}
	out.Summary = summarize(mode, results, out.Success)

	o.emit(Event{Type: EventRunDone, Mode: mode, Message: out.Summary, Duration: out.Duration})
	o.logger.Log("execute done: mode=%s success=%v results=%d duration=%s",
		mode, out.Success, len(results), out.Duration)
	return out
}

// executeSingle classifies the task to one agent and runs it alone.
func (o *Orchestrator) executeSingle(ctx context.Context, taskText, contextText string) []*models.Result {
	cls := o.router.Classify(taskText)
	o.logger.Log("single: agent=%s confidence=%.2f (%s)", cls.Agent, cls.Confidence, cls.Reason)

	p := o.newPool()
	task := p.CreateTask(cls.Agent, taskText, contextText, 0, nil)
	if _, err := p.Submit(task); err != nil {
		return []*models.Result{failed(cls.Agent, taskText, err.Error())}
	}
	o.emit(Event{Type: EventTaskQueued, Agent: cls.Agent, TaskID: task.ID, Message: taskText})

	results, _ := p.RunSequential(ctx)
	o.emitResults(results)

	if len(results) == 1 {
		results = append(results, o.runDispatches(ctx, results[0])...)
	}
	return results
}

// runDispatches fans a coordinator result's dispatch directives out to
// the named agents and runs them in parallel. Results from agents that
// are not the coordinator, or that failed, never carry directives.
func (o *Orchestrator) runDispatches(ctx context.Context, res *models.Result) []*models.Result {
	if res.Agent != models.AgentCoordinator {
		return nil
	}
	dispatches := think.Dispatches(res)
	if len(dispatches) == 0 {
		return nil
	}

	// The coordinator's prose, minus the markers, briefs each delegate.
	briefing := think.StripDispatches(res.Output)

	p := o.newPool()
	for _, d := range dispatches {
		task := p.CreateTask(d.Agent, d.Text, briefing, 0, nil)
		if _, err := p.Submit(task); err != nil {
			o.logger.Log("dispatch: submit %s failed: %v", d.Agent, err)
			continue
		}
		o.logger.Log("dispatch: %s <- %q", d.Agent, d.Text)
		o.emit(Event{Type: EventTaskQueued, Agent: d.Agent, TaskID: task.ID, Message: d.Text})
	}

	followUps, _ := p.RunParallel(ctx)
	o.emitResults(followUps)
	return followUps
}

// executeParallel splits the task on conjunction markers and runs each
// part on its own inferred agent. Falls back to single mode when the
// text has no split points.
func (o *Orchestrator) executeParallel(ctx context.Context, taskText, contextText string) []*models.Result {
	parts := o.router.SplitConjunctions(taskText)
	if len(parts) < 2 {
		o.logger.Log("parallel: no split points, falling back to single")
		return o.executeSingle(ctx, taskText, contextText)
	}

	p := o.newPool()
	for _, part := range parts {
		cls := o.router.Classify(part)
		task := p.CreateTask(cls.Agent, part, contextText, 0, nil)
		if _, err := p.Submit(task); err != nil {
			return []*models.Result{failed(cls.Agent, part, err.Error())}
		}
		o.emit(Event{Type: EventTaskQueued, Agent: cls.Agent, TaskID: task.ID, Message: part})
	}

	results, _ := p.RunParallel(ctx)
	o.emitResults(results)
	return results
}

// executeReact drives one agent through think/act iterations. The
// thinker is built for the classified agent so the run gets that
// agent's system prompt.
func (o *Orchestrator) executeReact(ctx context.Context, taskText, contextText string) []*models.Result {
	cls := o.router.Classify(taskText)
	if o.thinkerFor == nil || o.actor == nil {
		return []*models.Result{failed(cls.Agent, taskText, "react mode requires think and act collaborators")}
	}

	input := taskText
	if contextText != "" {
		input = contextText + "\n\n" + taskText
	}

	reactOpts := []react.Option{
		react.WithMaxIterations(o.maxIterations),
		react.WithStore(o.store),
		react.WithBus(o.bus),
	}
	if o.compressorCfg != nil {
		reactOpts = append(reactOpts, react.WithCompressor(compress.NewWithConfig(*o.compressorCfg)))
	}
	if o.loopCfg != nil {
		reactOpts = append(reactOpts, react.WithDetector(loopdetect.NewWithConfig(*o.loopCfg)))
	}

	exec := react.New(cls.Agent, o.thinkerFor(cls.Agent), o.actor, reactOpts...)

	start := time.Now()
	out, err := exec.Run(ctx, input)
	if err != nil {
		return []*models.Result{failed(cls.Agent, taskText, err.Error())}
	}

	res := &models.Result{
		Agent:    cls.Agent,
		Task:     taskText,
		Output:   out.Output,
		Success:  out.State == react.StateSuccess,
		Duration: time.Since(start),
	}
	if !res.Success {
		res.Error = fmt.Sprintf("run ended in state %s after %d iterations", out.State, out.Iterations)
	}
	o.emitResults([]*models.Result{res})
	return []*models.Result{res}
}

// executeCoordinator runs the fixed reader -> coder -> reviewer
// pipeline. Each stage feeds its output to the next as context and
// only proceeds when the previous stage succeeded. All results
// gathered so far are returned even when a stage fails.
func (o *Orchestrator) executeCoordinator(ctx context.Context, taskText, contextText string) []*models.Result {
	p := o.newPool()
	var results []*models.Result

	stages := []struct {
		agent models.AgentType
		text  string
	}{
		{models.AgentReader, "Gather the context needed for: " + taskText},
		{models.AgentCoder, "Implement: " + taskText},
		{models.AgentReviewer, "Review the changes made for: " + taskText},
	}

	stageContext := contextText
	var prevID string
	for i, stage := range stages {
		o.emit(Event{Type: EventStageStarted, Agent: stage.agent, Message: stage.text})

		var deps []string
		if prevID != "" {
			deps = []string{prevID}
		}
		task := p.CreateTask(stage.agent, stage.text, stageContext, 0, deps)
		if _, err := p.Submit(task); err != nil {
			results = append(results, failed(stage.agent, stage.text, err.Error()))
			return results
		}

		stageResults, _ := p.RunSequential(ctx)
		if len(stageResults) == 0 {
			results = append(results, failed(stage.agent, stage.text, "stage produced no result"))
			return results
		}
		res := stageResults[len(stageResults)-1]
		results = append(results, res)
		o.emitResults([]*models.Result{res})

		if !res.Success {
			for _, skipped := range stages[i+1:] {
				o.emit(Event{Type: EventStageSkipped, Agent: skipped.agent, Message: skipped.text})
			}
			return results
		}

		// Stage output may contain dispatch markers; the next stage
		// gets only the prose.
		stageContext = think.StripDispatches(res.Output)
		prevID = task.ID
	}

	return results
}

func (o *Orchestrator) newPool() *pool.Pool {
	return pool.NewWithConfig(o.executor, o.bus, o.poolCfg)
}

func (o *Orchestrator) emit(event Event) {
	if o.emitter == nil {
		return
	}
	event.Timestamp = time.Now()
	o.emitter.Emit(event)
}

func (o *Orchestrator) emitResults(results []*models.Result) {
	for _, res := range results {
		eventType := EventTaskCompleted
		if !res.Success {
			eventType = EventTaskFailed
		}
		o.emit(Event{Type: eventType, Agent: res.Agent, Message: res.Task})
	}
}

func (o *Orchestrator) failedResult(mode models.ExecutionMode, start time.Time, msg string) *Result {
	return &Result{
		Mode:     mode,
		Success:  false,
		Results:  []*models.Result{failed(models.AgentCoordinator, "", msg)},
		Duration: time.Since(start),
		Summary:  msg,
	}
}

func failed(agent models.AgentType, task, errMsg string) *models.Result {
	return &models.Result{
		Agent:   agent,
		Task:    task,
		Success: false,
		Error:   errMsg,
	}
}

func summarize(mode models.ExecutionMode, results []*models.Result, success bool) string {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s run: %d/%d tasks succeeded", mode, succeeded, len(results))
	if !success {
		for _, r := range results {
			if !r.Success && r.Error != "" {
				fmt.Fprintf(&b, "; %s failed: %s", r.Agent, r.Error)
				break
			}
		}
	}
	return b.String()
}
