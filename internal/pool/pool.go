// Package pool provides a priority and dependency aware task scheduler
// bounded by a concurrency limit.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitaker/conclave/internal/bus"
	"github.com/mwhitaker/conclave/internal/graph"
	"github.com/mwhitaker/conclave/pkg/models"
)

// ErrWaitTimeout indicates WaitFor expired before the task finished.
var ErrWaitTimeout = errors.New("timed out waiting for task result")

// ErrDuplicateTask indicates a task with the same ID was already submitted.
var ErrDuplicateTask = errors.New("task already submitted")

// Lifecycle event names emitted on the message bus.
const (
	EventTaskDispatched = "task_dispatched"
	EventTaskStarted    = "task_started"
	EventTaskCompleted  = "task_completed"
	EventTaskFailed     = "task_failed"
)

// Executor runs one task and produces a result. Implementations connect
// the pool to whatever actually does the work; the pool places no
// constraint on how the result is produced.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) (*models.Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *models.Task) (*models.Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *models.Task) (*models.Result, error) {
	return f(ctx, task)
}

// Config contains configuration options for the Pool.
type Config struct {
	// MaxConcurrent bounds in-flight executions in RunParallel.
	MaxConcurrent int
	// TaskTimeout is the per-task execution deadline. A timed-out task
	// yields a failed result rather than an error.
	TaskTimeout time.Duration
}

// DefaultConfig returns the standard pool tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 3,
		TaskTimeout:   5 * time.Minute,
	}
}

// Status summarizes the pool's task population.
type Status struct {
	Running   int
	Pending   int
	Completed int
	Failed    int
}

// Pool schedules agent tasks respecting priority and declared
// dependencies. A task never starts before every task it depends on has
// completed successfully. Lifecycle transitions are emitted on the
// message bus for external observability.
type Pool struct {
	cfg      Config
	executor Executor
	bus      *bus.MessageBus

	mu    sync.Mutex
	tasks map[string]*models.Task
	// pending holds submitted task IDs in submission order; dispatch
	// order is priority descending, stable for ties.
	pending []string
	graph   *graph.DependencyGraph
	// results holds finished task results, success or failure.
	results map[string]*models.Result
	waiters map[string][]chan *models.Result
}

// New creates a Pool with the default configuration.
func New(executor Executor, messageBus *bus.MessageBus) *Pool {
	return NewWithConfig(executor, messageBus, DefaultConfig())
}

// NewWithConfig creates a Pool with the given configuration.
func NewWithConfig(executor Executor, messageBus *bus.MessageBus, cfg Config) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	return &Pool{
		cfg:      cfg,
		executor: executor,
		bus:      messageBus,
		tasks:    make(map[string]*models.Task),
		graph:    graph.New(),
		results:  make(map[string]*models.Result),
		waiters:  make(map[string][]chan *models.Result),
	}
}

// CreateTask builds a task with a fresh ID. The task is not submitted.
func (p *Pool) CreateTask(agent models.AgentType, text, taskContext string, priority int, dependsOn []string) *models.Task {
	return &models.Task{
		ID:        uuid.New().String()[:8],
		Agent:     agent,
		Text:      text,
		Context:   taskContext,
		Priority:  priority,
		DependsOn: append([]string(nil), dependsOn...),
		Status:    models.TaskStatusPending,
		CreatedAt: time.Now(),
	}
}

// Submit queues a task for execution and returns its ID.
func (p *Pool) Submit(task *models.Task) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.tasks[task.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	if err := p.graph.Add(task); err != nil {
		return "", err
	}

	task.Status = models.TaskStatusPending
	p.tasks[task.ID] = task
	p.pending = append(p.pending, task.ID)
	return task.ID, nil
}

// RunSequential executes ready tasks one at a time until no task can
// make progress. Results are returned in completion order.
func (p *Pool) RunSequential(ctx context.Context) ([]*models.Result, error) {
	var results []*models.Result
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		task := p.dequeue()
		if task == nil {
			return results, nil
		}
		res := p.execute(ctx, task)
		p.finish(task, res)
		results = append(results, res)
	}
}

// RunParallel executes ready tasks with up to MaxConcurrent in flight,
// refilling slots as executions finish. It returns when no task is
// ready and none is in flight.
func (p *Pool) RunParallel(ctx context.Context) ([]*models.Result, error) {
	type completion struct {
		task *models.Task
		res  *models.Result
	}
	// Buffered so cut-off executions can still deliver and exit after
	// the caller's context is cancelled.
	doneCh := make(chan completion, p.cfg.MaxConcurrent)

	inflight := 0
	var results []*models.Result

	for {
		// Fill available slots with ready tasks.
		for inflight < p.cfg.MaxConcurrent {
			task := p.dequeue()
			if task == nil {
				break
			}
			inflight++
			go func(t *models.Task) {
				doneCh <- completion{task: t, res: p.execute(ctx, t)}
			}(task)
		}

		if inflight == 0 {
			// Nothing ready and nothing running: done. Tasks whose
			// dependencies failed stay pending by design.
			return results, nil
		}

		select {
		case <-ctx.Done():
			// Drain nothing; in-flight executions are cut off by the
			// per-task context and will not be collected.
			return results, ctx.Err()
		case c := <-doneCh:
			inflight--
			p.finish(c.task, c.res)
			results = append(results, c.res)
		}
	}
}

// WaitFor blocks until the task finishes or the timeout elapses.
// An unknown task ID returns (nil, nil).
func (p *Pool) WaitFor(ctx context.Context, id string, timeout time.Duration) (*models.Result, error) {
	p.mu.Lock()
	if res, ok := p.results[id]; ok {
		p.mu.Unlock()
		return res, nil
	}
	if _, known := p.tasks[id]; !known {
		p.mu.Unlock()
		return nil, nil
	}
	ch := make(chan *models.Result, 1)
	p.waiters[id] = append(p.waiters[id], ch)
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: task %s after %v", ErrWaitTimeout, id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel removes a not-yet-started task, along with every pending task
// that depends on it directly or through other tasks. Returns false if
// the task is unknown or already running or finished; cancellation of a
// running task is advisory only, the timeout race is the sole forcible
// stop.
func (p *Pool) Cancel(id string) bool {
	if !p.cancelOne(id, "cancelled before start") {
		return false
	}

	// A cancelled task can never complete, so its pending dependents
	// are unrunnable.
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, depID := range p.graph.GetDependents(cur) {
			if p.cancelOne(depID, fmt.Sprintf("dependency %s cancelled", cur)) {
				queue = append(queue, depID)
			}
		}
	}
	return true
}

// cancelOne fails a single pending task with the given reason. Returns
// false when the task is unknown or no longer pending.
func (p *Pool) cancelOne(id, reason string) bool {
	p.mu.Lock()

	task, ok := p.tasks[id]
	if !ok || task.Status != models.TaskStatusPending {
		p.mu.Unlock()
		return false
	}

	for i, pid := range p.pending {
		if pid == id {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			break
		}
	}

	task.Status = models.TaskStatusFailed
	res := &models.Result{
		Agent:   task.Agent,
		Task:    task.Text,
		Success: false,
		Error:   reason,
	}
	task.Result = res
	p.results[id] = res
	waiters := p.waiters[id]
	delete(p.waiters, id)
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
	p.emit(EventTaskFailed, task, reason)
	return true
}

// CancelAll cancels every pending task and returns how many were cancelled.
func (p *Pool) CancelAll() int {
	p.mu.Lock()
	ids := append([]string(nil), p.pending...)
	p.mu.Unlock()

	n := 0
	for _, id := range ids {
		if p.cancelOne(id, "cancelled before start") {
			n++
		}
	}
	return n
}

// GetStatus counts tasks by state.
func (p *Pool) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Status
	for _, task := range p.tasks {
		switch task.Status {
		case models.TaskStatusRunning:
			s.Running++
		case models.TaskStatusPending:
			s.Pending++
		case models.TaskStatusCompleted:
			s.Completed++
		case models.TaskStatusFailed:
			s.Failed++
		}
	}
	return s
}

// GetTask returns the submitted task for an ID, or nil.
func (p *Pool) GetTask(id string) *models.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks[id]
}

// Reset discards all tasks, results, and pending work.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tasks = make(map[string]*models.Task)
	p.pending = nil
	p.graph = graph.New()
	p.results = make(map[string]*models.Result)
	p.waiters = make(map[string][]chan *models.Result)
}

// dequeue selects the highest-priority ready pending task, marks it
// running, and emits dispatch/start events. Tasks with unmet dependencies
// are skipped over, not removed. Returns nil when nothing is ready.
func (p *Pool) dequeue() *models.Task {
	p.mu.Lock()

	readyIDs := p.graph.GetReady()
	readySet := make(map[string]bool, len(readyIDs))
	for _, id := range readyIDs {
		readySet[id] = true
	}

	// Stable sort by priority descending preserves submission order
	// among equal priorities.
	order := append([]string(nil), p.pending...)
	sort.SliceStable(order, func(i, j int) bool {
		return p.tasks[order[i]].Priority > p.tasks[order[j]].Priority
	})

	var selected *models.Task
	for _, id := range order {
		if !readySet[id] {
			continue
		}
		selected = p.tasks[id]
		for i, pid := range p.pending {
			if pid == id {
				p.pending = append(p.pending[:i], p.pending[i+1:]...)
				break
			}
		}
		break
	}

	if selected == nil {
		p.mu.Unlock()
		return nil
	}

	selected.Status = models.TaskStatusRunning
	p.mu.Unlock()

	p.emit(EventTaskDispatched, selected, "")
	p.emit(EventTaskStarted, selected, "")
	return selected
}

// execute runs the task through the injected executor, racing it against
// the per-task timeout. All failure modes (executor error, panic,
// timeout) convert to a failed result rather than propagating.
func (p *Pool) execute(ctx context.Context, task *models.Task) *models.Result {
	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()

	type outcome struct {
		res *models.Result
		err error
	}
	resCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- outcome{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		res, err := p.executor.Execute(taskCtx, task)
		resCh <- outcome{res: res, err: err}
	}()

	select {
	case o := <-resCh:
		if o.err != nil {
			return &models.Result{
				Agent:    task.Agent,
				Task:     task.Text,
				Success:  false,
				Duration: time.Since(start),
				Error:    o.err.Error(),
			}
		}
		if o.res == nil {
			return &models.Result{
				Agent:    task.Agent,
				Task:     task.Text,
				Success:  false,
				Duration: time.Since(start),
				Error:    "executor returned no result",
			}
		}
		if o.res.Duration == 0 {
			o.res.Duration = time.Since(start)
		}
		return o.res
	case <-taskCtx.Done():
		return &models.Result{
			Agent:    task.Agent,
			Task:     task.Text,
			Success:  false,
			Duration: time.Since(start),
			Error:    fmt.Sprintf("task timed out after %v", p.cfg.TaskTimeout),
		}
	}
}

// finish records a result, updates the dependency graph, wakes waiters,
// and emits the completion event. Only successful tasks unblock their
// dependents.
func (p *Pool) finish(task *models.Task, res *models.Result) {
	p.mu.Lock()
	if res.Success {
		task.Status = models.TaskStatusCompleted
		p.graph.MarkComplete(task.ID)
	} else {
		task.Status = models.TaskStatusFailed
	}
	task.Result = res
	p.results[task.ID] = res
	waiters := p.waiters[task.ID]
	delete(p.waiters, task.ID)
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}

	if res.Success {
		p.emit(EventTaskCompleted, task, "")
	} else {
		p.emit(EventTaskFailed, task, res.Error)
	}
}

// emit publishes a lifecycle event on the message bus, if one is wired.
func (p *Pool) emit(event string, task *models.Task, detail string) {
	if p.bus == nil {
		return
	}
	content := event
	if detail != "" {
		content = fmt.Sprintf("%s: %s", event, detail)
	}
	p.bus.Event(models.BroadcastTarget, content, models.MessageMeta{
		TaskID: task.ID,
		Extra: map[string]string{
			"event": event,
			"agent": string(task.Agent),
		},
	})
}
