// Package orchestrator selects an execution mode and coordinates agents.
package orchestrator

import (
	"time"

	"github.com/mwhitaker/conclave/internal/bus"
	"github.com/mwhitaker/conclave/internal/compress"
	"github.com/mwhitaker/conclave/internal/loopdetect"
	"github.com/mwhitaker/conclave/internal/react"
	"github.com/mwhitaker/conclave/internal/router"
	"github.com/mwhitaker/conclave/internal/shared"
	"github.com/mwhitaker/conclave/pkg/models"
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// ThinkerFactory builds a thinker for the agent a react task was
// classified to, so each run gets the matching system prompt.
type ThinkerFactory func(agent models.AgentType) react.Thinker

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	router        *router.Router
	messageBus    *bus.MessageBus
	store         *shared.Store
	emitter       *EventEmitter
	logger        *DebugLogger
	maxConcurrent int
	taskTimeout   time.Duration
	maxIterations int

	// Tuning for the react executor's helpers. Nil means defaults.
	compressorCfg *compress.Config
	loopCfg       *loopdetect.Config

	// Collaborators for react mode.
	thinkerFor ThinkerFactory
	actor      react.Actor
}

// WithRouter sets a custom router (mainly for keyword overrides).
func WithRouter(r *router.Router) Option {
	return func(o *orchestratorOptions) { o.router = r }
}

// WithBus sets the message bus shared with pools and executors.
func WithBus(b *bus.MessageBus) Option {
	return func(o *orchestratorOptions) { o.messageBus = b }
}

// WithStore sets the shared context store.
func WithStore(s *shared.Store) Option {
	return func(o *orchestratorOptions) { o.store = s }
}

// WithEmitter sets the event emitter for run progress.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithMaxConcurrent sets the pool's in-flight task limit.
func WithMaxConcurrent(n int) Option {
	return func(o *orchestratorOptions) { o.maxConcurrent = n }
}

// WithTaskTimeout sets the per-task execution deadline.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.taskTimeout = d }
}

// WithMaxIterations sets the react-mode iteration budget.
func WithMaxIterations(n int) Option {
	return func(o *orchestratorOptions) { o.maxIterations = n }
}

// WithCompressorConfig tunes the context compressor used by react runs.
func WithCompressorConfig(cfg compress.Config) Option {
	return func(o *orchestratorOptions) { o.compressorCfg = &cfg }
}

// WithLoopConfig tunes the loop detector used by react runs.
func WithLoopConfig(cfg loopdetect.Config) Option {
	return func(o *orchestratorOptions) { o.loopCfg = &cfg }
}

// WithCollaborators sets the think/act collaborators used by react mode.
func WithCollaborators(thinkerFor ThinkerFactory, actor react.Actor) Option {
	return func(o *orchestratorOptions) {
		o.thinkerFor = thinkerFor
		o.actor = actor
	}
}
