package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mwhitaker/conclave/internal/bus"
	"github.com/mwhitaker/conclave/internal/compress"
	"github.com/mwhitaker/conclave/internal/config"
	"github.com/mwhitaker/conclave/internal/loopdetect"
	"github.com/mwhitaker/conclave/internal/orchestrator"
	"github.com/mwhitaker/conclave/internal/react"
	"github.com/mwhitaker/conclave/internal/router"
	"github.com/mwhitaker/conclave/internal/shared"
	"github.com/mwhitaker/conclave/internal/state"
	"github.com/mwhitaker/conclave/internal/think"
	"github.com/mwhitaker/conclave/pkg/models"
)

var (
	runMode          string
	runContext       string
	runMaxConcurrent int
	runTaskTimeout   time.Duration
	runMaxIterations int
	runKeywords      string
	runWatchKeywords bool
	runDBPath        string
	runSnapshotPath  string
	runModel         string
	runBedrock       bool
	runVerbose       bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task with agent orchestration",
	Long: `Run a task through the orchestrator.

The task is classified to an agent by keyword routing. Without --mode,
the router recommends an execution mode from the task text:
  single       one agent runs the whole task
  parallel     conjunctions split the task across agents
  react        one agent iterates through think/act cycles
  coordinator  reader -> coder -> reviewer pipeline

Examples:
  conclave run "fix the login bug in auth.ts"
  conclave run --mode parallel "fix the parser and update the docs"
  conclave run --mode coordinator --db .conclave/state.db "add rate limiting"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "Execution mode: single, parallel, react, or coordinator (default: auto)")
	runCmd.Flags().StringVar(&runContext, "context", "", "Extra context passed to the first task")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "Concurrent task limit (default from config)")
	runCmd.Flags().DurationVar(&runTaskTimeout, "task-timeout", 0, "Per-task deadline (default from config)")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "React iteration budget (default from config)")
	runCmd.Flags().StringVar(&runKeywords, "keywords", "", "YAML file overriding routing keywords")
	runCmd.Flags().BoolVar(&runWatchKeywords, "watch-keywords", false, "Reload the keywords file when it changes")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite file to persist the session to")
	runCmd.Flags().StringVar(&runSnapshotPath, "snapshot", "", "YAML file to export the session snapshot to")
	runCmd.Flags().StringVar(&runModel, "model", "", "Claude model override")
	runCmd.Flags().BoolVar(&runBedrock, "bedrock", false, "Route API calls through AWS Bedrock")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print bus events as they happen")
}

func runTask(cmd *cobra.Command, args []string) error {
	taskText := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, cleanup, err := buildRouter(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	apiKey, err := config.GetAPIKey(cfg)
	if !cfg.Anthropic.UseBedrock {
		if err != nil {
			return err
		}
		if err := config.ValidateAPIKey(apiKey); err != nil {
			return err
		}
	}
	if runVerbose {
		fmt.Printf("api key %s (%s)\n", config.MaskAPIKey(apiKey), config.GetAPIKeySource(cfg))
	}

	client, err := think.NewClient(think.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
	})
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	messageBus := bus.NewWithCapacity(cfg.Bus.HistoryCapacity)
	store := shared.New()

	mode := models.ExecutionMode(runMode)
	if runMode != "" && !mode.Valid() {
		return fmt.Errorf("unknown mode %q", runMode)
	}

	logger := orchestrator.NewDebugLoggerForDir(".")
	defer logger.Close()

	var emitter *orchestrator.EventEmitter
	var eventsDone chan struct{}
	if runVerbose {
		emitter = orchestrator.NewEventEmitter(64)
		eventsDone = make(chan struct{})
		go func() {
			defer close(eventsDone)
			for ev := range emitter.Events() {
				printProgress(ev)
			}
		}()
	}

	opts := []orchestrator.Option{
		orchestrator.WithRouter(rt),
		orchestrator.WithBus(messageBus),
		orchestrator.WithStore(store),
		orchestrator.WithLogger(logger),
		orchestrator.WithMaxConcurrent(cfg.Orchestrator.MaxConcurrent),
		orchestrator.WithTaskTimeout(cfg.Orchestrator.TaskTimeout),
		orchestrator.WithMaxIterations(cfg.Orchestrator.MaxIterations),
		orchestrator.WithCompressorConfig(compress.Config{
			HistoryBudget:    cfg.Compressor.HistoryBudget,
			SummaryThreshold: cfg.Compressor.SummaryThreshold,
			MaxMessages:      cfg.Compressor.MaxMessages,
			MaxToolOutputLen: cfg.Compressor.MaxToolOutputLen,
			Strategy:         compress.Strategy(cfg.Compressor.Strategy),
		}),
		orchestrator.WithLoopConfig(loopdetect.Config{
			WindowSize:          cfg.Loop.WindowSize,
			RepeatThreshold:     cfg.Loop.RepeatThreshold,
			SimilarityThreshold: cfg.Loop.SimilarityThreshold,
		}),
		orchestrator.WithCollaborators(func(agent models.AgentType) react.Thinker {
			return think.NewThinker(client, agent)
		}, NewLocalActor(".")),
	}
	if emitter != nil {
		opts = append(opts, orchestrator.WithEmitter(emitter))
	}

	orch := orchestrator.New(think.NewExecutor(client), opts...)

	started := time.Now()
	result := orch.Execute(ctx, taskText, mode, runContext)
	if emitter != nil {
		emitter.Close()
		<-eventsDone
	}

	printResult(result)
	printUsage(client, cfg.Anthropic.Model)

	if err := persistSession(cfg.State.DBPath, taskText, started, result, store, messageBus); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.YellowString("warning:"), err)
	}

	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// applyFlags overlays command-line flags onto the loaded config.
func applyFlags(cfg *config.Config) {
	if runMaxConcurrent > 0 {
		cfg.Orchestrator.MaxConcurrent = runMaxConcurrent
	}
	if runTaskTimeout > 0 {
		cfg.Orchestrator.TaskTimeout = runTaskTimeout
	}
	if runMaxIterations > 0 {
		cfg.Orchestrator.MaxIterations = runMaxIterations
	}
	if runKeywords != "" {
		cfg.Router.KeywordsFile = runKeywords
	}
	if runWatchKeywords {
		cfg.Router.WatchKeywords = true
	}
	if runDBPath != "" {
		cfg.State.DBPath = runDBPath
	}
	if runModel != "" {
		cfg.Anthropic.Model = runModel
	}
	if runBedrock {
		cfg.Anthropic.UseBedrock = true
	}
}

// buildRouter creates the router, with keyword overrides and the
// optional file watcher.
func buildRouter(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	cleanup := func() {}

	if cfg.Router.KeywordsFile == "" {
		return router.New(), cleanup, nil
	}

	keywords, err := router.LoadKeywords(cfg.Router.KeywordsFile)
	if err != nil {
		return nil, cleanup, fmt.Errorf("load keywords: %w", err)
	}
	rt := router.NewWithKeywords(keywords)

	if cfg.Router.WatchKeywords {
		watcher, err := router.NewWatcher(rt, cfg.Router.KeywordsFile)
		if err != nil {
			return nil, cleanup, fmt.Errorf("watch keywords: %w", err)
		}
		go watcher.Run(ctx)
		cleanup = func() { watcher.Close() }
	}

	return rt, cleanup, nil
}

func printProgress(ev orchestrator.Event) {
	line := string(ev.Type)
	if ev.Agent != "" {
		line += " " + string(ev.Agent)
	}
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	fmt.Printf("%s %s\n", color.CyanString("[run]"), line)
}

func printResult(result *orchestrator.Result) {
	fmt.Println()
	for _, r := range result.Results {
		header := fmt.Sprintf("%s (%s)", r.Agent, r.Duration.Round(time.Millisecond))
		if r.Success {
			fmt.Printf("%s %s\n", color.GreenString("✓"), header)
		} else {
			fmt.Printf("%s %s: %s\n", color.RedString("✗"), header, r.Error)
		}
		if r.Output != "" {
			fmt.Println(r.Output)
		}
		fmt.Println()
	}

	status := color.GreenString("succeeded")
	if !result.Success {
		status = color.RedString("failed")
	}
	fmt.Printf("%s in %s (%s mode): %s\n",
		status, result.Duration.Round(time.Millisecond), result.Mode, result.Summary)
}

func printUsage(client *think.Client, model string) {
	usage := client.Usage().Total()
	if usage.Total() == 0 {
		return
	}
	fmt.Printf("tokens: %d in / %d out", usage.InputTokens, usage.OutputTokens)
	if cost := usage.Cost(model); cost > 0 {
		fmt.Printf(" (~$%.4f)", cost)
	}
	fmt.Println()
}

// persistSession writes the finished run to SQLite and the optional
// YAML snapshot.
func persistSession(dbPath, taskText string, started time.Time, result *orchestrator.Result, store *shared.Store, messageBus *bus.MessageBus) error {
	if dbPath == "" && runSnapshotPath == "" {
		return nil
	}

	finished := time.Now()
	status := state.SessionCompleted
	if !result.Success {
		status = state.SessionFailed
	}
	session := &state.Session{
		ID:         uuid.New().String()[:8],
		Task:       taskText,
		Mode:       result.Mode,
		Success:    result.Success,
		Summary:    result.Summary,
		StartedAt:  started,
		FinishedAt: &finished,
		Status:     status,
	}

	if dbPath != "" {
		db, err := state.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open session db: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate session db: %w", err)
		}
		if err := db.CreateSession(session); err != nil {
			return err
		}
		if err := db.SaveResults(session.ID, result.Results); err != nil {
			return err
		}
		if err := db.SaveMessages(session.ID, messageBus.History()); err != nil {
			return err
		}
		if err := db.SaveContext(session.ID, store); err != nil {
			return err
		}
		fmt.Printf("session %s saved to %s\n", session.ID, dbPath)
	}

	if runSnapshotPath != "" {
		snap := state.BuildSnapshot(session, store, messageBus.History())
		if err := snap.WriteFile(runSnapshotPath); err != nil {
			return err
		}
		fmt.Printf("snapshot written to %s\n", runSnapshotPath)
	}

	return nil
}
