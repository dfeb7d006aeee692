package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwhitaker/conclave/internal/state"
)

var (
	statusDBPath string
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sessions",
	Long:  `Show recent orchestration sessions from the project or global database.`,
	RunE:  showStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDBPath, "db", "", "SQLite file to read sessions from")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of sessions to show")
}

func showStatus(cmd *cobra.Command, args []string) error {
	dbPath := statusDBPath
	if dbPath == "" {
		dbPath = state.ProjectDBPath(".")
		if _, err := os.Stat(dbPath); err != nil {
			dbPath = state.GlobalDBPath()
		}
	}

	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("No sessions recorded. Run 'conclave run <task> --db <path>' to start one.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open session db: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate session db: %w", err)
	}

	sessions, err := db.ListSessions(statusLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded. Run 'conclave run <task> --db <path>' to start one.")
		return nil
	}

	fmt.Printf("Recent sessions (%s):\n\n", dbPath)
	for _, s := range sessions {
		fmt.Printf("%s %s  %s  %s\n", statusMark(s.Status), s.ID, s.Mode,
			s.StartedAt.Local().Format("2006-01-02 15:04"))
		fmt.Printf("  task: %s\n", truncateLine(s.Task, 80))
		if s.Summary != "" {
			fmt.Printf("  %s\n", s.Summary)
		}
		if s.FinishedAt != nil {
			fmt.Printf("  took %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
		}
		fmt.Println()
	}
	return nil
}

func statusMark(status state.SessionStatus) string {
	switch status {
	case state.SessionCompleted:
		return color.GreenString("✓")
	case state.SessionFailed:
		return color.RedString("✗")
	case state.SessionActive:
		return color.YellowString("●")
	default:
		return color.New(color.Faint).Sprint("○")
	}
}

func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
