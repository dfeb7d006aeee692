package state

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mwhitaker/conclave/internal/shared"
	"github.com/mwhitaker/conclave/pkg/models"
)

// Snapshot is a portable, human-readable export of one session. It is
// meant for inspection and for seeding a fresh run's shared context.
type Snapshot struct {
	SessionID  string                 `yaml:"session_id"`
	Task       string                 `yaml:"task"`
	Mode       string                 `yaml:"mode"`
	Success    bool                   `yaml:"success"`
	Summary    string                 `yaml:"summary,omitempty"`
	ExportedAt time.Time              `yaml:"exported_at"`
	Context    map[string]interface{} `yaml:"context,omitempty"`
	Messages   []SnapshotMessage      `yaml:"messages,omitempty"`
}

// SnapshotMessage is one message in a YAML export.
type SnapshotMessage struct {
	ID        string    `yaml:"id"`
	From      string    `yaml:"from"`
	To        string    `yaml:"to"`
	Kind      string    `yaml:"kind"`
	Content   string    `yaml:"content"`
	Timestamp time.Time `yaml:"timestamp"`
}

// BuildSnapshot assembles a Snapshot from a session's live components.
func BuildSnapshot(session *Session, store *shared.Store, messages []models.Message) *Snapshot {
	snap := &Snapshot{
		SessionID:  session.ID,
		Task:       session.Task,
		Mode:       string(session.Mode),
		Success:    session.Success,
		Summary:    session.Summary,
		ExportedAt: time.Now(),
	}
	if store != nil {
		snap.Context = store.Snapshot()
	}
	for _, m := range messages {
		snap.Messages = append(snap.Messages, SnapshotMessage{
			ID:        m.ID,
			From:      m.From,
			To:        m.To,
			Kind:      string(m.Kind),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return snap
}

// WriteFile writes the snapshot as YAML to the given path.
func (s *Snapshot) WriteFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a YAML snapshot from the given path.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// Restore replays the snapshot's context into the store. Each key
// becomes a fresh write attributed to setBy.
func (s *Snapshot) Restore(store *shared.Store, setBy string) {
	store.LoadSnapshot(s.Context, setBy)
}
