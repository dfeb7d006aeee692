package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mwhitaker/conclave/internal/shared"
	"github.com/mwhitaker/conclave/pkg/models"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store := shared.New()
	store.Set("plan", "read then write", "coordinator")
	store.Set("attempts", 2, "coder")

	session := &Session{
		ID:      "sess-1",
		Task:    "fix the login bug",
		Mode:    models.ModeSingle,
		Success: true,
		Summary: "single run: 1/1 tasks succeeded",
	}
	messages := []models.Message{
		{ID: "m1", From: "system", To: "all", Kind: models.KindEvent, Content: "task_completed", Timestamp: time.Now()},
	}

	snap := BuildSnapshot(session, store, messages)
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := snap.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	if loaded.SessionID != "sess-1" || loaded.Task != session.Task {
		t.Errorf("unexpected snapshot %+v", loaded)
	}
	if loaded.Context["plan"] != "read then write" {
		t.Errorf("unexpected context %v", loaded.Context)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Kind != "event" {
		t.Errorf("unexpected messages %v", loaded.Messages)
	}
}

func TestSnapshotRestore(t *testing.T) {
	snap := &Snapshot{
		SessionID: "sess-1",
		Context: map[string]interface{}{
			"plan": "carry on",
		},
	}

	store := shared.New()
	snap.Restore(store, "system")

	plan, ok := store.Get("plan")
	if !ok || plan != "carry on" {
		t.Errorf("unexpected plan %v (ok=%v)", plan, ok)
	}
	if entry, ok := store.GetEntry("plan"); !ok || entry.SetBy != "system" {
		t.Errorf("expected restore attributed to system, got %+v", entry)
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing snapshot")
	}
}
