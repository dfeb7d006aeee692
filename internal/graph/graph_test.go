package graph

import (
	"errors"
	"testing"

	"github.com/mwhitaker/conclave/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{
		ID:        id,
		Text:      "task " + id,
		Status:    models.TaskStatusPending,
		DependsOn: deps,
	}
}

func add(t *testing.T, g *DependencyGraph, tasks ...*models.Task) {
	t.Helper()
	for _, tk := range tasks {
		if err := g.Add(tk); err != nil {
			t.Fatalf("Add %s: %v", tk.ID, err)
		}
	}
}

func TestGetReadyRespectsDependencies(t *testing.T) {
	g := New()
	add(t, g, task("a"), task("b", "a"), task("c", "b"))

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "a" {
		t.Errorf("expected only a ready, got %v", ready)
	}
}

func TestMarkCompleteUnblocksDependents(t *testing.T) {
	g := New()
	add(t, g, task("a"), task("b", "a"))

	g.MarkComplete("a")

	ready := g.GetReady()
	found := false
	for _, id := range ready {
		if id == "b" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected b ready after a completed, got %v", ready)
	}
}

func TestAddAllowsForwardDependency(t *testing.T) {
	g := New()

	if err := g.Add(task("b", "a")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// b's dependency is unknown, so b is not ready.
	if ready := g.GetReady(); len(ready) != 0 {
		t.Errorf("expected no ready tasks, got %v", ready)
	}

	if err := g.Add(task("a")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	g.MarkComplete("a")

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "b" {
		t.Errorf("expected b ready, got %v", ready)
	}
}

func TestAddRejectsCycle(t *testing.T) {
	g := New()

	if err := g.Add(task("a", "b")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := g.Add(task("b", "a"))
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}

	// The rejected task must leave no edges behind.
	if deps := g.GetDependents("a"); len(deps) != 0 {
		t.Errorf("expected rejected task removed, got dependents %v", deps)
	}
}

func TestGetDependents(t *testing.T) {
	g := New()
	add(t, g, task("a"), task("b", "a"), task("c", "a"))

	deps := g.GetDependents("a")
	if len(deps) != 2 {
		t.Errorf("expected 2 dependents of a, got %v", deps)
	}
}

func TestCompletedTaskNotReady(t *testing.T) {
	g := New()
	done := task("a")
	done.Status = models.TaskStatusCompleted
	add(t, g, done)

	if ready := g.GetReady(); len(ready) != 0 {
		t.Errorf("expected completed task not ready, got %v", ready)
	}
}

func TestFailedTaskNotReady(t *testing.T) {
	g := New()
	failed := task("a")
	failed.Status = models.TaskStatusFailed
	add(t, g, failed)

	if ready := g.GetReady(); len(ready) != 0 {
		t.Errorf("expected failed task not ready, got %v", ready)
	}
}
