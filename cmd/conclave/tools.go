package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mwhitaker/conclave/pkg/models"
)

// LocalActor executes react tool actions against the local filesystem.
// It supports a small read-only toolset: read, list, and search.
type LocalActor struct {
	root string
}

// NewLocalActor creates an actor rooted at the given directory.
func NewLocalActor(root string) *LocalActor {
	return &LocalActor{root: root}
}

// Act runs a single tool action and returns its observation.
func (a *LocalActor) Act(ctx context.Context, action models.Action) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	input := strings.TrimSpace(action.Input)
	switch strings.ToLower(action.Tool) {
	case "read":
		return a.readFile(input)
	case "list":
		return a.listDir(input)
	case "search":
		return a.search(ctx, input)
	default:
		return "", fmt.Errorf("unknown tool %q (available: read, list, search)", action.Tool)
	}
}

func (a *LocalActor) resolve(rel string) (string, error) {
	path := filepath.Join(a.root, filepath.Clean("/"+rel))
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rootAbs, err := filepath.Abs(a.root)
	if err != nil {
		return "", err
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the working directory", rel)
	}
	return abs, nil
}

func (a *LocalActor) readFile(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("read needs a file path")
	}
	path, err := a.resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *LocalActor) listDir(rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	path, err := a.resolve(rel)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(names, "\n"), nil
}

// search walks the tree looking for the needle in file contents.
// Input is "needle" or "needle in <dir>".
func (a *LocalActor) search(ctx context.Context, input string) (string, error) {
	needle := input
	dir := "."
	if before, after, found := strings.Cut(input, " in "); found {
		needle = strings.TrimSpace(before)
		dir = strings.TrimSpace(after)
	}
	if needle == "" {
		return "", fmt.Errorf("search needs a term")
	}

	root, err := a.resolve(dir)
	if err != nil {
		return "", err
	}

	var hits []string
	const maxHits = 50
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > 1<<20 {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !strings.Contains(string(data), needle) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		hits = append(hits, rel)
		if len(hits) >= maxHits {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return fmt.Sprintf("no files containing %q", needle), nil
	}
	return strings.Join(hits, "\n"), nil
}
