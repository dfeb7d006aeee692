package shared

import (
	"fmt"
	"reflect"
	"testing"
)

func TestSetAndGet(t *testing.T) {
	s := New()
	s.Set("plan", "read files first", "coordinator")

	v, ok := s.Get("plan")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if v != "read files first" {
		t.Errorf("expected %q, got %v", "read files first", v)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := New()
	if _, ok := s.Get("missing"); ok {
		t.Error("expected missing key to report !ok")
	}
}

func TestVersionsStrictlyIncreasing(t *testing.T) {
	s := New()

	var versions []uint64
	s.Set("a", 1, "coder")
	e, _ := s.GetEntry("a")
	versions = append(versions, e.Version)

	s.Set("b", 2, "coder")
	e, _ = s.GetEntry("b")
	versions = append(versions, e.Version)

	s.Merge("c", map[string]interface{}{"x": 1}, "coder")
	e, _ = s.GetEntry("c")
	versions = append(versions, e.Version)

	s.Append("d", "item", "coder")
	e, _ = s.GetEntry("d")
	versions = append(versions, e.Version)

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("version %d (%d) not greater than previous (%d)", i, versions[i], versions[i-1])
		}
	}
}

func TestVersionNotReusedAfterDelete(t *testing.T) {
	s := New()

	s.Set("a", 1, "coder")
	before, _ := s.GetEntry("a")

	if !s.Delete("a") {
		t.Fatal("expected delete to succeed")
	}

	s.Set("a", 2, "coder")
	after, _ := s.GetEntry("a")

	// Delete consumes a version too, so the rewrite must be at least two ahead.
	if after.Version <= before.Version+1 {
		t.Errorf("expected version after delete+set > %d+1, got %d", before.Version, after.Version)
	}
}

func TestDeleteMissingKey(t *testing.T) {
	s := New()
	if s.Delete("missing") {
		t.Error("expected delete of missing key to return false")
	}
}

func TestMergeShallow(t *testing.T) {
	s := New()

	s.Set("state", map[string]interface{}{"a": 1, "b": 2}, "reader")
	s.Merge("state", map[string]interface{}{"b": 3, "c": 4}, "coder")

	v, _ := s.Get("state")
	got := v.(map[string]interface{})
	want := map[string]interface{}{"a": 1, "b": 3, "c": 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMergeIntoMissingKey(t *testing.T) {
	s := New()

	s.Merge("fresh", map[string]interface{}{"x": 1}, "coder")

	v, ok := s.Get("fresh")
	if !ok {
		t.Fatal("expected key after merge into missing key")
	}
	got := v.(map[string]interface{})
	if got["x"] != 1 {
		t.Errorf("expected x=1, got %v", got["x"])
	}
}

func TestMergeOverNonMapValue(t *testing.T) {
	s := New()

	s.Set("thing", "not a map", "reader")
	s.Merge("thing", map[string]interface{}{"x": 1}, "coder")

	v, _ := s.Get("thing")
	got, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map value after merge, got %T", v)
	}
	if got["x"] != 1 {
		t.Errorf("expected x=1, got %v", got["x"])
	}
}

func TestAppend(t *testing.T) {
	s := New()

	s.Append("log", "first", "reader")
	s.Append("log", "second", "coder")

	v, _ := s.Get("log")
	got := v.([]interface{})
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected appended slice: %v", got)
	}
}

func TestSubscribeReceivesOldAndNew(t *testing.T) {
	s := New()

	var gotKey string
	var gotNew, gotOld interface{}
	s.Subscribe("watched", func(key string, newValue, oldValue interface{}) {
		gotKey = key
		gotNew = newValue
		gotOld = oldValue
	})

	s.Set("watched", "v1", "reader")
	if gotKey != "watched" || gotNew != "v1" || gotOld != nil {
		t.Errorf("first set: got key=%q new=%v old=%v", gotKey, gotNew, gotOld)
	}

	s.Set("watched", "v2", "coder")
	if gotNew != "v2" || gotOld != "v1" {
		t.Errorf("second set: got new=%v old=%v", gotNew, gotOld)
	}
}

func TestSubscribeOtherKeyNotNotified(t *testing.T) {
	s := New()

	called := false
	s.Subscribe("a", func(string, interface{}, interface{}) { called = true })

	s.Set("b", 1, "coder")
	if called {
		t.Error("listener for key a notified on write to key b")
	}
}

func TestSubscribeAll(t *testing.T) {
	s := New()

	count := 0
	s.SubscribeAll(func(string, interface{}, interface{}) { count++ })

	s.Set("a", 1, "coder")
	s.Set("b", 2, "coder")
	s.Delete("a")

	if count != 3 {
		t.Errorf("expected 3 notifications, got %d", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := New()

	count := 0
	unsub := s.Subscribe("a", func(string, interface{}, interface{}) { count++ })

	s.Set("a", 1, "coder")
	unsub()
	s.Set("a", 2, "coder")

	if count != 1 {
		t.Errorf("expected 1 notification after unsubscribe, got %d", count)
	}
}

func TestListenerPanicIsolated(t *testing.T) {
	s := New()

	reached := false
	s.Subscribe("a", func(string, interface{}, interface{}) { panic("listener failure") })
	s.Subscribe("a", func(string, interface{}, interface{}) { reached = true })

	s.Set("a", 1, "coder")

	if !reached {
		t.Error("second listener not invoked after first panicked")
	}
}

func TestListenerCanCallBackIntoStore(t *testing.T) {
	s := New()

	s.Subscribe("trigger", func(key string, newValue, oldValue interface{}) {
		s.Set("derived", fmt.Sprintf("from %v", newValue), "system")
	})

	s.Set("trigger", "x", "coder")

	v, ok := s.Get("derived")
	if !ok || v != "from x" {
		t.Errorf("expected derived value written by listener, got %v (ok=%v)", v, ok)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	s.Set("a", "1", "coder")
	s.Set("b", "2", "reader")
	s.Delete("a")
	s.Set("a", "3", "reviewer")

	snap := s.Snapshot()

	restored := New()
	restored.LoadSnapshot(snap, "system")

	if !reflect.DeepEqual(restored.Snapshot(), snap) {
		t.Errorf("round-trip mismatch: %v vs %v", restored.Snapshot(), snap)
	}

	// LoadSnapshot uses Set per key, so versions are assigned fresh.
	if restored.Version() == 0 {
		t.Error("expected restored store to have advanced versions")
	}
}

func TestLoadSnapshotFiresListeners(t *testing.T) {
	s := New()

	count := 0
	s.SubscribeAll(func(string, interface{}, interface{}) { count++ })

	s.LoadSnapshot(map[string]interface{}{"a": 1, "b": 2}, "system")

	if count != 2 {
		t.Errorf("expected 2 notifications from LoadSnapshot, got %d", count)
	}
}
