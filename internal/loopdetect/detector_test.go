package loopdetect

import (
	"fmt"
	"testing"
)

func TestNoLoopOnEmptyHistory(t *testing.T) {
	d := New()

	det := d.Detect()
	if det.Detected {
		t.Error("expected no detection on empty history")
	}
}

func TestExactLoopDetected(t *testing.T) {
	d := New()

	for i := 0; i < 3; i++ {
		d.Record("Read", `{"file":"x"}`, "contents of x")
	}

	det := d.Detect()
	if !det.Detected {
		t.Fatal("expected exact loop detection")
	}
	if det.Type != LoopExact {
		t.Errorf("expected type %q, got %q", LoopExact, det.Type)
	}
}

func TestExactLoopStreakResetByDifferentCall(t *testing.T) {
	d := New()

	d.Record("Read", `{"file":"x"}`, "a")
	d.Record("Read", `{"file":"x"}`, "a")
	d.Record("Read", `{"file":"y"}`, "b")
	d.Record("Read", `{"file":"x"}`, "a")

	det := d.Detect()
	if det.Detected && det.Type == LoopExact {
		t.Error("a differing fingerprint should reset the exact streak")
	}
}

func TestExactLoopBelowThreshold(t *testing.T) {
	d := New()

	d.Record("Read", `{"file":"x"}`, "a")
	d.Record("Read", `{"file":"x"}`, "a")

	det := d.Detect()
	if det.Detected {
		t.Error("two identical calls are below the default threshold of 3")
	}
}

func TestPatternLoopPeriodTwo(t *testing.T) {
	d := New()

	for i := 0; i < 3; i++ {
		d.Record("Read", "a", fmt.Sprintf("out-%d", i*2))
		d.Record("Grep", "b", fmt.Sprintf("out-%d", i*2+1))
	}

	det := d.Detect()
	if !det.Detected {
		t.Fatal("expected pattern loop detection")
	}
	if det.Type != LoopPattern {
		t.Errorf("expected type %q, got %q", LoopPattern, det.Type)
	}
}

func TestPatternLoopPeriodThree(t *testing.T) {
	d := New()

	for i := 0; i < 3; i++ {
		d.Record("Read", "a", fmt.Sprintf("r%d", i))
		d.Record("Grep", "b", fmt.Sprintf("g%d", i))
		d.Record("Edit", "c", fmt.Sprintf("e%d", i))
	}

	det := d.Detect()
	if !det.Detected {
		t.Fatal("expected pattern loop detection for period 3")
	}
	if det.Type != LoopPattern {
		t.Errorf("expected type %q, got %q", LoopPattern, det.Type)
	}
}

func TestSemanticLoopDetected(t *testing.T) {
	d := New()

	// Same tool, varying args, identical output: output diversity
	// 1 - 1/8 = 0.875 >= 0.85.
	for i := 0; i < 8; i++ {
		d.Record("Shell", fmt.Sprintf("attempt-%d", i), "permission denied")
	}

	det := d.Detect()
	if !det.Detected {
		t.Fatal("expected semantic loop detection")
	}
	if det.Type != LoopSemantic {
		t.Errorf("expected type %q, got %q", LoopSemantic, det.Type)
	}
}

func TestSemanticLoopDiverseOutputsNotDetected(t *testing.T) {
	d := New()

	for i := 0; i < 8; i++ {
		d.Record("Shell", fmt.Sprintf("attempt-%d", i), fmt.Sprintf("output-%d", i))
	}

	det := d.Detect()
	if det.Detected {
		t.Errorf("diverse outputs should not be a semantic loop, got %+v", det)
	}
}

func TestHistoryBounded(t *testing.T) {
	d := NewWithConfig(Config{WindowSize: 5, RepeatThreshold: 3, SimilarityThreshold: 0.85})

	for i := 0; i < 50; i++ {
		d.Record("Read", fmt.Sprintf("%d", i), fmt.Sprintf("%d", i))
	}

	d.mu.Lock()
	n := len(d.history)
	d.mu.Unlock()
	if n != 10 {
		t.Errorf("expected history bounded to 2x window (10), got %d", n)
	}
}

func TestBreakLoopEscalationLadder(t *testing.T) {
	d := New()

	record := func() Detection {
		d.Reset()
		for i := 0; i < 3; i++ {
			d.Record("Read", "same", "same")
		}
		return d.Detect()
	}

	// First detection: soft strategy.
	det := record()
	d.loopCount = 1
	if got := d.BreakLoop(det); got.Kind != StrategyInjectHint {
		t.Errorf("first detection: expected %q, got %q", StrategyInjectHint, got.Kind)
	}

	d.loopCount = 2
	if got := d.BreakLoop(det); got.Kind != StrategyAbort {
		t.Errorf("second detection: expected %q, got %q", StrategyAbort, got.Kind)
	}

	d.loopCount = 3
	if got := d.BreakLoop(det); got.Kind != StrategyEscalateToUser {
		t.Errorf("third detection: expected %q, got %q", StrategyEscalateToUser, got.Kind)
	}
}

func TestBreakLoopPatternForcesDifferentTool(t *testing.T) {
	d := New()

	for i := 0; i < 3; i++ {
		d.Record("Read", "a", fmt.Sprintf("r%d", i))
		d.Record("Grep", "b", fmt.Sprintf("g%d", i))
	}

	det := d.Detect()
	if !det.Detected || det.Type != LoopPattern {
		t.Fatalf("expected pattern detection, got %+v", det)
	}

	strategy := d.BreakLoop(det)
	if strategy.Kind != StrategyForceDifferentTool {
		t.Fatalf("expected %q, got %q", StrategyForceDifferentTool, strategy.Kind)
	}
	if len(strategy.ExcludeTools) == 0 {
		t.Error("expected excluded tools")
	}
	for _, tool := range strategy.ExcludeTools {
		if tool != "Read" && tool != "Grep" {
			t.Errorf("unexpected excluded tool %q", tool)
		}
	}
}

func TestBreakLoopNoDetection(t *testing.T) {
	d := New()

	strategy := d.BreakLoop(Detection{})
	if strategy.Kind != StrategyContinue {
		t.Errorf("expected %q for no detection, got %q", StrategyContinue, strategy.Kind)
	}
}

func TestResetClearsState(t *testing.T) {
	d := New()

	for i := 0; i < 3; i++ {
		d.Record("Read", "same", "same")
	}
	d.Detect()

	d.Reset()

	if d.LoopCount() != 0 {
		t.Errorf("expected loop count 0 after reset, got %d", d.LoopCount())
	}
	if det := d.Detect(); det.Detected {
		t.Error("expected no detection after reset")
	}
}
