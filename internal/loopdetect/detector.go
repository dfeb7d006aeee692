// Package loopdetect detects repetition in an agent's tool-call history.
package loopdetect

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// LoopType classifies a detected repetition.
type LoopType string

const (
	// LoopExact means the same tool was called with the same arguments
	// several times in a row.
	LoopExact LoopType = "exact"
	// LoopPattern means a short cycle of calls (period 2 or 3) repeats.
	LoopPattern LoopType = "pattern"
	// LoopSemantic means one tool keeps producing near-identical output.
	LoopSemantic LoopType = "semantic"
)

// StrategyKind names the corrective action for a detected loop.
type StrategyKind string

const (
	// StrategyContinue means no correction is needed.
	StrategyContinue StrategyKind = "continue"
	// StrategyInjectHint adds a hint to the next observation.
	StrategyInjectHint StrategyKind = "inject_hint"
	// StrategyForceDifferentTool excludes recently used tools.
	StrategyForceDifferentTool StrategyKind = "force_different_tool"
	// StrategyEscalateToUser hands control back to the user.
	StrategyEscalateToUser StrategyKind = "escalate_to_user"
	// StrategyAbort stops the run.
	StrategyAbort StrategyKind = "abort"
)

// Fingerprint is a hashed summary of one tool invocation.
type Fingerprint struct {
	// Tool is the tool name.
	Tool string
	// ArgsHash is the hash of the serialized arguments.
	ArgsHash uint64
	// OutputHash is the hash of the tool output.
	OutputHash uint64
	// Timestamp is when the invocation was recorded.
	Timestamp time.Time
}

// Detection is the outcome of a loop check.
type Detection struct {
	// Detected reports whether a loop was found.
	Detected bool
	// Type classifies the loop when detected.
	Type LoopType
	// Confidence is how confident the detection is (0.0-1.0).
	Confidence float64
	// Details describes the detected repetition.
	Details string
}

// BreakStrategy is the corrective action chosen for a detected loop.
type BreakStrategy struct {
	// Kind names the action.
	Kind StrategyKind
	// Hint is advice injected into the next observation, if any.
	Hint string
	// ExcludeTools lists tools the next step should avoid.
	ExcludeTools []string
}

// Config tunes the detector.
type Config struct {
	// WindowSize is how many recent fingerprints each check inspects.
	WindowSize int
	// RepeatThreshold is how many repetitions count as a loop.
	RepeatThreshold int
	// SimilarityThreshold is the output-diversity cutoff for semantic loops.
	SimilarityThreshold float64
}

// DefaultConfig returns the standard detector tuning.
func DefaultConfig() Config {
	return Config{
		WindowSize:          10,
		RepeatThreshold:     3,
		SimilarityThreshold: 0.85,
	}
}

// Detector inspects a rolling history of tool-call fingerprints for
// repetition. It retains at most 2x WindowSize recent entries.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	history []Fingerprint
	// loopCount increments on every positive detection and drives the
	// break-strategy escalation ladder.
	loopCount int
}

// New creates a Detector with the default configuration.
func New() *Detector {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Detector with the given configuration.
func NewWithConfig(cfg Config) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.RepeatThreshold <= 0 {
		cfg.RepeatThreshold = 3
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	return &Detector{cfg: cfg}
}

// Record appends a fingerprint for one tool invocation.
func (d *Detector) Record(tool, args, output string) Fingerprint {
	fp := Fingerprint{
		Tool:       tool,
		ArgsHash:   hashString(args),
		OutputHash: hashString(output),
		Timestamp:  time.Now(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, fp)
	if max := 2 * d.cfg.WindowSize; len(d.history) > max {
		d.history = d.history[len(d.history)-max:]
	}
	return fp
}

// Detect checks the recent window for exact, pattern, and semantic loops,
// in that order. A positive detection increments the escalation counter.
func (d *Detector) Detect() Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.history
	if len(window) > d.cfg.WindowSize {
		window = window[len(window)-d.cfg.WindowSize:]
	}

	for _, check := range []func([]Fingerprint) Detection{
		d.detectExact,
		d.detectPattern,
		d.detectSemantic,
	} {
		if det := check(window); det.Detected {
			d.loopCount++
			return det
		}
	}
	return Detection{}
}

// BreakLoop resolves the corrective action for a detection. Repeated
// detections escalate: the first gets a type-specific soft correction,
// the second aborts, and the third and beyond escalate to the user.
func (d *Detector) BreakLoop(det Detection) BreakStrategy {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !det.Detected {
		return BreakStrategy{Kind: StrategyContinue}
	}

	switch {
	case d.loopCount >= 3:
		return BreakStrategy{
			Kind: StrategyEscalateToUser,
			Hint: "repeated loop corrections failed; user input needed",
		}
	case d.loopCount == 2:
		return BreakStrategy{Kind: StrategyAbort}
	default:
		switch det.Type {
		case LoopPattern:
			return BreakStrategy{
				Kind:         StrategyForceDifferentTool,
				Hint:         "a repeating cycle of tool calls was detected; try a different approach",
				ExcludeTools: d.recentToolsLocked(3),
			}
		default:
			// Exact and semantic loops get a hint first.
			return BreakStrategy{
				Kind: StrategyInjectHint,
				Hint: fmt.Sprintf("the last tool calls look repetitive (%s loop); change arguments or strategy", det.Type),
			}
		}
	}
}

// LoopCount returns how many loops have been detected so far.
func (d *Detector) LoopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loopCount
}

// Reset clears the history and the escalation counter.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
	d.loopCount = 0
}

// detectExact counts consecutive trailing fingerprints matching the last
// one's (tool, argsHash). Detected when the streak before the last entry
// reaches RepeatThreshold-1.
func (d *Detector) detectExact(window []Fingerprint) Detection {
	if len(window) == 0 {
		return Detection{}
	}

	last := window[len(window)-1]
	streak := 0
	for i := len(window) - 2; i >= 0; i-- {
		if !sameCall(window[i], last) {
			break
		}
		streak++
	}

	if streak < d.cfg.RepeatThreshold-1 {
		return Detection{}
	}

	confidence := float64(streak+1) / float64(d.cfg.RepeatThreshold)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return Detection{
		Detected:   true,
		Type:       LoopExact,
		Confidence: confidence,
		Details:    fmt.Sprintf("tool %q called identically %d times in a row", last.Tool, streak+1),
	}
}

// detectPattern looks for repeating cycles of period 2 or 3 at the end of
// the window, comparing consecutive equal-length trailing segments by
// (tool, argsHash).
func (d *Detector) detectPattern(window []Fingerprint) Detection {
	for _, period := range []int{2, 3} {
		if len(window) < 2*period {
			continue
		}

		// Count consecutive matching trailing segments.
		matches := 0
		for start := len(window) - 2*period; start >= 0; start -= period {
			equal := true
			for i := 0; i < period; i++ {
				if !sameCall(window[start+i], window[start+period+i]) {
					equal = false
					break
				}
			}
			if !equal {
				break
			}
			matches++
		}

		if matches >= d.cfg.RepeatThreshold-1 {
			confidence := float64(matches+1) / float64(d.cfg.RepeatThreshold)
			if confidence > 1.0 {
				confidence = 1.0
			}
			return Detection{
				Detected:   true,
				Type:       LoopPattern,
				Confidence: confidence,
				Details:    fmt.Sprintf("cycle of period %d repeated %d times", period, matches+1),
			}
		}
	}
	return Detection{}
}

// detectSemantic flags a tool whose outputs barely vary. For any tool
// with at least RepeatThreshold calls in the window, output diversity is
// 1 - distinct/total; low diversity means the calls achieve nothing new.
func (d *Detector) detectSemantic(window []Fingerprint) Detection {
	type toolStats struct {
		count   int
		outputs map[uint64]struct{}
	}

	byTool := make(map[string]*toolStats)
	for _, fp := range window {
		st, ok := byTool[fp.Tool]
		if !ok {
			st = &toolStats{outputs: make(map[uint64]struct{})}
			byTool[fp.Tool] = st
		}
		st.count++
		st.outputs[fp.OutputHash] = struct{}{}
	}

	for tool, st := range byTool {
		if st.count < d.cfg.RepeatThreshold {
			continue
		}
		diversity := 1.0 - float64(len(st.outputs))/float64(st.count)
		if diversity >= d.cfg.SimilarityThreshold {
			return Detection{
				Detected:   true,
				Type:       LoopSemantic,
				Confidence: diversity,
				Details:    fmt.Sprintf("tool %q produced %d distinct outputs over %d calls", tool, len(st.outputs), st.count),
			}
		}
	}
	return Detection{}
}

// recentToolsLocked returns up to n distinct tool names from the end of
// the history, most recent first. Caller must hold d.mu.
func (d *Detector) recentToolsLocked(n int) []string {
	var tools []string
	seen := make(map[string]struct{})
	for i := len(d.history) - 1; i >= 0 && len(tools) < n; i-- {
		tool := d.history[i].Tool
		if _, ok := seen[tool]; ok {
			continue
		}
		seen[tool] = struct{}{}
		tools = append(tools, tool)
	}
	return tools
}

func sameCall(a, b Fingerprint) bool {
	return a.Tool == b.Tool && a.ArgsHash == b.ArgsHash
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
