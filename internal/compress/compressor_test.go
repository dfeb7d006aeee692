package compress

import (
	"fmt"
	"strings"
	"testing"
)

func TestEstimateTokensASCII(t *testing.T) {
	// 8 ASCII characters / 4 = 2 tokens.
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("expected 2 tokens for 8 ASCII chars, got %d", got)
	}
}

func TestEstimateTokensCJK(t *testing.T) {
	// 3 CJK characters / 1.5 = 2 tokens.
	if got := EstimateTokens("日本語"); got != 2 {
		t.Errorf("expected 2 tokens for 3 CJK chars, got %d", got)
	}
}

func TestEstimateTokensMixed(t *testing.T) {
	// ceil(3/1.5) + ceil(4/4) = 2 + 1 = 3.
	if got := EstimateTokens("日本語abcd"); got != 3 {
		t.Errorf("expected 3 tokens, got %d", got)
	}
}

func TestEstimateTokensEmpty(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
}

func TestNeedsCompression(t *testing.T) {
	c := NewWithConfig(Config{HistoryBudget: 100, SummaryThreshold: 0.7})

	small := []Message{{Role: "user", Content: strings.Repeat("a", 100)}} // 25 tokens
	if c.NeedsCompression(small) {
		t.Error("expected no compression needed under threshold")
	}

	big := []Message{{Role: "user", Content: strings.Repeat("a", 400)}} // 100 tokens > 70
	if !c.NeedsCompression(big) {
		t.Error("expected compression needed over threshold")
	}
}

func TestTruncateToolOutput(t *testing.T) {
	c := NewWithConfig(Config{MaxToolOutputLen: 2000})

	input := strings.Repeat("a", 1000) + strings.Repeat("b", 3000) + strings.Repeat("c", 1000)
	got := c.TruncateToolOutput(input)

	if !strings.HasPrefix(got, strings.Repeat("a", 1000)) {
		t.Error("expected truncated output to keep the first 1000 characters")
	}
	if !strings.HasSuffix(got, strings.Repeat("c", 1000)) {
		t.Error("expected truncated output to keep the last 1000 characters")
	}
	if !strings.Contains(got, "[3000 characters truncated]") {
		t.Errorf("expected omission marker for 3000 characters, got %q", got[990:1100])
	}
}

func TestTruncateToolOutputShortUnchanged(t *testing.T) {
	c := New()

	input := "short output"
	if got := c.TruncateToolOutput(input); got != input {
		t.Errorf("expected short output unchanged, got %q", got)
	}
}

func TestSlidingKeepsImportantAndRecent(t *testing.T) {
	c := NewWithConfig(Config{
		HistoryBudget:    1000,
		MaxMessages:      3,
		MaxToolOutputLen: 2000,
		Strategy:         StrategySliding,
	})

	var messages []Message
	messages = append(messages, Message{Role: "user", Content: "the goal", Important: true})
	for i := 0; i < 10; i++ {
		messages = append(messages, Message{Role: "assistant", Content: fmt.Sprintf("step %d", i)})
	}

	res := c.Compress(messages)

	if res.Method != StrategySliding {
		t.Errorf("expected method sliding, got %s", res.Method)
	}
	if len(res.Messages) != 4 {
		t.Fatalf("expected 4 messages (1 important + 3 recent), got %d", len(res.Messages))
	}
	if res.Messages[0].Content != "the goal" {
		t.Errorf("expected important message kept first, got %q", res.Messages[0].Content)
	}
	if res.Messages[3].Content != "step 9" {
		t.Errorf("expected most recent message kept, got %q", res.Messages[3].Content)
	}
}

func TestSlidingDeduplicates(t *testing.T) {
	c := NewWithConfig(Config{MaxMessages: 5, Strategy: StrategySliding})

	messages := []Message{
		{Role: "assistant", Content: "same line"},
		{Role: "assistant", Content: "same line"},
		{Role: "assistant", Content: "different"},
	}

	res := c.Compress(messages)
	if len(res.Messages) != 2 {
		t.Errorf("expected duplicates removed, got %d messages", len(res.Messages))
	}
}

func TestSummarizeCollapsesOlder(t *testing.T) {
	c := NewWithConfig(Config{MaxMessages: 4, Strategy: StrategySummarize})

	messages := []Message{
		{Role: "user", Content: "fix the scheduler"},
		{Role: "tool", Tool: "Read", Content: "file contents"},
		{Role: "tool", Tool: "Grep", Content: "matches"},
		{Role: "assistant", Content: "found the race"},
		{Role: "user", Content: "now write the fix"},
		{Role: "assistant", Content: "patch applied"},
	}

	res := c.Compress(messages)

	// MaxMessages/2 = 2 recent kept, plus one summary entry.
	if len(res.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(res.Messages))
	}
	summary := res.Messages[0].Content
	if !strings.Contains(summary, "fix the scheduler") {
		t.Errorf("expected user topic in summary, got %q", summary)
	}
	if !strings.Contains(summary, "Read") || !strings.Contains(summary, "Grep") {
		t.Errorf("expected tool names in summary, got %q", summary)
	}
	if !strings.Contains(summary, "found the race") {
		t.Errorf("expected last assistant message in summary, got %q", summary)
	}
}

func TestSummarizeCacheHit(t *testing.T) {
	c := NewWithConfig(Config{MaxMessages: 2, Strategy: StrategySummarize})

	messages := []Message{
		{Role: "user", Content: "task"},
		{Role: "assistant", Content: "working"},
		{Role: "assistant", Content: "recent"},
	}

	first := c.Compress(messages)
	second := c.Compress(messages)

	if first.Messages[0].Content != second.Messages[0].Content {
		t.Error("expected identical summary from cache")
	}

	c.cacheMu.Lock()
	n := len(c.cache)
	c.cacheMu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 cached summary, got %d", n)
	}
}

func TestHybridRespectsBudget(t *testing.T) {
	c := NewWithConfig(Config{
		HistoryBudget:    200,
		SummaryThreshold: 0.7,
		MaxMessages:      4,
		MaxToolOutputLen: 100,
		Strategy:         StrategyHybrid,
	})

	var messages []Message
	for i := 0; i < 20; i++ {
		messages = append(messages, Message{
			Role:    "tool",
			Tool:    "Shell",
			Content: strings.Repeat("x", 500) + fmt.Sprintf("-%d", i),
		})
	}

	res := c.Compress(messages)

	if res.CompressedTokens > c.cfg.HistoryBudget {
		// The irreducible summary entry is the only allowed overshoot.
		if len(res.Messages) > 3 {
			t.Errorf("hybrid result over budget: %d tokens in %d messages",
				res.CompressedTokens, len(res.Messages))
		}
	}
	if res.CompressedTokens >= res.OriginalTokens {
		t.Errorf("expected compression to reduce tokens: %d -> %d",
			res.OriginalTokens, res.CompressedTokens)
	}
}

func TestCompressRatio(t *testing.T) {
	c := NewWithConfig(Config{
		HistoryBudget: 50,
		MaxMessages:   2,
		Strategy:      StrategySliding,
	})

	var messages []Message
	for i := 0; i < 10; i++ {
		messages = append(messages, Message{Role: "assistant", Content: fmt.Sprintf("message number %d with padding", i)})
	}

	res := c.Compress(messages)
	if res.Ratio >= 1.0 {
		t.Errorf("expected ratio < 1.0, got %.2f", res.Ratio)
	}
	if res.OriginalTokens <= res.CompressedTokens {
		t.Errorf("expected token reduction, got %d -> %d", res.OriginalTokens, res.CompressedTokens)
	}
}
