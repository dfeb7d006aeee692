// Package compress enforces a token budget over a growing message history.
package compress

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Strategy selects how history is reduced.
type Strategy string

const (
	// StrategySliding keeps important plus the most recent messages.
	StrategySliding Strategy = "sliding"
	// StrategySummarize collapses older messages into a summary entry.
	StrategySummarize Strategy = "summarize"
	// StrategyHybrid truncates tool outputs, then slides, then summarizes.
	StrategyHybrid Strategy = "hybrid"
)

// Message is one entry in a conversation history.
type Message struct {
	// Role is the speaker: "user", "assistant", or "tool".
	Role string
	// Content is the message text.
	Content string
	// Tool is the tool name for tool-output messages.
	Tool string
	// Important marks messages that sliding compression must keep.
	Important bool
}

// Result describes one compression pass.
type Result struct {
	// Messages is the compressed history.
	Messages []Message
	// OriginalTokens is the estimated token count before compression.
	OriginalTokens int
	// CompressedTokens is the estimated token count after compression.
	CompressedTokens int
	// Ratio is CompressedTokens / OriginalTokens.
	Ratio float64
	// Method names the strategy that produced the result.
	Method Strategy
}

// Config tunes the compressor.
type Config struct {
	// HistoryBudget is the token budget for retained history.
	HistoryBudget int
	// SummaryThreshold is the fraction of the budget at which
	// compression kicks in.
	SummaryThreshold float64
	// MaxMessages is how many recent messages sliding compression keeps.
	MaxMessages int
	// MaxToolOutputLen is the character bound for tool outputs.
	MaxToolOutputLen int
	// Strategy selects the compression method.
	Strategy Strategy
}

// DefaultConfig returns the standard compressor tuning.
func DefaultConfig() Config {
	return Config{
		HistoryBudget:    8000,
		SummaryThreshold: 0.7,
		MaxMessages:      10,
		MaxToolOutputLen: 2000,
		Strategy:         StrategyHybrid,
	}
}

// summaryCacheCap bounds the summary cache.
const summaryCacheCap = 100

// dedupePrefixLen is how much content participates in the sliding
// de-duplication key.
const dedupePrefixLen = 64

// Compressor reduces message histories to fit a token budget.
type Compressor struct {
	cfg Config

	// Summaries are cached by a fingerprint of the collapsed messages so
	// repeated compressions of a stable prefix are free.
	cacheMu    sync.Mutex
	cache      map[uint64]string
	cacheOrder []uint64
}

// New creates a Compressor with the default configuration.
func New() *Compressor {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Compressor with the given configuration.
func NewWithConfig(cfg Config) *Compressor {
	if cfg.HistoryBudget <= 0 {
		cfg.HistoryBudget = 8000
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = 0.7
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 10
	}
	if cfg.MaxToolOutputLen <= 0 {
		cfg.MaxToolOutputLen = 2000
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyHybrid
	}
	return &Compressor{
		cfg:   cfg,
		cache: make(map[uint64]string),
	}
}

// EstimateTokens estimates the token count of a text using a
// character-class heuristic: CJK characters cost 1/1.5 token each,
// everything else 1/4.
func EstimateTokens(text string) int {
	cjk := 0
	other := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(cjk)/1.5) + math.Ceil(float64(other)/4))
}

// EstimateHistoryTokens estimates the total token count of a history.
func EstimateHistoryTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// NeedsCompression reports whether the history exceeds the compression
// threshold (budget x summary threshold).
func (c *Compressor) NeedsCompression(messages []Message) bool {
	limit := float64(c.cfg.HistoryBudget) * c.cfg.SummaryThreshold
	return float64(EstimateHistoryTokens(messages)) > limit
}

// Compress reduces the history using the configured strategy.
func (c *Compressor) Compress(messages []Message) Result {
	original := EstimateHistoryTokens(messages)

	var out []Message
	method := c.cfg.Strategy
	switch c.cfg.Strategy {
	case StrategySliding:
		out = c.sliding(messages)
	case StrategySummarize:
		out = c.summarize(messages)
	default:
		out = c.hybrid(messages)
		method = StrategyHybrid
	}

	compressed := EstimateHistoryTokens(out)
	ratio := 1.0
	if original > 0 {
		ratio = float64(compressed) / float64(original)
	}
	return Result{
		Messages:         out,
		OriginalTokens:   original,
		CompressedTokens: compressed,
		Ratio:            ratio,
		Method:           method,
	}
}

// TruncateToolOutput bounds a tool output to the configured length,
// keeping the head and the tail so both the intent and the outcome of a
// long output survive.
func (c *Compressor) TruncateToolOutput(text string) string {
	return TruncateMiddle(text, c.cfg.MaxToolOutputLen)
}

// TruncateMiddle keeps the first and last maxLen/2 characters of a text
// with a marker stating how many characters were omitted.
func TruncateMiddle(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	half := maxLen / 2
	omitted := len(runes) - 2*half
	return fmt.Sprintf("%s\n... [%d characters truncated] ...\n%s",
		string(runes[:half]), omitted, string(runes[len(runes)-half:]))
}

// sliding keeps all important messages plus the most recent MaxMessages,
// de-duplicated by a (role, content prefix) key, each with tool output
// truncation applied.
func (c *Compressor) sliding(messages []Message) []Message {
	keep := make(map[int]bool)
	for i, m := range messages {
		if m.Important {
			keep[i] = true
		}
	}
	start := len(messages) - c.cfg.MaxMessages
	if start < 0 {
		start = 0
	}
	for i := start; i < len(messages); i++ {
		keep[i] = true
	}

	indexes := make([]int, 0, len(keep))
	for i := range keep {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	seen := make(map[string]bool)
	out := make([]Message, 0, len(indexes))
	for _, i := range indexes {
		m := messages[i]
		key := m.Role + "\x00" + prefix(m.Content, dedupePrefixLen)
		if seen[key] {
			continue
		}
		seen[key] = true
		m.Content = c.TruncateToolOutput(m.Content)
		out = append(out, m)
	}
	return out
}

// summarize keeps the most recent half of MaxMessages and collapses
// everything older into one synthesized summary entry.
func (c *Compressor) summarize(messages []Message) []Message {
	keepCount := c.cfg.MaxMessages / 2
	if keepCount < 1 {
		keepCount = 1
	}
	if len(messages) <= keepCount {
		return messages
	}

	older := messages[:len(messages)-keepCount]
	recent := messages[len(messages)-keepCount:]

	summary := Message{
		Role:      "assistant",
		Content:   c.summarizeMessages(older),
		Important: true,
	}

	out := make([]Message, 0, len(recent)+1)
	out = append(out, summary)
	out = append(out, recent...)
	return out
}

// hybrid truncates tool outputs first, then applies sliding if still
// over budget, then summarization if still over budget.
func (c *Compressor) hybrid(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role == "tool" || out[i].Tool != "" {
			out[i].Content = c.TruncateToolOutput(out[i].Content)
		}
	}

	if EstimateHistoryTokens(out) <= c.cfg.HistoryBudget {
		return out
	}
	out = c.sliding(out)

	if EstimateHistoryTokens(out) <= c.cfg.HistoryBudget {
		return out
	}
	return c.summarize(out)
}

// summarizeMessages builds (or fetches from cache) a one-entry summary
// of the collapsed messages: user topics, distinct tools used, and the
// last assistant message.
func (c *Compressor) summarizeMessages(older []Message) string {
	key := fingerprintMessages(older)

	c.cacheMu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.cacheMu.Unlock()
		return cached
	}
	c.cacheMu.Unlock()

	var topics []string
	var tools []string
	seenTools := make(map[string]bool)
	lastAssistant := ""
	for _, m := range older {
		switch m.Role {
		case "user":
			topics = append(topics, prefix(strings.TrimSpace(m.Content), 80))
		case "assistant":
			lastAssistant = m.Content
		}
		if m.Tool != "" && !seenTools[m.Tool] {
			seenTools[m.Tool] = true
			tools = append(tools, m.Tool)
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[Summary of %d earlier messages]", len(older)))
	if len(topics) > 0 {
		b.WriteString(" Topics: " + strings.Join(topics, "; ") + ".")
	}
	if len(tools) > 0 {
		b.WriteString(" Tools used: " + strings.Join(tools, ", ") + ".")
	}
	if lastAssistant != "" {
		b.WriteString(" Last assistant: " + prefix(lastAssistant, 200))
	}
	summary := b.String()

	c.cacheMu.Lock()
	if _, ok := c.cache[key]; !ok {
		c.cache[key] = summary
		c.cacheOrder = append(c.cacheOrder, key)
		if len(c.cacheOrder) > summaryCacheCap {
			oldest := c.cacheOrder[0]
			c.cacheOrder = c.cacheOrder[1:]
			delete(c.cache, oldest)
		}
	}
	c.cacheMu.Unlock()

	return summary
}

// fingerprintMessages hashes message roles and contents for cache keying.
func fingerprintMessages(messages []Message) uint64 {
	h := fnv.New64a()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// isCJK reports whether a rune is a CJK, kana, or hangul character.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
