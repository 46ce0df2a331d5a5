package model

// RunDefinition identifies one slot's work within one iteration. Log paths
// are derived deterministically from the iteration index, agent id, and the
// iteration's start timestamp so two slots never collide and a rerun of the
// same iteration index (a retry-on-throttle replay) still produces distinct
// files because the timestamp moves.
type RunDefinition struct {
	AgentID         int
	JSONLLogPath    string
	LastMessagePath string
	Args            []string
}

// StreamResult is what a spawned child process produced. Status is nil iff
// the process was killed rather than exiting on its own.
type StreamResult struct {
	Status *int
	Stdout string
	Stderr string
}

// RunResult is the Slot Runner's output contract for one slot's
// implementer run: which agent produced it, where its logs live, what it
// picked (if anything), and its review outcome when review is enabled.
type RunResult struct {
	AgentID         int
	JSONLLogPath    string
	LastMessagePath string
	Result          StreamResult
	PickedTaskID    string
	ReviewOutcome   *SlotReviewOutcome
}

// Combined returns the trimmed concatenation used throughout aggregation
// and classification fallback: stdout, a newline, then stderr.
func (r StreamResult) Combined() string {
	return trimmedJoin(r.Stdout, r.Stderr)
}

func trimmedJoin(a, b string) string {
	joined := a + "\n" + b
	start, end := 0, len(joined)
	for start < end && isSpace(joined[start]) {
		start++
	}
	for end > start && isSpace(joined[end-1]) {
		end--
	}
	return joined[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// PreviewKind classifies a PreviewEntry for UI tone and stop-marker scoping.
type PreviewKind string

const (
	KindAssistant PreviewKind = "assistant"
	KindTool      PreviewKind = "tool"
	KindReasoning PreviewKind = "reasoning"
	KindError     PreviewKind = "error"
	KindMessage   PreviewKind = "message"
)

// PreviewEntry is one conversational unit extracted from a provider's
// stdout line by its adapter.
type PreviewEntry struct {
	Kind  PreviewKind
	Label string
	Text  string
}

// UsageSummary is token/usage telemetry, additive component-wise across
// slots.
type UsageSummary struct {
	InputTokens       int
	CachedInputTokens int
	OutputTokens      int
}

// Add returns the component-wise sum of two usage summaries. Summation is
// commutative and associative, so aggregation order across slots never
// matters.
func (u UsageSummary) Add(other UsageSummary) UsageSummary {
	return UsageSummary{
		InputTokens:       u.InputTokens + other.InputTokens,
		CachedInputTokens: u.CachedInputTokens + other.CachedInputTokens,
		OutputTokens:      u.OutputTokens + other.OutputTokens,
	}
}
