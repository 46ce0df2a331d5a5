package aggregate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ouroboros/internal/ouro/classify"
	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
)

// fakeAdapter lets each test control usage/stop-marker behavior without
// pulling in a real agent CLI wire format.
type fakeAdapter struct {
	usage          *model.UsageSummary
	stopMarkerText string
	messages       []model.PreviewEntry
}

func (a *fakeAdapter) Name() string { return "fake" }
func (a *fakeAdapter) BuildExecArgs(prompt, lastMessagePath string, opts provider.BuildArgsOptions) []string {
	return nil
}
func (a *fakeAdapter) PreviewEntriesFromLine(line string) []model.PreviewEntry { return nil }
func (a *fakeAdapter) CollectMessages(output string) []model.PreviewEntry     { return a.messages }
func (a *fakeAdapter) CollectRawJSONLines(output string, n int) []string      { return nil }
func (a *fakeAdapter) ExtractUsageSummary(output string) *model.UsageSummary  { return a.usage }
func (a *fakeAdapter) ExtractRetryDelaySeconds(output string) *int            { return nil }
func (a *fakeAdapter) HasStopMarker(text string) bool {
	return a.stopMarkerText != "" && text == a.stopMarkerText
}
func (a *fakeAdapter) FormatCommandHint(command string) string { return command }

func runWithAdapter(t *testing.T, adapter provider.Adapter, results []model.RunResult, remainingIDs map[string]struct{}) Output {
	t.Helper()
	return Run(Input{
		Provider:     adapter,
		Results:      results,
		RemainingIDs: remainingIDs,
	})
}

func TestRun_CollectsFailuresAndSumsUsage(t *testing.T) {
	statusZero := 0
	statusOne := 1

	adapter := &fakeAdapter{usage: &model.UsageSummary{InputTokens: 10, OutputTokens: 5}}

	results := []model.RunResult{
		{AgentID: 1, Result: model.StreamResult{Status: &statusZero}},
		{AgentID: 2, Result: model.StreamResult{Status: &statusOne, Stderr: "boom"}},
	}

	out := runWithAdapter(t, adapter, results, nil)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, 2, out.Failed[0].AgentID)
	assert.Equal(t, model.UsageSummary{InputTokens: 20, OutputTokens: 10}, out.UsageAggregate)
}

func TestRun_AdoptsLatePickFromCombinedOutput(t *testing.T) {
	statusZero := 0
	adapter := &fakeAdapter{}

	results := []model.RunResult{
		{AgentID: 1, Result: model.StreamResult{Status: &statusZero, Stdout: "bd update task-9 --status done"}},
	}
	remaining := classify.KnownIDSet([]string{"task-9"})

	out := runWithAdapter(t, adapter, results, remaining)
	assert.Equal(t, "task-9", out.PickedByAgent[1])
}

func TestRun_StopDetectedFromLastMessageFile(t *testing.T) {
	statusZero := 0
	dir := t.TempDir()
	lastMessagePath := filepath.Join(dir, "agent-1.last-message.txt")
	require.NoError(t, os.WriteFile(lastMessagePath, []byte("no_tasks_available"), 0o644))

	adapter := &fakeAdapter{stopMarkerText: "no_tasks_available"}
	results := []model.RunResult{
		{AgentID: 1, LastMessagePath: lastMessagePath, Result: model.StreamResult{Status: &statusZero}},
	}

	out := runWithAdapter(t, adapter, results, nil)
	assert.True(t, out.StopDetected)
}

func TestRun_ReviewFailureProducesSyntheticFailure(t *testing.T) {
	statusZero := 0
	adapter := &fakeAdapter{}

	outcome := &model.SlotReviewOutcome{Passed: false, FailureReason: "drift unresolved after 2 fix attempt(s)"}
	results := []model.RunResult{
		{AgentID: 1, Result: model.StreamResult{Status: &statusZero}, ReviewOutcome: outcome},
	}

	out := runWithAdapter(t, adapter, results, nil)
	require.Len(t, out.Failed, 1)
	assert.Nil(t, out.Failed[0].Status)
	assert.Contains(t, out.Failed[0].CombinedOutput, "drift unresolved")
	assert.Same(t, outcome, out.ReviewOutcomes[1])
}

func TestRun_ReviewPassedDoesNotAddFailure(t *testing.T) {
	statusZero := 0
	adapter := &fakeAdapter{}

	outcome := &model.SlotReviewOutcome{Passed: true}
	results := []model.RunResult{
		{AgentID: 1, Result: model.StreamResult{Status: &statusZero}, ReviewOutcome: outcome},
	}

	out := runWithAdapter(t, adapter, results, nil)
	assert.Empty(t, out.Failed)
}
