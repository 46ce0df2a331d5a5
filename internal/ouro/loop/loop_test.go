package loop

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
	"github.com/steveyegge/ouroboros/internal/ouro/shutdown"
)

func findSlotEventsFile(t *testing.T, logRoot string) string {
	t.Helper()
	var found string
	require.NoError(t, filepath.Walk(logRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Name() == "slot-events.jsonl" {
			found = path
		}
		return nil
	}))
	require.NotEmpty(t, found, "expected a slot-events.jsonl under %s", logRoot)
	return found
}

// shellAdapter drives /bin/sh scripts as if they were an agent CLI,
// delegating every extraction concern to the real provider helpers so
// these tests exercise the same usage/retry/stop-marker logic a real
// adapter would, without depending on one agent CLI's wire format.
type shellAdapter struct{}

func (shellAdapter) Name() string { return "shell-fake" }
func (shellAdapter) BuildExecArgs(prompt, lastMessagePath string, opts provider.BuildArgsOptions) []string {
	return []string{"-c", prompt}
}
func (shellAdapter) PreviewEntriesFromLine(line string) []model.PreviewEntry { return nil }
func (shellAdapter) CollectMessages(output string) []model.PreviewEntry {
	var entries []model.PreviewEntry
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, model.PreviewEntry{Kind: model.KindMessage, Text: line})
	}
	return entries
}
func (shellAdapter) CollectRawJSONLines(output string, n int) []string { return nil }
func (shellAdapter) ExtractUsageSummary(output string) *model.UsageSummary {
	return provider.ExtractUsageFromJSONLines(output)
}
func (shellAdapter) ExtractRetryDelaySeconds(output string) *int {
	return provider.ExtractRetryDelaySeconds(output)
}
func (shellAdapter) HasStopMarker(text string) bool          { return provider.HasStopMarker(text) }
func (shellAdapter) FormatCommandHint(command string) string { return command }

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based loop fixtures are POSIX-only")
	}
	return "/bin/sh"
}

func fakeTracker(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-tracker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func writePromptFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_SingleCleanPassCompletesAtBudget(t *testing.T) {
	sh := requireShell(t)
	projectRoot := t.TempDir()
	tracker := fakeTracker(t, `echo '[{"id":"task-1","title":"t","status":"open"}]'`)

	opts := model.CliOptions{
		Provider:            "shell-fake",
		IterationLimit:      1,
		ParallelAgents:      1,
		Command:             sh,
		LogDir:              filepath.Join(projectRoot, "logs"),
		DeveloperPromptPath: writePromptFile(t, `echo "Updated issue: task-1 status=in_progress"`),
		BeadMode:            model.BeadModeAuto,
	}

	result := Run(context.Background(), Input{
		ProjectRoot:       projectRoot,
		Options:           opts,
		Provider:          shellAdapter{},
		TaskTrackerBinary: tracker,
		Guard:             shutdown.New(nil),
	})

	assert.Equal(t, OutcomeCompleted, result.Outcome)

	state, err := model.LoadIterationState(StatePath(projectRoot), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current)

	eventsFile := findSlotEventsFile(t, opts.LogDir)
	data, err := os.ReadFile(eventsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"dispatched"`)
	assert.Contains(t, string(data), `"phase":"completed"`)
}

func TestRun_RetryOnThrottleConsumesIterationBudget(t *testing.T) {
	sh := requireShell(t)
	projectRoot := t.TempDir()
	tracker := fakeTracker(t, `echo '[{"id":"task-1","title":"t","status":"open"}]'`)

	opts := model.CliOptions{
		Provider:            "shell-fake",
		IterationLimit:      2,
		ParallelAgents:      1,
		Command:             sh,
		LogDir:              filepath.Join(projectRoot, "logs"),
		DeveloperPromptPath: writePromptFile(t, `echo '{"resets_in_seconds":1}'; exit 1`),
		BeadMode:            model.BeadModeAuto,
	}

	start := time.Now()
	result := Run(context.Background(), Input{
		ProjectRoot:       projectRoot,
		Options:           opts,
		Provider:          shellAdapter{},
		TaskTrackerBinary: tracker,
		Guard:             shutdown.New(nil),
	})
	elapsed := time.Since(start)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.GreaterOrEqual(t, elapsed, time.Second)

	state, err := model.LoadIterationState(StatePath(projectRoot), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Current)
}

func TestRun_StopMarkerSuppressedWhenAllRemainingWorkPicked(t *testing.T) {
	sh := requireShell(t)
	projectRoot := t.TempDir()
	tracker := fakeTracker(t, `echo '[{"id":"task-1","title":"t","status":"open"}]'`)

	opts := model.CliOptions{
		Provider:            "shell-fake",
		IterationLimit:      1,
		ParallelAgents:      1,
		Command:             sh,
		LogDir:              filepath.Join(projectRoot, "logs"),
		DeveloperPromptPath: writePromptFile(t, `echo "Updated issue: task-1"; echo "no_tasks_available"`),
		BeadMode:            model.BeadModeAuto,
	}

	result := Run(context.Background(), Input{
		ProjectRoot:       projectRoot,
		Options:           opts,
		Provider:          shellAdapter{},
		TaskTrackerBinary: tracker,
		Guard:             shutdown.New(nil),
	})

	// Budget was 1, so even a suppressed stop marker ends in "completed"
	// once the loop's while-condition runs out, not "stopped".
	assert.Equal(t, OutcomeCompleted, result.Outcome)
}

func TestRun_StopMarkerTerminatesWhenUnpickedWorkRemains(t *testing.T) {
	sh := requireShell(t)
	projectRoot := t.TempDir()
	tracker := fakeTracker(t, `echo '[{"id":"task-1","title":"t","status":"open"},{"id":"task-2","title":"u","status":"open"}]'`)

	opts := model.CliOptions{
		Provider:            "shell-fake",
		IterationLimit:      5,
		ParallelAgents:      1,
		Command:             sh,
		LogDir:              filepath.Join(projectRoot, "logs"),
		DeveloperPromptPath: writePromptFile(t, `echo "Updated issue: task-1"; echo "no_tasks_available"`),
		BeadMode:            model.BeadModeAuto,
	}

	result := Run(context.Background(), Input{
		ProjectRoot:       projectRoot,
		Options:           opts,
		Provider:          shellAdapter{},
		TaskTrackerBinary: tracker,
		Guard:             shutdown.New(nil),
	})

	assert.Equal(t, OutcomeStopped, result.Outcome)
}

func TestRun_TopLevelScopeExhaustedTerminatesWithoutIncrementingState(t *testing.T) {
	sh := requireShell(t)
	projectRoot := t.TempDir()
	tracker := fakeTracker(t, `echo '[]'`)

	opts := model.CliOptions{
		Provider:            "shell-fake",
		IterationLimit:      5,
		ParallelAgents:      1,
		Command:             sh,
		LogDir:              filepath.Join(projectRoot, "logs"),
		DeveloperPromptPath: writePromptFile(t, `echo nothing to do`),
		BeadMode:            model.BeadModeTopLevel,
		TopLevelTaskID:      "epic-1",
	}

	result := Run(context.Background(), Input{
		ProjectRoot:       projectRoot,
		Options:           opts,
		Provider:          shellAdapter{},
		TaskTrackerBinary: tracker,
		Guard:             shutdown.New(nil),
	})

	assert.Equal(t, OutcomeCompleted, result.Outcome)

	state, err := model.LoadIterationState(StatePath(projectRoot), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Current, "scope-exhausted termination must not consume a budget slot")
}
