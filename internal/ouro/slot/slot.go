// Package slot implements the Slot Runner (C5): drives one parallel agent
// slot through spawn, live pick detection against the stdout stream,
// staged-launch gate release, and (when applicable) the review/fix
// sub-loop.
package slot

import (
	"context"

	"github.com/steveyegge/ouroboros/internal/ouro/classify"
	"github.com/steveyegge/ouroboros/internal/ouro/gate"
	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
	"github.com/steveyegge/ouroboros/internal/ouro/review"
	"github.com/steveyegge/ouroboros/internal/ouro/spawn"
)

// Observer is the narrow slice of the render.Observer interface the Slot
// Runner pushes lifecycle notices to. It is optional; a nil Observer
// disables all notices.
type Observer interface {
	SetAgentQueued(agentID int)
	SetAgentLaunching(agentID int)
	SetAgentPickedTask(agentID int, taskID string)
	SetAgentReviewPhase(agentID int, phase string)
	ClearAgentReviewPhase(agentID int)
}

// Input configures one slot run.
type Input struct {
	AgentID        int
	ParallelAgents int
	Gate           *gate.Gate

	Provider        provider.Adapter
	Command         string
	Prompt          string
	BuildArgsOpts   provider.BuildArgsOptions
	JSONLLogPath    string
	LastMessagePath string

	KnownTaskIDs map[string]struct{}

	ReviewEnabled  bool
	ReviewerPrompt string
	MaxFixAttempts int
	RepoRoot       string

	ReviewerProvider     provider.Adapter
	ReviewerCommand      string
	ReviewerBuildArgs    provider.BuildArgsOptions
	ReviewLogPath        func(attempt int) string
	FixLogPath           func(attempt int) string
	ReviewLastMessage    func(attempt int, phase string) string

	TasksByID map[string]model.Task

	OnChildChange func(spawn.ChildHandle)
	Observer      Observer
}

// Run drives the full slot state machine for one implementer (and,
// conditionally, reviewer/fixer) invocation and returns the slot's
// RunResult.
func Run(ctx context.Context, in Input) model.RunResult {
	if in.AgentID > 1 {
		if in.Observer != nil {
			in.Observer.SetAgentQueued(in.AgentID)
		}
		in.Gate.WaitForPicked(in.AgentID - 1)
	}

	if in.Observer != nil {
		in.Observer.SetAgentLaunching(in.AgentID)
	}

	var released bool
	release := func() {
		if !released {
			released = true
			in.Gate.ReleasePickedReadiness()
		}
	}
	// The gate must be released exactly once even if the process exits
	// silently, so a deferred fallback release always runs after any
	// early return below.
	defer release()

	var pickedTaskID string
	onLine := func(line string) {
		if pickedTaskID != "" {
			return
		}
		if id := detectPick(in.Provider, line, in.KnownTaskIDs); id != "" {
			pickedTaskID = id
			if in.Observer != nil {
				in.Observer.SetAgentPickedTask(in.AgentID, id)
			}
			release()
		}
	}

	result, err := spawn.Run(spawn.RunOptions{
		Prompt:        in.Prompt,
		Command:       in.Command,
		Args:          in.Provider.BuildExecArgs(in.Prompt, in.LastMessagePath, in.BuildArgsOpts),
		LogPath:       in.JSONLLogPath,
		OnChildChange: in.OnChildChange,
		OnStdoutLine:  onLine,
	})
	if err != nil {
		// A spawn failure is reported as a non-zero status so the
		// aggregator lists it as a failed run.
		status := -1
		return model.RunResult{
			AgentID:         in.AgentID,
			JSONLLogPath:    in.JSONLLogPath,
			LastMessagePath: in.LastMessagePath,
			Result:          model.StreamResult{Status: &status},
		}
	}

	if pickedTaskID == "" {
		pickedTaskID = detectPick(in.Provider, result.Combined(), in.KnownTaskIDs)
	}

	run := model.RunResult{
		AgentID:         in.AgentID,
		JSONLLogPath:    in.JSONLLogPath,
		LastMessagePath: in.LastMessagePath,
		Result:          result,
		PickedTaskID:    pickedTaskID,
	}

	implementerExitedClean := result.Status != nil && *result.Status == 0
	if !in.ReviewEnabled || in.ReviewerPrompt == "" || pickedTaskID == "" || !implementerExitedClean {
		return run
	}

	task, known := in.TasksByID[pickedTaskID]
	if !known {
		return run
	}

	if in.Observer != nil {
		in.Observer.SetAgentReviewPhase(in.AgentID, "reviewing")
		defer in.Observer.ClearAgentReviewPhase(in.AgentID)
	}

	outcome := review.Run(ctx, review.Input{
		RepoRoot:             in.RepoRoot,
		Task:                 task,
		ParallelAgents:       in.ParallelAgents,
		MaxFixAttempts:       in.MaxFixAttempts,
		ReviewerSystemPrompt: in.ReviewerPrompt,
		ImplementerOutput:    result.Combined(),
		ImplementerLogPath:   in.JSONLLogPath,
		ReviewerProvider:     in.ReviewerProvider,
		ReviewerOptions:      in.ReviewerBuildArgs,
		ReviewerCommand:      in.ReviewerCommand,
		ImplementerProvider:  in.Provider,
		FixerOptions:         in.BuildArgsOpts,
		FixerCommand:         in.Command,
		LogPathForReview:     in.ReviewLogPath,
		LogPathForFix:        in.FixLogPath,
		LastMessagePath:      in.ReviewLastMessage,
	})
	run.ReviewOutcome = &outcome
	return run
}

// detectPick runs the classifier against both the raw line and, for every
// preview entry the adapter extracts from it, the entry's text, per
// spec's "raw line OR adapter-parsed text, first hit wins" pick-detection
// rule. Returns "" if nothing known was picked.
func detectPick(p provider.Adapter, text string, known map[string]struct{}) string {
	if ids := classify.ExtractReferencedTaskIDs(text, known); len(ids) > 0 {
		return ids[0]
	}
	for _, entry := range p.PreviewEntriesFromLine(text) {
		if ids := classify.ExtractReferencedTaskIDs(entry.Text, known); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}
