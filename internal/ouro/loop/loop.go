// Package loop implements the Loop Controller (C9): the outer state
// machine that persists iteration progress, loads a task snapshot each
// pass, fans a staged-launch iteration out across slots, aggregates the
// results, and decides whether to retry, pause, stop, or terminate.
//
// The outer while-loop shape and its retry/pause/stop decision tree are
// grounded directly on spec.md's §4.9 pseudocode; the per-iteration
// errgroup fan-out generalizes cmd/vc/execute.go's single-executor
// run loop to N concurrent staged slots.
package loop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/ouroboros/internal/ouro/aggregate"
	"github.com/steveyegge/ouroboros/internal/ouro/classify"
	"github.com/steveyegge/ouroboros/internal/ouro/gate"
	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
	"github.com/steveyegge/ouroboros/internal/ouro/render"
	"github.com/steveyegge/ouroboros/internal/ouro/runlog"
	"github.com/steveyegge/ouroboros/internal/ouro/shutdown"
	"github.com/steveyegge/ouroboros/internal/ouro/slot"
	"github.com/steveyegge/ouroboros/internal/ouro/task"
)

// Outcome classifies why Run returned.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
	OutcomeFailed    Outcome = "failed"
)

// Result is the Loop Controller's final report.
type Result struct {
	Outcome Outcome
	Message string
}

// Input bundles everything the outer loop needs for one run.
type Input struct {
	ProjectRoot string
	Options     model.CliOptions

	Provider         provider.Adapter
	ReviewerProvider provider.Adapter

	// TaskTrackerBinary is "tsq" or "bd" (or a test double), invoked by
	// the Task Snapshot Reader once per iteration.
	TaskTrackerBinary string

	Observer render.Observer
	Guard    *shutdown.Guard

	// StatePath overrides the default <project-root>/.ai_agents/iteration.json
	// location; tests set this to a temp file.
	StatePath string
}

// StatePath returns the default persisted-iteration-state path for a
// project root.
func StatePath(projectRoot string) string {
	return filepath.Join(projectRoot, ".ai_agents", "iteration.json")
}

// scopeGuidance is the literal block spec.md's outer loop appends to the
// developer prompt in top-level bead mode. The wording must not drift:
// it is the only instruction the implementer ever receives about scope.
func scopeGuidance(id string) string {
	return fmt.Sprintf("\n\n## Top-level scope\n- Work only on tasks that are direct children of %s.\n- If no remaining scoped tasks exist, emit `no_tasks_available` and stop.\n", id)
}

// Run drives the outer loop to one of its three terminal outcomes:
// iteration budget exhausted (completed), a stop marker accepted
// (stopped), or a fatal iteration failure (failed). It also returns early,
// as completed, on signal-driven shutdown.
func Run(ctx context.Context, in Input) Result {
	if in.Observer == nil {
		in.Observer = render.NoOp{}
	}
	statePath := in.StatePath
	if statePath == "" {
		statePath = StatePath(in.ProjectRoot)
	}

	state, err := model.LoadIterationState(statePath, in.Options.IterationLimit)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Message: err.Error()}
	}
	if state.CircuitBroken() {
		return Result{Outcome: OutcomeCompleted, Message: "iteration budget already exhausted"}
	}

	developerPrompt, err := os.ReadFile(in.Options.DeveloperPromptPath)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Message: fmt.Sprintf("reading developer prompt: %v", err)}
	}

	var reviewerPromptContent string
	if in.Options.ReviewEnabled {
		data, err := os.ReadFile(in.Options.ReviewerPromptPath)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Message: fmt.Sprintf("reading reviewer prompt: %v", err)}
		}
		reviewerPromptContent = string(data)
	}

	reviewerProvider := in.ReviewerProvider
	if reviewerProvider == nil {
		reviewerProvider = in.Provider
	}
	reviewerCommand := in.Options.ReviewerCommand
	if reviewerCommand == "" {
		reviewerCommand = in.Options.Command
	}

	in.Observer.SetRunContext(in.Provider.Name(), in.Options.Command, in.Options.ParallelAgents)

	runDir := filepath.Join(in.Options.LogDir, runlog.RunID())
	events, err := runlog.OpenEventSink(runDir)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Message: fmt.Sprintf("opening run log directory: %v", err)}
	}
	defer events.Close()

	for state.Current < state.Max && !in.Guard.IsShuttingDown() {
		var snapshot model.TaskSnapshot
		if in.Options.BeadMode == model.BeadModeTopLevel {
			if in.Options.TopLevelTaskID == "" {
				return Result{Outcome: OutcomeFailed, Message: "--top-level-bead is required when --bead-mode=top-level"}
			}
			snapshot = task.LoadSnapshot(ctx, in.TaskTrackerBinary, in.ProjectRoot, in.Options.TopLevelTaskID)
			if snapshot.Available && snapshot.Remaining == 0 {
				in.Observer.SetLoopNotice("all scoped tasks complete", render.ToneSuccess)
				return Result{Outcome: OutcomeCompleted, Message: "top-level scope exhausted"}
			}
		} else {
			snapshot = task.LoadSnapshot(ctx, in.TaskTrackerBinary, in.ProjectRoot, "")
		}
		in.Observer.SetTasksSnapshot(snapshot)

		prompt := string(developerPrompt)
		if in.Options.BeadMode == model.BeadModeTopLevel {
			prompt += scopeGuidance(in.Options.TopLevelTaskID)
		}

		state.Current++
		if err := model.SaveIterationState(statePath, state); err != nil {
			return Result{Outcome: OutcomeFailed, Message: err.Error()}
		}
		in.Observer.SetIteration(state.Current, state.Max)
		in.Observer.SetLoopPhase("streaming")

		results := runIteration(ctx, in, runDir, events, state.Current, snapshot, prompt, reviewerProvider, reviewerCommand, reviewerPromptContent)

		in.Observer.SetLoopPhase("collecting")
		agg := aggregate.Run(aggregate.Input{
			Provider:     in.Provider,
			Results:      results,
			TasksByID:    snapshot.ByID,
			RemainingIDs: remainingIDSet(snapshot),
		})

		if len(agg.Failed) > 0 {
			delays, allHaveDelay := collectRetryDelays(in.Provider, agg.Failed)
			if allHaveDelay && state.Current < state.Max {
				wait := maxInt(delays)
				in.Observer.SetLoopNotice(fmt.Sprintf("throttled, retrying in %ds", wait), render.ToneWarn)
				retryCountdown(ctx, in.Guard, in.Observer, wait)
				continue
			}
			in.Observer.SetLoopNotice("iteration failed: "+describeFailures(agg.Failed), render.ToneError)
			return Result{Outcome: OutcomeFailed, Message: describeFailures(agg.Failed)}
		}

		in.Observer.SetIterationSummary(render.IterationSummary{
			Usage:              agg.UsageAggregate,
			PickedTasksByAgent: agg.PickedByAgent,
			NoticeTone:         render.ToneMuted,
		})

		if agg.StopDetected {
			if snapshot.Available && (len(agg.PickedByAgent) == 0 || snapshot.Remaining <= len(agg.PickedByAgent)) {
				continue
			}
			in.Observer.SetLoopNotice("stop marker detected", render.ToneSuccess)
			return Result{Outcome: OutcomeStopped, Message: "stop marker detected"}
		}

		if state.Current < state.Max && in.Options.PauseMs > 0 {
			in.Observer.SetLoopPhase("paused")
			pauseWithCountdown(ctx, in.Guard, in.Observer, in.Options.PauseMs)
		}
	}

	if in.Guard.IsShuttingDown() {
		return Result{Outcome: OutcomeCompleted, Message: "shutting down"}
	}
	return Result{Outcome: OutcomeCompleted, Message: "iteration budget exhausted"}
}

// runIteration fans one iteration's slots out across a fresh Staged-Launch
// Gate and returns each slot's result in agent-id order. Slots run
// concurrently; the errgroup barrier is purely a join point since no slot
// returns an error this package needs to react to (spawn errors surface as
// a non-zero-status-equivalent RunResult instead).
func runIteration(
	ctx context.Context,
	in Input,
	logDir string,
	events *runlog.EventSink,
	iteration int,
	snapshot model.TaskSnapshot,
	prompt string,
	reviewerProvider provider.Adapter,
	reviewerCommand, reviewerPrompt string,
) []model.RunResult {
	g := gate.New()
	defer g.Close()

	startTimestamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	knownIDs := remainingIDSet(snapshot)

	results := make([]model.RunResult, in.Options.ParallelAgents)
	eg, egCtx := errgroup.WithContext(ctx)

	for i := 1; i <= in.Options.ParallelAgents; i++ {
		agentID := i
		eg.Go(func() error {
			paths := runlog.NewPaths(logDir, iteration, agentID, startTimestamp)

			_ = events.Append(runlog.SlotEvent{
				Timestamp: startTimestamp,
				Iteration: iteration,
				AgentID:   agentID,
				Phase:     "dispatched",
			})

			results[agentID-1] = slot.Run(egCtx, slot.Input{
				AgentID:        agentID,
				ParallelAgents: in.Options.ParallelAgents,
				Gate:           g,

				Provider:        in.Provider,
				Command:         in.Options.Command,
				Prompt:          prompt,
				BuildArgsOpts:   provider.BuildArgsOptions{Model: in.Options.Model, ReasoningEffort: in.Options.ReasoningEffort, Yolo: in.Options.Yolo},
				JSONLLogPath:    paths.JSONLLog(),
				LastMessagePath: paths.LastMessage(),

				KnownTaskIDs: knownIDs,

				ReviewEnabled:  in.Options.ReviewEnabled,
				ReviewerPrompt: reviewerPrompt,
				MaxFixAttempts: in.Options.ReviewMaxFixAttempts,
				RepoRoot:       in.ProjectRoot,

				ReviewerProvider:  reviewerProvider,
				ReviewerCommand:   reviewerCommand,
				ReviewerBuildArgs: provider.BuildArgsOptions{Model: in.Options.ReviewerModel, ReasoningEffort: in.Options.ReasoningEffort, Yolo: in.Options.Yolo},
				ReviewLogPath:     paths.ReviewLog,
				FixLogPath:        paths.FixLog,
				ReviewLastMessage: paths.AttemptLastMessage,

				TasksByID: snapshot.ByID,

				OnChildChange: in.Guard.TrackingCallback(),
				Observer:      in.Observer,
			})

			detail := "no-pick"
			if results[agentID-1].PickedTaskID != "" {
				detail = results[agentID-1].PickedTaskID
			}
			_ = events.Append(runlog.SlotEvent{
				Timestamp: time.Now().UTC().Format("2006-01-02T15-04-05Z"),
				Iteration: iteration,
				AgentID:   agentID,
				Phase:     "completed",
				Detail:    detail,
			})
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func remainingIDSet(snapshot model.TaskSnapshot) map[string]struct{} {
	ids := make([]string, 0, len(snapshot.RemainingIssues))
	for _, t := range snapshot.RemainingIssues {
		ids = append(ids, t.ID)
	}
	return classify.KnownIDSet(ids)
}

// collectRetryDelays returns the per-failure retry delay and whether every
// failure in the set carried one. A single failure lacking a parseable
// delay makes the whole iteration non-retryable, per spec's "every failure
// must have a delay" rule.
func collectRetryDelays(p provider.Adapter, failed []aggregate.FailedRun) ([]int, bool) {
	delays := make([]int, 0, len(failed))
	for _, f := range failed {
		d := p.ExtractRetryDelaySeconds(f.CombinedOutput)
		if d == nil {
			return nil, false
		}
		delays = append(delays, *d)
	}
	return delays, true
}

func maxInt(xs []int) int {
	m := 0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

func describeFailures(failed []aggregate.FailedRun) string {
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		status := "killed"
		if f.Status != nil {
			status = fmt.Sprintf("%d", *f.Status)
		}
		parts = append(parts, fmt.Sprintf("agent %d exited %s", f.AgentID, status))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// retryCountdown blocks for seconds, reporting the remaining whole-second
// count to the observer each tick, returning early on shutdown or context
// cancellation.
func retryCountdown(ctx context.Context, guard *shutdown.Guard, obs render.Observer, seconds int) {
	for remaining := seconds; remaining > 0; remaining-- {
		if guard.IsShuttingDown() {
			return
		}
		obs.SetRetryState(remaining)
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// pauseWithCountdown blocks for pauseMs milliseconds, reporting the
// remaining whole-second count (rounded up) to the observer each tick.
func pauseWithCountdown(ctx context.Context, guard *shutdown.Guard, obs render.Observer, pauseMs int) {
	remainingMs := pauseMs
	for remainingMs > 0 {
		if guard.IsShuttingDown() {
			return
		}
		obs.SetPauseState((remainingMs + 999) / 1000)

		step := time.Second
		if remainingMs < 1000 {
			step = time.Duration(remainingMs) * time.Millisecond
		}
		select {
		case <-time.After(step):
		case <-ctx.Done():
			return
		}
		remainingMs -= int(step / time.Millisecond)
	}
}
