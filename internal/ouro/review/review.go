// Package review implements the Review/Fix Sub-Loop (C7): after an
// implementer slot exits cleanly and picks a task, optionally drive a
// reviewer process against the working-tree diff, and a fixer process
// when the reviewer reports drift, up to a configured attempt ceiling.
//
// The diff-snapshot exec pattern is grounded on internal/git/git.go's
// GetDiff (CommandContext, Output()); the strict verdict extraction is
// grounded on internal/ai/json_parser.go's first-brace/last-brace
// extraction strategy, simplified because this contract requires an
// object (never a code fence or an array).
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
	"github.com/steveyegge/ouroboros/internal/ouro/spawn"
)

const (
	diffTimeout        = 15 * time.Second
	diffMaxBytes       = 1 << 20 // 1 MiB
	truncatedBlockSize = 50_000
)

// Input carries everything one slot's review/fix sub-loop needs. It is
// only invoked when ReviewEnabled, ReviewerPrompt is non-empty, PickedTaskID
// is known, and the implementer exited 0.
type Input struct {
	RepoRoot string

	Task           model.Task
	ParallelAgents int
	MaxFixAttempts int

	ReviewerSystemPrompt string
	ImplementerOutput    string
	ImplementerLogPath   string

	ReviewerProvider provider.Adapter
	ReviewerOptions  provider.BuildArgsOptions
	ReviewerCommand  string

	ImplementerProvider provider.Adapter
	FixerOptions        provider.BuildArgsOptions
	FixerCommand        string

	// LogPathForReview/LogPathForFix return the JSONL path for the given
	// attempt number K, so the caller controls the
	// iter-<NNN>-agent-<MM>-review-<K>.jsonl naming scheme.
	LogPathForReview func(attempt int) string
	LogPathForFix    func(attempt int) string
	LastMessagePath  func(attempt int, phase string) string
}

// Run drives the review/fix sub-loop to completion and returns its
// terminal outcome.
func Run(ctx context.Context, in Input) model.SlotReviewOutcome {
	implementerOutput := in.ImplementerOutput
	implementerLogPath := in.ImplementerLogPath
	previousFollowUp := ""

	for attempt := 0; attempt <= in.MaxFixAttempts; attempt++ {
		diff := snapshotDiff(ctx, in.RepoRoot)
		block := buildReviewerContext(in.Task, attempt, previousFollowUp, implementerOutput, implementerLogPath, diff, in.ParallelAgents)
		prompt := in.ReviewerSystemPrompt + "\n\n" + block

		reviewLog := in.LogPathForReview(attempt)
		reviewLastMessage := in.LastMessagePath(attempt, "review")
		args := in.ReviewerProvider.BuildExecArgs(prompt, reviewLastMessage, in.ReviewerOptions)

		result, err := spawn.Run(spawn.RunOptions{
			Command: in.ReviewerCommand,
			Args:    args,
			LogPath: reviewLog,
		})
		if err != nil {
			return model.SlotReviewOutcome{
				Passed:      false,
				FixAttempts: attempt,
				FailureReason: fmt.Sprintf("reviewer process failed to start: %v", err),
			}
		}
		if result.Status == nil || *result.Status != 0 {
			status := -1
			if result.Status != nil {
				status = *result.Status
			}
			return model.SlotReviewOutcome{
				Passed:        false,
				FixAttempts:   attempt,
				FailureReason: fmt.Sprintf("reviewer process exited with status %d", status),
			}
		}

		verdict := ParseVerdict(result.Stdout)
		if verdict.Kind == model.VerdictContractViolation {
			return model.SlotReviewOutcome{
				Passed:        false,
				FixAttempts:   attempt,
				LastVerdict:   &verdict,
				FailureReason: fmt.Sprintf("reviewer contract violation: %s", verdict.Reason),
			}
		}

		if verdict.Kind == model.VerdictPass {
			return model.SlotReviewOutcome{Passed: true, FixAttempts: attempt, LastVerdict: &verdict}
		}

		// drift
		if attempt == in.MaxFixAttempts {
			return model.SlotReviewOutcome{
				Passed:        false,
				FixAttempts:   in.MaxFixAttempts,
				LastVerdict:   &verdict,
				FailureReason: fmt.Sprintf("drift unresolved after %d fix attempt(s)", in.MaxFixAttempts),
			}
		}

		fixPrompt := fmt.Sprintf(
			"The reviewer found drift in your implementation of task %s: %s\n\nReviewer feedback:\n%s\n\nPlease fix the issues described above.",
			in.Task.ID, in.Task.Title, verdict.FollowUpPrompt,
		)
		fixLog := in.LogPathForFix(attempt + 1)
		fixLastMessage := in.LastMessagePath(attempt+1, "fix")
		fixArgs := in.ImplementerProvider.BuildExecArgs(fixPrompt, fixLastMessage, in.FixerOptions)

		fixResult, err := spawn.Run(spawn.RunOptions{
			Command: in.FixerCommand,
			Args:    fixArgs,
			LogPath: fixLog,
		})
		if err != nil {
			return model.SlotReviewOutcome{
				Passed:        false,
				FixAttempts:   attempt + 1,
				LastVerdict:   &verdict,
				FailureReason: fmt.Sprintf("fixer process failed to start: %v", err),
			}
		}
		if fixResult.Status == nil || *fixResult.Status != 0 {
			status := -1
			if fixResult.Status != nil {
				status = *fixResult.Status
			}
			return model.SlotReviewOutcome{
				Passed:        false,
				FixAttempts:   attempt + 1,
				LastVerdict:   &verdict,
				FailureReason: fmt.Sprintf("fixer process exited with status %d", status),
			}
		}

		implementerOutput = fixResult.Combined()
		implementerLogPath = fixLog
		previousFollowUp = verdict.FollowUpPrompt
	}

	// Unreachable: the loop above always returns by attempt == MaxFixAttempts.
	return model.SlotReviewOutcome{Passed: false, FixAttempts: in.MaxFixAttempts, FailureReason: "review loop exhausted without a terminal verdict"}
}

// snapshotDiff runs `git diff HEAD` with a 15s timeout and 1MiB cap,
// substituting a placeholder on any failure so a dirty or unreadable
// working tree never blocks the review loop.
func snapshotDiff(ctx context.Context, repoRoot string) string {
	ctx, cancel := context.WithTimeout(ctx, diffTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "diff", "HEAD")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "(git diff unavailable)"
	}

	diff := out.String()
	if len(diff) > diffMaxBytes {
		diff = diff[:diffMaxBytes]
	}
	return diff
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func buildReviewerContext(task model.Task, attempt int, previousFollowUp, implementerOutput, implementerLogPath, diff string, parallelAgents int) string {
	var b strings.Builder

	priority := "unset"
	if task.Priority != nil {
		priority = fmt.Sprintf("%d", *task.Priority)
	}
	fmt.Fprintf(&b, "Task: %s — %s\nStatus: %s\nPriority: %s\n\n", task.ID, task.Title, task.Status, priority)

	if attempt > 0 {
		fmt.Fprintf(&b, "## Fix attempt %d\nPrevious reviewer feedback:\n%s\n\n", attempt, previousFollowUp)
	}

	fmt.Fprintf(&b, "## Implementer output (log: %s)\n%s\n\n", implementerLogPath, truncate(implementerOutput, truncatedBlockSize))
	fmt.Fprintf(&b, "## Working tree diff\n%s\n\n", truncate(diff, truncatedBlockSize))

	if parallelAgents > 1 {
		fmt.Fprintf(&b, "Note: this run has %d parallel agents active; review only the changes relevant to task %s.\n\n", parallelAgents, task.ID)
	}

	b.WriteString("Respond with a single JSON object and nothing else that matters: {\"verdict\":\"pass\"|\"drift\",\"followUpPrompt\":\"<string>\"}.\n")
	return b.String()
}

// ParseVerdict implements the strict reviewer wire contract: locate the
// first '{' and last '}' in the trimmed response, require the slice to
// parse as a plain JSON object (never an array) with a valid verdict and
// a string followUpPrompt. Any deviation is a contract violation.
func ParseVerdict(raw string) model.ReviewVerdict {
	trimmed := strings.TrimSpace(raw)

	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end < 0 || end < start {
		return model.ReviewVerdict{Kind: model.VerdictContractViolation, Reason: "no JSON object found", Raw: raw}
	}

	candidate := trimmed[start : end+1]

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return model.ReviewVerdict{Kind: model.VerdictContractViolation, Reason: "response is not a JSON object: " + err.Error(), Raw: raw}
	}

	verdictRaw, ok := obj["verdict"].(string)
	if !ok || (verdictRaw != string(model.VerdictPass) && verdictRaw != string(model.VerdictDrift)) {
		return model.ReviewVerdict{Kind: model.VerdictContractViolation, Reason: "verdict must be \"pass\" or \"drift\"", Raw: raw}
	}

	followUp, ok := obj["followUpPrompt"].(string)
	if !ok {
		return model.ReviewVerdict{Kind: model.VerdictContractViolation, Reason: "followUpPrompt must be a string", Raw: raw}
	}

	return model.ReviewVerdict{Kind: model.VerdictKind(verdictRaw), FollowUpPrompt: followUp, Raw: raw}
}
