// Package aggregate implements the Iteration Aggregator (C8): folding one
// iteration's slot results into a single summary the Loop Controller acts
// on - accumulated usage, the failed-slot list, stop-marker detection, and
// late pick classification for any slot that never asserted a pick live.
package aggregate

import (
	"fmt"
	"os"
	"strings"

	"github.com/steveyegge/ouroboros/internal/ouro/classify"
	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
)

// FailedRun is one slot's contribution to the iteration's failure list,
// covering both real process failures (Status non-nil, non-zero) and
// synthetic review failures (Status nil).
type FailedRun struct {
	AgentID        int
	Status         *int
	CombinedOutput string
	Result         model.RunResult
}

// Output is what the Loop Controller consumes after one iteration.
type Output struct {
	PickedByAgent map[int]string
	UsageAggregate model.UsageSummary
	Failed         []FailedRun
	StopDetected   bool
	ReviewOutcomes map[int]*model.SlotReviewOutcome
}

// Input bundles one iteration's raw slot results with the context needed
// to fold them.
type Input struct {
	Provider     provider.Adapter
	Results      []model.RunResult
	TasksByID    map[string]model.Task
	RemainingIDs map[string]struct{}
}

// Run applies the aggregation algorithm to one iteration's results,
// in slot-id order.
func Run(in Input) Output {
	out := Output{
		PickedByAgent:  make(map[int]string),
		ReviewOutcomes: make(map[int]*model.SlotReviewOutcome),
	}

	for _, r := range in.Results {
		combined := r.Result.Combined()

		pickedID := r.PickedTaskID
		if pickedID == "" {
			if ids := classify.ExtractReferencedTaskIDs(combined, in.RemainingIDs); len(ids) > 0 {
				pickedID = ids[0]
			}
		}
		if pickedID != "" {
			out.PickedByAgent[r.AgentID] = pickedID
		}

		if r.Result.Status != nil && *r.Result.Status != 0 {
			out.Failed = append(out.Failed, FailedRun{
				AgentID:        r.AgentID,
				Status:         r.Result.Status,
				CombinedOutput: combined,
				Result:         r,
			})
		}

		if usage := in.Provider.ExtractUsageSummary(combined); usage != nil {
			out.UsageAggregate = out.UsageAggregate.Add(*usage)
		}

		lastMessage := readLastMessage(r.LastMessagePath)
		preview := in.Provider.CollectMessages(combined)
		if provider.ShouldStop(in.Provider, preview, lastMessage) {
			out.StopDetected = true
		}

		if r.ReviewOutcome != nil {
			out.ReviewOutcomes[r.AgentID] = r.ReviewOutcome
			if !r.ReviewOutcome.Passed {
				out.Failed = append(out.Failed, FailedRun{
					AgentID:        r.AgentID,
					Status:         nil,
					CombinedOutput: fmt.Sprintf("review failed for agent %d: %s", r.AgentID, r.ReviewOutcome.FailureReason),
					Result:         r,
				})
			}
		}
	}

	return out
}

func readLastMessage(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
