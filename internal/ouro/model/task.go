// Package model holds the data types shared across every Ouroboros
// component: tasks, snapshots, options, and the per-iteration results that
// flow from the Slot Runner up through the Aggregator to the Loop
// Controller.
package model

import "sort"

// TaskStatus is the normalized status of a tracker issue.
type TaskStatus string

const (
	StatusOpen        TaskStatus = "open"
	StatusInProgress  TaskStatus = "in_progress"
	StatusBlocked     TaskStatus = "blocked"
	StatusClosed      TaskStatus = "closed"
	StatusDeferred    TaskStatus = "deferred"
)

// Task is a read-only view of one tracker issue. Identity is ID; a Task is
// immutable for the lifetime of the TaskSnapshot that produced it.
type Task struct {
	ID       string
	Title    string
	Status   TaskStatus
	Priority *int
	Assignee string
}

// TaskSnapshot is the tracker's state as of the start of one iteration. It
// is produced once by the Task Snapshot Reader and never mutated.
type TaskSnapshot struct {
	Available bool
	Source    string
	Error     string

	Total       int
	Remaining   int
	Open        int
	InProgress  int
	Blocked     int
	Closed      int
	Deferred    int

	// RemainingIssues is sorted by (priority desc, id asc), filtered to
	// status != closed.
	RemainingIssues []Task
	ByID            map[string]Task
}

// priorityValue returns the task's priority, defaulting missing priorities
// to -1 so they sort after any explicitly prioritized task.
func priorityValue(t Task) int {
	if t.Priority == nil {
		return -1
	}
	return *t.Priority
}

// NewTaskSnapshot builds a TaskSnapshot from a flat list of tasks, applying
// the ordering and counting rules of the snapshot contract. Closed tasks
// are counted in Total and Closed but always dropped from RemainingIssues.
func NewTaskSnapshot(source string, tasks []Task) TaskSnapshot {
	snap := TaskSnapshot{
		Available: true,
		Source:    source,
		ByID:      make(map[string]Task, len(tasks)),
	}

	remaining := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		snap.ByID[t.ID] = t
		snap.Total++
		switch t.Status {
		case StatusOpen:
			snap.Open++
		case StatusInProgress:
			snap.InProgress++
		case StatusBlocked:
			snap.Blocked++
		case StatusClosed:
			snap.Closed++
		case StatusDeferred:
			snap.Deferred++
		}
		if t.Status != StatusClosed {
			remaining = append(remaining, t)
		}
	}

	sort.SliceStable(remaining, func(i, j int) bool {
		pi, pj := priorityValue(remaining[i]), priorityValue(remaining[j])
		if pi != pj {
			return pi > pj
		}
		return remaining[i].ID < remaining[j].ID
	})

	snap.RemainingIssues = remaining
	snap.Remaining = len(remaining)
	return snap
}

// UnavailableSnapshot builds the zero-counter snapshot returned when the
// tracker binary fails or produces unparseable JSON. It never panics or
// propagates the underlying error - the diagnostic is carried in Error.
func UnavailableSnapshot(source, diagnostic string) TaskSnapshot {
	return TaskSnapshot{
		Available: false,
		Source:    source,
		Error:     diagnostic,
		ByID:      map[string]Task{},
	}
}
