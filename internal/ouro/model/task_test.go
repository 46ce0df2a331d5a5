package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestNewTaskSnapshot_OrdersByPriorityThenID(t *testing.T) {
	tasks := []Task{
		{ID: "task-b", Title: "b", Status: StatusOpen, Priority: intp(1)},
		{ID: "task-a", Title: "a", Status: StatusOpen, Priority: intp(1)},
		{ID: "task-z", Title: "z", Status: StatusOpen, Priority: intp(5)},
		{ID: "task-nopriority", Title: "n", Status: StatusOpen},
		{ID: "task-closed", Title: "c", Status: StatusClosed, Priority: intp(99)},
	}

	snap := NewTaskSnapshot("bd", tasks)

	require.Len(t, snap.RemainingIssues, 4)
	assert.Equal(t, []string{"task-z", "task-a", "task-b", "task-nopriority"}, ids(snap.RemainingIssues))
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 4, snap.Remaining)
	assert.Equal(t, 1, snap.Closed)
	assert.True(t, snap.Available)
}

func TestUnavailableSnapshot_ZeroCountersNoPanic(t *testing.T) {
	snap := UnavailableSnapshot("bd", "exit status 1")

	assert.False(t, snap.Available)
	assert.Equal(t, "exit status 1", snap.Error)
	assert.Equal(t, 0, snap.Total)
	assert.Empty(t, snap.RemainingIssues)
	assert.NotNil(t, snap.ByID)
}

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
