// Package render implements the Observer contract spec.md's design notes
// call out: a possibly-absent sink for loop/slot lifecycle notices. The
// core never depends on an Observer's presence for correctness; Terminal
// is the one concrete implementation this repository ships, styled after
// cmd/vc/event_display.go's color-coded, emoji-prefixed status lines.
package render

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
)

// NoticeTone selects the color an Observer uses for a loop notice, per
// spec.md's terminal notice taxonomy.
type NoticeTone string

const (
	ToneMuted   NoticeTone = "muted"
	ToneInfo    NoticeTone = "info"
	ToneWarn    NoticeTone = "warn"
	ToneError   NoticeTone = "error"
	ToneSuccess NoticeTone = "success"
)

// IterationSummary is pushed once per completed iteration.
type IterationSummary struct {
	Usage              model.UsageSummary
	PickedTasksByAgent map[int]string
	Notice             string
	NoticeTone         NoticeTone
}

// Observer is the full lifecycle sink spec.md's design notes enumerate.
// Every method must tolerate being called on a nil-safe wrapper; Ouroboros
// itself never calls through a nil Observer directly (see NoOp).
type Observer interface {
	SetIteration(current, max int)
	Update()
	SetTasksSnapshot(snapshot model.TaskSnapshot)
	SetRunContext(provider, command string, parallelAgents int)
	SetIterationSummary(summary IterationSummary)
	SetLoopNotice(message string, tone NoticeTone)
	SetPauseState(remainingSeconds int)
	SetRetryState(remainingSeconds int)
	SetLoopPhase(phase string)
	SetAgentPickedTask(agentID int, taskID string)
	SetAgentQueued(agentID int)
	SetAgentLaunching(agentID int)
	SetAgentReviewPhase(agentID int, phase string)
	ClearAgentReviewPhase(agentID int)
	Notice(message string)
	Stop()
}

// NoOp is the zero-cost Observer used when rendering is disabled (e.g.
// --show-raw). Selecting it does not echo child output to the terminal.
type NoOp struct{}

func (NoOp) SetIteration(current, max int)                    {}
func (NoOp) Update()                                           {}
func (NoOp) SetTasksSnapshot(snapshot model.TaskSnapshot)      {}
func (NoOp) SetRunContext(provider, command string, n int)    {}
func (NoOp) SetIterationSummary(summary IterationSummary)      {}
func (NoOp) SetLoopNotice(message string, tone NoticeTone)     {}
func (NoOp) SetPauseState(remainingSeconds int)                {}
func (NoOp) SetRetryState(remainingSeconds int)                {}
func (NoOp) SetLoopPhase(phase string)                         {}
func (NoOp) SetAgentPickedTask(agentID int, taskID string)     {}
func (NoOp) SetAgentQueued(agentID int)                        {}
func (NoOp) SetAgentLaunching(agentID int)                     {}
func (NoOp) SetAgentReviewPhase(agentID int, phase string)     {}
func (NoOp) ClearAgentReviewPhase(agentID int)                 {}
func (NoOp) Notice(message string)                             {}
func (NoOp) Stop()                                              {}

var _ Observer = NoOp{}

// Terminal is the default renderer: plain, color-coded status lines
// written to an io.Writer, one per state change, guarded by a mutex since
// slots report concurrently.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	iterCurrent, iterMax int
}

// NewTerminal returns a Terminal writing to os.Stdout with ANSI color
// enabled unless NO_COLOR is set (fatih/color already honors NO_COLOR
// globally).
func NewTerminal() *Terminal {
	return &Terminal{out: os.Stdout}
}

var _ Observer = (*Terminal)(nil)

func toneColor(tone NoticeTone) *color.Color {
	switch tone {
	case ToneWarn:
		return color.New(color.FgYellow)
	case ToneError:
		return color.New(color.FgRed)
	case ToneSuccess:
		return color.New(color.FgGreen)
	case ToneInfo:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgHiBlack)
	}
}

func (t *Terminal) SetIteration(current, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.iterCurrent, t.iterMax = current, max
	fmt.Fprintf(t.out, "%s iteration %d/%d\n", color.CyanString("▶"), current, max)
}

func (t *Terminal) Update() {}

func (t *Terminal) SetTasksSnapshot(snapshot model.TaskSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !snapshot.Available {
		fmt.Fprintf(t.out, "%s task snapshot unavailable: %s\n", color.YellowString("⚠"), snapshot.Error)
		return
	}
	fmt.Fprintf(t.out, "  tasks: %d remaining of %d total\n", snapshot.Remaining, snapshot.Total)
}

func (t *Terminal) SetRunContext(providerName, command string, parallelAgents int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  provider=%s command=%s parallel=%d\n", providerName, command, parallelAgents)
}

func (t *Terminal) SetIterationSummary(summary IterationSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  usage: in=%d cached=%d out=%d\n",
		summary.Usage.InputTokens, summary.Usage.CachedInputTokens, summary.Usage.OutputTokens)
	for agentID, taskID := range summary.PickedTasksByAgent {
		fmt.Fprintf(t.out, "  agent %d picked %s\n", agentID, taskID)
	}
	if summary.Notice != "" {
		toneColor(summary.NoticeTone).Fprintf(t.out, "  %s\n", summary.Notice)
	}
}

func (t *Terminal) SetLoopNotice(message string, tone NoticeTone) {
	t.mu.Lock()
	defer t.mu.Unlock()
	toneColor(tone).Fprintf(t.out, "%s\n", message)
}

func (t *Terminal) SetPauseState(remainingSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\r  pausing, %ds remaining ", remainingSeconds)
}

func (t *Terminal) SetRetryState(remainingSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\r  retrying after throttle, %ds remaining ", remainingSeconds)
}

func (t *Terminal) SetLoopPhase(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  phase: %s\n", phase)
}

func (t *Terminal) SetAgentPickedTask(agentID int, taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  %s agent %d picked %s\n", color.GreenString("●"), agentID, taskID)
}

func (t *Terminal) SetAgentQueued(agentID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  agent %d queued\n", agentID)
}

func (t *Terminal) SetAgentLaunching(agentID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  %s agent %d launching\n", color.CyanString("▶"), agentID)
}

func (t *Terminal) SetAgentReviewPhase(agentID int, phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  agent %d review phase: %s\n", agentID, phase)
}

func (t *Terminal) ClearAgentReviewPhase(agentID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "  agent %d review phase cleared\n", agentID)
}

func (t *Terminal) Notice(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	color.New(color.FgYellow).Fprintf(t.out, "%s\n", message)
}

func (t *Terminal) Stop() {}
