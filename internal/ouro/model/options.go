package model

import "fmt"

// ReasoningEffort is the pass-through effort hint given to provider CLIs.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// BeadMode selects whether a run is scoped to all ready work or to the
// direct children of a single top-level task.
type BeadMode string

const (
	BeadModeAuto     BeadMode = "auto"
	BeadModeTopLevel BeadMode = "top-level"
)

// CliOptions is the fully-merged configuration for one run: CLI flags over
// project config over global config over adapter defaults.
type CliOptions struct {
	Provider         string
	ReviewerProvider string

	IterationLimit int
	IterationsSet  bool

	ParallelAgents int
	PreviewLines   int
	PauseMs        int

	Command         string
	ReviewerCommand string
	Model           string
	ReviewerModel   string
	ReasoningEffort  ReasoningEffort
	Yolo             bool

	LogDir              string
	DeveloperPromptPath string
	ReviewerPromptPath  string

	ReviewEnabled        bool
	ReviewMaxFixAttempts int

	BeadMode       BeadMode
	TopLevelTaskID string

	ShowRaw bool

	// TaskTrackerBinary names the external tracker executable the Task
	// Snapshot Reader shells out to ("bd" or "tsq"). Out of scope for the
	// core per spec, but the CLI needs a knob to point at either.
	TaskTrackerBinary string

	// Theme names or paths a renderer resolves independently of this
	// package; the Loop Controller never reads it. Carried here only so
	// config/CLI merging has one place to resolve --theme's precedence.
	Theme string
}

// Validate enforces the bounds spec.md places on CliOptions. It returns the
// first violation found; callers treat any error here as a fail-fast
// configuration error (exit 1, never retried).
func (o CliOptions) Validate() error {
	if o.IterationLimit <= 0 {
		return fmt.Errorf("iteration limit must be positive, got %d", o.IterationLimit)
	}
	if o.ParallelAgents < 1 {
		return fmt.Errorf("parallel agents must be >= 1, got %d", o.ParallelAgents)
	}
	if o.PreviewLines < 1 {
		return fmt.Errorf("preview lines must be >= 1, got %d", o.PreviewLines)
	}
	if o.PauseMs < 0 {
		return fmt.Errorf("pause-ms must be >= 0, got %d", o.PauseMs)
	}
	if o.ReasoningEffort != "" && o.ReasoningEffort != EffortLow && o.ReasoningEffort != EffortMedium && o.ReasoningEffort != EffortHigh {
		return fmt.Errorf("unrecognized reasoning effort %q", o.ReasoningEffort)
	}
	if o.ReviewEnabled && o.ReviewMaxFixAttempts <= 0 {
		return fmt.Errorf("review-max-fix-attempts must be positive, got %d", o.ReviewMaxFixAttempts)
	}
	switch o.BeadMode {
	case BeadModeAuto:
	case BeadModeTopLevel:
		if o.TopLevelTaskID == "" {
			return fmt.Errorf("--top-level-bead is required when --bead-mode=top-level")
		}
	default:
		return fmt.Errorf("unrecognized bead mode %q", o.BeadMode)
	}
	return nil
}
