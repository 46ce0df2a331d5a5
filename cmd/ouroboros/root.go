// Package main wires the cobra root command that glues config loading,
// provider resolution, the Shutdown Guard, and the Loop Controller
// together - the same "flags in init(), logic in Run" shape the teacher
// repo's cmd/vc subcommand files use, generalized to Ouroboros's single
// top-level verb instead of vc's per-noun subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/steveyegge/ouroboros/internal/ouro/config"
	"github.com/steveyegge/ouroboros/internal/ouro/loop"
	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
	"github.com/steveyegge/ouroboros/internal/ouro/render"
	"github.com/steveyegge/ouroboros/internal/ouro/shutdown"
)

var cliFlags model.CliOptions

var rootCmd = &cobra.Command{
	Use:   "ouroboros",
	Short: "Drive an AI coding agent in a supervised, repeated loop",
	Long: `Ouroboros repeatedly invokes an external AI coding-agent CLI against a
project repository, harvests which tracker issue each agent run claimed,
token usage, and a conversational preview, and optionally drives a
reviewer/fixer sub-loop before moving to the next iteration.

It stops on an exhaustion marker from the agent, a fatal spawn failure, or
the configured iteration limit - whichever comes first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOuroboros(cmd)
	},
}

func main() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setFlags reports which flags the user actually typed, so
// applyCLIOverrides never clobbers a config-file value with a CLI-layer
// zero default. --no-yolo/--no-review are negations of --yolo/--review;
// they're folded onto the positive flag's config key here since
// applyCLIOverrides only knows about the latter.
func setFlags(flags *pflag.FlagSet) map[string]bool {
	set := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "no-yolo":
			set["yolo"] = true
		case "no-review":
			set["review"] = true
		default:
			set[f.Name] = true
		}
	})
	return set
}

func runOuroboros(cmd *cobra.Command) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	if noYolo, _ := cmd.Flags().GetBool("no-yolo"); noYolo {
		cliFlags.Yolo = false
	}
	if noReview, _ := cmd.Flags().GetBool("no-review"); noReview {
		cliFlags.ReviewEnabled = false
	}

	opts, err := config.Load(projectRoot, cliFlags, setFlags(cmd.Flags()))
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	implAdapter, implDefaultCommand, ok := provider.Lookup(opts.Provider)
	if !ok {
		return fmt.Errorf("configuration error: unknown provider %q (known: %v)", opts.Provider, provider.Names())
	}
	if opts.Command == "" {
		opts.Command = implDefaultCommand
	}

	var reviewerAdapter provider.Adapter
	if opts.ReviewEnabled {
		reviewerName := opts.ReviewerProvider
		if reviewerName == "" {
			reviewerName = opts.Provider
		}
		adapter, defaultCommand, ok := provider.Lookup(reviewerName)
		if !ok {
			return fmt.Errorf("configuration error: unknown reviewer provider %q (known: %v)", reviewerName, provider.Names())
		}
		reviewerAdapter = adapter
		if opts.ReviewerCommand == "" {
			opts.ReviewerCommand = defaultCommand
		}

		if opts.ReviewerPromptPath == "" {
			discovered := filepath.Join(projectRoot, ".ouroboros", "prompts", "reviewer.md")
			if _, statErr := os.Stat(discovered); statErr != nil {
				return fmt.Errorf("configuration error: --reviewer-prompt is required when --review is set and %s does not exist", discovered)
			}
			opts.ReviewerPromptPath = discovered
		}
	}

	if _, statErr := os.Stat(opts.DeveloperPromptPath); statErr != nil {
		return fmt.Errorf("configuration error: developer prompt %s: %w", opts.DeveloperPromptPath, statErr)
	}

	var observer render.Observer = render.NewTerminal()
	if opts.ShowRaw {
		observer = render.NoOp{}
	}

	guard := shutdown.New(observer)
	guard.Arm()
	defer guard.Finalize()

	ctx := context.Background()
	result := loop.Run(ctx, loop.Input{
		ProjectRoot:       projectRoot,
		Options:           opts,
		Provider:          implAdapter,
		ReviewerProvider:  reviewerAdapter,
		TaskTrackerBinary: opts.TaskTrackerBinary,
		Observer:          observer,
		Guard:             guard,
	})
	observer.Stop()

	switch result.Outcome {
	case loop.OutcomeCompleted, loop.OutcomeStopped:
		if guard.IsShuttingDown() {
			os.Exit(guard.ExitCode())
		}
		fmt.Println(result.Message)
		return nil
	default:
		return fmt.Errorf("%s", result.Message)
	}
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVar(&cliFlags.Provider, "provider", "", "implementer adapter name")
	flags.StringVar(&cliFlags.ReviewerProvider, "reviewer-provider", "", "reviewer adapter name (default: primary)")
	flags.StringVarP(&cliFlags.DeveloperPromptPath, "prompt", "p", "", "implementer prompt file")
	flags.StringVar(&cliFlags.DeveloperPromptPath, "developer-prompt", "", "implementer prompt file (alias of --prompt)")
	flags.StringVar(&cliFlags.ReviewerPromptPath, "reviewer-prompt", "", "reviewer prompt file")
	flags.IntVarP(&cliFlags.IterationLimit, "iterations", "n", 0, "maximum iteration count")
	flags.IntVarP(&cliFlags.PreviewLines, "preview", "l", 0, "preview line count")
	flags.IntVarP(&cliFlags.ParallelAgents, "parallel", "P", 0, "parallel agent slot count")
	flags.IntVar(&cliFlags.PauseMs, "pause-ms", 0, "pause between iterations, in milliseconds")
	flags.StringVarP(&cliFlags.Command, "command", "c", "", "implementer executable")
	flags.StringVar(&cliFlags.ReviewerCommand, "reviewer-command", "", "reviewer executable")
	flags.StringVarP(&cliFlags.Model, "model", "m", "", "implementer model id")
	flags.StringVar(&cliFlags.ReviewerModel, "reviewer-model", "", "reviewer model id")
	flags.StringVar((*string)(&cliFlags.ReasoningEffort), "reasoning-effort", "", "low|medium|high")
	flags.BoolVar(&cliFlags.Yolo, "yolo", false, "autonomy mode")
	flags.Bool("no-yolo", false, "disable autonomy mode")
	flags.StringVar(&cliFlags.LogDir, "log-dir", "", "log output directory")
	flags.BoolVar(&cliFlags.ShowRaw, "show-raw", false, "disable the rich renderer (child output is not echoed to the terminal)")
	flags.BoolVar(&cliFlags.ReviewEnabled, "review", false, "enable the review/fix sub-loop")
	flags.Bool("no-review", false, "disable the review/fix sub-loop")
	flags.IntVar(&cliFlags.ReviewMaxFixAttempts, "review-max-fix-attempts", 0, "maximum fix attempts per slot")
	flags.StringVar((*string)(&cliFlags.BeadMode), "bead-mode", "", "auto|top-level")
	flags.StringVar(&cliFlags.TopLevelTaskID, "top-level-bead", "", "top-level task id (required when --bead-mode=top-level)")
	flags.StringVar(&cliFlags.Theme, "theme", "", "UI theme name or path")
	flags.StringVar(&cliFlags.TaskTrackerBinary, "task-tracker", "", "task tracker executable (bd or tsq)")

	rootCmd.AddCommand(initCmd)
}
