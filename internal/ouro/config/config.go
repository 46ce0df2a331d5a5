// Package config loads and merges Ouroboros's TOML configuration layers
// (global then project) and reconciles them with CLI flags, producing a
// fully-resolved model.CliOptions.
//
// The two-layer ReadInConfig/MergeInConfig shape generalizes the
// promoted-from-indirect spf13/viper + pelletier/go-toml/v2 dependency
// pair the teacher repo's go.mod already carries (transitively, via
// cobra's own dependency tree) but never wires directly - this package is
// that wiring.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
)

// GlobalConfigPath returns <HOME>/.ouroboros/config.toml, resolving HOME
// per spec's environment section (POSIX HOME; Windows falls back to
// USERPROFILE, then HOMEDRIVE+HOMEPATH).
func GlobalConfigPath() (string, error) {
	home, err := resolveHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ouroboros", "config.toml"), nil
}

// ProjectConfigPath returns <project-root>/.ouroboros/config.toml.
func ProjectConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".ouroboros", "config.toml")
}

func resolveHome() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	if profile := os.Getenv("USERPROFILE"); profile != "" {
		return profile, nil
	}
	drive, path := os.Getenv("HOMEDRIVE"), os.Getenv("HOMEPATH")
	if drive != "" && path != "" {
		return drive + path, nil
	}
	return "", fmt.Errorf("config: cannot resolve home directory (HOME/USERPROFILE/HOMEDRIVE+HOMEPATH all unset)")
}

// Defaults are the adapter-agnostic fallback values used when neither
// config layer nor a CLI flag sets a field.
func Defaults() model.CliOptions {
	return model.CliOptions{
		Provider:             "claude-code",
		IterationLimit:       10,
		ParallelAgents:       1,
		PreviewLines:         3,
		PauseMs:              0,
		// Command and ReviewerCommand are left unset; the CLI layer
		// resolves them from the chosen provider's default executable
		// (see provider.Lookup) when the user hasn't named one explicitly.
		Command:              "",
		ReviewerCommand:      "",
		ReviewMaxFixAttempts: 2,
		BeadMode:             model.BeadModeAuto,
		LogDir:               ".ouroboros/logs",
		DeveloperPromptPath:  ".ouroboros/prompts/developer.md",
		TaskTrackerBinary:    "bd",
	}
}

// Load merges global config, then project config, then opts (the
// already-flag-resolved CLI layer) on top of Defaults, per CLI > project
// > global > adapter-defaults precedence. Missing config files are not an
// error; a present-but-unreadable config file is.
func Load(projectRoot string, cliOverrides model.CliOptions, cliSet map[string]bool) (model.CliOptions, error) {
	v := viper.New()
	v.SetConfigType("toml")
	bindDefaults(v, Defaults())

	globalPath, err := GlobalConfigPath()
	if err == nil {
		if _, statErr := os.Stat(globalPath); statErr == nil {
			v.SetConfigFile(globalPath)
			if readErr := v.ReadInConfig(); readErr != nil {
				return model.CliOptions{}, fmt.Errorf("config: reading global config %s: %w", globalPath, readErr)
			}
		}
	}

	projectPath := ProjectConfigPath(projectRoot)
	if _, statErr := os.Stat(projectPath); statErr == nil {
		v.SetConfigFile(projectPath)
		if mergeErr := v.MergeInConfig(); mergeErr != nil {
			return model.CliOptions{}, fmt.Errorf("config: reading project config %s: %w", projectPath, mergeErr)
		}
	}

	var merged model.CliOptions
	if err := v.Unmarshal(&merged); err != nil {
		return model.CliOptions{}, fmt.Errorf("config: unmarshaling merged config: %w", err)
	}

	applyCLIOverrides(&merged, cliOverrides, cliSet)
	return merged, nil
}

// bindDefaults seeds viper's defaults layer from d so an unset key at
// every config layer still resolves to something sane.
func bindDefaults(v *viper.Viper, d model.CliOptions) {
	v.SetDefault("provider", d.Provider)
	v.SetDefault("reviewerprovider", d.ReviewerProvider)
	v.SetDefault("iterationlimit", d.IterationLimit)
	v.SetDefault("parallelagents", d.ParallelAgents)
	v.SetDefault("previewlines", d.PreviewLines)
	v.SetDefault("pausems", d.PauseMs)
	v.SetDefault("command", d.Command)
	v.SetDefault("reviewercommand", d.ReviewerCommand)
	v.SetDefault("reviewmaxfixattempts", d.ReviewMaxFixAttempts)
	v.SetDefault("beadmode", string(d.BeadMode))
	v.SetDefault("logdir", d.LogDir)
	v.SetDefault("developerpromptpath", d.DeveloperPromptPath)
	v.SetDefault("tasktrackerbinary", d.TaskTrackerBinary)
}

// applyCLIOverrides copies every field of cliOverrides whose flag was
// actually set by the user (per cliSet) into merged, so an unset flag
// never clobbers a config-file value with a CLI-layer zero value.
func applyCLIOverrides(merged *model.CliOptions, cli model.CliOptions, cliSet map[string]bool) {
	set := func(name string) bool { return cliSet[name] }

	if set("provider") {
		merged.Provider = cli.Provider
	}
	if set("reviewer-provider") {
		merged.ReviewerProvider = cli.ReviewerProvider
	}
	if set("iterations") {
		merged.IterationLimit = cli.IterationLimit
		merged.IterationsSet = true
	}
	if set("parallel") {
		merged.ParallelAgents = cli.ParallelAgents
	}
	if set("preview") {
		merged.PreviewLines = cli.PreviewLines
	}
	if set("pause-ms") {
		merged.PauseMs = cli.PauseMs
	}
	if set("command") {
		merged.Command = cli.Command
	}
	if set("reviewer-command") {
		merged.ReviewerCommand = cli.ReviewerCommand
	}
	if set("model") {
		merged.Model = cli.Model
	}
	if set("reviewer-model") {
		merged.ReviewerModel = cli.ReviewerModel
	}
	if set("reasoning-effort") {
		merged.ReasoningEffort = cli.ReasoningEffort
	}
	if set("yolo") {
		merged.Yolo = cli.Yolo
	}
	if set("log-dir") {
		merged.LogDir = cli.LogDir
	}
	if set("prompt") || set("developer-prompt") {
		merged.DeveloperPromptPath = cli.DeveloperPromptPath
	}
	if set("reviewer-prompt") {
		merged.ReviewerPromptPath = cli.ReviewerPromptPath
	}
	if set("show-raw") {
		merged.ShowRaw = cli.ShowRaw
	}
	if set("review") {
		merged.ReviewEnabled = cli.ReviewEnabled
	}
	if set("review-max-fix-attempts") {
		merged.ReviewMaxFixAttempts = cli.ReviewMaxFixAttempts
	}
	if set("bead-mode") {
		merged.BeadMode = cli.BeadMode
	}
	if set("top-level-bead") {
		merged.TopLevelTaskID = cli.TopLevelTaskID
	}
	if set("theme") {
		merged.Theme = cli.Theme
	}
	if set("task-tracker") {
		merged.TaskTrackerBinary = cli.TaskTrackerBinary
	}
}

// WriteDefaultConfig scaffolds a starter TOML config file at path,
// creating parent directories as needed. It does not overwrite an
// existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	const scaffold = `# Ouroboros configuration
provider = "claude-code"
iterationlimit = 10
parallelagents = 1
previewlines = 3
`
	return os.WriteFile(path, []byte(scaffold), 0o644)
}
