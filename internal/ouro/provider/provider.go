// Package provider defines the Provider Adapter contract (C3): the
// polymorphic boundary between the iteration engine and whatever agent CLI
// is actually being driven. Implementations must be stateless and safe to
// call concurrently from every slot in an iteration.
//
// internal/ouro/provider/agentcli holds the one concrete adapter this
// repository ships; additional agent CLIs plug in by implementing Adapter
// the same way.
package provider

import "github.com/steveyegge/ouroboros/internal/ouro/model"

// BuildArgsOptions carries the subset of model.CliOptions an adapter needs
// to build its exec argument list, kept narrow so adapters don't import
// the whole options struct and couple to unrelated fields.
type BuildArgsOptions struct {
	Model           string
	ReasoningEffort model.ReasoningEffort
	Yolo            bool
}

// Adapter parses one agent CLI's conventions: how to invoke it, how to
// read its stdout, and how to recognize usage/retry/stop signals in that
// output.
type Adapter interface {
	// Name identifies the adapter for CLI --provider selection and error
	// messages.
	Name() string

	// BuildExecArgs returns the argument list for the executable given a
	// prompt and the path the provider should write its final message to.
	BuildExecArgs(prompt, lastMessagePath string, opts BuildArgsOptions) []string

	// PreviewEntriesFromLine parses one stdout line into zero or more
	// preview entries. It must tolerate non-JSON and malformed lines by
	// returning an empty slice, never an error.
	PreviewEntriesFromLine(line string) []model.PreviewEntry

	// CollectMessages extracts the full set of preview entries from a
	// complete (stdout+stderr) run output, used by the Aggregator's final
	// fallback classification pass.
	CollectMessages(combinedOutput string) []model.PreviewEntry

	// CollectRawJSONLines returns up to n lines from output that look like
	// JSON, most-recent-first, for diagnostic display with --show-raw.
	CollectRawJSONLines(output string, n int) []string

	// ExtractUsageSummary returns token usage if the output contains it,
	// or nil if no usage datum is present. A parse failure is "missing
	// datum", never an error.
	ExtractUsageSummary(output string) *model.UsageSummary

	// ExtractRetryDelaySeconds returns a retry-after hint if the output
	// carries one, or nil.
	ExtractRetryDelaySeconds(output string) *int

	// HasStopMarker reports whether text contains the exhaustion token.
	HasStopMarker(text string) bool

	// FormatCommandHint renders a human-readable description of command
	// for error messages (e.g. "claude-code CLI (command)").
	FormatCommandHint(command string) string
}
