package provider

import "github.com/steveyegge/ouroboros/internal/ouro/provider/agentcli"

// knownProvider pairs an adapter with the default executable name used
// when the caller doesn't override --command.
type knownProvider struct {
	adapter        Adapter
	defaultCommand string
}

// registry lists the provider names this build resolves by default,
// grounded on the two agent CLIs the teacher repo's executor builds
// commands for (internal/executor/agent.go's buildClaudeCodeCommand and
// buildAmpCommand): a JSON-streaming "--print"-style CLI (claude-code)
// and a "--execute"-style CLI (amp), both expressed through the one
// generic agentcli.Adapter this repository ships.
var registry = map[string]knownProvider{
	"claude-code": {
		adapter:        agentcli.New("claude-code", []string{"--verbose", "--output-format", "stream-json"}),
		defaultCommand: "claude",
	},
	"amp": {
		adapter:        agentcli.New("amp", []string{"--stream-json"}),
		defaultCommand: "amp",
	},
}

// Lookup resolves a --provider/--reviewer-provider name to its adapter and
// default executable. The bool is false for an unrecognized name, which
// callers treat as a configuration error (fail-fast, exit 1).
func Lookup(name string) (adapter Adapter, defaultCommand string, ok bool) {
	entry, found := registry[name]
	if !found {
		return nil, "", false
	}
	return entry.adapter, entry.defaultCommand, true
}

// Names returns every registered provider name, for error messages and
// --help text.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
