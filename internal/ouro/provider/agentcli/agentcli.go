// Package agentcli implements the one concrete provider.Adapter this
// repository ships: a generic "stream-json" agent CLI adapter. Its
// envelope parsing is grounded on the AgentMessage/AssistantMessage/
// MessageContent shapes in the teacher repo's internal/executor/agent.go,
// rebuilt on top of tidwall/gjson instead of encoding/json structs so a
// malformed or partially-shaped line degrades to "no entries" rather than
// an unmarshal error.
package agentcli

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
	"github.com/steveyegge/ouroboros/internal/ouro/provider"
)

// Adapter drives an agent CLI that accepts --print plus a prompt argument
// and, when streaming is requested, emits one JSON object per line in the
// shape {"type":"assistant","message":{"content":[...]}} /
// {"type":"result",...}.
type Adapter struct {
	name       string
	streamFlag []string
}

// New returns an Adapter identified by name. streamFlag is the argument
// sequence that turns on structured JSON streaming for this particular
// CLI (e.g. []string{"--verbose", "--output-format", "stream-json"}); it
// is appended to every argument list BuildExecArgs returns.
func New(name string, streamFlag []string) *Adapter {
	return &Adapter{name: name, streamFlag: streamFlag}
}

func (a *Adapter) Name() string { return a.name }

// BuildExecArgs renders the CLI's non-interactive invocation: --print,
// --dangerously-skip-permissions when yolo mode is requested, model/effort
// overrides, --last-message-path when a path is given, the streaming flag,
// and finally the prompt itself as the trailing positional argument.
func (a *Adapter) BuildExecArgs(prompt, lastMessagePath string, opts provider.BuildArgsOptions) []string {
	args := []string{"--print"}

	if opts.Yolo {
		args = append(args, "--dangerously-skip-permissions")
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.ReasoningEffort != "" {
		args = append(args, "--reasoning-effort", string(opts.ReasoningEffort))
	}
	if lastMessagePath != "" {
		args = append(args, "--last-message-path", lastMessagePath)
	}
	args = append(args, a.streamFlag...)
	args = append(args, prompt)
	return args
}

// PreviewEntriesFromLine parses one stream-json line. For "assistant"
// events, content items of type "text" become KindAssistant entries,
// "tool_use" items become KindTool entries labeled with the tool name, and
// "thinking" items become KindReasoning entries. A "result" event becomes
// one KindError entry when is_error is set, else one KindMessage entry
// when its result text is non-empty. Any other shape, or invalid JSON,
// yields no entries rather than an error.
func (a *Adapter) PreviewEntriesFromLine(line string) []model.PreviewEntry {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return nil
	}
	parsed := gjson.Parse(line)

	switch parsed.Get("type").String() {
	case "assistant":
		return contentEntries(parsed.Get("message.content"))
	case "result":
		if parsed.Get("is_error").Bool() {
			return []model.PreviewEntry{{Kind: model.KindError, Text: parsed.Get("result").String()}}
		}
		if result := parsed.Get("result").String(); result != "" {
			return []model.PreviewEntry{{Kind: model.KindMessage, Text: result}}
		}
	}
	return nil
}

func contentEntries(content gjson.Result) []model.PreviewEntry {
	if !content.IsArray() {
		return nil
	}
	var entries []model.PreviewEntry
	content.ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			if text := item.Get("text").String(); strings.TrimSpace(text) != "" {
				entries = append(entries, model.PreviewEntry{Kind: model.KindAssistant, Text: text})
			}
		case "tool_use":
			entries = append(entries, model.PreviewEntry{
				Kind:  model.KindTool,
				Label: item.Get("name").String(),
				Text:  item.Get("input").Raw,
			})
		case "thinking":
			if text := item.Get("thinking").String(); strings.TrimSpace(text) != "" {
				entries = append(entries, model.PreviewEntry{Kind: model.KindReasoning, Text: text})
			}
		}
		return true
	})
	return entries
}

// CollectMessages re-derives the full preview entry set from a complete
// run's combined stdout+stderr, one line at a time, for the Aggregator's
// fallback classification pass.
func (a *Adapter) CollectMessages(combinedOutput string) []model.PreviewEntry {
	var entries []model.PreviewEntry
	for _, line := range strings.Split(combinedOutput, "\n") {
		entries = append(entries, a.PreviewEntriesFromLine(line)...)
	}
	return entries
}

// CollectRawJSONLines returns up to n valid-JSON lines from output,
// most-recent-first, for --show-raw diagnostic display.
func (a *Adapter) CollectRawJSONLines(output string, n int) []string {
	if n <= 0 {
		return nil
	}
	var jsonLines []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !gjson.Valid(trimmed) {
			continue
		}
		jsonLines = append(jsonLines, trimmed)
	}
	if len(jsonLines) > n {
		jsonLines = jsonLines[len(jsonLines)-n:]
	}
	for i, j := 0, len(jsonLines)-1; i < j; i, j = i+1, j-1 {
		jsonLines[i], jsonLines[j] = jsonLines[j], jsonLines[i]
	}
	return jsonLines
}

func (a *Adapter) ExtractUsageSummary(output string) *model.UsageSummary {
	return provider.ExtractUsageFromJSONLines(output)
}

func (a *Adapter) ExtractRetryDelaySeconds(output string) *int {
	return provider.ExtractRetryDelaySeconds(output)
}

func (a *Adapter) HasStopMarker(text string) bool {
	return provider.HasStopMarker(text)
}

func (a *Adapter) FormatCommandHint(command string) string {
	return fmt.Sprintf("%s CLI (%s)", a.name, command)
}

var _ provider.Adapter = (*Adapter)(nil)
