package provider

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
)

// usageKeyFieldSets lists the nested-JSON key names adapters look for when
// scanning a line for token usage, in priority order within each field.
var usageKeyFieldSets = [][]string{
	{"input_tokens", "inputTokens", "prompt_tokens"},
	{"cache_read_input_tokens", "cached_input_tokens", "cachedInputTokens"},
	{"output_tokens", "outputTokens", "completion_tokens"},
}

// ExtractUsageFromJSONLines walks every JSON object on its own line in
// output and sums whichever usage fields it finds anywhere in the nested
// structure, using a recursive walk (findFirstInt) so the usage object
// can be nested arbitrarily deeply (as it is for, e.g., a
// {"message":{"usage":{...}}} envelope). Returns nil if no line carried a
// recognizable usage object.
func ExtractUsageFromJSONLines(output string) *model.UsageSummary {
	var found bool
	var summary model.UsageSummary

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (line[0] != '{' && line[0] != '[') {
			continue
		}
		if !gjson.Valid(line) {
			continue
		}
		parsed := gjson.Parse(line)

		in, okIn := findFirstInt(parsed, usageKeyFieldSets[0])
		cached, okCached := findFirstInt(parsed, usageKeyFieldSets[1])
		out, okOut := findFirstInt(parsed, usageKeyFieldSets[2])
		if !okIn && !okCached && !okOut {
			continue
		}
		found = true
		summary.InputTokens += in
		summary.CachedInputTokens += cached
		summary.OutputTokens += out
	}

	if !found {
		return nil
	}
	return &summary
}

// findFirstInt searches result (and, recursively, every nested
// object/array value within it) for the first field whose key matches any
// name in candidates, returning its integer value.
func findFirstInt(result gjson.Result, candidates []string) (int, bool) {
	if result.IsObject() {
		var found int
		var ok bool
		result.ForEach(func(key, value gjson.Result) bool {
			for _, name := range candidates {
				if key.String() == name && value.Type == gjson.Number {
					found = int(value.Int())
					ok = true
					return false
				}
			}
			if value.IsObject() || value.IsArray() {
				if v, nested := findFirstInt(value, candidates); nested {
					found, ok = v, true
					return false
				}
			}
			return true
		})
		return found, ok
	}
	if result.IsArray() {
		var found int
		var ok bool
		result.ForEach(func(_, value gjson.Result) bool {
			if v, nested := findFirstInt(value, candidates); nested {
				found, ok = v, true
				return false
			}
			return true
		})
		return found, ok
	}
	return 0, false
}

// retryDelayKeys are the integer JSON keys recognized anywhere in nested
// output, tried in this order.
var retryDelayKeys = []string{"resets_in_seconds", "reset_seconds", "retry_after_seconds"}

// Natural-language retry delay patterns, grounded on the precompiled
// regex style of internal/ai/retry.go in the teacher repo.
var (
	retryAfterTryAgainRegex = regexp.MustCompile(`(?i)(?:try again|retry)[^0-9]{0,20}(\d+)\s*(second|minute)s?`)
)

// ExtractRetryDelaySeconds looks for an integer retry-delay key anywhere in
// output's nested JSON, then falls back to the natural-language "try
// again in N seconds/minutes" / "retry in N seconds/minutes" pattern.
// Returns nil if neither is present.
func ExtractRetryDelaySeconds(output string) *int {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (line[0] != '{' && line[0] != '[') || !gjson.Valid(line) {
			continue
		}
		if seconds, ok := findFirstInt(gjson.Parse(line), retryDelayKeys); ok {
			return &seconds
		}
	}

	if matches := retryAfterTryAgainRegex.FindStringSubmatch(output); len(matches) == 3 {
		value, err := strconv.Atoi(matches[1])
		if err == nil {
			switch strings.ToLower(matches[2]) {
			case "second":
				return &value
			case "minute":
				seconds := value * 60
				return &seconds
			}
		}
	}

	return nil
}
