package provider

import (
	"strings"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
)

// Exhaustion marker spellings. no_tasks_available is the current token;
// no_beads_available is the legacy spelling still honored on read per
// spec.md's open question - implementations accept both but only ever
// emit the new one in generated guidance text.
const (
	StopMarkerCurrent = "no_tasks_available"
	StopMarkerLegacy  = "no_beads_available"
)

// HasStopMarker is the shared case-insensitive substring check every
// adapter's HasStopMarker should delegate to, so the accepted spellings
// never drift between adapters.
func HasStopMarker(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, StopMarkerCurrent) || strings.Contains(lower, StopMarkerLegacy)
}

// ShouldStop implements the aggregator's stop-detection rule: true iff the
// final message carries the marker, or any assistant/message-kind preview
// entry does. Tool-kind entries are ignored so a tool echoing the literal
// string (e.g. grepping for it) can't trigger a false stop.
func ShouldStop(adapter Adapter, preview []model.PreviewEntry, lastMessage string) bool {
	if adapter.HasStopMarker(lastMessage) {
		return true
	}
	for _, entry := range preview {
		if entry.Kind != model.KindAssistant && entry.Kind != model.KindMessage {
			continue
		}
		if adapter.HasStopMarker(entry.Text) {
			return true
		}
	}
	return false
}
