// Package runlog derives the deterministic per-run log file layout (one
// directory per run, one raw JSONL + last-message file per slot, plus
// review/fix JSONL variants) and appends a structured SlotEvent JSONL
// timeline alongside the raw logs - a supplemental observability layer
// with no effect on the raw-log contract spec.md § 6 defines.
//
// Grounded on internal/events/parser.go's event-record shape in the
// teacher repo, generalized from regex-derived events to explicit records
// written as things happen (the Loop Controller appends a "dispatched" and
// a "completed" event around each slot run).
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// RunID mints a fresh identifier for one top-level invocation of
// ouroboros, used to disambiguate log directories across runs.
func RunID() string {
	return uuid.NewString()
}

// Paths derives every log file name for one slot's implementer run within
// iteration, given the iteration's start timestamp (an RFC3339-ish,
// filesystem-safe string the Loop Controller stamps once per iteration so
// a retry-on-throttle replay of the same iteration index still produces
// distinct files).
type Paths struct {
	dir           string
	iteration     int
	agentID       int
	startTimestamp string
}

// NewPaths returns a Paths deriving every file name for one slot within
// one iteration.
func NewPaths(logDir string, iteration, agentID int, startTimestamp string) Paths {
	return Paths{dir: logDir, iteration: iteration, agentID: agentID, startTimestamp: startTimestamp}
}

func (p Paths) base() string {
	return fmt.Sprintf("iter-%03d-%s-agent-%02d", p.iteration, p.startTimestamp, p.agentID)
}

// JSONLLog is the raw implementer stdout+stderr capture path.
func (p Paths) JSONLLog() string {
	return filepath.Join(p.dir, p.base()+".jsonl")
}

// LastMessage is the final assistant message path.
func (p Paths) LastMessage() string {
	return filepath.Join(p.dir, p.base()+".last-message.txt")
}

// ReviewLog is the reviewer JSONL path for fix attempt k.
func (p Paths) ReviewLog(attempt int) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s-review-%d.jsonl", p.base(), attempt))
}

// FixLog is the fixer JSONL path for fix attempt k.
func (p Paths) FixLog(attempt int) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s-fix-%d.jsonl", p.base(), attempt))
}

// AttemptLastMessage names the last-message sidecar for a given
// review/fix attempt and phase ("review" or "fix").
func (p Paths) AttemptLastMessage(attempt int, phase string) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s-%s-%d.last-message.txt", p.base(), phase, attempt))
}

// SlotEvent is one structured state-transition record in a slot's
// timeline, the supplemented observability layer this package adds
// alongside the raw JSONL log.
type SlotEvent struct {
	Timestamp string `json:"ts"`
	Iteration int    `json:"iteration"`
	AgentID   int    `json:"agentId"`
	Phase     string `json:"phase"`
	Detail    string `json:"detail,omitempty"`
}

// EventSink appends SlotEvent records to a single JSONL file shared by
// every concurrently running slot in one run; Append is mutex-guarded
// so two slots reporting at once never interleave partial lines.
type EventSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenEventSink opens (creating if absent) the slot-events.jsonl file in
// dir for appending.
func OpenEventSink(dir string) (*EventSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "slot-events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &EventSink{path: path, file: f}, nil
}

// Append writes one SlotEvent as a single JSON line.
func (s *EventSink) Append(event SlotEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(line, '\n'))
	return err
}

// Close closes the underlying file.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
