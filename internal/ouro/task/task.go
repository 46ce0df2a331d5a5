// Package task implements the Task Snapshot Reader (C1): a single
// subprocess call to the project's external task tracker binary ("tsq" or
// "bd"), normalized into a model.TaskSnapshot.
//
// The subprocess-and-CombinedOutput shape is grounded on
// cmd/vc/doctor.go's runBdImport in the teacher repo; field normalization
// mirrors the Status/IssueID naming conventions in internal/types/types.go.
package task

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
)

const readTimeout = 15 * time.Second

// rawRecord is the permissive shape one tracker record is decoded into
// before normalization. Trackers disagree on exact field names, so each
// logical field lists every alias this reader accepts.
type rawRecord struct {
	id       string
	title    string
	status   string
	priority *int
	assignee string
	parentID string
}

// LoadSnapshot invokes binary (e.g. "tsq" or "bd") against projectRoot to
// list ready/open work, optionally scoped to the direct children of
// topLevelTaskID, and returns a normalized TaskSnapshot. Any failure to
// run the binary or parse its output yields an UnavailableSnapshot rather
// than an error, per spec: task availability is a runtime signal, not a
// fatal condition.
func LoadSnapshot(ctx context.Context, binary, projectRoot, topLevelTaskID string) model.TaskSnapshot {
	args := []string{"list", "--json"}
	if topLevelTaskID != "" {
		args = append(args, "--parent", topLevelTaskID)
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.UnavailableSnapshot(binary, strings.TrimSpace(string(output))+": "+err.Error())
	}

	records, err := parseRecords(output)
	if err != nil {
		return model.UnavailableSnapshot(binary, err.Error())
	}

	tasks := make([]model.Task, 0, len(records))
	for _, rec := range records {
		if topLevelTaskID != "" && rec.parentID != "" && rec.parentID != topLevelTaskID {
			continue
		}
		tasks = append(tasks, model.Task{
			ID:       rec.id,
			Title:    rec.title,
			Status:   model.TaskStatus(rec.status),
			Priority: rec.priority,
			Assignee: rec.assignee,
		})
	}

	return model.NewTaskSnapshot(binary, tasks)
}

// parseRecords accepts either a bare JSON array of records or an envelope
// object with an "issues" or "tasks" array, since the two tracker CLIs in
// the pack (beads and tsq) disagree on the top-level shape.
func parseRecords(output []byte) ([]rawRecord, error) {
	if !gjson.ValidBytes(output) {
		return nil, errInvalidJSON(output)
	}
	parsed := gjson.ParseBytes(output)

	var list gjson.Result
	switch {
	case parsed.IsArray():
		list = parsed
	case parsed.Get("issues").IsArray():
		list = parsed.Get("issues")
	case parsed.Get("tasks").IsArray():
		list = parsed.Get("tasks")
	default:
		return nil, errInvalidJSON(output)
	}

	var records []rawRecord
	list.ForEach(func(_, item gjson.Result) bool {
		records = append(records, normalizeRecord(item))
		return true
	})
	return records, nil
}

func normalizeRecord(item gjson.Result) rawRecord {
	rec := rawRecord{
		id:       firstString(item, "id", "issue_id", "key"),
		title:    firstString(item, "title", "summary", "name"),
		status:   strings.ToLower(strings.TrimSpace(firstString(item, "status"))),
		assignee: firstString(item, "assignee", "owner"),
		parentID: firstString(item, "parent_id", "parent", "epic_id"),
	}
	if rec.status == "" {
		rec.status = string(model.StatusOpen)
	}
	if p := firstResult(item, "priority", "pri"); p.Exists() {
		switch p.Type {
		case gjson.Number:
			v := int(p.Int())
			rec.priority = &v
		case gjson.String:
			if v, err := strconv.Atoi(p.String()); err == nil {
				rec.priority = &v
			}
		}
	}
	return rec
}

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func firstResult(item gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

type jsonError struct {
	snippet string
}

func (e *jsonError) Error() string {
	return "task tracker output is not valid JSON: " + e.snippet
}

func errInvalidJSON(output []byte) error {
	snippet := string(output)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return &jsonError{snippet: snippet}
}
