// Package classify implements the Bead-Reference Classifier (C4): given
// free text emitted by an agent and the set of known task ids, it decides
// which id (if any) the agent just claimed.
//
// The regex set and the precedence rule between them are load-bearing and
// must not drift: explicit "I just updated issue X" ceremony always wins
// over bare mentions, and bare mentions only count when exactly one known
// id appears. Ambiguous free text (two or more ids, no ceremony) is
// intentionally not a pick.
package classify

import "regexp"

// idPattern matches one tracker id: a lowercase letter, then alphanumerics,
// then one or more "-segment" groups (e.g. "task-1", "bd-a1b2.c3").
const idPattern = `[a-z][a-z0-9]*(?:-[a-z0-9.]+)+`

// explicitPickPatterns is the fixed, ordered set of ceremony markers that
// take precedence over ambiguous free text. Order matters: the first
// pattern to yield a non-empty set of known ids wins outright, even if a
// later pattern in the list would also match.
var explicitPickPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)updated issue:\s*(` + idPattern + `)`),
	regexp.MustCompile(`(?i)updated task:\s*(` + idPattern + `)`),
	regexp.MustCompile(`(?i)\btsq\s+update\s+(` + idPattern + `)`),
	regexp.MustCompile(`(?i)\bbd\s+update\s+(` + idPattern + `)`),
}

var genericIDPattern = regexp.MustCompile(`(?i)` + idPattern)

// ExtractReferencedTaskIDs returns the ordered set of task ids the text
// claims, scoped to knownIDs. See the package doc for the precedence rule.
func ExtractReferencedTaskIDs(text string, knownIDs map[string]struct{}) []string {
	for _, pattern := range explicitPickPatterns {
		matches := pattern.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		picked := uniqueKnown(matches, knownIDs)
		if len(picked) > 0 {
			return picked
		}
	}

	all := genericIDPattern.FindAllString(text, -1)
	unique := dedupeKnown(all, knownIDs)
	if len(unique) == 1 {
		return unique
	}
	return nil
}

// uniqueKnown extracts submatch group 1 from each regex match, keeps only
// ids present in knownIDs, and deduplicates preserving first-occurrence
// order.
func uniqueKnown(matches [][]string, knownIDs map[string]struct{}) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) < 2 {
			continue
		}
		ids = append(ids, m[1])
	}
	return dedupeKnown(ids, knownIDs)
}

func dedupeKnown(candidates []string, knownIDs map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		normalized := normalize(id)
		if _, known := knownIDs[normalized]; !known {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func normalize(id string) string {
	// Tracker ids are case-insensitively matched but stored/compared in
	// their canonical lowercase form.
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// KnownIDSet builds the lookup set ExtractReferencedTaskIDs expects from a
// slice of ids (e.g. TaskSnapshot.RemainingIssues ids).
func KnownIDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[normalize(id)] = struct{}{}
	}
	return set
}
