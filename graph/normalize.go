package graph

import "strings"

// NormalizeStats reports what Normalize removed.
type NormalizeStats struct {
	Dropped    int // subject or object name empty after trimming
	Duplicates int // structurally equal to an earlier triple
}

// Normalize replaces invalid UTF-8 in names with U+FFFD, trims them, drops triples without an addressable subject or
// object, and removes duplicates while keeping first-occurrence order.
func Normalize(triples []Triple) ([]Triple, NormalizeStats) {
	var stats NormalizeStats
	seen := make(map[Triple]struct{}, len(triples))
	out := make([]Triple, 0, len(triples))

	for _, t := range triples {
		t.SubjectName = cleanName(t.SubjectName)
		t.ObjectName = cleanName(t.ObjectName)
		if t.SubjectName == "" || t.ObjectName == "" {
			stats.Dropped++
			continue
		}
		if _, dup := seen[t]; dup {
			stats.Duplicates++
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, stats
}

// cleanName makes a name valid UTF-8 so every sink and the script see the
// same bytes.
func cleanName(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))
}
