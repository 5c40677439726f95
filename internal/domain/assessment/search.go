package assessment

import (
	"sort"
	"strings"
)

// Matches reports whether rec satisfies the free-text list filter. An empty
// query matches everything.
func Matches(rec *AssessmentRecord, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	f := rec.Fields
	return strings.Contains(strings.ToLower(rec.PatientID), q) ||
		strings.Contains(strings.ToLower(f.Name), q) ||
		strings.Contains(strings.ToLower(Summary(rec.PatientID, f)), q) ||
		strings.Contains("gcs "+strings.ToLower(f.GCS), q) ||
		(f.Bleeding && strings.Contains("bleeding", q)) ||
		strings.Contains(strings.ToLower(string(f.Outcome)), q)
}

// SortByRecency orders records newest first, breaking ties by patient ID.
func SortByRecency(records []*AssessmentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.LastUpdatedAt.Equal(b.LastUpdatedAt) {
			return a.LastUpdatedAt.After(b.LastUpdatedAt)
		}
		return a.PatientID < b.PatientID
	})
}
