package assessment

import (
	"strconv"
	"strings"
	"time"
)

// Priority is the triage color of a patient.
type Priority string

const (
	PriorityRed    Priority = "red"
	PriorityYellow Priority = "yellow"
	PriorityGreen  Priority = "green"
)

// DefaultFollowUpAfter is how long a red, pending patient may go without an
// update before being flagged.
const DefaultFollowUpAfter = 2 * time.Hour

// gcsScore parses the GCS field; unreadable values count as a normal 15.
func gcsScore(f Fields) int {
	n, err := strconv.Atoi(strings.TrimSpace(f.GCS))
	if err != nil || n == 0 {
		return 15
	}
	return n
}

// TriagePriority classifies f into red, yellow or green.
func TriagePriority(f Fields) Priority {
	gcs := gcsScore(f)
	switch {
	case gcs < 9 || f.Bleeding || len(f.NeurologicalConcerns) > 0:
		return PriorityRed
	case gcs < 13 || len(f.BreathingConcerns) > 0:
		return PriorityYellow
	default:
		return PriorityGreen
	}
}

// NeedsFollowUp reports whether rec is a red, still-pending patient that has
// not been updated within window.
func NeedsFollowUp(rec *AssessmentRecord, now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultFollowUpAfter
	}
	return TriagePriority(rec.Fields) == PriorityRed &&
		rec.Fields.Outcome == OutcomePending &&
		now.Sub(rec.LastUpdatedAt) > window
}
