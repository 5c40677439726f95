package assessment

import (
	"fmt"
	"time"
)

// PriorityStats counts patients of one triage color.
type PriorityStats struct {
	Total    int `json:"total"`
	Deceased int `json:"deceased"`
}

// Statistics summarises a set of records.
type Statistics struct {
	Total          int                        `json:"total"`
	ByOutcome      map[Outcome]int            `json:"by_outcome"`
	MortalityRate  string                     `json:"mortality_rate"`
	Triage         map[Priority]PriorityStats `json:"triage"`
	FollowUpNeeded int                        `json:"follow_up_needed"`
}

// ComputeStatistics aggregates records as of now.
func ComputeStatistics(records []*AssessmentRecord, now time.Time, followUpAfter time.Duration) Statistics {
	st := Statistics{
		Total:     len(records),
		ByOutcome: make(map[Outcome]int, len(Outcomes)),
		Triage: map[Priority]PriorityStats{
			PriorityRed:    {},
			PriorityYellow: {},
			PriorityGreen:  {},
		},
	}
	for _, o := range Outcomes {
		st.ByOutcome[o] = 0
	}

	for _, rec := range records {
		st.ByOutcome[rec.Fields.Outcome]++

		p := TriagePriority(rec.Fields)
		ps := st.Triage[p]
		ps.Total++
		if rec.Fields.Outcome == OutcomeDeceased {
			ps.Deceased++
		}
		st.Triage[p] = ps

		if NeedsFollowUp(rec, now, followUpAfter) {
			st.FollowUpNeeded++
		}
	}

	st.MortalityRate = "0"
	if st.Total > 0 {
		st.MortalityRate = fmt.Sprintf("%.1f", float64(st.ByOutcome[OutcomeDeceased])/float64(st.Total)*100)
	}
	return st
}
