package termui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
)

const timeLayout = "2006-01-02 15:04:05Z07:00"

const summaryWidth = 72

// RecordView renders one record with its summary and recent change history.
func RecordView(rec *assessment.AssessmentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s\n",
		Styles.Title.Render(rec.PatientID),
		Badge(assessment.TriagePriority(rec.Fields)),
		Styles.Muted.Render(fmt.Sprintf("rev %d", rec.Revision)))
	b.WriteString(lipgloss.NewStyle().Width(summaryWidth).Render(assessment.Summary(rec.PatientID, rec.Fields)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n", Styles.Label.Render("Outcome:"), rec.Fields.Outcome)
	fmt.Fprintf(&b, "%s %s by %s on %s\n", Styles.Label.Render("Updated:"),
		rec.LastUpdatedAt.Format(timeLayout), rec.LastUpdatedBy, rec.OriginDevice)

	if len(rec.ChangeLog) > 0 {
		b.WriteString(Styles.Label.Render("Recent changes:"))
		for _, e := range rec.ChangeLog {
			fmt.Fprintf(&b, "\n  %s  %s  %s",
				e.Timestamp.Format(timeLayout), e.Author, strings.Join(e.ChangedFields, ", "))
		}
	}
	return Styles.Box.Render(b.String())
}

// RecordTable renders one line per record, in the order given.
func RecordTable(records []*assessment.AssessmentRecord) string {
	if len(records) == 0 {
		return Styles.Muted.Render("no records")
	}
	var b strings.Builder
	b.WriteString(Styles.Header.Render(fmt.Sprintf("%-8s %-8s %-12s %-24s %s", "ID", "TRIAGE", "OUTCOME", "NAME", "UPDATED")))
	for _, rec := range records {
		p := assessment.TriagePriority(rec.Fields)
		// Pad before styling so escape codes do not skew the column.
		badge := Badge(p) + strings.Repeat(" ", max(0, 8-len(p)-2))
		fmt.Fprintf(&b, "\n%-8s %s %-12s %-24s %s",
			rec.PatientID, badge, rec.Fields.Outcome, truncate(rec.Fields.Name, 24),
			rec.LastUpdatedAt.Format(timeLayout))
	}
	return b.String()
}

// DecisionView shows what reconciling an incoming record would do, including
// both values of every changed field.
func DecisionView(d assessment.Decision) string {
	var b strings.Builder
	in := d.Incoming
	fmt.Fprintf(&b, "%s %s\n", Styles.Title.Render("Incoming"), in.PatientID)

	if d.Local == nil {
		b.WriteString("No local copy; the incoming record will be stored.\n")
		fmt.Fprintf(&b, "%s rev %d, %s by %s", Styles.Label.Render("Incoming:"),
			in.Revision, in.LastUpdatedAt.Format(timeLayout), in.LastUpdatedBy)
		return Styles.Box.Render(b.String())
	}

	fmt.Fprintf(&b, "%s rev %d, %s by %s\n", Styles.Label.Render("Local:   "),
		d.Local.Revision, d.Local.LastUpdatedAt.Format(timeLayout), d.Local.LastUpdatedBy)
	fmt.Fprintf(&b, "%s rev %d, %s by %s\n", Styles.Label.Render("Incoming:"),
		in.Revision, in.LastUpdatedAt.Format(timeLayout), in.LastUpdatedBy)

	if len(d.Changes) == 0 {
		b.WriteString(Styles.Muted.Render("No tracked fields differ.") + "\n")
	} else {
		b.WriteString("\n" + Styles.Header.Render(fmt.Sprintf("%-20s %-22s %s", "FIELD", "LOCAL", "INCOMING")))
		for _, name := range d.Changes {
			fmt.Fprintf(&b, "\n%-20s %-22s %s", name,
				truncate(assessment.FieldText(d.Local.Fields, name), 22),
				assessment.FieldText(in.Fields, name))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%s %s", Styles.Label.Render("Suggested:"), hintText(d.Hint))
	return Styles.Box.Render(b.String())
}

func hintText(r assessment.Resolution) string {
	if r == assessment.AdoptIncoming {
		return "adopt incoming (newer)"
	}
	return "keep local (incoming is not newer)"
}

// StatsView renders the outcome and triage breakdown.
func StatsView(st assessment.Statistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", Styles.Label.Render("Patients:"), st.Total)
	for _, o := range assessment.Outcomes {
		fmt.Fprintf(&b, "  %-12s %d\n", o, st.ByOutcome[o])
	}
	fmt.Fprintf(&b, "%s %s%%\n", Styles.Label.Render("Mortality:"), st.MortalityRate)
	for _, p := range []assessment.Priority{assessment.PriorityRed, assessment.PriorityYellow, assessment.PriorityGreen} {
		ps := st.Triage[p]
		fmt.Fprintf(&b, "  %s %d (%d deceased)\n", Badge(p), ps.Total, ps.Deceased)
	}
	fmt.Fprintf(&b, "%s %d", Styles.Label.Render("Need follow-up:"), st.FollowUpNeeded)
	return Styles.Box.Render(b.String())
}

// SyncView renders a sync report.
func SyncView(r assessment.SyncReport, took time.Duration) string {
	return fmt.Sprintf("pulled %d, pushed %d, unchanged %d, failed %d (%s)",
		r.Pulled, r.Pushed, r.Kept, r.Failed, took.Round(time.Millisecond))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
