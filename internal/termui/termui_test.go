package termui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
)

var t0 = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func records() (local, incoming *assessment.AssessmentRecord) {
	f := assessment.DefaultFields()
	f.Name = "John Smith"
	f.GCS = "14"
	f.RespiratoryRate = "22"
	local = &assessment.AssessmentRecord{
		PatientID:     "H8K3M7",
		Fields:        f,
		Revision:      3,
		LastUpdatedAt: t0,
		LastUpdatedBy: "medic-a",
		OriginDevice:  "A1B2C3D4",
		ChangeLog: assessment.ChangeLog{
			{Timestamp: t0, Author: "medic-a", Device: "A1B2C3D4", ChangedFields: []string{"gcs"}},
		},
	}
	incoming = local.Clone()
	incoming.Revision = 4
	incoming.LastUpdatedAt = t0.Add(time.Minute)
	incoming.LastUpdatedBy = "medic-b"
	incoming.Fields.GCS = "13"
	incoming.Fields.RespiratoryRate = "24"
	return local, incoming
}

func conflicted(t *testing.T) assessment.Decision {
	t.Helper()
	local, incoming := records()
	d, err := assessment.NewEngine(nil).Reconcile(local, incoming, assessment.ManualArbitration)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return d
}

func TestRecordView(t *testing.T) {
	local, _ := records()
	out := RecordView(local)
	for _, want := range []string{"H8K3M7", "rev 3", "medic-a", "A1B2C3D4", "[green]", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in view:\n%s", want, out)
		}
	}
}

func TestRecordTable(t *testing.T) {
	local, _ := records()
	out := RecordTable([]*assessment.AssessmentRecord{local})
	if !strings.Contains(out, "H8K3M7") || !strings.Contains(out, "John Smith") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if !strings.Contains(RecordTable(nil), "no records") {
		t.Error("expected empty marker")
	}
}

func TestDecisionView_ShowsBothValues(t *testing.T) {
	out := DecisionView(conflicted(t))
	for _, want := range []string{"gcs", "14", "13", "respiratoryRate", "22", "24", "adopt incoming"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in view:\n%s", want, out)
		}
	}
}

func TestDecisionView_NoLocal(t *testing.T) {
	_, incoming := records()
	d, err := assessment.NewEngine(nil).Reconcile(nil, incoming, assessment.ManualArbitration)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !strings.Contains(DecisionView(d), "No local copy") {
		t.Error("expected no-local notice")
	}
}

func TestSettle(t *testing.T) {
	d := conflicted(t)
	asked := 0
	keep := ArbiterFunc(func(assessment.Decision) (assessment.Resolution, error) {
		asked++
		return assessment.KeepLocal, nil
	})

	got, err := Settle(d, keep)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if got.Kind != assessment.DecisionKeepLocal {
		t.Errorf("expected keep local, got %s", got.Kind)
	}

	if _, err := Settle(got, keep); err != nil || asked != 1 {
		t.Errorf("settled decisions must not prompt again (asked %d, err %v)", asked, err)
	}
}

func TestSettle_Aborted(t *testing.T) {
	abort := ArbiterFunc(func(assessment.Decision) (assessment.Resolution, error) {
		return "", ErrAborted
	})
	if _, err := Settle(conflicted(t), abort); !errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", err)
	}
}

func TestStatsView(t *testing.T) {
	local, _ := records()
	st := assessment.ComputeStatistics([]*assessment.AssessmentRecord{local}, t0, time.Hour)
	out := StatsView(st)
	if !strings.Contains(out, "Patients: 1") || !strings.Contains(out, "Mortality: 0.0%") {
		t.Errorf("unexpected stats view:\n%s", out)
	}
}

func TestMessages(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, "stored %s", "H8K3M7")
	Warning(&buf, "kept local")
	Error(&buf, "failed")
	out := buf.String()
	if !strings.Contains(out, "stored H8K3M7") || strings.Count(out, "\n") != 3 {
		t.Errorf("unexpected output %q", out)
	}
}
