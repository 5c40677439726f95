package assessment

import (
	"errors"
	"testing"
	"time"
)

func entry(n int) ChangeLogEntry {
	return ChangeLogEntry{
		Timestamp:     time.Date(2024, 3, 9, 14, n, 0, 0, time.UTC),
		Author:        "medic",
		Device:        "A1B2C3D4",
		ChangedFields: []string{"gcs"},
	}
}

func TestChangeLog_AppendNewestFirst(t *testing.T) {
	var log ChangeLog
	for i := 1; i <= 2; i++ {
		var err error
		log, err = log.Append(entry(i))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(log))
	}
	if log[0].Timestamp.Minute() != 2 {
		t.Errorf("expected newest entry first, got minute %d", log[0].Timestamp.Minute())
	}
}

func TestChangeLog_Bounded(t *testing.T) {
	var log ChangeLog
	for i := 1; i <= 5; i++ {
		log, _ = log.Append(entry(i))
	}
	if len(log) != MaxChangeLogEntries {
		t.Fatalf("expected %d entries, got %d", MaxChangeLogEntries, len(log))
	}
	for i, want := range []int{5, 4, 3} {
		if got := log[i].Timestamp.Minute(); got != want {
			t.Errorf("entry %d: expected minute %d, got %d", i, want, got)
		}
	}
}

func TestChangeLog_AppendDoesNotMutateReceiver(t *testing.T) {
	log, _ := ChangeLog{}.Append(entry(1))
	log, _ = log.Append(entry(2))
	log, _ = log.Append(entry(3))

	next, err := log.Append(entry(4))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if log[0].Timestamp.Minute() != 3 || len(log) != 3 {
		t.Error("receiver was modified")
	}
	if next[0].Timestamp.Minute() != 4 {
		t.Error("expected new entry at the front")
	}
}

func TestChangeLog_RejectsEmptyEntry(t *testing.T) {
	log, _ := ChangeLog{}.Append(entry(1))
	got, err := log.Append(ChangeLogEntry{Author: "medic"})
	if !errors.Is(err, ErrEmptyChange) {
		t.Fatalf("expected ErrEmptyChange, got %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected log unchanged, got %d entries", len(got))
	}
}

func TestChangeLog_Latest(t *testing.T) {
	if _, ok := (ChangeLog{}).Latest(); ok {
		t.Error("expected no latest entry for empty log")
	}
	log, _ := ChangeLog{}.Append(entry(7))
	e, ok := log.Latest()
	if !ok || e.Timestamp.Minute() != 7 {
		t.Errorf("unexpected latest entry %+v", e)
	}
}
