package assessment

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// Writer is the only code path that changes a record's revision. Local edits
// and accepted incoming records both go through it.
type Writer struct {
	store    Store
	detector *Detector
	now      func() time.Time
	onWrite  func(*AssessmentRecord)
}

// NewWriter returns a Writer persisting to store.
func NewWriter(store Store, detector *Detector) *Writer {
	if detector == nil {
		detector = MustDetector()
	}
	return &Writer{store: store, detector: detector, now: time.Now}
}

// SetClock replaces the writer's time source.
func (w *Writer) SetClock(now func() time.Time) { w.now = now }

// OnWrite registers a hook called after every successful revision bump.
func (w *Writer) OnWrite(fn func(*AssessmentRecord)) { w.onWrite = fn }

// ApplyEdit saves newFields as the next revision of current. When nothing
// tracked changed, current is returned as-is and the store is not touched.
// On a store failure the original record is returned with a
// *PersistenceError.
func (w *Writer) ApplyEdit(ctx context.Context, current *AssessmentRecord, newFields Fields, s Session) (*AssessmentRecord, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: no record to edit", ErrInvalidInput)
	}

	changes := w.detector.Diff(current.Fields, newFields)
	if len(changes) == 0 {
		return current, nil
	}

	now := stamp(w.now())
	next := current.Clone()
	next.Fields = newFields.Clone()
	next.Revision = current.Revision + 1
	next.LastUpdatedAt = now
	next.LastUpdatedBy = s.Author
	next.OriginDevice = s.DeviceID

	log, err := current.ChangeLog.Append(ChangeLogEntry{
		Timestamp:     now,
		Author:        s.Author,
		Device:        s.DeviceID,
		ChangedFields: changes,
	})
	if err != nil {
		return current, err
	}
	next.ChangeLog = log

	if err := w.store.Put(ctx, next); err != nil {
		return current, &PersistenceError{PatientID: next.PatientID, Revision: next.Revision, Err: err}
	}
	if w.onWrite != nil {
		w.onWrite(next)
	}
	return next, nil
}

// SavePhotos stores photos on current without touching its revision,
// timestamps or change log. Photos stay on the device and take no part in
// reconciliation. If photos already match, current is returned unwritten.
func (w *Writer) SavePhotos(ctx context.Context, current *AssessmentRecord, photos []Attachment) (*AssessmentRecord, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: no record to edit", ErrInvalidInput)
	}
	if samePhotos(current.Fields.Photos, photos) {
		return current, nil
	}
	next := current.Clone()
	next.Fields.Photos = Fields{Photos: photos}.Clone().Photos
	if err := w.store.Put(ctx, next); err != nil {
		return current, &PersistenceError{PatientID: next.PatientID, Revision: next.Revision, Err: err}
	}
	return next, nil
}

func samePhotos(a, b []Attachment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].ContentType != b[i].ContentType || !bytes.Equal(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}

// Create persists a brand-new record.
func (w *Writer) Create(ctx context.Context, rec *AssessmentRecord) error {
	if err := w.store.Put(ctx, rec); err != nil {
		return &PersistenceError{PatientID: rec.PatientID, Revision: rec.Revision, Err: err}
	}
	return nil
}

// Adopt persists incoming verbatim. Its revision, attribution and change log
// become authoritative; nothing is recomputed.
func (w *Writer) Adopt(ctx context.Context, incoming *AssessmentRecord) error {
	if err := w.store.Put(ctx, incoming); err != nil {
		return &PersistenceError{PatientID: incoming.PatientID, Revision: incoming.Revision, Err: err}
	}
	return nil
}
