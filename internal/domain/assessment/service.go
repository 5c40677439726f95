package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// maxIDAttempts bounds patient ID generation against a crowded store.
const maxIDAttempts = 16

// Recorder receives counters for revisions and reconciliation outcomes.
type Recorder interface {
	RevisionWritten()
	ReconcileDecision(kind string)
}

type nopRecorder struct{}

func (nopRecorder) RevisionWritten()         {}
func (nopRecorder) ReconcileDecision(string) {}

// CreateInput describes a new assessment. PatientID is optional.
type CreateInput struct {
	PatientID string `json:"patientId"`
	Fields    Fields `json:"fields"`
}

// OutcomeInput is a disposition update.
type OutcomeInput struct {
	Outcome     Outcome `json:"outcome" validate:"required,oneof=pending survived deceased discharged transferred"`
	Notes       string  `json:"notes" validate:"max=2000"`
	TimeOfDeath string  `json:"timeOfDeath"`
}

type Service struct {
	store         Store
	writer        *Writer
	engine        *Engine
	validate      *validator.Validate
	logger        zerolog.Logger
	recorder      Recorder
	now           func() time.Time
	followUpAfter time.Duration
}

// NewService wires a Service over store. A nil detector selects the built-in
// field table.
func NewService(store Store, detector *Detector, logger zerolog.Logger) *Service {
	if detector == nil {
		detector = MustDetector()
	}
	s := &Service{
		store:         store,
		writer:        NewWriter(store, detector),
		engine:        NewEngine(detector),
		validate:      validator.New(),
		logger:        logger.With().Str("component", "assessment").Logger(),
		recorder:      nopRecorder{},
		now:           time.Now,
		followUpAfter: DefaultFollowUpAfter,
	}
	s.writer.OnWrite(s.revisionWritten)
	return s
}

// SetClock replaces the time source for the service and its writer.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.writer.SetClock(now)
}

// SetRecorder attaches metrics collection.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// SetFollowUpAfter changes the follow-up window.
func (s *Service) SetFollowUpAfter(d time.Duration) {
	if d > 0 {
		s.followUpAfter = d
	}
}

// Engine returns the reconciliation engine used by Import.
func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) revisionWritten(rec *AssessmentRecord) {
	s.recorder.RevisionWritten()
	var changed []string
	if e, ok := rec.ChangeLog.Latest(); ok {
		changed = e.ChangedFields
	}
	s.logger.Info().
		Str("patient_id", rec.PatientID).
		Int("revision", rec.Revision).
		Str("device", rec.OriginDevice).
		Strs("changed_fields", changed).
		Msg("revision written")
}

func (s *Service) validateFields(f Fields) error {
	if err := s.validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// -- Record Model --

func (s *Service) Create(ctx context.Context, sess Session, in CreateInput) (*AssessmentRecord, error) {
	fields := in.Fields.Clone()
	if fields.Outcome == "" {
		fields.Outcome = OutcomePending
	}
	if err := s.validateFields(fields); err != nil {
		return nil, err
	}

	id, err := s.allocateID(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}

	rec := &AssessmentRecord{
		PatientID:     id,
		Fields:        fields,
		Revision:      1,
		LastUpdatedAt: stamp(s.now()),
		LastUpdatedBy: sess.Author,
		OriginDevice:  sess.DeviceID,
		ChangeLog:     ChangeLog{},
	}
	if err := s.writer.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("patient_id", rec.PatientID).
		Int("revision", rec.Revision).
		Str("device", rec.OriginDevice).
		Msg("record created")
	return rec, nil
}

func (s *Service) allocateID(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		id, err := NormalizePatientID(requested)
		if err != nil {
			return "", err
		}
		taken, err := s.exists(ctx, id)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		return id, nil
	}

	for i := 0; i < maxIDAttempts; i++ {
		id := NewPatientID()
		taken, err := s.exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a free patient id after %d attempts", maxIDAttempts)
}

func (s *Service) exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("look up %s: %w", id, err)
	}
}

func (s *Service) Get(ctx context.Context, patientID string) (*AssessmentRecord, error) {
	id, err := NormalizePatientID(patientID)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// List returns every record, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*AssessmentRecord, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	SortByRecency(records)
	return records, nil
}

// Search returns the records matching query, most recently updated first.
func (s *Service) Search(ctx context.Context, query string) ([]*AssessmentRecord, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*AssessmentRecord, 0, len(records))
	for _, rec := range records {
		if Matches(rec, query) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Edit replaces the record's fields. A submission identical to the stored
// snapshot returns the stored record without writing. Photos are kept from
// the stored record when the submission carries none; an empty list clears
// them. A submission that only changes photos is saved at the current
// revision.
func (s *Service) Edit(ctx context.Context, sess Session, patientID string, fields Fields) (*AssessmentRecord, error) {
	if err := s.validateFields(fields); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if fields.Photos == nil {
		fields.Photos = current.Fields.Photos
	}
	rec, err := s.writer.ApplyEdit(ctx, current, fields, sess)
	if err != nil || rec != current {
		return rec, err
	}
	rec, err = s.writer.SavePhotos(ctx, current, fields.Photos)
	if err == nil && rec != current {
		s.logger.Info().
			Str("patient_id", rec.PatientID).
			Int("revision", rec.Revision).
			Int("photos", len(rec.Fields.Photos)).
			Msg("photos saved")
	}
	return rec, err
}

// UpdateOutcome records a disposition. Time of death is only kept for
// deceased patients. Resubmitting the current outcome writes nothing.
func (s *Service) UpdateOutcome(ctx context.Context, sess Session, patientID string, in OutcomeInput) (*AssessmentRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	current, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	f := current.Fields.Clone()
	f.Outcome = in.Outcome
	f.OutcomeNotes = in.Notes
	f.TimeOfDeath = ""
	if in.Outcome == OutcomeDeceased {
		f.TimeOfDeath = in.TimeOfDeath
	}
	if f.Outcome != current.Fields.Outcome || f.OutcomeNotes != current.Fields.OutcomeNotes || f.TimeOfDeath != current.Fields.TimeOfDeath {
		f.OutcomeTimestamp = s.now().UTC().Format(time.RFC3339)
	}
	return s.writer.ApplyEdit(ctx, current, f, sess)
}

// -- Reconciliation --

// Import reconciles an incoming record against the local copy, if any. The
// store is not touched; pass the decision to Commit to apply it.
func (s *Service) Import(ctx context.Context, incoming *AssessmentRecord, arb Arbitration) (Decision, error) {
	if incoming == nil {
		return Decision{}, fmt.Errorf("%w: no incoming record", ErrInvalidInput)
	}
	local, err := s.store.Get(ctx, incoming.PatientID)
	if errors.Is(err, ErrNotFound) {
		local = nil
	} else if err != nil {
		return Decision{}, fmt.Errorf("look up %s: %w", incoming.PatientID, err)
	}

	d, err := s.engine.Reconcile(local, incoming, arb)
	if errors.Is(err, ErrIdentityMismatch) {
		s.logger.Error().Err(err).Str("patient_id", incoming.PatientID).Msg("reconcile called with mismatched records")
	}
	if err != nil {
		return Decision{}, err
	}

	s.logger.Debug().
		Str("patient_id", incoming.PatientID).
		Str("decision", string(d.Kind)).
		Str("hint", string(d.Hint)).
		Strs("changes", d.Changes).
		Msg("reconciled incoming record")
	return d, nil
}

// Commit applies a decided reconciliation. A conflicted decision must be
// resolved first.
func (s *Service) Commit(ctx context.Context, d Decision) (*AssessmentRecord, error) {
	switch d.Kind {
	case DecisionAdoptIncoming:
		adopted := d.Incoming
		// Attachments never travel, so photos captured on this device
		// survive adoption of a remote snapshot.
		if d.Local != nil && len(d.Local.Fields.Photos) > 0 && len(adopted.Fields.Photos) == 0 {
			adopted = adopted.Clone()
			adopted.Fields.Photos = d.Local.Fields.Clone().Photos
		}
		if err := s.writer.Adopt(ctx, adopted); err != nil {
			return nil, err
		}
		s.recorder.ReconcileDecision(string(d.Kind))
		s.logger.Info().
			Str("patient_id", adopted.PatientID).
			Int("revision", adopted.Revision).
			Str("device", adopted.OriginDevice).
			Msg("incoming record adopted")
		return adopted, nil
	case DecisionKeepLocal:
		s.recorder.ReconcileDecision(string(d.Kind))
		s.logger.Info().
			Str("patient_id", d.Local.PatientID).
			Int("revision", d.Local.Revision).
			Int("incoming_revision", d.Incoming.Revision).
			Msg("local record kept")
		return d.Local, nil
	case DecisionConflicted:
		return nil, ErrUnresolved
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, d.Kind)
	}
}

// -- Derived reads --

func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(records, s.now(), s.followUpAfter), nil
}

// FollowUps returns red, pending patients not updated within the follow-up
// window, oldest update first.
func (s *Service) FollowUps(ctx context.Context) ([]*AssessmentRecord, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []*AssessmentRecord
	for i := len(records) - 1; i >= 0; i-- {
		if NeedsFollowUp(records[i], now, s.followUpAfter) {
			out = append(out, records[i])
		}
	}
	return out, nil
}
