package assessment

import (
	"fmt"
)

// Resolution is a side picked for a reconciliation.
type Resolution string

const (
	AdoptIncoming Resolution = "adopt_incoming"
	KeepLocal     Resolution = "keep_local"
)

// ParseResolution accepts "adopt"/"keep" and the full resolution names.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "adopt", string(AdoptIncoming):
		return AdoptIncoming, nil
	case "keep", string(KeepLocal):
		return KeepLocal, nil
	}
	return "", fmt.Errorf("%w: unknown resolution %q", ErrInvalidInput, s)
}

// DecisionKind is the outcome of one reconciliation attempt.
type DecisionKind string

const (
	DecisionAdoptIncoming DecisionKind = "adopt_incoming"
	DecisionKeepLocal     DecisionKind = "keep_local"
	// DecisionConflicted leaves the choice to the caller. Hint carries the
	// timestamp-based default selection.
	DecisionConflicted DecisionKind = "conflicted"
)

// Arbitration controls whether the engine commits to its timestamp-based
// choice or hands the comparison back to the caller.
type Arbitration struct {
	Manual bool
}

var (
	AutoArbitration   = Arbitration{}
	ManualArbitration = Arbitration{Manual: true}
)

// Decision is the result of Reconcile. Local is nil when the device had no
// record for the patient. Changes lists differing fields for display only.
type Decision struct {
	Kind     DecisionKind      `json:"kind"`
	Hint     Resolution        `json:"hint"`
	Incoming *AssessmentRecord `json:"incoming"`
	Local    *AssessmentRecord `json:"local,omitempty"`
	Changes  []string          `json:"changes"`
}

// Resolve turns a conflicted decision into a committed choice.
func (d Decision) Resolve(choice Resolution) (Decision, error) {
	if d.Kind != DecisionConflicted {
		return d, fmt.Errorf("%w: decision is already %s", ErrInvalidInput, d.Kind)
	}
	switch choice {
	case AdoptIncoming:
		d.Kind = DecisionAdoptIncoming
	case KeepLocal:
		d.Kind = DecisionKeepLocal
	default:
		return d, fmt.Errorf("%w: unknown resolution %q", ErrInvalidInput, choice)
	}
	return d, nil
}

// Record returns the record that is authoritative after the decision.
func (d Decision) Record() *AssessmentRecord {
	if d.Kind == DecisionAdoptIncoming || d.Local == nil {
		return d.Incoming
	}
	return d.Local
}

// Engine decides between a locally held record and an incoming one with the
// same patient ID. Records are replaced whole: the later lastUpdatedAt wins
// and there is no per-field merge. Device clocks may disagree, which is why
// callers should route decisions through manual arbitration before commit.
type Engine struct {
	detector *Detector
}

// NewEngine returns an Engine using detector for the comparison view.
func NewEngine(detector *Detector) *Engine {
	if detector == nil {
		detector = MustDetector()
	}
	return &Engine{detector: detector}
}

// Reconcile compares local (nil when absent) with incoming.
func (e *Engine) Reconcile(local, incoming *AssessmentRecord, arb Arbitration) (Decision, error) {
	if incoming == nil {
		return Decision{}, fmt.Errorf("%w: no incoming record", ErrInvalidInput)
	}

	if local == nil {
		return Decision{
			Kind:     DecisionAdoptIncoming,
			Hint:     AdoptIncoming,
			Incoming: incoming,
			Changes:  []string{},
		}, nil
	}

	if local.PatientID != incoming.PatientID {
		return Decision{}, fmt.Errorf("%w: local %q, incoming %q", ErrIdentityMismatch, local.PatientID, incoming.PatientID)
	}

	d := Decision{
		Hint:     KeepLocal,
		Incoming: incoming,
		Local:    local,
		Changes:  e.detector.Diff(local.Fields, incoming.Fields),
	}
	// Ties keep the resident record.
	if incoming.LastUpdatedAt.After(local.LastUpdatedAt) {
		d.Hint = AdoptIncoming
	}

	switch {
	case arb.Manual:
		d.Kind = DecisionConflicted
	case d.Hint == AdoptIncoming:
		d.Kind = DecisionAdoptIncoming
	default:
		d.Kind = DecisionKeepLocal
	}
	return d, nil
}
