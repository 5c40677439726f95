package assessment

import (
	"time"
)

// Outcome is the disposition of a patient after assessment.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeSurvived    Outcome = "survived"
	OutcomeDeceased    Outcome = "deceased"
	OutcomeDischarged  Outcome = "discharged"
	OutcomeTransferred Outcome = "transferred"
)

// TimestampPrecision is the finest resolution every store keeps. Postgres
// TIMESTAMPTZ stops at microseconds, so mutation times are cut to it before
// they are compared across devices.
const TimestampPrecision = time.Microsecond

func stamp(t time.Time) time.Time { return t.UTC().Truncate(TimestampPrecision) }

// Outcomes lists every valid outcome in display order.
var Outcomes = []Outcome{OutcomePending, OutcomeSurvived, OutcomeDeceased, OutcomeDischarged, OutcomeTransferred}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// Attachment is a binary payload such as a wound photo. Attachments stay on
// the device that captured them.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Fields is the clinical payload of an A-E primary survey.
type Fields struct {
	// Patient
	Name   string `json:"name" validate:"max=200"`
	Age    string `json:"age" validate:"max=16"`
	Gender string `json:"gender" validate:"max=32"`

	// Airway
	AirwayPatent        bool     `json:"airwayPatent"`
	AirwayObstruction   string   `json:"airwayObstruction" validate:"max=500"`
	AirwayInterventions []string `json:"airwayInterventions" validate:"max=32,dive,max=100"`

	// Breathing
	RespiratoryRate   string   `json:"respiratoryRate" validate:"max=16"`
	SpO2              string   `json:"spO2" validate:"max=16"`
	OxygenSupport     string   `json:"oxygenSupport" validate:"max=100"`
	BreathSounds      string   `json:"breathSounds" validate:"max=100"`
	BreathingConcerns []string `json:"breathingConcerns" validate:"max=32,dive,max=100"`

	// Circulation
	HeartRate        string `json:"heartRate" validate:"max=16"`
	BloodPressure    string `json:"bloodPressure" validate:"max=16"`
	CapillaryRefill  string `json:"capillaryRefill" validate:"max=16"`
	PulseQuality     string `json:"pulseQuality" validate:"max=100"`
	Bleeding         bool   `json:"bleeding"`
	BleedingLocation string `json:"bleedingLocation" validate:"max=500"`

	// Disability
	GCS                  string   `json:"gcs" validate:"max=8"`
	Pupils               string   `json:"pupils" validate:"max=100"`
	MotorResponse        string   `json:"motorResponse" validate:"max=100"`
	NeurologicalConcerns []string `json:"neurologicalConcerns" validate:"max=32,dive,max=100"`

	// Exposure
	Temperature      string   `json:"temperature" validate:"max=16"`
	SkinCondition    string   `json:"skinCondition" validate:"max=100"`
	Injuries         []string `json:"injuries" validate:"max=32,dive,max=100"`
	ExposureConcerns string   `json:"exposureConcerns" validate:"max=1000"`

	// Additional
	Location        string       `json:"location" validate:"max=200"`
	AdditionalNotes string       `json:"additionalNotes" validate:"max=4000"`
	Photos          []Attachment `json:"photos,omitempty"`

	// Outcome
	Outcome          Outcome `json:"outcome" validate:"required,oneof=pending survived deceased discharged transferred"`
	OutcomeNotes     string  `json:"outcomeNotes" validate:"max=2000"`
	OutcomeTimestamp string  `json:"outcomeTimestamp,omitempty"`
	TimeOfDeath      string  `json:"timeOfDeath,omitempty"`
}

// DefaultFields returns the values a new assessment form starts with.
func DefaultFields() Fields {
	return Fields{
		AirwayPatent:         true,
		AirwayInterventions:  []string{},
		OxygenSupport:        "Room Air",
		BreathSounds:         "Normal vesicular",
		BreathingConcerns:    []string{},
		CapillaryRefill:      "<2s",
		PulseQuality:         "Strong",
		GCS:                  "15",
		Pupils:               "PEARL",
		MotorResponse:        "Normal",
		NeurologicalConcerns: []string{},
		SkinCondition:        "Normal",
		Injuries:             []string{},
		Outcome:              OutcomePending,
	}
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	out := f
	out.AirwayInterventions = cloneStrings(f.AirwayInterventions)
	out.BreathingConcerns = cloneStrings(f.BreathingConcerns)
	out.NeurologicalConcerns = cloneStrings(f.NeurologicalConcerns)
	out.Injuries = cloneStrings(f.Injuries)
	if f.Photos != nil {
		out.Photos = make([]Attachment, len(f.Photos))
		for i, p := range f.Photos {
			out.Photos[i] = Attachment{Name: p.Name, ContentType: p.ContentType, Data: append([]byte(nil), p.Data...)}
		}
	}
	return out
}

// ChangeLogEntry attributes one accepted mutation.
type ChangeLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Author        string    `json:"author"`
	Device        string    `json:"device"`
	ChangedFields []string  `json:"changedFields"`
}

// AssessmentRecord is one patient's assessment plus its versioning metadata.
// It is the unit of reconciliation between devices.
type AssessmentRecord struct {
	PatientID     string    `json:"patientId"`
	Fields        Fields    `json:"fields"`
	Revision      int       `json:"revision"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"`
	OriginDevice  string    `json:"originDevice"`
	ChangeLog     ChangeLog `json:"changeLog"`
}

// Clone returns a deep copy of r.
func (r *AssessmentRecord) Clone() *AssessmentRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = r.Fields.Clone()
	out.ChangeLog = r.ChangeLog.clone()
	return &out
}

// WithoutAttachments returns a copy of r with binary attachments stripped.
// This is the projection that travels between devices.
func (r *AssessmentRecord) WithoutAttachments() *AssessmentRecord {
	out := r.Clone()
	if out != nil {
		out.Fields.Photos = nil
	}
	return out
}

// Session identifies who is writing on this device. It is owned by the
// surrounding application and passed into every mutating call.
type Session struct {
	Author   string
	DeviceID string
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
