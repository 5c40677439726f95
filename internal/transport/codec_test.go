package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
)

var t0 = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func sampleRecord() *assessment.AssessmentRecord {
	f := assessment.DefaultFields()
	f.Name = "Jane Roe"
	f.Gender = "F"
	f.Age = "34"
	f.GCS = "14"
	f.RespiratoryRate = "22"
	f.CapillaryRefill = "<2s"
	f.BreathingConcerns = []string{"Wheeze"}
	f.Photos = []assessment.Attachment{{Name: "wound.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8}}}
	return &assessment.AssessmentRecord{
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
}

func newCodec() *Codec {
	return &Codec{Now: func() time.Time { return t0.Add(time.Minute) }}
}

func TestRoundTrip_StripsAttachments(t *testing.T) {
	c := newCodec()
	rec := sampleRecord()

	blob, err := c.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := rec.WithoutAttachments()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	if len(rec.Fields.Photos) != 1 {
		t.Error("Encode must not mutate the caller's record")
	}
}

func TestEncode_EnvelopeShape(t *testing.T) {
	blob, err := newCodec().Encode(sampleRecord())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Contains(blob, []byte("wound.jpg")) {
		t.Error("encoded blob carries attachment data")
	}

	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema %s, got %s", SchemaVersion, env.SchemaVersion)
	}
	if env.PatientID != "H8K3M7" {
		t.Errorf("expected patient H8K3M7, got %s", env.PatientID)
	}
	if !strings.HasPrefix(env.Summary, "Patient ID: H8K3M7 | Patient Name: Jane Roe") {
		t.Errorf("unexpected summary %q", env.Summary)
	}
	if env.Checksum != checksum(env.Record) {
		t.Errorf("checksum %s does not cover record bytes", env.Checksum)
	}
}

func encodeEnvelope(t *testing.T, mutate func(*Envelope)) []byte {
	t.Helper()
	blob, err := newCodec().Encode(sampleRecord())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	mutate(&env)
	out, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return out
}

func withRecord(t *testing.T, env *Envelope, mutate func(*assessment.AssessmentRecord)) {
	t.Helper()
	var rec assessment.AssessmentRecord
	if err := json.Unmarshal(env.Record, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	mutate(&rec)
	body, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	env.Record = body
	env.Checksum = checksum(body)
}

func TestDecode_Failures(t *testing.T) {
	valid, err := newCodec().Encode(sampleRecord())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tests := []struct {
		name string
		blob []byte
		kind Kind
		is   error
	}{
		{"empty", nil, KindTruncated, ErrTruncated},
		{"cut short", valid[:len(valid)/2], KindTruncated, ErrTruncated},
		{"not json", []byte("hello there"), KindMalformed, ErrMalformed},
		{"trailing data", append(append([]byte{}, valid...), []byte(` {"x":1}`)...), KindMalformed, ErrMalformed},
		{"future major", encodeEnvelope(t, func(e *Envelope) { e.SchemaVersion = "3.0" }), KindUnsupportedSchema, ErrUnsupportedSchema},
		{"old major", encodeEnvelope(t, func(e *Envelope) { e.SchemaVersion = "1.4" }), KindUnsupportedSchema, ErrUnsupportedSchema},
		{"missing version", encodeEnvelope(t, func(e *Envelope) { e.SchemaVersion = "" }), KindUnsupportedSchema, ErrUnsupportedSchema},
		{"bad checksum", encodeEnvelope(t, func(e *Envelope) { e.Checksum = "00000000" }), KindCorrupted, ErrCorrupted},
		{"missing checksum", encodeEnvelope(t, func(e *Envelope) { e.Checksum = "" }), KindCorrupted, ErrCorrupted},
		{"patient id swapped", encodeEnvelope(t, func(e *Envelope) { e.PatientID = "ZZZZZZ" }), KindCorrupted, ErrCorrupted},
		{"no record", encodeEnvelope(t, func(e *Envelope) { e.Record = nil; e.Checksum = "" }), KindMalformed, ErrMalformed},
		{"zero revision", encodeEnvelope(t, func(e *Envelope) {
			withRecord(t, e, func(r *assessment.AssessmentRecord) { r.Revision = 0 })
		}), KindInvalidRecord, ErrInvalidRecord},
		{"bad patient id", encodeEnvelope(t, func(e *Envelope) {
			withRecord(t, e, func(r *assessment.AssessmentRecord) { r.PatientID = "h8k3m0" })
			e.PatientID = "h8k3m0"
		}), KindInvalidRecord, ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []Kind
			c := newCodec()
			c.OnDecodeFailure = func(k Kind) { seen = append(seen, k) }

			rec, err := c.Decode(tt.blob)
			if err == nil {
				t.Fatalf("expected error, got record %+v", rec)
			}
			if rec != nil {
				t.Error("expected no record on failure")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
			if de.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s (%v)", tt.kind, de.Kind, err)
			}
			if !errors.Is(err, tt.is) {
				t.Errorf("expected errors.Is(%v)", tt.is)
			}
			if len(seen) != 1 || seen[0] != tt.kind {
				t.Errorf("expected failure hook with %s, got %v", tt.kind, seen)
			}
		})
	}
}

func TestDecode_AcceptsMinorVersion(t *testing.T) {
	blob := encodeEnvelope(t, func(e *Envelope) { e.SchemaVersion = "2.3" })
	rec, err := newCodec().Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.PatientID != "H8K3M7" {
		t.Errorf("unexpected patient %s", rec.PatientID)
	}
}

func TestDecode_DropsSmuggledPhotos(t *testing.T) {
	blob := encodeEnvelope(t, func(e *Envelope) {
		withRecord(t, e, func(r *assessment.AssessmentRecord) {
			r.Fields.Photos = []assessment.Attachment{{Name: "x.png", Data: []byte{1}}}
		})
	})
	rec, err := newCodec().Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Fields.Photos != nil {
		t.Error("decoded record must not carry attachments")
	}
}

func TestRenderQR(t *testing.T) {
	blob, err := newCodec().Encode(sampleRecord())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	png, err := RenderQR(blob, 256)
	if err != nil {
		t.Fatalf("RenderQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("expected PNG output")
	}
}
