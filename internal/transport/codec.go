// Package transport turns assessment records into self-checking blobs that
// can be carried between devices, and back.
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
)

// SchemaVersion is written into every envelope. Decoders accept any minor
// version of the same major.
const SchemaVersion = "2.0"

const schemaMajor = 2

// Envelope is the wire form of a transported record.
type Envelope struct {
	SchemaVersion string          `json:"schemaVersion"`
	EncodedAt     time.Time       `json:"encodedAt"`
	PatientID     string          `json:"patientId"`
	Summary       string          `json:"summary"`
	Record        json.RawMessage `json:"record"`
	Checksum      string          `json:"checksum"`
}

// Kind classifies a decode failure.
type Kind string

const (
	KindMalformed         Kind = "malformed"
	KindUnsupportedSchema Kind = "unsupported_schema"
	KindTruncated         Kind = "truncated"
	KindCorrupted         Kind = "corrupted"
	KindInvalidRecord     Kind = "invalid_record"
)

var (
	ErrMalformed         = errors.New("malformed payload")
	ErrUnsupportedSchema = errors.New("unsupported schema version")
	ErrTruncated         = errors.New("truncated payload")
	ErrCorrupted         = errors.New("corrupted payload")
	ErrInvalidRecord     = errors.New("invalid record")
)

func (k Kind) sentinel() error {
	switch k {
	case KindMalformed:
		return ErrMalformed
	case KindUnsupportedSchema:
		return ErrUnsupportedSchema
	case KindTruncated:
		return ErrTruncated
	case KindCorrupted:
		return ErrCorrupted
	default:
		return ErrInvalidRecord
	}
}

// DecodeError is returned by Decode. errors.Is matches it against the
// sentinel for its Kind.
type DecodeError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode transport blob: " + e.Kind.sentinel().Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func decodeErr(kind Kind, detail string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Detail: detail, Err: err}
}

// Codec encodes and decodes envelopes. The zero value is ready to use.
type Codec struct {
	// Now stamps encodedAt. Defaults to time.Now.
	Now func() time.Time
	// OnDecodeFailure, when set, is called with the kind of every failed
	// Decode.
	OnDecodeFailure func(Kind)
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func checksum(b []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(b))
}

// Encode serializes rec without its attachments.
func (c *Codec) Encode(rec *assessment.AssessmentRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("encode: %w: no record", assessment.ErrInvalidInput)
	}
	stripped := rec.WithoutAttachments()
	body, err := json.Marshal(stripped)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.PatientID, err)
	}
	env := Envelope{
		SchemaVersion: SchemaVersion,
		EncodedAt:     c.now().UTC(),
		PatientID:     stripped.PatientID,
		Summary:       assessment.Summary(stripped.PatientID, stripped.Fields),
		Record:        body,
		Checksum:      checksum(body),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", rec.PatientID, err)
	}
	return out, nil
}

// Decode parses blob. Any failure is a *DecodeError and no record is
// returned.
func (c *Codec) Decode(blob []byte) (*assessment.AssessmentRecord, error) {
	rec, err := decode(blob)
	if err != nil {
		var de *DecodeError
		if c.OnDecodeFailure != nil && errors.As(err, &de) {
			c.OnDecodeFailure(de.Kind)
		}
		return nil, err
	}
	return rec, nil
}

// Envelope returns the parsed envelope of blob without checking the record.
// It is used to preview a scanned blob.
func (c *Codec) Envelope(blob []byte) (*Envelope, error) {
	return parseEnvelope(blob)
}

func parseEnvelope(blob []byte) (*Envelope, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 {
		return nil, decodeErr(KindTruncated, "empty input", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(blob))
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, decodeErr(KindTruncated, "input ends early", nil)
		}
		return nil, decodeErr(KindMalformed, "", err)
	}
	if dec.More() {
		return nil, decodeErr(KindMalformed, "trailing data after envelope", nil)
	}
	return &env, nil
}

func checkSchema(v string) *DecodeError {
	if v == "" {
		return decodeErr(KindUnsupportedSchema, "missing schemaVersion", nil)
	}
	majorText, _, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(majorText)
	if err != nil || major != schemaMajor {
		return decodeErr(KindUnsupportedSchema, fmt.Sprintf("version %q", v), nil)
	}
	return nil
}

func decode(blob []byte) (*assessment.AssessmentRecord, error) {
	env, err := parseEnvelope(blob)
	if err != nil {
		return nil, err
	}
	if de := checkSchema(env.SchemaVersion); de != nil {
		return nil, de
	}
	if len(env.Record) == 0 || string(env.Record) == "null" {
		return nil, decodeErr(KindMalformed, "envelope has no record", nil)
	}
	if env.Checksum == "" {
		return nil, decodeErr(KindCorrupted, "missing checksum", nil)
	}
	if got := checksum(env.Record); !strings.EqualFold(got, env.Checksum) {
		return nil, decodeErr(KindCorrupted, fmt.Sprintf("checksum %s does not match %s", got, env.Checksum), nil)
	}

	var rec assessment.AssessmentRecord
	if err := json.Unmarshal(env.Record, &rec); err != nil {
		return nil, decodeErr(KindMalformed, "record", err)
	}
	if env.PatientID != rec.PatientID {
		return nil, decodeErr(KindCorrupted, fmt.Sprintf("envelope patient %q carries record %q", env.PatientID, rec.PatientID), nil)
	}
	if err := assessment.ValidatePatientID(rec.PatientID); err != nil {
		return nil, decodeErr(KindInvalidRecord, "", err)
	}
	if rec.Revision < 1 {
		return nil, decodeErr(KindInvalidRecord, fmt.Sprintf("revision %d", rec.Revision), nil)
	}
	if rec.LastUpdatedAt.IsZero() {
		return nil, decodeErr(KindInvalidRecord, "missing lastUpdatedAt", nil)
	}
	if len(rec.ChangeLog) > assessment.MaxChangeLogEntries {
		rec.ChangeLog = rec.ChangeLog[:assessment.MaxChangeLogEntries]
	}
	rec.Fields.Photos = nil
	return &rec, nil
}
