package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ehr/fieldtriage/internal/platform/badgerdb"
)

const badgerRecordPrefix = "record/"

type badgerStore struct{ db *badgerdb.DB }

// NewBadgerStore returns the on-device Store. Each record is one JSON value
// keyed by patient ID, so a Put replaces the whole snapshot atomically.
func NewBadgerStore(db *badgerdb.DB) Store { return &badgerStore{db: db} }

func recordKey(patientID string) []byte {
	return []byte(badgerRecordPrefix + patientID)
}

func (s *badgerStore) Get(_ context.Context, patientID string) (*AssessmentRecord, error) {
	data, err := s.db.Get(recordKey(patientID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", patientID, err)
	}
	var rec AssessmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode stored record %s: %w", patientID, err)
	}
	return &rec, nil
}

func (s *badgerStore) Put(_ context.Context, rec *AssessmentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.PatientID, err)
	}
	return s.db.Set(recordKey(rec.PatientID), data)
}

func (s *badgerStore) List(_ context.Context) ([]*AssessmentRecord, error) {
	var out []*AssessmentRecord
	err := s.db.Scan([]byte(badgerRecordPrefix), func(key, value []byte) error {
		var rec AssessmentRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode stored record %s: %w", key, err)
		}
		out = append(out, &rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
