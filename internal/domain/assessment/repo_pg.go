package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type recordRepoPG struct{ db queryable }

// NewRecordRepoPG returns the remote Store backed by the assessment_record
// table.
func NewRecordRepoPG(pool *pgxpool.Pool) Store { return &recordRepoPG{db: pool} }

const recordCols = `patient_id, fields, revision, last_updated_at, last_updated_by, origin_device, change_log`

// recordRow is the column image of one assessment_record row.
type recordRow struct {
	PatientID     string
	Fields        []byte
	Revision      int
	LastUpdatedAt time.Time
	LastUpdatedBy string
	OriginDevice  string
	ChangeLog     []byte
}

func toRow(rec *AssessmentRecord) (recordRow, error) {
	// Photos never leave the device.
	fields := rec.Fields.Clone()
	fields.Photos = nil
	fb, err := json.Marshal(fields)
	if err != nil {
		return recordRow{}, fmt.Errorf("encode fields: %w", err)
	}
	log := rec.ChangeLog
	if log == nil {
		log = ChangeLog{}
	}
	lb, err := json.Marshal(log)
	if err != nil {
		return recordRow{}, fmt.Errorf("encode change log: %w", err)
	}
	return recordRow{
		PatientID:     rec.PatientID,
		Fields:        fb,
		Revision:      rec.Revision,
		LastUpdatedAt: rec.LastUpdatedAt.UTC(),
		LastUpdatedBy: rec.LastUpdatedBy,
		OriginDevice:  rec.OriginDevice,
		ChangeLog:     lb,
	}, nil
}

func (r recordRow) toRecord() (*AssessmentRecord, error) {
	rec := &AssessmentRecord{
		PatientID:     r.PatientID,
		Revision:      r.Revision,
		LastUpdatedAt: r.LastUpdatedAt.UTC(),
		LastUpdatedBy: r.LastUpdatedBy,
		OriginDevice:  r.OriginDevice,
	}
	if err := json.Unmarshal(r.Fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", r.PatientID, err)
	}
	if len(r.ChangeLog) > 0 {
		if err := json.Unmarshal(r.ChangeLog, &rec.ChangeLog); err != nil {
			return nil, fmt.Errorf("decode change log of %s: %w", r.PatientID, err)
		}
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*AssessmentRecord, error) {
	var r recordRow
	if err := row.Scan(&r.PatientID, &r.Fields, &r.Revision, &r.LastUpdatedAt,
		&r.LastUpdatedBy, &r.OriginDevice, &r.ChangeLog); err != nil {
		return nil, err
	}
	return r.toRecord()
}

func (r *recordRepoPG) Get(ctx context.Context, patientID string) (*AssessmentRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordCols+` FROM assessment_record WHERE patient_id = $1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *recordRepoPG) Put(ctx context.Context, rec *AssessmentRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO assessment_record (`+recordCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (patient_id) DO UPDATE SET
			fields=EXCLUDED.fields, revision=EXCLUDED.revision,
			last_updated_at=EXCLUDED.last_updated_at, last_updated_by=EXCLUDED.last_updated_by,
			origin_device=EXCLUDED.origin_device, change_log=EXCLUDED.change_log,
			synced_at=NOW()`,
		row.PatientID, row.Fields, row.Revision, row.LastUpdatedAt,
		row.LastUpdatedBy, row.OriginDevice, row.ChangeLog)
	return err
}

func (r *recordRepoPG) List(ctx context.Context) ([]*AssessmentRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recordCols+` FROM assessment_record ORDER BY last_updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AssessmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
