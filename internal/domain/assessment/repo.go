package assessment

import (
	"context"
)

// Store holds the authoritative snapshot per patient ID. Get returns
// ErrNotFound for unknown IDs. List order is unspecified.
type Store interface {
	Get(ctx context.Context, patientID string) (*AssessmentRecord, error)
	Put(ctx context.Context, rec *AssessmentRecord) error
	List(ctx context.Context) ([]*AssessmentRecord, error)
}
