package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/fieldtriage/internal/platform/badgerdb"
)

func newBadgerTestStore(t *testing.T) (Store, *badgerdb.DB) {
	t.Helper()
	db, err := badgerdb.Open(badgerdb.InMemoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db), db
}

func TestBadgerStore_PutGet(t *testing.T) {
	store, _ := newBadgerTestStore(t)
	ctx := context.Background()
	rec := baseRecord()
	rec.ChangeLog = ChangeLog{{Timestamp: t0, ChangedFields: []string{"gcs"}, Author: "medic-a", Device: "A1B2C3D4"}}

	require.NoError(t, store.Put(ctx, rec))
	got, err := store.Get(ctx, rec.PatientID)
	require.NoError(t, err)

	assert.Equal(t, rec.PatientID, got.PatientID)
	assert.Equal(t, rec.Revision, got.Revision)
	assert.Equal(t, rec.Fields, got.Fields)
	assert.True(t, rec.LastUpdatedAt.Equal(got.LastUpdatedAt))
	require.Len(t, got.ChangeLog, 1)
	assert.Equal(t, []string{"gcs"}, got.ChangeLog[0].ChangedFields)
}

func TestBadgerStore_NotFound(t *testing.T) {
	store, _ := newBadgerTestStore(t)
	_, err := store.Get(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_PutReplaces(t *testing.T) {
	store, _ := newBadgerTestStore(t)
	ctx := context.Background()
	rec := baseRecord()
	require.NoError(t, store.Put(ctx, rec))

	rec.Revision = 2
	rec.Fields.GCS = "10"
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, rec.PatientID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Revision)
	assert.Equal(t, "10", got.Fields.GCS)
}

func TestBadgerStore_ListOnlyRecords(t *testing.T) {
	store, db := newBadgerTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"AAAAAA", "BBBBBB"} {
		rec := baseRecord()
		rec.PatientID = id
		require.NoError(t, store.Put(ctx, rec))
	}
	require.NoError(t, db.Set([]byte("device/id"), []byte("A1B2C3D4")))

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "AAAAAA", items[0].PatientID)
	assert.Equal(t, "BBBBBB", items[1].PatientID)
}

func TestBadgerStore_ServiceRoundTrip(t *testing.T) {
	store, _ := newBadgerTestStore(t)
	svc := NewService(store, nil, zerolog.Nop())
	svc.SetClock(stepClock(t0, time.Second))
	ctx := context.Background()

	rec, err := svc.Create(ctx, medic, CreateInput{PatientID: "h8k3m7", Fields: DefaultFields()})
	require.NoError(t, err)
	assert.Equal(t, "H8K3M7", rec.PatientID)

	f := rec.Fields.Clone()
	f.Bleeding = true
	f.BleedingLocation = "scalp"
	edited, err := svc.Edit(ctx, medic, "H8K3M7", f)
	require.NoError(t, err)
	assert.Equal(t, 2, edited.Revision)

	got, err := svc.Get(ctx, "H8K3M7")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Revision)
	assert.Equal(t, PriorityRed, TriagePriority(got.Fields))
}
