package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fieldtriage/internal/config"
	"github.com/ehr/fieldtriage/internal/domain/assessment"
	"github.com/ehr/fieldtriage/internal/platform/badgerdb"
	"github.com/ehr/fieldtriage/internal/platform/telemetry"
	"github.com/ehr/fieldtriage/internal/termui"
	"github.com/ehr/fieldtriage/internal/transport"
)

var t0 = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func newTestApp(t *testing.T, deviceID string, clock func() time.Time) *app {
	t.Helper()
	bdb, err := badgerdb.Open(badgerdb.InMemoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = bdb.Close() })

	cfg := &config.Config{
		Env:            "test",
		AuthorName:     "device-owner",
		QRSize:         256,
		FollowUpAfter:  2 * time.Hour,
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"*"},
	}
	metrics := telemetry.NewMetrics()
	table := assessment.DefaultFieldTable()
	svc := assessment.NewService(assessment.NewBadgerStore(bdb), assessment.MustDetector(), zerolog.Nop())
	svc.SetClock(clock)
	svc.SetRecorder(metrics)
	return &app{
		cfg:      cfg,
		logger:   zerolog.Nop(),
		db:       bdb,
		deviceID: deviceID,
		table:    table,
		metrics:  metrics,
		svc:      svc,
		codec: &transport.Codec{
			Now:             clock,
			OnDecodeFailure: func(k transport.Kind) { metrics.DecodeFailure(string(k)) },
		},
	}
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestApplyAssignments(t *testing.T) {
	f := assessment.DefaultFields()
	err := applyAssignments(assessment.DefaultFieldTable(), &f, []string{
		"name=John Smith", "gcs=14", "bleeding=true", "injuries=burn, laceration",
	})
	if err != nil {
		t.Fatalf("applyAssignments: %v", err)
	}
	if f.Name != "John Smith" || f.GCS != "14" || !f.Bleeding || len(f.Injuries) != 2 {
		t.Errorf("unexpected fields %+v", f)
	}

	for _, bad := range []string{"gcs", "=14", "unknown=1", "bleeding=maybe"} {
		f := assessment.DefaultFields()
		if err := applyAssignments(assessment.DefaultFieldTable(), &f, []string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestImportChoice(t *testing.T) {
	arb, preset, err := importChoice(false, false, true)
	if err != nil || arb != assessment.AutoArbitration || preset != "" {
		t.Errorf("--auto: got %v %q %v", arb, preset, err)
	}
	arb, preset, err = importChoice(true, false, false)
	if err != nil || arb != assessment.ManualArbitration || preset != assessment.AdoptIncoming {
		t.Errorf("--adopt: got %v %q %v", arb, preset, err)
	}
	if _, _, err := importChoice(true, true, false); err == nil {
		t.Error("expected error for conflicting flags")
	}
}

func TestSession_RequiresAuthor(t *testing.T) {
	a := newTestApp(t, "A1B2C3D4", fixedClock(t0))
	s, err := a.session("  medic-a ")
	if err != nil || s.Author != "medic-a" || s.DeviceID != "A1B2C3D4" {
		t.Errorf("unexpected session %+v, %v", s, err)
	}
	a.cfg.AuthorName = ""
	if _, err := a.session(""); err == nil {
		t.Error("expected error without an author")
	}
}

// Two devices edit the same patient; B's newer revision is carried to A.
func TestHandover_NewerIncomingAdopted(t *testing.T) {
	ctx := context.Background()
	devA := newTestApp(t, "A1B2C3D4", fixedClock(t0))
	devB := newTestApp(t, "Z9Y8X7W6", fixedClock(t0.Add(time.Minute)))

	fields := assessment.DefaultFields()
	fields.GCS = "14"
	fields.RespiratoryRate = "22"
	rec, err := devA.svc.Create(ctx, assessment.Session{Author: "medic-a", DeviceID: devA.deviceID},
		assessment.CreateInput{PatientID: "H8K3M7", Fields: fields})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	blob, err := devA.codec.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out bytes.Buffer
	if err := runImport(ctx, devB, blob, assessment.AutoArbitration, nil, &out); err != nil {
		t.Fatalf("import on B: %v", err)
	}

	onB, _ := devB.svc.Get(ctx, "H8K3M7")
	f := onB.Fields.Clone()
	f.GCS = "13"
	f.RespiratoryRate = "24"
	edited, err := devB.svc.Edit(ctx, assessment.Session{Author: "medic-b", DeviceID: devB.deviceID}, "H8K3M7", f)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Revision != 2 {
		t.Fatalf("expected revision 2 on B, got %d", edited.Revision)
	}

	blob, err = devB.codec.Encode(edited)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out.Reset()
	asked := 0
	arbiter := termui.ArbiterFunc(func(d assessment.Decision) (assessment.Resolution, error) {
		asked++
		return d.Hint, nil
	})
	if err := runImport(ctx, devA, blob, assessment.ManualArbitration, arbiter, &out); err != nil {
		t.Fatalf("import on A: %v", err)
	}
	if asked != 1 {
		t.Errorf("expected one prompt, got %d", asked)
	}

	got, err := devA.svc.Get(ctx, "H8K3M7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Revision != 2 || got.Fields.GCS != "13" || got.LastUpdatedBy != "medic-b" || got.OriginDevice != "Z9Y8X7W6" {
		t.Errorf("A did not adopt B's record: %+v", got)
	}
	if !strings.Contains(out.String(), "adopted H8K3M7 revision 2") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunImport_CorruptBlob(t *testing.T) {
	a := newTestApp(t, "A1B2C3D4", fixedClock(t0))
	err := runImport(context.Background(), a, []byte(`{"schemaVersion":"2.0"`), assessment.AutoArbitration, nil, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected decode error")
	}
	var de *transport.DecodeError
	if !errors.As(err, &de) || de.Kind != transport.KindTruncated {
		t.Errorf("expected truncated decode error, got %v", err)
	}
}

func TestServer_Routes(t *testing.T) {
	a := newTestApp(t, "A1B2C3D4", fixedClock(t0))
	e := newServer(a, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "A1B2C3D4") {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(`{"patientId":"H8K3M7","fields":{"gcs":"7"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(assessment.AuthorHeader, "medic-a")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/records/H8K3M7", strings.NewReader(`{"gcs":"6"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on edit, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/h8k3m7/summary", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var summary map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary["priority"] != "red" {
		t.Errorf("expected red priority for GCS 6, got %q", summary["priority"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/ZZZZZZ", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	body := rec.Body.String()
	if !strings.Contains(body, "triage_revisions_written_total 1") {
		t.Errorf("expected one revision in metrics, got:\n%s", body)
	}
	if !strings.Contains(body, `triage_http_requests_total{method="GET",status="404"} 1`) {
		t.Errorf("expected 404 request in metrics")
	}
}
