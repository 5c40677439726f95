package assessment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// SyncReport counts what one sync pass did.
type SyncReport struct {
	Pulled int `json:"pulled"`
	Pushed int `json:"pushed"`
	Kept   int `json:"kept"`
	Failed int `json:"failed"`
}

// Syncer reconciles the device store with the remote store. Both directions
// use automatic arbitration; every record goes through the same engine used
// for in-person transfers.
type Syncer struct {
	local  *Service
	remote Store
	writer *Writer
	logger zerolog.Logger
}

func NewSyncer(local *Service, remote Store, logger zerolog.Logger) *Syncer {
	return &Syncer{
		local:  local,
		remote: remote,
		writer: NewWriter(remote, local.engine.detector),
		logger: logger.With().Str("component", "sync").Logger(),
	}
}

// Pull adopts remote records that are newer than the local copy.
func (s *Syncer) Pull(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	remote, err := s.remote.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list remote records: %w", err)
	}

	var errs []error
	for _, rec := range remote {
		d, err := s.local.Import(ctx, rec, AutoArbitration)
		if err == nil {
			_, err = s.local.Commit(ctx, d)
		}
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("pull %s: %w", rec.PatientID, err))
			continue
		}
		if d.Kind == DecisionAdoptIncoming {
			report.Pulled++
		} else {
			report.Kept++
		}
	}
	s.logger.Info().Int("pulled", report.Pulled).Int("kept", report.Kept).Int("failed", report.Failed).Msg("pull finished")
	return report, errors.Join(errs...)
}

// Push writes local records to the remote store where the remote copy is
// missing or older. Attachments are stripped before upload and the update
// time is cut to what the remote keeps, so an unchanged record compares
// equal on the next run.
func (s *Syncer) Push(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	local, err := s.local.store.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list local records: %w", err)
	}

	var errs []error
	for _, rec := range local {
		up := rec.WithoutAttachments()
		up.LastUpdatedAt = stamp(up.LastUpdatedAt)
		pushed, err := s.pushOne(ctx, up)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("push %s: %w", rec.PatientID, err))
			continue
		}
		if pushed {
			report.Pushed++
		} else {
			report.Kept++
		}
	}
	s.logger.Info().Int("pushed", report.Pushed).Int("kept", report.Kept).Int("failed", report.Failed).Msg("push finished")
	return report, errors.Join(errs...)
}

func (s *Syncer) pushOne(ctx context.Context, rec *AssessmentRecord) (bool, error) {
	existing, err := s.remote.Get(ctx, rec.PatientID)
	if errors.Is(err, ErrNotFound) {
		existing = nil
	} else if err != nil {
		return false, err
	}

	d, err := s.local.engine.Reconcile(existing, rec, AutoArbitration)
	if err != nil {
		return false, err
	}
	if d.Kind != DecisionAdoptIncoming {
		return false, nil
	}
	if err := s.writer.Adopt(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Sync runs Pull then Push and merges their reports.
func (s *Syncer) Sync(ctx context.Context) (SyncReport, error) {
	pull, pullErr := s.Pull(ctx)
	push, pushErr := s.Push(ctx)
	report := SyncReport{
		Pulled: pull.Pulled,
		Pushed: push.Pushed,
		Kept:   pull.Kept + push.Kept,
		Failed: pull.Failed + push.Failed,
	}
	return report, errors.Join(pullErr, pushErr)
}
