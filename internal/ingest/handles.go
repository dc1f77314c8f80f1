package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"polwatch-backend/internal/components/db"
	"polwatch-backend/pkg/handle"
)

// FixHandles normalizes every stored handle into a bare username. All the
// changed handles are written in a single statement within one transaction.
func (s *Service) FixHandles(ctx context.Context) (FixHandlesReport, error) {
	ctx, span := tracer.Start(ctx, "fix-handles")
	defer span.End()

	report, err := s.fixHandles(ctx)
	if err != nil {
		span.RecordError(err)
		s.appendLog(ctx, db.LOG_FIX_HANDLES, db.LOG_ERROR, err.Error(), nil)
		return FixHandlesReport{}, err
	}

	if report.Fixed > 0 {
		s.invalidateListings()
	}
	s.appendLog(
		ctx, db.LOG_FIX_HANDLES, db.LOG_SUCCESS,
		fmt.Sprintf("%d handles fixed, %d unchanged", report.Fixed, report.Unchanged),
		report,
	)
	return report, nil
}

func (s *Service) fixHandles(ctx context.Context) (FixHandlesReport, error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "begin")
		return FixHandlesReport{}, fmt.Errorf("begin: %w", err)
	}
	defer discard()

	politicians, err := tx.ListPoliticiansWithHandle(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListPoliticiansWithHandle")
		return FixHandlesReport{}, err
	}

	report := FixHandlesReport{
		Total:   len(politicians),
		Details: []HandleFix{},
	}
	var updates []db.HandleUpdate
	for _, p := range politicians {
		original := p.TwitterHandle.String
		fixed := handle.Normalize(original)
		if fixed == original {
			report.Unchanged++
			continue
		}

		updates = append(updates, db.HandleUpdate{
			ID:     p.ID,
			Handle: sql.NullString{String: fixed, Valid: fixed != ""},
		})
		report.Details = append(report.Details, HandleFix{
			ID:       p.ID,
			Name:     p.Name,
			Original: original,
			Fixed:    fixed,
		})
	}

	if len(updates) == 0 {
		return report, nil
	}
	affected, err := tx.UpdateHandles(ctx, updates, s.now())
	if err != nil {
		s.tel.ReportBroken(report_fix_handles, err, len(updates))
		return FixHandlesReport{}, err
	}
	if int(affected) != len(updates) {
		err = fmt.Errorf("update handles: expected %d rows to change, got %d", len(updates), affected)
		s.tel.ReportBroken(report_fix_handles, err)
		return FixHandlesReport{}, err
	}
	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "commit")
		return FixHandlesReport{}, fmt.Errorf("commit: %w", err)
	}

	report.Fixed = len(updates)
	return report, nil
}
