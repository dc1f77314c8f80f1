package ingest

import (
	"context"
	"errors"
	"fmt"
	"polwatch-backend/internal/components/db"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type sessionCounts struct {
	created  bool
	inserted int
	updated  int
	upserted int
	skipped  []ItemError
}

// IngestVotes fetches every session in the range and applies it to the store,
// one transaction per session.
//
// Problems with a single session or vote are collected in the report and the
// run moves on, only an invalid range is returned as an error.
func (s *Service) IngestVotes(ctx context.Context, sessionRange SessionRange) (VotesReport, error) {
	err := sessionRange.Validate(s.opts.MaxSessionRange)
	if err != nil {
		return VotesReport{}, err
	}

	ctx, span := tracer.Start(ctx, "ingest-votes")
	defer span.End()
	span.SetAttributes(
		attribute.Int("from", sessionRange.From),
		attribute.Int("to", sessionRange.To),
	)

	report := VotesReport{Errors: []ItemError{}}
	for number := sessionRange.From; number <= sessionRange.To; number++ {
		ref := strconv.Itoa(number)
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ItemError{Ref: ref, Message: ctx.Err().Error()})
			break
		}

		raw, err := s.sessions.FetchSession(ctx, number)
		if err != nil {
			s.tel.ReportWarning(report_votes_session, fmt.Errorf("fetch: %w", err), number)
			report.Errors = append(report.Errors, ItemError{Ref: ref, Field: "session", Message: err.Error()})
			continue
		}

		counts, err := s.applySession(ctx, raw)
		if err != nil {
			s.tel.ReportWarning(report_votes_session, err, number, raw.ExternalID)
			report.Errors = append(report.Errors, sessionError(ref, raw, err))
			continue
		}

		report.SessionsUpserted++
		if counts.created {
			report.SessionsCreated++
		}
		report.VotesUpserted += counts.upserted
		report.VotesInserted += counts.inserted
		report.VotesUpdated += counts.updated
		report.Errors = append(report.Errors, counts.skipped...)
	}

	if report.SessionsUpserted > 0 {
		s.invalidateListings()
	}

	status := runStatus(len(report.Errors), report.SessionsUpserted)
	if status != db.LOG_SUCCESS {
		span.SetStatus(codes.Error, "some sessions failed")
	}
	s.appendLog(
		ctx, db.LOG_VOTES, status,
		fmt.Sprintf(
			"sessions %d..%d: %d sessions, %d votes, %d errors",
			sessionRange.From, sessionRange.To,
			report.SessionsUpserted, report.VotesUpserted, len(report.Errors),
		),
		report,
	)
	return report, nil
}

func sessionError(ref string, raw RawSession, err error) ItemError {
	if raw.ExternalID != "" {
		ref = raw.ExternalID
	}
	item := ItemError{Ref: ref, Message: err.Error()}
	var field fieldError
	if errors.As(err, &field) {
		item.Field = field.field
		item.Message = field.err.Error()
	}
	return item
}

type fieldError struct {
	field string
	err   error
}

func (e fieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.err)
}

func (e fieldError) Unwrap() error {
	return e.err
}

// ApplySession applies a single already scraped session in its own transaction.
func (s *Service) ApplySession(ctx context.Context, raw RawSession) (VotesReport, error) {
	counts, err := s.applySession(ctx, raw)
	if err != nil {
		return VotesReport{}, err
	}
	s.invalidateListings()

	report := VotesReport{
		SessionsUpserted: 1,
		VotesUpserted:    counts.upserted,
		VotesInserted:    counts.inserted,
		VotesUpdated:     counts.updated,
		Errors:           counts.skipped,
	}
	if counts.created {
		report.SessionsCreated = 1
	}
	return report, nil
}

func (s *Service) applySession(ctx context.Context, raw RawSession) (sessionCounts, error) {
	raw.ExternalID = strings.TrimSpace(raw.ExternalID)
	if raw.ExternalID == "" {
		return sessionCounts{}, fieldError{field: "external_id", err: ErrInvalidRecord}
	}
	if strings.TrimSpace(raw.Title) == "" {
		return sessionCounts{}, fieldError{field: "title", err: ErrInvalidRecord}
	}
	date, err := ParseSessionDate(raw.Date, s.clock.Location())
	if err != nil {
		return sessionCounts{}, fieldError{field: "date", err: err}
	}

	now := s.now()
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "begin")
		return sessionCounts{}, fmt.Errorf("begin: %w", err)
	}
	defer discard()

	sessionID, created, err := upsertSession(ctx, tx, raw, date, now)
	if err != nil {
		return sessionCounts{}, err
	}
	counts := sessionCounts{created: created}

	for i, vote := range raw.Votes {
		if strings.TrimSpace(vote.PoliticianName) == "" {
			s.tel.ReportWarning(report_votes_record, ErrInvalidRecord, raw.ExternalID, i)
			counts.skipped = append(counts.skipped, ItemError{
				Ref:     fmt.Sprintf("%s#%d", raw.ExternalID, i),
				Field:   "politician_name",
				Message: ErrInvalidRecord.Error(),
			})
			continue
		}

		partyID, err := upsertParty(ctx, tx, vote.PartyName, now)
		if err != nil {
			return sessionCounts{}, err
		}
		politicianID, err := upsertPolitician(ctx, tx, vote.PoliticianName, partyID, now)
		if err != nil {
			return sessionCounts{}, err
		}
		outcome, err := upsertVote(ctx, tx, sessionID, politicianID, vote, now)
		if err != nil {
			return sessionCounts{}, fmt.Errorf("vote of %s: %w", vote.PoliticianName, err)
		}

		counts.upserted++
		switch outcome {
		case vote_inserted:
			counts.inserted++
		case vote_updated:
			counts.updated++
		}
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "commit", raw.ExternalID)
		return sessionCounts{}, fmt.Errorf("commit: %w", err)
	}
	return counts, nil
}
