package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"polwatch-backend/internal/components/db"
	"strings"
	"time"
)

// upsertSession returns the id of the session with the given external id,
// creating it with a zero vote count if it does not exist yet. Existing
// sessions are never modified. A session inserted by a concurrent writer
// between the lookup and the insert is treated as existing.
func upsertSession(ctx context.Context, tx *db.Queries, raw RawSession, date time.Time, now int64) (id int64, created bool, err error) {
	id, err = tx.GetSessionIdByExternalId(ctx, raw.ExternalID)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("get session %s: %w", raw.ExternalID, err)
	}

	summary, err := db.ToDocument(resultSummary(raw.Votes))
	if err != nil {
		return 0, false, err
	}
	id, err = tx.CreateSession(ctx, db.CreateSessionParams{
		ExternalID:    raw.ExternalID,
		Title:         raw.Title,
		Description:   nullString(raw.Description),
		Date:          date.Unix(),
		Category:      nullString(raw.Category),
		SourceUrl:     nullString(raw.SourceUrl),
		ResultSummary: summary,
		CreatedAt:     now,
	})
	if errors.Is(err, sql.ErrNoRows) {
		id, err = tx.GetSessionIdByExternalId(ctx, raw.ExternalID)
		if err != nil {
			return 0, false, fmt.Errorf("reselect session %s: %w", raw.ExternalID, err)
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("create session %s: %w", raw.ExternalID, err)
	}
	return id, true, nil
}

func resultSummary(votes []RawVote) map[string]int {
	out := map[string]int{}
	for _, v := range votes {
		out[string(VoteValueFromSymbol(v.Symbol))]++
	}
	return out
}

// upsertParty returns the id of the party with the given name, creating it on
// first encounter. An empty name yields a NULL party.
func upsertParty(ctx context.Context, tx *db.Queries, name string, now int64) (sql.NullInt64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return sql.NullInt64{}, nil
	}

	id, err := tx.GetPartyByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		id, err = tx.CreateParty(ctx, db.CreatePartyParams{
			Name:      name,
			CreatedAt: now,
		})
		if errors.Is(err, sql.ErrNoRows) {
			id, err = tx.GetPartyByName(ctx, name)
		}
	}
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("upsert party %s: %w", name, err)
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}

// upsertPolitician looks a politician up by name, ignoring case and repeated
// whitespace. A new politician is created with the observed party, an existing
// one only has its party updated, and only when a different party was observed.
func upsertPolitician(ctx context.Context, tx *db.Queries, name string, partyID sql.NullInt64, now int64) (int64, error) {
	name = strings.Join(strings.Fields(name), " ")
	key := NameKey(name)

	existing, err := tx.GetPoliticianByNameKey(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		var id int64
		id, err = tx.CreatePolitician(ctx, db.CreatePoliticianParams{
			Name:    name,
			NameKey: key,
			PartyID: partyID,
			Now:     now,
		})
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("create politician %s: %w", name, err)
		}
		// lost the insert to a concurrent writer, treat theirs as existing
		existing, err = tx.GetPoliticianByNameKey(ctx, key)
	}
	if err != nil {
		return 0, fmt.Errorf("get politician %s: %w", name, err)
	}

	if partyID.Valid && existing.PartyID != partyID {
		err = tx.UpdatePoliticianParty(ctx, db.UpdatePoliticianPartyParams{
			ID:      existing.ID,
			PartyID: partyID,
			Now:     now,
		})
		if err != nil {
			return 0, fmt.Errorf("update party of politician %d: %w", existing.ID, err)
		}
	}
	return existing.ID, nil
}

type voteOutcome int

const (
	vote_unchanged voteOutcome = iota
	vote_inserted
	vote_updated
)

// upsertVote keeps at most one vote per politician and session. A new vote
// increments the session's vote count by exactly one in the same transaction,
// an existing vote is overwritten in place and leaves the count alone.
func upsertVote(ctx context.Context, tx *db.Queries, sessionID, politicianID int64, raw RawVote, now int64) (voteOutcome, error) {
	value := VoteValueFromSymbol(raw.Symbol)
	metadata := db.Document{"symbol": strings.TrimSpace(raw.Symbol)}

	existing, err := tx.GetVote(ctx, politicianID, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.CreateVote(ctx, db.CreateVoteParams{
			SessionID:    sessionID,
			PoliticianID: politicianID,
			Value:        value,
			Metadata:     metadata,
			Now:          now,
		})
		switch {
		case err == nil:
			err = tx.IncrementSessionVoteCount(ctx, sessionID)
			if err != nil {
				return 0, err
			}
			return vote_inserted, nil
		case errors.Is(err, sql.ErrNoRows):
			// someone else inserted it, and counted it
			existing, err = tx.GetVote(ctx, politicianID, sessionID)
		default:
			return 0, fmt.Errorf("create vote: %w", err)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("get vote: %w", err)
	}

	if existing.Value == value && existing.Metadata["symbol"] == metadata["symbol"] {
		return vote_unchanged, nil
	}
	err = tx.UpdateVoteValue(ctx, db.UpdateVoteValueParams{
		ID:       existing.ID,
		Value:    value,
		Metadata: metadata,
		Now:      now,
	})
	if err != nil {
		return 0, fmt.Errorf("update vote %d: %w", existing.ID, err)
	}
	return vote_updated, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
