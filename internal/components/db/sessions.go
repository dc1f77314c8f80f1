package db

import (
	"context"
	"database/sql"
	"fmt"
)

const getSessionIdByExternalId = `SELECT id FROM voting_sessions WHERE external_id = ?`

func (q *Queries) GetSessionIdByExternalId(ctx context.Context, externalID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getSessionIdByExternalId, externalID)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createSession = `INSERT INTO voting_sessions (
    external_id, title, description, date, category, source_url, result_summary, vote_count, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
ON CONFLICT (external_id) DO NOTHING
RETURNING id`

type CreateSessionParams struct {
	ExternalID    string
	Title         string
	Description   sql.NullString
	Date          int64
	Category      sql.NullString
	SourceUrl     sql.NullString
	ResultSummary Document
	CreatedAt     int64
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (int64, error) {
	row := q.db.QueryRowContext(
		ctx, createSession,
		arg.ExternalID,
		arg.Title,
		arg.Description,
		arg.Date,
		arg.Category,
		arg.SourceUrl,
		arg.ResultSummary,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const incrementSessionVoteCount = `UPDATE voting_sessions SET vote_count = vote_count + 1 WHERE id = ?`

// IncrementSessionVoteCount adds exactly one to the session's vote_count, it is an
// error for the session not to exist.
func (q *Queries) IncrementSessionVoteCount(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, incrementSessionVoteCount, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("increment vote count: session %d: %d rows affected", id, affected)
	}
	return nil
}

const sessionColumns = `id, external_id, title, description, date, category, source_url, result_summary, vote_count, created_at`

func scanSession(row interface{ Scan(...any) error }) (VotingSession, error) {
	var s VotingSession
	err := row.Scan(
		&s.ID,
		&s.ExternalID,
		&s.Title,
		&s.Description,
		&s.Date,
		&s.Category,
		&s.SourceUrl,
		&s.ResultSummary,
		&s.VoteCount,
		&s.CreatedAt,
	)
	return s, err
}

const getSession = `SELECT ` + sessionColumns + ` FROM voting_sessions WHERE id = ?`

func (q *Queries) GetSession(ctx context.Context, id int64) (VotingSession, error) {
	return scanSession(q.db.QueryRowContext(ctx, getSession, id))
}

const listRecentSessions = `SELECT ` + sessionColumns + ` FROM voting_sessions
ORDER BY date DESC, id DESC
LIMIT ?`

func (q *Queries) ListRecentSessions(ctx context.Context, limit int64) ([]VotingSession, error) {
	rows, err := q.db.QueryContext(ctx, listRecentSessions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VotingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const getVote = `SELECT id, session_id, politician_id, value, metadata, created_at, updated_at
FROM votes
WHERE politician_id = ? AND session_id = ?`

func (q *Queries) GetVote(ctx context.Context, politicianID, sessionID int64) (Vote, error) {
	row := q.db.QueryRowContext(ctx, getVote, politicianID, sessionID)
	var v Vote
	err := row.Scan(
		&v.ID,
		&v.SessionID,
		&v.PoliticianID,
		&v.Value,
		&v.Metadata,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	return v, err
}

const createVote = `INSERT INTO votes (session_id, politician_id, value, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (politician_id, session_id) DO NOTHING
RETURNING id`

type CreateVoteParams struct {
	SessionID    int64
	PoliticianID int64
	Value        VoteValue
	Metadata     Document
	Now          int64
}

func (q *Queries) CreateVote(ctx context.Context, arg CreateVoteParams) (int64, error) {
	row := q.db.QueryRowContext(
		ctx, createVote,
		arg.SessionID,
		arg.PoliticianID,
		arg.Value,
		arg.Metadata,
		arg.Now,
		arg.Now,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const updateVoteValue = `UPDATE votes SET value = ?, metadata = ?, updated_at = ? WHERE id = ?`

type UpdateVoteValueParams struct {
	ID       int64
	Value    VoteValue
	Metadata Document
	Now      int64
}

func (q *Queries) UpdateVoteValue(ctx context.Context, arg UpdateVoteValueParams) error {
	_, err := q.db.ExecContext(ctx, updateVoteValue, arg.Value, arg.Metadata, arg.Now, arg.ID)
	return err
}

const countVotesForSession = `SELECT count(*) FROM votes WHERE session_id = ?`

func (q *Queries) CountVotesForSession(ctx context.Context, sessionID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countVotesForSession, sessionID)
	var n int64
	err := row.Scan(&n)
	return n, err
}
