package db

import (
	"context"
	"database/sql"
)

type EntityCounts struct {
	Parties     int64
	Politicians int64
	Sessions    int64
	Votes       int64
	Posts       int64
	SystemLogs  int64
}

const getEntityCounts = `SELECT
    (SELECT count(*) FROM parties),
    (SELECT count(*) FROM politicians),
    (SELECT count(*) FROM voting_sessions),
    (SELECT count(*) FROM votes),
    (SELECT count(*) FROM posts),
    (SELECT count(*) FROM system_logs)`

func (q *Queries) GetEntityCounts(ctx context.Context) (EntityCounts, error) {
	row := q.db.QueryRowContext(ctx, getEntityCounts)
	var c EntityCounts
	err := row.Scan(
		&c.Parties,
		&c.Politicians,
		&c.Sessions,
		&c.Votes,
		&c.Posts,
		&c.SystemLogs,
	)
	return c, err
}

type LatestTimestamps struct {
	SessionDate  sql.NullInt64
	PostedAt     sql.NullInt64
	LastSyncedAt sql.NullInt64
}

const getLatestTimestamps = `SELECT
    (SELECT max(date) FROM voting_sessions),
    (SELECT max(posted_at) FROM posts),
    (SELECT max(last_synced_at) FROM politicians)`

func (q *Queries) GetLatestTimestamps(ctx context.Context) (LatestTimestamps, error) {
	row := q.db.QueryRowContext(ctx, getLatestTimestamps)
	var l LatestTimestamps
	err := row.Scan(&l.SessionDate, &l.PostedAt, &l.LastSyncedAt)
	return l, err
}
