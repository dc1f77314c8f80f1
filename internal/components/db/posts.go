package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const listPostExternalIds = `SELECT external_id FROM posts WHERE politician_id = ?`

func (q *Queries) ListPostExternalIds(ctx context.Context, politicianID int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listPostExternalIds, politicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		err := rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type InsertPostParams struct {
	ExternalID   string
	PoliticianID int64
	Content      string
	Url          sql.NullString
	PostedAt     int64
	Media        Document
	Metrics      Document
	CreatedAt    int64
}

const insertPostColumns = 8

// InsertPosts inserts every post in a single multi-row statement. A post whose
// external id already exists is left untouched, the number of rows actually
// inserted is returned.
func (q *Queries) InsertPosts(ctx context.Context, posts []InsertPostParams) (int64, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	var query strings.Builder
	args := make([]any, 0, len(posts)*insertPostColumns)
	query.WriteString(`INSERT INTO posts (external_id, politician_id, content, url, posted_at, media, metrics, created_at) VALUES `)
	for i, p := range posts {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(
			args,
			p.ExternalID,
			p.PoliticianID,
			p.Content,
			p.Url,
			p.PostedAt,
			p.Media,
			p.Metrics,
			p.CreatedAt,
		)
	}
	query.WriteString(" ON CONFLICT (external_id) DO NOTHING")

	res, err := q.db.ExecContext(ctx, query.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert posts: %w", err)
	}
	return res.RowsAffected()
}

type RecentPost struct {
	Post
	PoliticianName string
}

const listRecentPosts = `SELECT
    p.id, p.external_id, p.politician_id, p.content, p.url, p.posted_at,
    p.media, p.metrics, p.session_id, p.sentiment, p.created_at,
    pol.name
FROM posts p
JOIN politicians pol ON pol.id = p.politician_id
ORDER BY p.posted_at DESC, p.id DESC
LIMIT ?`

func (q *Queries) ListRecentPosts(ctx context.Context, limit int64) ([]RecentPost, error) {
	rows, err := q.db.QueryContext(ctx, listRecentPosts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecentPost
	for rows.Next() {
		var r RecentPost
		err := rows.Scan(
			&r.ID,
			&r.ExternalID,
			&r.PoliticianID,
			&r.Content,
			&r.Url,
			&r.PostedAt,
			&r.Media,
			&r.Metrics,
			&r.SessionID,
			&r.Sentiment,
			&r.CreatedAt,
			&r.PoliticianName,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
