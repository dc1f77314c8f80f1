package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const getPartyByName = `SELECT id FROM parties WHERE name = ?`

func (q *Queries) GetPartyByName(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getPartyByName, name)
	var id int64
	err := row.Scan(&id)
	return id, err
}

// createParty, createPolitician, createSession and createVote do nothing when
// the natural key already exists, their Create* method then returns sql.ErrNoRows
// and the caller is expected to look the existing row up.
const createParty = `INSERT INTO parties (name, short_name, created_at) VALUES (?, ?, ?)
ON CONFLICT (name) DO NOTHING
RETURNING id`

type CreatePartyParams struct {
	Name      string
	ShortName sql.NullString
	CreatedAt int64
}

func (q *Queries) CreateParty(ctx context.Context, arg CreatePartyParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createParty, arg.Name, arg.ShortName, arg.CreatedAt)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const politicianColumns = `id, name, name_key, party_id, twitter_handle, title, bio, verified, last_synced_at, created_at, updated_at`

func scanPolitician(row interface{ Scan(...any) error }) (Politician, error) {
	var p Politician
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.NameKey,
		&p.PartyID,
		&p.TwitterHandle,
		&p.Title,
		&p.Bio,
		&p.Verified,
		&p.LastSyncedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

const getPolitician = `SELECT ` + politicianColumns + ` FROM politicians WHERE id = ?`

func (q *Queries) GetPolitician(ctx context.Context, id int64) (Politician, error) {
	return scanPolitician(q.db.QueryRowContext(ctx, getPolitician, id))
}

const getPoliticianByNameKey = `SELECT ` + politicianColumns + ` FROM politicians
WHERE name_key = ?
ORDER BY id
LIMIT 1`

func (q *Queries) GetPoliticianByNameKey(ctx context.Context, nameKey string) (Politician, error) {
	return scanPolitician(q.db.QueryRowContext(ctx, getPoliticianByNameKey, nameKey))
}

const createPolitician = `INSERT INTO politicians (name, name_key, party_id, twitter_handle, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (name_key) DO NOTHING
RETURNING id`

type CreatePoliticianParams struct {
	Name          string
	NameKey       string
	PartyID       sql.NullInt64
	TwitterHandle sql.NullString
	Now           int64
}

func (q *Queries) CreatePolitician(ctx context.Context, arg CreatePoliticianParams) (int64, error) {
	row := q.db.QueryRowContext(
		ctx, createPolitician,
		arg.Name,
		arg.NameKey,
		arg.PartyID,
		arg.TwitterHandle,
		arg.Now,
		arg.Now,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const updatePoliticianParty = `UPDATE politicians SET party_id = ?, updated_at = ? WHERE id = ?`

type UpdatePoliticianPartyParams struct {
	ID      int64
	PartyID sql.NullInt64
	Now     int64
}

func (q *Queries) UpdatePoliticianParty(ctx context.Context, arg UpdatePoliticianPartyParams) error {
	_, err := q.db.ExecContext(ctx, updatePoliticianParty, arg.PartyID, arg.Now, arg.ID)
	return err
}

const touchPoliticianSync = `UPDATE politicians SET last_synced_at = ? WHERE id = ?`

func (q *Queries) TouchPoliticianSync(ctx context.Context, id, syncedAt int64) error {
	_, err := q.db.ExecContext(ctx, touchPoliticianSync, syncedAt, id)
	return err
}

const listPoliticiansWithHandle = `SELECT ` + politicianColumns + ` FROM politicians
WHERE twitter_handle IS NOT NULL AND trim(twitter_handle) != ''
ORDER BY id`

func (q *Queries) ListPoliticiansWithHandle(ctx context.Context) ([]Politician, error) {
	rows, err := q.db.QueryContext(ctx, listPoliticiansWithHandle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Politician
	for rows.Next() {
		p, err := scanPolitician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type HandleUpdate struct {
	ID     int64
	Handle sql.NullString
}

// UpdateHandles applies all the given handle updates in a single statement.
func (q *Queries) UpdateHandles(ctx context.Context, updates []HandleUpdate, now int64) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	var query strings.Builder
	args := make([]any, 0, len(updates)*3+1)
	query.WriteString("UPDATE politicians SET twitter_handle = CASE id")
	for _, u := range updates {
		query.WriteString(" WHEN ? THEN ?")
		args = append(args, u.ID, u.Handle)
	}
	query.WriteString(" END, updated_at = ? WHERE id IN (")
	args = append(args, now)
	for i, u := range updates {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString("?")
		args = append(args, u.ID)
	}
	query.WriteString(")")

	res, err := q.db.ExecContext(ctx, query.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("update handles: %w", err)
	}
	return res.RowsAffected()
}
