package db

import "context"

const createSystemLog = `INSERT INTO system_logs (type, status, message, details, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id`

type CreateSystemLogParams struct {
	Type      LogType
	Status    LogStatus
	Message   string
	Details   Document
	CreatedAt int64
}

func (q *Queries) CreateSystemLog(ctx context.Context, arg CreateSystemLogParams) (int64, error) {
	row := q.db.QueryRowContext(
		ctx, createSystemLog,
		arg.Type,
		arg.Status,
		arg.Message,
		arg.Details,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getLatestSystemLog = `SELECT id, type, status, message, details, created_at
FROM system_logs
ORDER BY id DESC
LIMIT 1`

func (q *Queries) GetLatestSystemLog(ctx context.Context) (SystemLog, error) {
	row := q.db.QueryRowContext(ctx, getLatestSystemLog)
	var l SystemLog
	err := row.Scan(
		&l.ID,
		&l.Type,
		&l.Status,
		&l.Message,
		&l.Details,
		&l.CreatedAt,
	)
	return l, err
}
