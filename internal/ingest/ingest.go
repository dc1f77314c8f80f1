package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"polwatch-backend/internal/components/assert"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/chrono"
	"polwatch-backend/internal/components/db"
	"polwatch-backend/internal/components/telemetry"

	"github.com/alitto/pond/v2"
	"go.opentelemetry.io/otel"
)

const (
	report_db_query         = "db.query"
	report_system_log       = "system-log.append"
	report_votes_session    = "votes.session"
	report_votes_record     = "votes.record"
	report_posts_politician = "posts.politician"
	report_fix_handles      = "handles.fix"
)

var tracer = otel.Tracer("polwatch-backend/internal/ingest")

type Options struct {
	// MaxParallelism bounds how many politicians are synced at once.
	MaxParallelism int `json:"max_parallelism" env:"MAX_PARALLELISM"`
	// MaxSessionRange bounds how many sessions a single IngestVotes call may cover.
	MaxSessionRange int `json:"max_session_range" env:"MAX_SESSION_RANGE"`
	// PostsPerPolitician is the default amount of posts requested per politician.
	PostsPerPolitician int `json:"posts_per_politician" env:"POSTS_PER_POLITICIAN"`
}

func DefaultOptions() Options {
	return Options{
		MaxParallelism:     4,
		MaxSessionRange:    500,
		PostsPerPolitician: 10,
	}
}

// Service reconciles scraped and fetched records against the store.
//
// Every unit of work (one session, one politician's posts, one handle fix-up)
// runs in its own transaction, a failure rolls back that unit only.
type Service struct {
	db       *sql.DB
	qry      *db.Queries
	makeTx   db.MakeTx
	cache    *cache.Cache
	sessions SessionSource
	posts    PostFetcher
	clock    chrono.API
	tel      telemetry.API
	opts     Options
	pool     pond.Pool
}

func NewService(
	database *sql.DB,
	c *cache.Cache,
	sessions SessionSource,
	posts PostFetcher,
	clock chrono.API,
	tel telemetry.API,
	opts Options,
) *Service {
	assert.NotNil(database)
	assert.NotNil(c)
	assert.NotNil(sessions)
	assert.NotNil(posts)
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.Positive(opts.MaxParallelism)

	return &Service{
		db:       database,
		qry:      db.New(database),
		makeTx:   db.NewMakeTx(database),
		cache:    c,
		sessions: sessions,
		posts:    posts,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("ingest", tel),
		opts:     opts,
		pool:     pond.NewPool(opts.MaxParallelism),
	}
}

// Close waits for running tasks and stops the worker pool.
func (s *Service) Close() {
	s.pool.StopAndWait()
}

func (s *Service) now() int64 {
	return s.clock.Now().Unix()
}

func (s *Service) invalidateListings(keys ...string) {
	if len(keys) == 0 {
		keys = []string{cache.KEY_STATS, cache.KEY_RECENT_POSTS, cache.KEY_RECENT_SESSIONS}
	}
	s.cache.Invalidate(keys...)
}

func runStatus(errors, succeeded int) db.LogStatus {
	switch {
	case errors == 0:
		return db.LOG_SUCCESS
	case succeeded > 0:
		return db.LOG_PARTIAL
	}
	return db.LOG_ERROR
}

// appendLog records a run in the audit trail, a failure to do so is reported
// but never fails the run itself.
func (s *Service) appendLog(ctx context.Context, typ db.LogType, status db.LogStatus, message string, report any) {
	details, err := db.ToDocument(report)
	if err != nil {
		s.tel.ReportBroken(report_system_log, err, typ)
	}

	// a cancelled run is still recorded
	_, err = s.qry.CreateSystemLog(context.WithoutCancel(ctx), db.CreateSystemLogParams{
		Type:      typ,
		Status:    status,
		Message:   message,
		Details:   details,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.tel.ReportBroken(report_system_log, fmt.Errorf("create system log: %w", err), typ, status)
		return
	}
	// the latest run is part of the stats
	s.cache.Invalidate(cache.KEY_STATS)
}
