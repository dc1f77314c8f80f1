// Package app wires the stores, clients and services together from a Config,
// it is shared by the server and the cli.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"polwatch-backend/internal/apis/twitter"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/chrono"
	"polwatch-backend/internal/components/db"
	"polwatch-backend/internal/components/telemetry"
	"polwatch-backend/internal/ingest"
	"polwatch-backend/internal/scrapers/parliament"
	"polwatch-backend/internal/stats"
)

const (
	report_schedule_votes = "schedule.votes"
	report_schedule_posts = "schedule.posts"
)

type App struct {
	DB      *sql.DB
	Cache   *cache.Cache
	Clock   chrono.API
	Twitter *twitter.Client
	Ingest  *ingest.Service
	Stats   *stats.Service

	cfg Config
	tel telemetry.API
}

// New opens (and migrates) the database and constructs every service.
func New(cfg Config, tel telemetry.API) (*App, error) {
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	database, err := cfg.Database.OpenAndMigrate(db.Schema)
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.CacheOptions(), tel)
	twitterClient := twitter.NewClient(cfg.TwitterOptions(), c, clock, tel)
	parliamentClient, err := parliament.NewClient(cfg.Parliament, tel)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("init parliament scraper: %w", err)
	}

	return &App{
		DB:      database,
		Cache:   c,
		Clock:   clock,
		Twitter: twitterClient,
		Ingest:  ingest.NewService(database, c, parliamentClient, twitterClient, clock, tel, cfg.Ingest),
		Stats:   stats.NewService(database, c, tel),
		cfg:     cfg,
		tel:     telemetry.NewScopedAPI("app", tel),
	}, nil
}

func (a *App) Close() error {
	a.Ingest.Close()
	return a.DB.Close()
}

// Schedule registers the configured ingestion jobs, jobs run with ctx and a
// job that is still running when it is due again is skipped.
func (a *App) Schedule(ctx context.Context, cron chrono.CronAPI) error {
	if spec := a.cfg.Schedule.Votes; spec != "" {
		err := cron.Cron(spec, func() {
			report, err := a.Ingest.IngestVotes(ctx, a.cfg.Schedule.VotesRange)
			if err != nil {
				a.tel.ReportBroken(report_schedule_votes, err)
				return
			}
			a.tel.ReportDebug("scheduled votes ingestion", slog.Int("sessions", report.SessionsUpserted), slog.Int("errors", len(report.Errors)))
		})
		if err != nil {
			return fmt.Errorf("schedule votes %q: %w", spec, err)
		}
	}

	if spec := a.cfg.Schedule.Posts; spec != "" {
		err := cron.Cron(spec, func() {
			report, err := a.Ingest.IngestPostsForAll(ctx, a.cfg.Ingest.PostsPerPolitician)
			if err != nil {
				a.tel.ReportBroken(report_schedule_posts, err)
				return
			}
			if report.RateLimited {
				a.tel.ReportWarning(report_schedule_posts, twitter.ErrRateLimitExceeded, report.Processed, report.TotalPoliticians)
			}
			a.tel.ReportDebug("scheduled posts ingestion", slog.Int("new", report.NewPosts), slog.Int("processed", report.Processed))
		})
		if err != nil {
			return fmt.Errorf("schedule posts %q: %w", spec, err)
		}
	}
	return nil
}
