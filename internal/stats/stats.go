// Package stats is the read path of the store, every query it serves is
// cached and recomputed from the store when it expires or is invalidated.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"polwatch-backend/internal/components/assert"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/db"
	"polwatch-backend/internal/components/telemetry"
	"slices"
	"time"
)

const report_db_query = "db.query"

// listingSize is how many rows a cached listing holds, requests for fewer
// rows are served by slicing it.
const listingSize = 100

type Counts struct {
	Parties     int64 `json:"parties"`
	Politicians int64 `json:"politicians"`
	Sessions    int64 `json:"sessions"`
	Votes       int64 `json:"votes"`
	Posts       int64 `json:"posts"`
	SystemLogs  int64 `json:"system_logs"`
}

type Run struct {
	Type      db.LogType   `json:"type"`
	Status    db.LogStatus `json:"status"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"created_at"`
}

type Stats struct {
	Counts          Counts     `json:"counts"`
	LatestSessionAt *time.Time `json:"latest_session_at"`
	LatestPostAt    *time.Time `json:"latest_post_at"`
	LatestSyncAt    *time.Time `json:"latest_sync_at"`
	LastRun         *Run       `json:"last_run"`
}

type Post struct {
	ID             int64          `json:"id"`
	ExternalID     string         `json:"external_id"`
	PoliticianID   int64          `json:"politician_id"`
	PoliticianName string         `json:"politician_name"`
	Content        string         `json:"content"`
	Url            string         `json:"url,omitempty"`
	PostedAt       time.Time      `json:"posted_at"`
	Metrics        map[string]any `json:"metrics,omitempty"`
}

type Session struct {
	ID            int64          `json:"id"`
	ExternalID    string         `json:"external_id"`
	Title         string         `json:"title"`
	Date          time.Time      `json:"date"`
	Category      string         `json:"category,omitempty"`
	SourceUrl     string         `json:"source_url,omitempty"`
	ResultSummary map[string]any `json:"result_summary,omitempty"`
	VoteCount     int64          `json:"vote_count"`
}

type Service struct {
	qry   *db.Queries
	cache *cache.Cache
	tel   telemetry.API
}

func NewService(database *sql.DB, c *cache.Cache, tel telemetry.API) *Service {
	assert.NotNil(database)
	assert.NotNil(c)
	assert.NotNil(tel)

	return &Service{
		qry:   db.New(database),
		cache: c,
		tel:   telemetry.NewScopedAPI("stats", tel),
	}
}

func unixTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// GetStats returns the entity counts, the latest timestamps and the latest
// ingestion run.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	out, _, err := cache.GetOrCompute(ctx, s.cache, cache.KEY_STATS, s.computeStats)
	return out, err
}

func (s *Service) computeStats(ctx context.Context) (Stats, error) {
	counts, err := s.qry.GetEntityCounts(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetEntityCounts")
		return Stats{}, err
	}
	latest, err := s.qry.GetLatestTimestamps(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetLatestTimestamps")
		return Stats{}, err
	}

	out := Stats{
		Counts: Counts{
			Parties:     counts.Parties,
			Politicians: counts.Politicians,
			Sessions:    counts.Sessions,
			Votes:       counts.Votes,
			Posts:       counts.Posts,
			SystemLogs:  counts.SystemLogs,
		},
		LatestSessionAt: unixTime(latest.SessionDate),
		LatestPostAt:    unixTime(latest.PostedAt),
		LatestSyncAt:    unixTime(latest.LastSyncedAt),
	}

	run, err := s.qry.GetLatestSystemLog(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetLatestSystemLog")
		return Stats{}, err
	}
	out.LastRun = &Run{
		Type:      run.Type,
		Status:    run.Status,
		Message:   run.Message,
		CreatedAt: time.Unix(run.CreatedAt, 0).UTC(),
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > listingSize {
		return listingSize
	}
	return limit
}

// RecentPosts returns up to limit of the most recently posted posts.
func (s *Service) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	posts, _, err := cache.GetOrCompute(ctx, s.cache, cache.KEY_RECENT_POSTS, func(ctx context.Context) ([]Post, error) {
		rows, err := s.qry.ListRecentPosts(ctx, listingSize)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "ListRecentPosts")
			return nil, err
		}
		out := make([]Post, len(rows))
		for i, r := range rows {
			out[i] = Post{
				ID:             r.ID,
				ExternalID:     r.ExternalID,
				PoliticianID:   r.PoliticianID,
				PoliticianName: r.PoliticianName,
				Content:        r.Content,
				Url:            r.Url.String,
				PostedAt:       time.Unix(r.PostedAt, 0).UTC(),
				Metrics:        r.Metrics,
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	// the listing is shared with every other caller through the cache
	return slices.Clone(posts[:min(clampLimit(limit), len(posts))]), nil
}

// RecentSessions returns up to limit of the latest voting sessions.
func (s *Service) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	sessions, _, err := cache.GetOrCompute(ctx, s.cache, cache.KEY_RECENT_SESSIONS, func(ctx context.Context) ([]Session, error) {
		rows, err := s.qry.ListRecentSessions(ctx, listingSize)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "ListRecentSessions")
			return nil, err
		}
		out := make([]Session, len(rows))
		for i, r := range rows {
			out[i] = Session{
				ID:            r.ID,
				ExternalID:    r.ExternalID,
				Title:         r.Title,
				Date:          time.Unix(r.Date, 0).UTC(),
				Category:      r.Category.String,
				SourceUrl:     r.SourceUrl.String,
				ResultSummary: r.ResultSummary,
				VoteCount:     r.VoteCount,
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	// the listing is shared with every other caller through the cache
	return slices.Clone(sessions[:min(clampLimit(limit), len(sessions))]), nil
}

func (s *Service) InvalidateCache(keys []string) {
	s.cache.Invalidate(keys...)
}

func (s *Service) ClearCache() {
	s.cache.Clear()
}

func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}
