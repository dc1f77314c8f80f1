package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"polwatch-backend/internal/apis/twitter"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/db"
	"strings"

	"github.com/alitto/pond/v2"
	"go.opentelemetry.io/otel/attribute"
)

// InsertPosts stores the posts of a politician that are not stored yet, in
// the order given, and marks the politician as synced. Posts already present
// are skipped, not updated.
func (s *Service) InsertPosts(ctx context.Context, politicianID int64, posts []twitter.Tweet) (InsertResult, error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "begin")
		return InsertResult{}, fmt.Errorf("begin: %w", err)
	}
	defer discard()

	existing, err := tx.ListPostExternalIds(ctx, politicianID)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListPostExternalIds", politicianID)
		return InsertResult{}, err
	}
	seen := make(map[string]struct{}, len(existing)+len(posts))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	now := s.now()
	batch := make([]db.InsertPostParams, 0, len(posts))
	for _, p := range posts {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			s.tel.ReportWarning(report_posts_politician, fmt.Errorf("%w: empty post id", ErrInvalidRecord), politicianID)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		batch = append(batch, db.InsertPostParams{
			ExternalID:   id,
			PoliticianID: politicianID,
			Content:      p.Text,
			Url:          nullString(p.Url),
			PostedAt:     p.CreatedAt.Unix(),
			Media:        p.Media,
			Metrics:      p.Metrics,
			CreatedAt:    now,
		})
	}

	inserted, err := tx.InsertPosts(ctx, batch)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "InsertPosts", politicianID, len(batch))
		return InsertResult{}, err
	}
	err = tx.TouchPoliticianSync(ctx, politicianID, now)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "TouchPoliticianSync", politicianID)
		return InsertResult{}, err
	}
	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "commit", politicianID)
		return InsertResult{}, fmt.Errorf("commit: %w", err)
	}

	return InsertResult{
		Inserted: int(inserted),
		Skipped:  len(posts) - int(inserted),
	}, nil
}

// syncPolitician fetches and stores the recent posts of a single politician,
// any failure is recorded in the returned detail.
func (s *Service) syncPolitician(ctx context.Context, politician db.Politician, max int) PostsDetail {
	ctx, span := tracer.Start(ctx, "sync-politician")
	defer span.End()
	span.SetAttributes(attribute.Int64("politician_id", politician.ID))

	detail := PostsDetail{
		PoliticianID: politician.ID,
		Name:         politician.Name,
		Handle:       politician.TwitterHandle.String,
	}
	fail := func(err error) PostsDetail {
		s.tel.ReportWarning(report_posts_politician, err, politician.ID, detail.Handle)
		span.RecordError(err)
		detail.Error = err.Error()
		detail.RateLimited = errors.Is(err, twitter.ErrRateLimitExceeded)
		return detail
	}

	userID, err := s.posts.ResolveUserID(ctx, detail.Handle)
	if err != nil {
		return fail(fmt.Errorf("resolve user id: %w", err))
	}
	if userID == "" {
		return fail(fmt.Errorf("%w: no account for handle %q", ErrInvalidRecord, detail.Handle))
	}

	posts, err := s.posts.RecentPosts(ctx, userID, max)
	if err != nil {
		return fail(fmt.Errorf("recent posts: %w", err))
	}

	result, err := s.InsertPosts(ctx, politician.ID, posts)
	if err != nil {
		return fail(fmt.Errorf("insert posts: %w", err))
	}
	detail.NewPosts = result.Inserted
	detail.SkippedPosts = result.Skipped
	return detail
}

// IngestPostsForPolitician syncs the recent posts of a single politician.
func (s *Service) IngestPostsForPolitician(ctx context.Context, politicianID int64, max int) (PostsDetail, error) {
	if max <= 0 {
		max = s.opts.PostsPerPolitician
	}

	politician, err := s.qry.GetPolitician(ctx, politicianID)
	if errors.Is(err, sql.ErrNoRows) {
		return PostsDetail{}, fmt.Errorf("%w: politician %d does not exist", ErrInvalidRecord, politicianID)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetPolitician", politicianID)
		return PostsDetail{}, err
	}
	if strings.TrimSpace(politician.TwitterHandle.String) == "" {
		return PostsDetail{}, fmt.Errorf("%w: politician %d has no handle", ErrInvalidRecord, politicianID)
	}

	detail := s.syncPolitician(ctx, politician, max)
	if detail.NewPosts > 0 {
		s.invalidateListings(cache.KEY_STATS, cache.KEY_RECENT_POSTS)
	}

	status := db.LOG_SUCCESS
	if detail.Error != "" {
		status = db.LOG_ERROR
	}
	s.appendLog(
		ctx, db.LOG_POSTS, status,
		fmt.Sprintf("%s: %d new posts, %d skipped", politician.Name, detail.NewPosts, detail.SkippedPosts),
		detail,
	)
	return detail, nil
}

// IngestPostsForAll syncs the posts of every politician with a handle, with
// at most Options.MaxParallelism politicians in flight. The failure of one
// politician is recorded in its detail entry and does not stop the others.
func (s *Service) IngestPostsForAll(ctx context.Context, max int) (PostsReport, error) {
	if max <= 0 {
		max = s.opts.PostsPerPolitician
	}

	ctx, span := tracer.Start(ctx, "ingest-posts")
	defer span.End()

	politicians, err := s.qry.ListPoliticiansWithHandle(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListPoliticiansWithHandle")
		return PostsReport{}, err
	}
	span.SetAttributes(attribute.Int("politicians", len(politicians)))

	details := make([]PostsDetail, len(politicians))
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, politician := range politicians {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				details[i] = PostsDetail{
					PoliticianID: politician.ID,
					Name:         politician.Name,
					Handle:       politician.TwitterHandle.String,
					Error:        err.Error(),
				}
				return
			}
			details[i] = s.syncPolitician(groupCtx, politician, max)
		})
	}
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.tel.ReportBroken(report_posts_politician, fmt.Errorf("wait: %w", err))
	}

	report := PostsReport{
		TotalPoliticians: len(politicians),
		Details:          details,
	}
	failed := 0
	for _, d := range details {
		report.NewPosts += d.NewPosts
		report.SkippedPosts += d.SkippedPosts
		if d.RateLimited {
			report.RateLimited = true
		}
		if d.Error != "" {
			failed++
			continue
		}
		report.Processed++
	}

	if report.NewPosts > 0 {
		s.invalidateListings(cache.KEY_STATS, cache.KEY_RECENT_POSTS)
	}
	s.appendLog(
		ctx, db.LOG_POSTS, runStatus(failed, report.Processed),
		fmt.Sprintf(
			"%d/%d politicians: %d new posts, %d skipped",
			report.Processed, report.TotalPoliticians, report.NewPosts, report.SkippedPosts,
		),
		report,
	)
	return report, nil
}
