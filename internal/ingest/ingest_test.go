package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"polwatch-backend/internal/apis/twitter"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/chrono"
	"polwatch-backend/internal/components/db"
	"polwatch-backend/internal/components/sqliteutil"
	"polwatch-backend/internal/components/telemetry"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	sessions map[int]RawSession
	errs     map[int]error
}

func (f *fakeSource) FetchSession(ctx context.Context, number int) (RawSession, error) {
	if err, ok := f.errs[number]; ok {
		return RawSession{}, err
	}
	session, ok := f.sessions[number]
	if !ok {
		return RawSession{}, fmt.Errorf("session %d not found", number)
	}
	return session, nil
}

type fakeFetcher struct {
	mutex    sync.Mutex
	users    map[string]string
	posts    map[string][]twitter.Tweet
	errs     map[string]error
	resolved []string
}

func (f *fakeFetcher) ResolveUserID(ctx context.Context, handle string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.resolved = append(f.resolved, handle)
	if err, ok := f.errs[handle]; ok {
		return "", err
	}
	return f.users[handle], nil
}

func (f *fakeFetcher) RecentPosts(ctx context.Context, userID string, max int) ([]twitter.Tweet, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	posts := f.posts[userID]
	if len(posts) > max {
		posts = posts[:max]
	}
	return posts, nil
}

type testEnv struct {
	service  *Service
	db       *sql.DB
	qry      *db.Queries
	cache    *cache.Cache
	source   *fakeSource
	fetcher  *fakeFetcher
	recorder *telemetry.Recorder
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) testEnv {
	t.Helper()

	database, err := sqliteutil.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, sqliteutil.Migrate(database, db.Schema))

	recorder := telemetry.NewRecorder()
	c := cache.New(cache.DefaultOptions(), recorder)
	source := &fakeSource{sessions: map[int]RawSession{}, errs: map[int]error{}}
	fetcher := &fakeFetcher{
		users: map[string]string{},
		posts: map[string][]twitter.Tweet{},
		errs:  map[string]error{},
	}

	service := NewService(database, c, source, fetcher, chrono.NewFake(testNow), recorder, DefaultOptions())
	t.Cleanup(service.Close)

	return testEnv{
		service:  service,
		db:       database,
		qry:      db.New(database),
		cache:    c,
		source:   source,
		fetcher:  fetcher,
		recorder: recorder,
	}
}

func countRows(t *testing.T, database *sql.DB, table string) int {
	t.Helper()
	var n int
	err := database.QueryRow("SELECT count(*) FROM " + table).Scan(&n)
	require.NoError(t, err)
	return n
}

type voteRow struct {
	Politician string
	Session    string
	Value      db.VoteValue
}

func listVotes(t *testing.T, database *sql.DB) []voteRow {
	t.Helper()
	rows, err := database.Query(`SELECT p.name, s.external_id, v.value
FROM votes v
JOIN politicians p ON p.id = v.politician_id
JOIN voting_sessions s ON s.id = v.session_id
ORDER BY s.external_id, p.name`)
	require.NoError(t, err)
	defer rows.Close()

	var out []voteRow
	for rows.Next() {
		var r voteRow
		require.NoError(t, rows.Scan(&r.Politician, &r.Session, &r.Value))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func sessionVoteCount(t *testing.T, qry *db.Queries, externalID string) int64 {
	t.Helper()
	id, err := qry.GetSessionIdByExternalId(context.Background(), externalID)
	require.NoError(t, err)
	session, err := qry.GetSession(context.Background(), id)
	require.NoError(t, err)
	return session.VoteCount
}

func twoSessions() map[int]RawSession {
	return map[int]RawSession{
		1: {
			ExternalID: "2024-001",
			Title:      "Budget act",
			Date:       "2024-04-30",
			Votes: []RawVote{
				{PoliticianName: "Jane Doe", PartyName: "Greens", Symbol: "A"},
				{PoliticianName: "John Smith", PartyName: "Liberals", Symbol: "N"},
				{PoliticianName: "Alex Roe", PartyName: "", Symbol: "Z"},
			},
		},
		2: {
			ExternalID: "2024-002",
			Title:      "Transport act",
			Date:       "1. 5. 2024",
			Votes: []RawVote{
				{PoliticianName: "Jane Doe", PartyName: "Greens", Symbol: "0"},
				{PoliticianName: "John Smith", PartyName: "Liberals", Symbol: "?"},
			},
		},
	}
}

func TestIngestVotesIsIdempotent(t *testing.T) {
	env := setup(t)
	env.source.sessions = twoSessions()
	ctx := context.Background()

	report, err := env.service.IngestVotes(ctx, SessionRange{From: 1, To: 2})
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	require.Equal(t, 2, report.SessionsUpserted)
	require.Equal(t, 2, report.SessionsCreated)
	require.Equal(t, 5, report.VotesInserted)

	first := listVotes(t, env.db)
	expected := []voteRow{
		{Politician: "Alex Roe", Session: "2024-001", Value: db.VOTE_ABSTAIN},
		{Politician: "Jane Doe", Session: "2024-001", Value: db.VOTE_YES},
		{Politician: "John Smith", Session: "2024-001", Value: db.VOTE_NO},
		{Politician: "Jane Doe", Session: "2024-002", Value: db.VOTE_ABSENT},
		{Politician: "John Smith", Session: "2024-002", Value: db.VOTE_UNKNOWN},
	}
	if diff := cmp.Diff(expected, first); diff != "" {
		t.Fatalf("votes mismatch (-want +got):\n%s", diff)
	}

	report, err = env.service.IngestVotes(ctx, SessionRange{From: 1, To: 2})
	require.NoError(t, err)
	require.Equal(t, 2, report.SessionsUpserted)
	require.Equal(t, 0, report.SessionsCreated)
	require.Equal(t, 0, report.VotesInserted)
	require.Equal(t, 0, report.VotesUpdated)
	require.Equal(t, 5, report.VotesUpserted)

	if diff := cmp.Diff(first, listVotes(t, env.db)); diff != "" {
		t.Fatalf("votes changed after re-run (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, countRows(t, env.db, "voting_sessions"))
	require.Equal(t, 3, countRows(t, env.db, "politicians"))
	require.Equal(t, 2, countRows(t, env.db, "parties"))
	require.EqualValues(t, 3, sessionVoteCount(t, env.qry, "2024-001"))
	require.EqualValues(t, 2, sessionVoteCount(t, env.qry, "2024-002"))
}

func TestVoteIsUpdatedInPlace(t *testing.T) {
	env := setup(t)
	env.source.sessions = twoSessions()
	ctx := context.Background()

	_, err := env.service.IngestVotes(ctx, SessionRange{From: 1, To: 1})
	require.NoError(t, err)

	session := env.source.sessions[1]
	session.Votes = []RawVote{{PoliticianName: "JANE  doe", PartyName: "Greens", Symbol: "N"}}
	env.source.sessions[1] = session

	report, err := env.service.IngestVotes(ctx, SessionRange{From: 1, To: 1})
	require.NoError(t, err)
	require.Equal(t, 1, report.VotesUpdated)
	require.Equal(t, 0, report.VotesInserted)

	require.Equal(t, 3, countRows(t, env.db, "votes"))
	require.Equal(t, 3, countRows(t, env.db, "politicians"))
	require.EqualValues(t, 3, sessionVoteCount(t, env.qry, "2024-001"))

	for _, v := range listVotes(t, env.db) {
		if v.Politician == "Jane Doe" {
			require.Equal(t, db.VOTE_NO, v.Value)
		}
	}
}

func TestPoliticianPartyIsCorrected(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.service.ApplySession(ctx, RawSession{
		ExternalID: "s1",
		Title:      "First",
		Date:       "2024-01-01",
		Votes:      []RawVote{{PoliticianName: "Jane Doe", PartyName: "Greens", Symbol: "A"}},
	})
	require.NoError(t, err)
	_, err = env.service.ApplySession(ctx, RawSession{
		ExternalID: "s2",
		Title:      "Second",
		Date:       "2024-01-02",
		Votes:      []RawVote{{PoliticianName: "jane doe", PartyName: "Independents", Symbol: "A"}},
	})
	require.NoError(t, err)

	politician, err := env.qry.GetPoliticianByNameKey(ctx, "jane doe")
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", politician.Name)

	partyID, err := env.qry.GetPartyByName(ctx, "Independents")
	require.NoError(t, err)
	require.Equal(t, partyID, politician.PartyID.Int64)
	require.Equal(t, 1, countRows(t, env.db, "politicians"))

	// no party observed leaves the party alone
	_, err = env.service.ApplySession(ctx, RawSession{
		ExternalID: "s3",
		Title:      "Third",
		Date:       "2024-01-03",
		Votes:      []RawVote{{PoliticianName: "Jane Doe", Symbol: "N"}},
	})
	require.NoError(t, err)
	politician, err = env.qry.GetPolitician(ctx, politician.ID)
	require.NoError(t, err)
	require.Equal(t, partyID, politician.PartyID.Int64)
}

func TestIngestVotesReportsBadRecords(t *testing.T) {
	env := setup(t)
	env.source.sessions = map[int]RawSession{
		1: {
			ExternalID: "ok",
			Title:      "Valid",
			Date:       "2024-02-01",
			Votes: []RawVote{
				{PoliticianName: "Jane Doe", Symbol: "A"},
				{PoliticianName: "  ", Symbol: "A"},
			},
		},
		2: {ExternalID: "bad-date", Title: "Broken", Date: "sometime in spring"},
		4: {ExternalID: "", Title: "No id", Date: "2024-02-01"},
	}
	env.source.errs[3] = fmt.Errorf("connection reset")

	report, err := env.service.IngestVotes(context.Background(), SessionRange{From: 1, To: 4})
	require.NoError(t, err)
	require.Equal(t, 1, report.SessionsUpserted)
	require.Equal(t, 1, report.VotesInserted)

	fields := map[string]string{}
	for _, e := range report.Errors {
		fields[e.Ref] = e.Field
	}
	require.Equal(t, map[string]string{
		"ok#1":     "politician_name",
		"bad-date": "date",
		"3":        "session",
		"4":        "external_id",
	}, fields)

	log, err := env.qry.GetLatestSystemLog(context.Background())
	require.NoError(t, err)
	require.Equal(t, db.LOG_VOTES, log.Type)
	require.Equal(t, db.LOG_PARTIAL, log.Status)
	require.EqualValues(t, 1, log.Details["sessions_upserted"])
}

func TestIngestVotesRejectsInvalidRange(t *testing.T) {
	env := setup(t)

	_, err := env.service.IngestVotes(context.Background(), SessionRange{From: 5, To: 1})
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = env.service.IngestVotes(context.Background(), SessionRange{From: 1, To: 10_000})
	require.ErrorIs(t, err, ErrInvalidRange)
	require.Equal(t, 0, countRows(t, env.db, "system_logs"))
}

func TestFailedIncrementRollsBackVote(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.db.Exec(`CREATE TRIGGER fail_vote_count BEFORE UPDATE OF vote_count ON voting_sessions
BEGIN
    SELECT RAISE(ABORT, 'injected failure');
END`)
	require.NoError(t, err)

	_, err = env.service.ApplySession(ctx, RawSession{
		ExternalID: "s1",
		Title:      "Atomic",
		Date:       "2024-03-01",
		Votes:      []RawVote{{PoliticianName: "Jane Doe", PartyName: "Greens", Symbol: "A"}},
	})
	require.ErrorContains(t, err, "injected failure")

	require.Equal(t, 0, countRows(t, env.db, "votes"))
	require.Equal(t, 0, countRows(t, env.db, "voting_sessions"))
	require.Equal(t, 0, countRows(t, env.db, "politicians"))
	require.Equal(t, 0, countRows(t, env.db, "parties"))
}

func TestApplySessionToleratesConcurrentInserts(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// each trigger inserts the row the statement is about to insert, like a
	// second writer that won the race between lookup and insert
	for _, trigger := range []string{
		`CREATE TRIGGER concurrent_party BEFORE INSERT ON parties WHEN NEW.created_at <> 1
BEGIN
    INSERT INTO parties (name, created_at) VALUES (NEW.name, 1);
END`,
		`CREATE TRIGGER concurrent_politician BEFORE INSERT ON politicians WHEN NEW.created_at <> 1
BEGIN
    INSERT INTO politicians (name, name_key, party_id, created_at, updated_at)
    VALUES (NEW.name, NEW.name_key, NEW.party_id, 1, 1);
END`,
		`CREATE TRIGGER concurrent_session BEFORE INSERT ON voting_sessions WHEN NEW.created_at <> 1
BEGIN
    INSERT INTO voting_sessions (external_id, title, date, created_at)
    VALUES (NEW.external_id, NEW.title, NEW.date, 1);
END`,
		`CREATE TRIGGER concurrent_vote BEFORE INSERT ON votes WHEN NEW.created_at <> 1
BEGIN
    INSERT INTO votes (session_id, politician_id, value, metadata, created_at, updated_at)
    VALUES (NEW.session_id, NEW.politician_id, NEW.value, NEW.metadata, 1, 1);
    UPDATE voting_sessions SET vote_count = vote_count + 1 WHERE id = NEW.session_id;
END`,
	} {
		_, err := env.db.Exec(trigger)
		require.NoError(t, err)
	}

	report, err := env.service.ApplySession(ctx, RawSession{
		ExternalID: "s1",
		Title:      "Contended",
		Date:       "2024-03-01",
		Votes:      []RawVote{{PoliticianName: "Jane Doe", PartyName: "Greens", Symbol: "A"}},
	})
	require.NoError(t, err)
	require.Zero(t, report.SessionsCreated)
	require.Zero(t, report.VotesInserted)
	require.Equal(t, 1, report.VotesUpserted)

	require.Equal(t, 1, countRows(t, env.db, "parties"))
	require.Equal(t, 1, countRows(t, env.db, "politicians"))
	require.Equal(t, 1, countRows(t, env.db, "voting_sessions"))
	require.Equal(t, 1, countRows(t, env.db, "votes"))

	var voteCount int
	err = env.db.QueryRow(`SELECT vote_count FROM voting_sessions WHERE external_id = 's1'`).Scan(&voteCount)
	require.NoError(t, err)
	require.Equal(t, 1, voteCount)
}

func TestIngestVotesInvalidatesCache(t *testing.T) {
	env := setup(t)
	env.source.sessions = twoSessions()
	ctx := context.Background()

	for _, key := range []string{cache.KEY_STATS, cache.KEY_RECENT_SESSIONS, "unrelated"} {
		_, _, err := cache.GetOrCompute(ctx, env.cache, key, func(context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
	}

	_, err := env.service.IngestVotes(ctx, SessionRange{From: 1, To: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"unrelated"}, env.cache.Stats().Keys)
}

func createPolitician(t *testing.T, qry *db.Queries, name, handle string) int64 {
	t.Helper()
	id, err := qry.CreatePolitician(context.Background(), db.CreatePoliticianParams{
		Name:          name,
		NameKey:       NameKey(name),
		TwitterHandle: sql.NullString{String: handle, Valid: handle != ""},
		Now:           testNow.Unix(),
	})
	require.NoError(t, err)
	return id
}

func tweets(ids ...string) []twitter.Tweet {
	out := make([]twitter.Tweet, len(ids))
	for i, id := range ids {
		out[i] = twitter.Tweet{
			ID:        id,
			Text:      "post " + id,
			CreatedAt: testNow.Add(-time.Duration(i) * time.Hour),
			Url:       "https://x.com/i/web/status/" + id,
			Metrics:   map[string]any{"like_count": float64(i)},
		}
	}
	return out
}

func TestInsertPostsSkipsDuplicates(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	id := createPolitician(t, env.qry, "Jane Doe", "janedoe")

	result, err := env.service.InsertPosts(ctx, id, tweets("1", "2", "2", "3"))
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 3, Skipped: 1}, result)

	result, err = env.service.InsertPosts(ctx, id, tweets("3", "4"))
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 1, Skipped: 1}, result)

	result, err = env.service.InsertPosts(ctx, id, tweets("1", "2", "3", "4"))
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 0, Skipped: 4}, result)
	require.Equal(t, 4, countRows(t, env.db, "posts"))

	politician, err := env.qry.GetPolitician(ctx, id)
	require.NoError(t, err)
	require.Equal(t, testNow.Unix(), politician.LastSyncedAt.Int64)
}

func TestInsertPostsIdTakenByAnotherPolitician(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	jane := createPolitician(t, env.qry, "Jane Doe", "janedoe")
	john := createPolitician(t, env.qry, "John Smith", "jsmith")

	_, err := env.service.InsertPosts(ctx, jane, tweets("1"))
	require.NoError(t, err)

	result, err := env.service.InsertPosts(ctx, john, tweets("1", "9"))
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 1, Skipped: 1}, result)
}

func TestFixHandles(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	john := createPolitician(t, env.qry, "John Doe", "https://x.com/JohnDoe/status/123?x=1")
	createPolitician(t, env.qry, "Jane Doe", "janedoe")
	mary := createPolitician(t, env.qry, "Mary Major", " @MaryMajor ")
	createPolitician(t, env.qry, "No Handle", "")

	report, err := env.service.FixHandles(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 2, report.Fixed)
	require.Equal(t, 1, report.Unchanged)
	require.Equal(t, []HandleFix{
		{ID: john, Name: "John Doe", Original: "https://x.com/JohnDoe/status/123?x=1", Fixed: "JohnDoe"},
		{ID: mary, Name: "Mary Major", Original: " @MaryMajor ", Fixed: "MaryMajor"},
	}, report.Details)

	politician, err := env.qry.GetPolitician(ctx, john)
	require.NoError(t, err)
	require.Equal(t, "JohnDoe", politician.TwitterHandle.String)

	report, err = env.service.FixHandles(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Fixed)
	require.Equal(t, 3, report.Unchanged)

	log, err := env.qry.GetLatestSystemLog(ctx)
	require.NoError(t, err)
	require.Equal(t, db.LOG_FIX_HANDLES, log.Type)
	require.Equal(t, db.LOG_SUCCESS, log.Status)
}

func TestIngestPostsForAll(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	jane := createPolitician(t, env.qry, "Jane Doe", "janedoe")
	john := createPolitician(t, env.qry, "John Smith", "jsmith")
	ghost := createPolitician(t, env.qry, "Ghost", "ghost")
	createPolitician(t, env.qry, "No Handle", "")

	env.fetcher.users["janedoe"] = "100"
	env.fetcher.posts["100"] = tweets("a", "b", "c")
	env.fetcher.errs["jsmith"] = fmt.Errorf("resolve: %w", twitter.ErrRateLimitExceeded)

	report, err := env.service.IngestPostsForAll(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalPoliticians)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 2, report.NewPosts)
	require.Equal(t, 0, report.SkippedPosts)
	require.True(t, report.RateLimited)
	require.Len(t, report.Details, 3)

	details := map[int64]PostsDetail{}
	for _, d := range report.Details {
		details[d.PoliticianID] = d
	}
	require.Empty(t, details[jane].Error)
	require.Equal(t, 2, details[jane].NewPosts)
	require.True(t, details[john].RateLimited)
	require.NotEmpty(t, details[john].Error)
	require.False(t, details[ghost].RateLimited)
	require.Contains(t, details[ghost].Error, "no account")

	log, err := env.qry.GetLatestSystemLog(ctx)
	require.NoError(t, err)
	require.Equal(t, db.LOG_POSTS, log.Type)
	require.Equal(t, db.LOG_PARTIAL, log.Status)
}

func TestIngestPostsForPolitician(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	jane := createPolitician(t, env.qry, "Jane Doe", "janedoe")
	nobody := createPolitician(t, env.qry, "No Handle", "")

	env.fetcher.users["janedoe"] = "100"
	env.fetcher.posts["100"] = tweets("a", "b")

	detail, err := env.service.IngestPostsForPolitician(ctx, jane, 0)
	require.NoError(t, err)
	require.Equal(t, 2, detail.NewPosts)

	detail, err = env.service.IngestPostsForPolitician(ctx, jane, 0)
	require.NoError(t, err)
	require.Equal(t, 0, detail.NewPosts)
	require.Equal(t, 2, detail.SkippedPosts)

	_, err = env.service.IngestPostsForPolitician(ctx, nobody, 0)
	require.ErrorIs(t, err, ErrInvalidRecord)
	_, err = env.service.IngestPostsForPolitician(ctx, 9999, 0)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestVoteValueFromSymbol(t *testing.T) {
	table := []struct {
		symbol   string
		expected db.VoteValue
	}{
		{symbol: "A", expected: db.VOTE_YES},
		{symbol: "y", expected: db.VOTE_YES},
		{symbol: "+", expected: db.VOTE_YES},
		{symbol: "N", expected: db.VOTE_NO},
		{symbol: "-", expected: db.VOTE_NO},
		{symbol: " Z ", expected: db.VOTE_ABSTAIN},
		{symbol: "0", expected: db.VOTE_ABSENT},
		{symbol: "M", expected: db.VOTE_ABSENT},
		{symbol: "X", expected: db.VOTE_NOT_VOTING},
		{symbol: "Q", expected: db.VOTE_UNKNOWN},
		{symbol: "", expected: db.VOTE_UNKNOWN},
	}
	for _, row := range table {
		require.Equal(t, row.expected, VoteValueFromSymbol(row.symbol), row.symbol)
	}
}

func TestParseSessionDate(t *testing.T) {
	table := []struct {
		input    string
		expected time.Time
	}{
		{input: "2024-04-30", expected: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)},
		{input: "2024-04-30 14:05", expected: time.Date(2024, 4, 30, 14, 5, 0, 0, time.UTC)},
		{input: "30. 4. 2024", expected: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)},
		{input: " 30.4.2024  9:15 ", expected: time.Date(2024, 4, 30, 9, 15, 0, 0, time.UTC)},
		{input: "2024-04-30T10:00:00+02:00", expected: time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)},
	}
	for _, row := range table {
		result, err := ParseSessionDate(row.input, time.UTC)
		require.NoError(t, err, row.input)
		require.True(t, row.expected.Equal(result), "%s: %v", row.input, result)
	}

	_, err := ParseSessionDate("yesterday", time.UTC)
	require.ErrorIs(t, err, ErrInvalidRecord)
	_, err = ParseSessionDate("", time.UTC)
	require.ErrorIs(t, err, ErrInvalidRecord)
}
