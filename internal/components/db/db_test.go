package db

import (
	"context"
	"database/sql"
	"polwatch-backend/internal/components/sqliteutil"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Queries, *sql.DB) {
	t.Helper()
	database, err := sqliteutil.OpenDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, sqliteutil.Migrate(database, Schema))
	t.Cleanup(func() { database.Close() })
	return New(database), database
}

func mustCreatePolitician(t *testing.T, qry *Queries, name, handle string) int64 {
	t.Helper()
	id, err := qry.CreatePolitician(context.Background(), CreatePoliticianParams{
		Name:          name,
		NameKey:       name,
		TwitterHandle: sql.NullString{String: handle, Valid: handle != ""},
		Now:           1,
	})
	require.NoError(t, err)
	return id
}

func TestInsertPostsSkipsExisting(t *testing.T) {
	ctx := context.Background()
	qry, _ := setup(t)
	politician := mustCreatePolitician(t, qry, "jana", "jana")

	post := func(externalID string) InsertPostParams {
		return InsertPostParams{
			ExternalID:   externalID,
			PoliticianID: politician,
			Content:      "content " + externalID,
			PostedAt:     100,
			Metrics:      Document{"likes": float64(3)},
			CreatedAt:    200,
		}
	}

	n, err := qry.InsertPosts(ctx, []InsertPostParams{post("1"), post("2")})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = qry.InsertPosts(ctx, []InsertPostParams{post("2"), post("3")})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = qry.InsertPosts(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	ids, err := qry.ListPostExternalIds(ctx, politician)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1", "2", "3"}, ids)

	recent, err := qry.ListRecentPosts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
}

func TestUpdateHandles(t *testing.T) {
	ctx := context.Background()
	qry, _ := setup(t)
	a := mustCreatePolitician(t, qry, "a", "@a")
	b := mustCreatePolitician(t, qry, "b", "https://twitter.com/b")
	c := mustCreatePolitician(t, qry, "c", "c")

	n, err := qry.UpdateHandles(ctx, []HandleUpdate{
		{ID: a, Handle: sql.NullString{String: "a", Valid: true}},
		{ID: b, Handle: sql.NullString{}},
	}, 50)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	politicians, err := qry.ListPoliticiansWithHandle(ctx)
	require.NoError(t, err)
	handles := map[int64]string{}
	for _, p := range politicians {
		handles[p.ID] = p.TwitterHandle.String
	}
	require.Empty(t, cmp.Diff(map[int64]string{a: "a", c: "c"}, handles))

	updated, err := qry.GetPolitician(ctx, a)
	require.NoError(t, err)
	require.EqualValues(t, 50, updated.UpdatedAt)
	untouched, err := qry.GetPolitician(ctx, c)
	require.NoError(t, err)
	require.EqualValues(t, 1, untouched.UpdatedAt)
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	qry, _ := setup(t)

	summary, err := ToDocument(map[string]int{"yes": 2, "no": 1})
	require.NoError(t, err)

	id, err := qry.CreateSession(ctx, CreateSessionParams{
		ExternalID:    "s1",
		Title:         "session",
		Date:          10,
		ResultSummary: summary,
		CreatedAt:     10,
	})
	require.NoError(t, err)
	session, err := qry.GetSession(ctx, id)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(Document{"yes": float64(2), "no": float64(1)}, session.ResultSummary))

	id, err = qry.CreateSession(ctx, CreateSessionParams{
		ExternalID: "s2",
		Title:      "no summary",
		Date:       11,
		CreatedAt:  11,
	})
	require.NoError(t, err)
	session, err = qry.GetSession(ctx, id)
	require.NoError(t, err)
	require.Nil(t, session.ResultSummary)
}

func TestDocumentScan(t *testing.T) {
	var d Document
	require.NoError(t, d.Scan([]byte(`{"a": "b"}`)))
	require.Equal(t, Document{"a": "b"}, d)

	require.NoError(t, d.Scan(""))
	require.Nil(t, d)

	require.Error(t, d.Scan(42))
	require.Error(t, d.Scan("[1, 2]"))

	doc, err := ToDocument(nil)
	require.NoError(t, err)
	require.Nil(t, doc)

	_, err = ToDocument([]int{1})
	require.Error(t, err)
}

func TestTxDiscardAfterCommit(t *testing.T) {
	ctx := context.Background()
	_, database := setup(t)
	makeTx := NewMakeTx(database)

	tx, discard, commit, err := makeTx(ctx)
	require.NoError(t, err)
	_, err = tx.CreateParty(ctx, CreatePartyParams{Name: "party", CreatedAt: 1})
	require.NoError(t, err)
	require.NoError(t, commit())
	require.NoError(t, discard())

	tx, discard, _, err = makeTx(ctx)
	require.NoError(t, err)
	_, err = tx.CreateParty(ctx, CreatePartyParams{Name: "discarded", CreatedAt: 1})
	require.NoError(t, err)
	require.NoError(t, discard())

	counts, err := New(database).GetEntityCounts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.Parties)
}

func TestCreateExistingReturnsNoRows(t *testing.T) {
	ctx := context.Background()
	qry, database := setup(t)

	mustCreatePolitician(t, qry, "jana", "")
	_, err := qry.CreatePolitician(ctx, CreatePoliticianParams{Name: "Jana", NameKey: "jana", Now: 2})
	require.ErrorIs(t, err, sql.ErrNoRows)

	_, err = database.Exec(`INSERT INTO politicians (name, name_key, created_at, updated_at) VALUES ('x', 'jana', 3, 3)`)
	require.ErrorContains(t, err, "UNIQUE")

	party := CreatePartyParams{Name: "party", CreatedAt: 1}
	_, err = qry.CreateParty(ctx, party)
	require.NoError(t, err)
	_, err = qry.CreateParty(ctx, party)
	require.ErrorIs(t, err, sql.ErrNoRows)

	session := CreateSessionParams{ExternalID: "s1", Title: "session", Date: 1, CreatedAt: 1}
	sessionID, err := qry.CreateSession(ctx, session)
	require.NoError(t, err)
	_, err = qry.CreateSession(ctx, session)
	require.ErrorIs(t, err, sql.ErrNoRows)

	politician, err := qry.GetPoliticianByNameKey(ctx, "jana")
	require.NoError(t, err)
	vote := CreateVoteParams{SessionID: sessionID, PoliticianID: politician.ID, Value: "yes", Now: 1}
	_, err = qry.CreateVote(ctx, vote)
	require.NoError(t, err)
	_, err = qry.CreateVote(ctx, vote)
	require.ErrorIs(t, err, sql.ErrNoRows)

	counts, err := qry.GetEntityCounts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.Politicians)
	require.EqualValues(t, 1, counts.Parties)
}
