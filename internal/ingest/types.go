package ingest

import (
	"context"
	"errors"
	"fmt"
	"polwatch-backend/internal/apis/twitter"
	"polwatch-backend/internal/components/db"
	"strings"
	"time"
)

var (
	// ErrInvalidRecord marks a single source record that cannot be applied, it
	// is skipped and reported without failing the batch.
	ErrInvalidRecord = errors.New("invalid record")
	ErrInvalidRange  = errors.New("invalid session range")
)

// RawVote is a single vote as produced by the page scraper.
type RawVote struct {
	PoliticianName string
	PartyName      string
	Symbol         string
}

// RawSession is a voting session as produced by the page scraper, Date is
// left as the source wrote it.
type RawSession struct {
	ExternalID  string
	Title       string
	Description string
	Date        string
	Category    string
	SourceUrl   string
	Votes       []RawVote
}

// SessionSource produces raw sessions by their sequential number on the source.
type SessionSource interface {
	FetchSession(ctx context.Context, number int) (RawSession, error)
}

// PostFetcher is the part of the social media api ingestion needs.
type PostFetcher interface {
	ResolveUserID(ctx context.Context, handle string) (string, error)
	RecentPosts(ctx context.Context, userID string, max int) ([]twitter.Tweet, error)
}

// SessionRange is an inclusive range of session numbers.
type SessionRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r SessionRange) Validate(maxLength int) error {
	if r.From <= 0 || r.To < r.From {
		return fmt.Errorf("%w: %d..%d", ErrInvalidRange, r.From, r.To)
	}
	if maxLength > 0 && r.To-r.From+1 > maxLength {
		return fmt.Errorf("%w: %d..%d is longer than %d sessions", ErrInvalidRange, r.From, r.To, maxLength)
	}
	return nil
}

// ItemError is a per-record problem reported in a batch report.
type ItemError struct {
	// Ref identifies the record in the source, a session number or an external id.
	Ref     string `json:"ref"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ItemError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Ref, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Ref, e.Field, e.Message)
}

type VotesReport struct {
	SessionsUpserted int         `json:"sessions_upserted"`
	SessionsCreated  int         `json:"sessions_created"`
	VotesUpserted    int         `json:"votes_upserted"`
	VotesInserted    int         `json:"votes_inserted"`
	VotesUpdated     int         `json:"votes_updated"`
	Errors           []ItemError `json:"errors"`
}

type PostsDetail struct {
	PoliticianID int64  `json:"politician_id"`
	Name         string `json:"name"`
	Handle       string `json:"handle"`
	NewPosts     int    `json:"new_posts"`
	SkippedPosts int    `json:"skipped_posts"`
	RateLimited  bool   `json:"rate_limited,omitempty"`
	Error        string `json:"error,omitempty"`
}

type PostsReport struct {
	TotalPoliticians int           `json:"total_politicians"`
	Processed        int           `json:"processed"`
	NewPosts         int           `json:"new_posts"`
	SkippedPosts     int           `json:"skipped_posts"`
	RateLimited      bool          `json:"rate_limited"`
	Details          []PostsDetail `json:"details"`
}

type HandleFix struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Original string `json:"original"`
	Fixed    string `json:"fixed"`
}

type FixHandlesReport struct {
	Total     int         `json:"total"`
	Fixed     int         `json:"fixed"`
	Unchanged int         `json:"unchanged"`
	Details   []HandleFix `json:"details"`
}

// InsertResult is the outcome of inserting a batch of posts.
type InsertResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

var voteSymbols = map[string]db.VoteValue{
	"A": db.VOTE_YES,
	"Y": db.VOTE_YES,
	"+": db.VOTE_YES,
	"N": db.VOTE_NO,
	"-": db.VOTE_NO,
	"Z": db.VOTE_ABSTAIN,
	"0": db.VOTE_ABSENT,
	"M": db.VOTE_ABSENT,
	"X": db.VOTE_NOT_VOTING,
}

// VoteValueFromSymbol maps a source vote symbol to a vote value, symbols that
// are not known map to db.VOTE_UNKNOWN.
func VoteValueFromSymbol(symbol string) db.VoteValue {
	value, ok := voteSymbols[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return db.VOTE_UNKNOWN
	}
	return value
}

var sessionDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"2. 1. 2006 15:04",
	"2. 1. 2006",
	"2.1.2006 15:04",
	"2.1.2006",
}

// ParseSessionDate parses the date formats the source is known to use, dates
// without a zone are taken to be in loc.
func ParseSessionDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidRecord)
	}
	for _, layout := range sessionDateLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrInvalidRecord, raw)
}

// NameKey is the case-insensitive lookup key of a politician's name.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
