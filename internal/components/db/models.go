package db

import "database/sql"

type Party struct {
	ID         int64
	Name       string
	ShortName  sql.NullString
	LogoUrl    sql.NullString
	WebsiteUrl sql.NullString
	CreatedAt  int64
}

type Politician struct {
	ID            int64
	Name          string
	NameKey       string
	PartyID       sql.NullInt64
	TwitterHandle sql.NullString
	Title         sql.NullString
	Bio           sql.NullString
	Verified      bool
	LastSyncedAt  sql.NullInt64
	CreatedAt     int64
	UpdatedAt     int64
}

type VotingSession struct {
	ID            int64
	ExternalID    string
	Title         string
	Description   sql.NullString
	Date          int64
	Category      sql.NullString
	SourceUrl     sql.NullString
	ResultSummary Document
	VoteCount     int64
	CreatedAt     int64
}

type Vote struct {
	ID           int64
	SessionID    int64
	PoliticianID int64
	Value        VoteValue
	Metadata     Document
	CreatedAt    int64
	UpdatedAt    int64
}

type Post struct {
	ID           int64
	ExternalID   string
	PoliticianID int64
	Content      string
	Url          sql.NullString
	PostedAt     int64
	Media        Document
	Metrics      Document
	SessionID    sql.NullInt64
	Sentiment    sql.NullFloat64
	CreatedAt    int64
}

type SystemLog struct {
	ID        int64
	Type      LogType
	Status    LogStatus
	Message   string
	Details   Document
	CreatedAt int64
}

type PostVoteLink struct {
	PostID     int64
	VoteID     int64
	Confidence float64
	LinkType   string
}
