package db

import _ "embed"

//go:embed schema.sql
var Schema string

// VoteValue is the normalized value of a single vote, it is stored as text.
type VoteValue string

const (
	VOTE_YES        VoteValue = "yes"
	VOTE_NO         VoteValue = "no"
	VOTE_ABSTAIN    VoteValue = "abstain"
	VOTE_ABSENT     VoteValue = "absent"
	VOTE_NOT_VOTING VoteValue = "not_voting"
	VOTE_UNKNOWN    VoteValue = "unknown"
)

type LogType string

const (
	LOG_VOTES       LogType = "votes"
	LOG_POSTS       LogType = "posts"
	LOG_FIX_HANDLES LogType = "fix_handles"
)

type LogStatus string

const (
	LOG_SUCCESS LogStatus = "success"
	LOG_PARTIAL LogStatus = "partial"
	LOG_ERROR   LogStatus = "error"
)
