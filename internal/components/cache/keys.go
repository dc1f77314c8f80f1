package cache

// Keys of the listings and aggregates derived from the store, writers
// invalidate these after changing the rows they are computed from.
const (
	KEY_STATS           = "stats"
	KEY_RECENT_POSTS    = "posts:recent"
	KEY_RECENT_SESSIONS = "sessions:recent"
)
