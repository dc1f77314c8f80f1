// Package handle cleans up social media handles entered by humans into bare usernames.
package handle

import (
	"strings"
)

var knownHosts = []string{"twitter.com", "x.com"}

var hostPrefixes = []string{"www.", "mobile."}

func trimPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// Normalize turns anything from "@JohnDoe" to "https://x.com/JohnDoe/status/1?s=20"
// into "JohnDoe". Case is preserved, use Key for comparisons.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	s, _ = trimPrefixFold(s, "https://")
	s, _ = trimPrefixFold(s, "http://")
	for _, prefix := range hostPrefixes {
		var ok bool
		s, ok = trimPrefixFold(s, prefix)
		if ok {
			break
		}
	}
	for _, host := range knownHosts {
		rest, ok := trimPrefixFold(s, host)
		if !ok {
			continue
		}
		if rest == "" || rest[0] == '/' {
			s = strings.TrimPrefix(rest, "/")
			break
		}
	}

	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Key is the case-folded form of Normalize, two handles refer to the same
// account iff their keys are equal.
func Key(raw string) string {
	return strings.ToLower(Normalize(raw))
}
