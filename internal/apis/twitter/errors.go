package twitter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimitExceeded is returned once a call has been rate limited more times than the retry budget allows.
	ErrRateLimitExceeded = errors.New("twitter: rate limit exceeded")
	// ErrUnauthorized is returned for 401 and 403 responses, these are never retried.
	ErrUnauthorized = errors.New("twitter: unauthorized")
	// ErrEmptyHandle is returned when a handle normalizes to nothing.
	ErrEmptyHandle = errors.New("twitter: empty handle")
)

// APIError is a non-success response that is not a rate limit or an authorization failure.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
	// Errors holds the structured error payload, if the api sent one.
	Errors []map[string]any
	Body   string
}

func (e *APIError) Error() string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "twitter: status %d", e.StatusCode)
	if e.Title != "" {
		fmt.Fprintf(&msg, ": %s", e.Title)
	}
	if e.Detail != "" {
		fmt.Fprintf(&msg, ": %s", e.Detail)
	}
	for _, item := range e.Errors {
		if message, ok := item["message"].(string); ok {
			fmt.Fprintf(&msg, "; %s", message)
		}
	}
	return msg.String()
}
