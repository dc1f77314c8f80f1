package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/pkg/handle"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const report_client_resolve_user_id = "client.resolve-user-id"

// UserIdCacheKey is the cache key ResolveUserID stores the id of a handle under.
func UserIdCacheKey(rawHandle string) string {
	return "twitter:user-id:" + handle.Key(rawHandle)
}

type userResponse struct {
	Data *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
}

// ResolveUserID returns the numeric id of the account behind a handle. An account
// that does not exist is not an error, its id is "".
//
// Results are cached under UserIdCacheKey so repeated lookups of the same handle
// do not repeat the call.
func (c *Client) ResolveUserID(ctx context.Context, rawHandle string) (string, error) {
	ctx, span := tracer.Start(ctx, "resolve-user-id")
	defer span.End()

	username := handle.Normalize(rawHandle)
	if username == "" {
		return "", ErrEmptyHandle
	}
	span.SetAttributes(attribute.String("username", username))

	id, outcome, err := cache.GetOrCompute(ctx, c.cache, UserIdCacheKey(username), func(ctx context.Context) (string, error) {
		return c.fetchUserID(ctx, username)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve user id")
		return "", err
	}
	span.SetAttributes(attribute.String("cache", outcome.String()))
	return id, nil
}

func (c *Client) fetchUserID(ctx context.Context, username string) (string, error) {
	res, err := c.get(
		ctx,
		"/2/users/by/username/{username}",
		map[string]string{"username": username},
		nil,
	)
	if err != nil {
		return "", err
	}
	if res.StatusCode() == http.StatusNotFound {
		c.tel.ReportDebug("user not found", username)
		return "", nil
	}

	var body userResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		c.tel.ReportBroken(report_client_resolve_user_id, fmt.Errorf("parse: %w", err), username)
		return "", fmt.Errorf("twitter: parse user %s: %w", username, err)
	}
	// missing accounts may also come back as 200 with only an errors payload
	if body.Data == nil {
		c.tel.ReportDebug("user not found", username)
		return "", nil
	}
	return body.Data.ID, nil
}
