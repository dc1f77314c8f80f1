package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const report_client_recent_posts = "client.recent-posts"

const (
	MinPostsPerRequest = 5
	MaxPostsPerRequest = 100
)

// Tweet is a single post as returned by the api.
type Tweet struct {
	ID        string
	Text      string
	CreatedAt time.Time
	Url       string
	Metrics   map[string]any
	Media     map[string]any
}

type tweetsResponse struct {
	Data []struct {
		ID            string         `json:"id"`
		Text          string         `json:"text"`
		CreatedAt     string         `json:"created_at"`
		PublicMetrics map[string]any `json:"public_metrics"`
		Attachments   map[string]any `json:"attachments"`
	} `json:"data"`
}

func clampMaxResults(max int) int {
	if max < MinPostsPerRequest {
		return MinPostsPerRequest
	}
	if max > MaxPostsPerRequest {
		return MaxPostsPerRequest
	}
	return max
}

// RecentPosts returns the most recent posts of a user, newest first as the api orders them.
// max is clamped to the range the api accepts.
func (c *Client) RecentPosts(ctx context.Context, userID string, max int) ([]Tweet, error) {
	ctx, span := tracer.Start(ctx, "recent-posts")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	res, err := c.get(
		ctx,
		"/2/users/{id}/tweets",
		map[string]string{"id": userID},
		map[string]string{
			"max_results":  strconv.Itoa(clampMaxResults(max)),
			"tweet.fields": "created_at,public_metrics,attachments",
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch posts")
		return nil, err
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}

	var body tweetsResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		c.tel.ReportBroken(report_client_recent_posts, fmt.Errorf("parse: %w", err), userID)
		return nil, fmt.Errorf("twitter: parse posts of %s: %w", userID, err)
	}

	tweets := make([]Tweet, 0, len(body.Data))
	for _, item := range body.Data {
		createdAt, err := time.Parse(time.RFC3339, item.CreatedAt)
		if err != nil {
			c.tel.ReportWarning(
				report_client_recent_posts,
				fmt.Errorf("parse created_at: %w", err),
				item.ID,
				item.CreatedAt,
			)
			continue
		}
		tweets = append(tweets, Tweet{
			ID:        item.ID,
			Text:      item.Text,
			CreatedAt: createdAt,
			Url:       fmt.Sprintf("https://x.com/i/web/status/%s", item.ID),
			Metrics:   item.PublicMetrics,
			Media:     item.Attachments,
		})
	}
	span.SetAttributes(attribute.Int("count", len(tweets)))

	return tweets, nil
}
