package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"polwatch-backend/internal/components/assert"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/chrono"
	"polwatch-backend/internal/components/telemetry"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

const (
	report_client_call            = "client.call"
	report_client_rate_limit_wait = "client.rate-limit-wait"
	report_client_backoff         = "client.backoff"
	report_client_quota           = "client.quota"
)

var tracer = otel.Tracer("polwatch-backend/internal/apis/twitter")

type Options struct {
	BaseUrl     string
	BearerToken string
	// InitialBackoff is the wait before the first retry of a rate limited call, it
	// doubles with every further retry unless the server sends Retry-After.
	InitialBackoff time.Duration
	// MaxRetries is how many times a rate limited call is retried.
	MaxRetries int
	// SafetyMargin is added on top of the quota reset time before calling again.
	SafetyMargin time.Duration
	// RequestsPerSecond smooths outgoing calls, zero disables smoothing.
	RequestsPerSecond float64
	Timeout           time.Duration
}

func DefaultOptions() Options {
	return Options{
		BaseUrl:        "https://api.twitter.com",
		InitialBackoff: time.Second,
		MaxRetries:     3,
		SafetyMargin:   time.Second,
		Timeout:        30 * time.Second,
	}
}

// Quota is the rate limit bookkeeping taken from the last response.
type Quota struct {
	Known     bool      `json:"known"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Client calls the quota limited twitter api, waiting out exhausted quotas
// and retrying rate limited calls with exponential backoff.
type Client struct {
	http    *resty.Client
	cache   *cache.Cache
	clock   chrono.API
	tel     telemetry.API
	opts    Options
	limiter *rate.Limiter

	mutex sync.Mutex
	quota Quota
}

func NewClient(opts Options, c *cache.Cache, clock chrono.API, tel telemetry.API) *Client {
	assert.NotNil(c)
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.BaseUrl)

	tel = telemetry.NewScopedAPI("twitter", tel)

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetHeader("accept", "application/json")
	if opts.BearerToken != "" {
		httpClient.SetAuthToken(opts.BearerToken)
	}
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	telemetry.InstrumentResty(httpClient, tel, "twitter")

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		http:    httpClient,
		cache:   c,
		clock:   clock,
		tel:     tel,
		opts:    opts,
		limiter: limiter,
	}
}

// Quota returns a snapshot of the rate limit bookkeeping.
func (c *Client) Quota() Quota {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.quota
}

func (c *Client) updateQuota(header http.Header) {
	remainingStr := header.Get("x-rate-limit-remaining")
	resetStr := header.Get("x-rate-limit-reset")
	if remainingStr == "" || resetStr == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		c.tel.ReportWarning(report_client_quota, fmt.Errorf("parse remaining: %w", err), remainingStr)
		return
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		c.tel.ReportWarning(report_client_quota, fmt.Errorf("parse reset: %w", err), resetStr)
		return
	}

	c.mutex.Lock()
	c.quota = Quota{
		Known:     true,
		Remaining: remaining,
		ResetAt:   time.Unix(reset, 0),
	}
	c.mutex.Unlock()
	c.tel.ReportCount(report_client_quota, int64(remaining))
}

// quotaWait is how long to wait before the next call when the quota is known
// to be exhausted, zero otherwise.
func (c *Client) quotaWait() time.Duration {
	c.mutex.Lock()
	quota := c.quota
	c.mutex.Unlock()

	if !quota.Known || quota.Remaining > 0 {
		return 0
	}
	now := c.clock.Now()
	if !now.Before(quota.ResetAt) {
		return 0
	}
	return quota.ResetAt.Sub(now) + c.opts.SafetyMargin
}

// waitForQuota suspends the calling goroutine until the quota resets if it
// is known to be exhausted.
func (c *Client) waitForQuota(ctx context.Context) error {
	wait := c.quotaWait()
	if wait <= 0 {
		return nil
	}
	c.tel.ReportWarning(report_client_rate_limit_wait, wait.String())
	return c.clock.Sleep(ctx, wait)
}

// backoff is the wait before retrying a rate limited call. Retry-After is
// honored as is, otherwise the exponential backoff is stretched to the quota
// reset when the response also reported an exhausted quota.
func (c *Client) backoff(retry int, header http.Header) time.Duration {
	if wait, ok := parseRetryAfter(header.Get("retry-after"), c.clock.Now()); ok {
		return wait
	}
	return max(c.opts.InitialBackoff*time.Duration(math.Pow(2, float64(retry))), c.quotaWait())
}

func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	wait := at.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type errorPayload struct {
	Title  string           `json:"title"`
	Detail string           `json:"detail"`
	Errors []map[string]any `json:"errors"`
}

func newAPIError(res *resty.Response) *APIError {
	apiErr := &APIError{
		StatusCode: res.StatusCode(),
		Body:       res.String(),
	}
	var payload errorPayload
	if json.Unmarshal(res.Body(), &payload) == nil {
		apiErr.Title = payload.Title
		apiErr.Detail = payload.Detail
		apiErr.Errors = payload.Errors
	}
	return apiErr
}

// get performs a GET request, the returned response is always a 2xx or 404 response.
func (c *Client) get(ctx context.Context, path string, pathParams, query map[string]string) (*resty.Response, error) {
	// a retry has already waited for the quota as part of its backoff
	backedOff := false
	for retry := 0; ; retry++ {
		if !backedOff {
			err := c.waitForQuota(ctx)
			if err != nil {
				return nil, err
			}
		}
		backedOff = false
		if c.limiter != nil {
			err := c.limiter.Wait(ctx)
			if err != nil {
				return nil, err
			}
		}

		res, err := c.http.R().
			SetContext(ctx).
			SetPathParams(pathParams).
			SetQueryParams(query).
			Get(path)
		if err != nil {
			if isTimeout(err) && retry < c.opts.MaxRetries {
				wait := c.backoff(retry, http.Header{})
				c.tel.ReportWarning(report_client_backoff, "timeout", path, wait.String())
				err = c.clock.Sleep(ctx, wait)
				if err != nil {
					return nil, err
				}
				backedOff = true
				continue
			}
			c.tel.ReportBroken(report_client_call, fmt.Errorf("fetch: %w", err), path)
			return nil, fmt.Errorf("twitter: %s: %w", path, err)
		}
		c.updateQuota(res.Header())

		switch status := res.StatusCode(); {
		case status == http.StatusTooManyRequests:
			if retry >= c.opts.MaxRetries {
				c.tel.ReportWarning(report_client_call, ErrRateLimitExceeded, path, retry)
				return nil, fmt.Errorf("%s after %d retries: %w", path, retry, ErrRateLimitExceeded)
			}
			wait := c.backoff(retry, res.Header())
			c.tel.ReportWarning(report_client_backoff, path, retry+1, wait.String())
			err = c.clock.Sleep(ctx, wait)
			if err != nil {
				return nil, err
			}
			backedOff = true
			continue
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			c.tel.ReportBroken(report_client_call, ErrUnauthorized, path, status)
			return nil, fmt.Errorf("%s: %w: %w", path, ErrUnauthorized, newAPIError(res))
		case status == http.StatusNotFound:
			return res, nil
		case res.IsError() || status >= 300:
			apiErr := newAPIError(res)
			c.tel.ReportBroken(report_client_call, apiErr, path)
			return nil, apiErr
		}
		return res, nil
	}
}
