// Package parliament scrapes roll-call votes from the parliament's public vote pages.
package parliament

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"polwatch-backend/internal/components/assert"
	"polwatch-backend/internal/components/telemetry"
	"polwatch-backend/internal/ingest"
	"polwatch-backend/pkg/htmlutil"
	"strconv"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch_session = "client.fetch-session"
	report_client_parse_session = "client.parse-session"
)

var ErrSessionNotFound = errors.New("parliament: session not found")

type Options struct {
	BaseUrl string `json:"base_url" env:"BASE_URL"`
	// RequestsPerSecond bounds how fast vote pages are requested.
	RequestsPerSecond float64       `json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Timeout           time.Duration `json:"-"`
}

func DefaultOptions() Options {
	return Options{
		RequestsPerSecond: 2,
		Timeout:           30 * time.Second,
	}
}

// Client fetches voting sessions by their sequential number.
type Client struct {
	baseUrl *url.URL
	http    *resty.Client
	tel     telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("parliament_scraper", tel)

	parsedBaseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("parliament: base url %q must be absolute", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	if opts.RequestsPerSecond > 0 {
		// burst >= rate so that no requests are dropped
		burst := max(int(opts.RequestsPerSecond), 1)
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, "parliament")

	return &Client{
		baseUrl: parsedBaseUrl,
		http:    httpClient,
		tel:     tel,
	}, nil
}

// FetchSession fetches and parses the vote page of a session.
func (c *Client) FetchSession(ctx context.Context, number int) (ingest.RawSession, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", strconv.Itoa(number)).
		Get("/vote")
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_session, err, number)
		return ingest.RawSession{}, fmt.Errorf("parliament: fetch session %d: %w", number, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return ingest.RawSession{}, fmt.Errorf("%w: %d", ErrSessionNotFound, number)
	}
	if res.IsError() {
		err = fmt.Errorf("parliament: fetch session %d: status %d", number, res.StatusCode())
		c.tel.ReportBroken(report_client_fetch_session, err)
		return ingest.RawSession{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		c.tel.ReportBroken(report_client_parse_session, err, number)
		return ingest.RawSession{}, fmt.Errorf("parliament: parse session %d: %w", number, err)
	}

	sourceUrl := c.baseUrl.ResolveReference(&url.URL{
		Path:     "/vote",
		RawQuery: url.Values{"id": {strconv.Itoa(number)}}.Encode(),
	})
	session, err := parseSession(doc, sourceUrl.String())
	if err != nil {
		return ingest.RawSession{}, fmt.Errorf("%w: %d", err, number)
	}
	return session, nil
}

// parseSession reads a vote page. It does not validate the values it finds,
// that is left to the reconciler which reports bad records.
func parseSession(doc *goquery.Document, sourceUrl string) (ingest.RawSession, error) {
	root := doc.Find("#vote").First()
	if root.Length() == 0 {
		return ingest.RawSession{}, ErrSessionNotFound
	}

	session := ingest.RawSession{
		ExternalID:  htmlutil.Attr(doc.Selection, "#vote", "data-external-id"),
		Title:       htmlutil.Text(root, ".title"),
		Description: htmlutil.Text(root, ".description"),
		Date:        htmlutil.Text(root, ".date"),
		Category:    htmlutil.Text(root, ".category"),
		SourceUrl:   sourceUrl,
	}

	root.Find("table.votes tbody tr").Each(func(_ int, row *goquery.Selection) {
		session.Votes = append(session.Votes, ingest.RawVote{
			PoliticianName: htmlutil.Text(row, ".name"),
			PartyName:      htmlutil.Text(row, ".party"),
			Symbol:         htmlutil.Text(row, ".symbol"),
		})
	})
	return session, nil
}
