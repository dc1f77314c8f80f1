// Package service exposes ingestion and the read path as a JSON http api.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"polwatch-backend/internal/components/assert"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/telemetry"
	"polwatch-backend/internal/ingest"
	"polwatch-backend/internal/stats"
	"strconv"
)

const (
	report_http_request = "http.request"
	report_http_encode  = "http.encode"
)

// IngestAPI describes everything that writes to the store, it is effectively
// the "write" API.
type IngestAPI interface {
	IngestVotes(ctx context.Context, sessionRange ingest.SessionRange) (ingest.VotesReport, error)
	IngestPostsForAll(ctx context.Context, max int) (ingest.PostsReport, error)
	IngestPostsForPolitician(ctx context.Context, politicianID int64, max int) (ingest.PostsDetail, error)
	FixHandles(ctx context.Context) (ingest.FixHandlesReport, error)
}

// QueryAPI describes everything that reads from the store and its cache, it is
// effectively the "read" API.
type QueryAPI interface {
	GetStats(ctx context.Context) (stats.Stats, error)
	RecentPosts(ctx context.Context, limit int) ([]stats.Post, error)
	RecentSessions(ctx context.Context, limit int) ([]stats.Session, error)
	InvalidateCache(keys []string)
	ClearCache()
	CacheStats() cache.Stats
}

type Service struct {
	ingest IngestAPI
	query  QueryAPI
	tel    telemetry.API
}

func NewService(ingester IngestAPI, query QueryAPI, tel telemetry.API) Service {
	assert.NotNil(ingester)
	assert.NotNil(query)
	assert.NotNil(tel)

	return Service{
		ingest: ingester,
		query:  query,
		tel:    telemetry.NewScopedAPI("service", tel),
	}
}

// Register adds every route of the api to mux.
func (s Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.healthz)

	mux.HandleFunc("GET /api/stats", s.getStats)
	mux.HandleFunc("GET /api/posts/recent", s.recentPosts)
	mux.HandleFunc("GET /api/sessions/recent", s.recentSessions)

	mux.HandleFunc("POST /api/ingest/votes", s.ingestVotes)
	mux.HandleFunc("POST /api/ingest/posts", s.ingestPosts)
	mux.HandleFunc("POST /api/ingest/posts/{politician_id}", s.ingestPostsForPolitician)
	mux.HandleFunc("POST /api/handles/fix", s.fixHandles)

	mux.HandleFunc("GET /api/cache", s.cacheStats)
	mux.HandleFunc("DELETE /api/cache", s.clearCache)
	mux.HandleFunc("POST /api/cache/invalidate", s.invalidateCache)
}

type errorResponse struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("bad request")

func (s Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.tel.ReportWarning(report_http_encode, err)
	}
}

// writeError responds with a summary of err, invalid input is a client error
// and anything else a server error.
func (s Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ingest.ErrInvalidRange),
		errors.Is(err, ingest.ErrInvalidRecord):
		status = http.StatusBadRequest
	default:
		s.tel.ReportBroken(report_http_request, err, r.Method, r.URL.Path)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, out any) error {
	if r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}

func (s Service) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
