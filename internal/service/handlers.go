package service

import (
	"fmt"
	"net/http"
	"polwatch-backend/internal/ingest"
	"strconv"
)

func (s Service) getStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.GetStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s Service) recentPosts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.query.RecentPosts(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s Service) recentSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.query.RecentSessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s Service) ingestVotes(w http.ResponseWriter, r *http.Request) {
	var req ingest.SessionRange
	err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.ingest.IngestVotes(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

type ingestPostsRequest struct {
	MaxPerPolitician int `json:"max_per_politician"`
}

func (s Service) ingestPosts(w http.ResponseWriter, r *http.Request) {
	var req ingestPostsRequest
	err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.ingest.IngestPostsForAll(r.Context(), req.MaxPerPolitician)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s Service) ingestPostsForPolitician(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("politician_id"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid politician id", errBadRequest))
		return
	}
	var req ingestPostsRequest
	err = decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.ingest.IngestPostsForPolitician(r.Context(), id, req.MaxPerPolitician)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s Service) fixHandles(w http.ResponseWriter, r *http.Request) {
	out, err := s.ingest.FixHandles(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s Service) cacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.query.CacheStats())
}

func (s Service) clearCache(w http.ResponseWriter, r *http.Request) {
	s.query.ClearCache()
	s.writeJSON(w, http.StatusOK, s.query.CacheStats())
}

type invalidateRequest struct {
	Keys []string `json:"keys"`
}

func (s Service) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Keys) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: keys must not be empty", errBadRequest))
		return
	}
	s.query.InvalidateCache(req.Keys)
	s.writeJSON(w, http.StatusOK, s.query.CacheStats())
}
