package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/folio/internal/search"
	"github.com/seanblong/folio/internal/stream"
	"github.com/seanblong/folio/pkg/models"
)

// maxSearchK caps k on catalog search.
const maxSearchK = 50

type searchProjectsRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
}

// handleSearchProjects streams the answer to a portfolio question.
func (s *Server) handleSearchProjects(w http.ResponseWriter, r *http.Request) {
	var req searchProjectsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.errorResponse(w, r, &ErrValidation{Field: "query", Message: "required"})
		return
	}
	if s.cfg.Relay == nil {
		s.errorResponse(w, r, &ErrUnavailable{Service: "relay"})
		return
	}

	stream.PrepareResponse(w)
	w.WriteHeader(http.StatusOK)
	enc := stream.NewEncoder(w)

	start := time.Now()
	err := s.cfg.Relay.Relay(r.Context(), req.Query, enc)
	logger := hlog.FromRequest(r)
	if err != nil {
		logger.Warn().Err(err).Int("frames", enc.Frames()).Msg("relay stream interrupted")
		return
	}
	logger.Info().Int("frames", enc.Frames()).Dur("dur", time.Since(start)).Msg("relay served")
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

// handleCatalog returns every portfolio project.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Catalog == nil {
		s.errorResponse(w, r, &ErrUnavailable{Service: "catalog"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	projects, err := s.cfg.Catalog.Catalog(ctx)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if projects == nil {
		projects = []models.ProjectRecord{}
	}
	s.jsonResponse(w, r, http.StatusOK, projects)
}

// handleProjectSearch runs semantic search over the catalog.
func (s *Server) handleProjectSearch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Search == nil {
		s.errorResponse(w, r, &ErrUnavailable{Service: "search"})
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.errorResponse(w, r, &ErrValidation{Field: "q", Message: "required"})
		return
	}
	k := search.DefaultK
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			k = min(n, maxSearchK)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	res, err := s.cfg.Search.Query(ctx, q, k)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if res == nil {
		res = []models.SearchResult{}
	}
	for i := range res {
		if math.IsNaN(res[i].Score) || math.IsInf(res[i].Score, 0) {
			res[i].Score = 0
		}
	}
	s.jsonResponse(w, r, http.StatusOK, res)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB != nil {
		if err := s.cfg.DB.Ping(r.Context()); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("database ping failed")
			s.errorResponse(w, r, &ErrUnavailable{Service: "database"})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
