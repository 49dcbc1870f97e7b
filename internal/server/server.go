// Package server wires the HTTP API: the streaming query relay, the public
// catalog, GitHub login and the admin API for client projects.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/folio/internal/auth"
	"github.com/seanblong/folio/internal/store"
	"github.com/seanblong/folio/internal/stream"
	"github.com/seanblong/folio/pkg/models"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Relayer answers a query on a stream.
type Relayer interface {
	Relay(ctx context.Context, query string, enc *stream.Encoder) error
}

// CatalogReader lists the portfolio catalog.
type CatalogReader interface {
	Catalog(ctx context.Context) ([]models.ProjectRecord, error)
}

// Searcher runs semantic search over the catalog.
type Searcher interface {
	Query(ctx context.Context, q string, k int) ([]models.SearchResult, error)
}

// Bucket stores uploaded project files.
type Bucket interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
	Available(ctx context.Context) error
	Handler() http.Handler
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Relay   Relayer
	Catalog CatalogReader
	Search  Searcher
	Admin   store.AdminStore
	Bucket  Bucket
	Auth    *auth.Authenticator
	Logger  zerolog.Logger
	// DB is checked by /healthz when set.
	DB Pinger

	// FilesPrefix is the URL path the bucket is served under, e.g. "/files".
	// Empty disables serving.
	FilesPrefix string
	// SecureCookies forces the Secure flag on cookies.
	SecureCookies bool
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	validate *validator.Validate
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{cfg: cfg, mux: http.NewServeMux(), validate: v}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /api/search-projects", s.handleSearchProjects)
	s.mux.HandleFunc("OPTIONS /api/search-projects", s.handlePreflight)
	s.mux.HandleFunc("GET /projects", s.handleCatalog)
	s.mux.HandleFunc("GET /projects/search", s.handleProjectSearch)

	s.mux.HandleFunc("GET /auth/status", s.handleAuthStatus)
	if s.cfg.Auth.Enabled() {
		s.mux.HandleFunc("GET /auth/github", s.handleLogin)
		s.mux.HandleFunc("GET /auth/callback", s.handleCallback)
		s.mux.HandleFunc("GET /auth/me", s.handleMe)
		s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	}

	if s.cfg.Admin != nil {
		s.admin("GET /admin/projects", s.handleListClientProjects)
		s.admin("POST /admin/projects", s.handleCreateClientProject)
		s.admin("GET /admin/projects/{id}", s.handleGetClientProject)
		s.admin("PUT /admin/projects/{id}", s.handleUpdateClientProject)
		s.admin("DELETE /admin/projects/{id}", s.handleDeleteClientProject)

		s.admin("GET /admin/projects/{id}/files", s.handleListFiles)
		s.admin("POST /admin/projects/{id}/files", s.handleUploadFile)
		s.admin("DELETE /admin/files/{fileID}", s.handleDeleteFile)

		s.admin("GET /admin/projects/{id}/updates", s.handleListUpdates)
		s.admin("POST /admin/projects/{id}/updates", s.handleCreateUpdate)

		s.admin("GET /admin/projects/{id}/issues", s.handleListIssues)
		s.admin("POST /admin/projects/{id}/issues", s.handleCreateIssue)
		s.admin("PATCH /admin/issues/{issueID}", s.handleUpdateIssueStatus)

		s.admin("GET /admin/storage", s.handleStorageStatus)
	}

	if s.cfg.Bucket != nil && s.cfg.FilesPrefix != "" {
		prefix := "/" + strings.Trim(s.cfg.FilesPrefix, "/")
		s.mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, s.cfg.Bucket.Handler()))
	}
}

func (s *Server) admin(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.cfg.Auth.Middleware(h))
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	logger := s.cfg.Logger
	return hlog.NewHandler(logger)(
		hlog.RequestIDHandler("req_id", "X-Request-Id")(
			hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
				hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("size", size).
					Dur("dur", dur).
					Msg("http")
			})(s.mux),
		),
	)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return &ErrValidation{Field: "body", Message: "too large"}
		}
		return &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to encode response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	s.jsonResponse(w, r, status, map[string]string{"error": msg})
}

func (s *Server) secure(r *http.Request) bool {
	return s.cfg.SecureCookies || r.TLS != nil || strings.HasPrefix(r.Header.Get("X-Forwarded-Proto"), "https")
}
