package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/folio/internal/ai"
	"github.com/seanblong/folio/pkg/models"
)

// DefaultK is the number of results returned when the caller asks for none.
const DefaultK = 5

// ProjectSearcher is the part of the store used for semantic search.
type ProjectSearcher interface {
	SearchProjects(ctx context.Context, searchVec []float32, queryText string, k int) ([]models.SearchResult, error)
}

type Service struct {
	Client ai.Client
	Store  ProjectSearcher
}

// NewService creates a new search service with the provided AI client and store
func NewService(client ai.Client, store ProjectSearcher) *Service {
	return &Service{
		Client: client,
		Store:  store,
	}
}

// Query embeds q and searches the project catalog. An embedding failure
// degrades to a lexical search instead of failing the request.
func (s *Service) Query(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []models.SearchResult{}, nil
	}
	if k <= 0 {
		k = DefaultK
	}

	vec, err := s.Client.Embed(ctx, q)
	if err != nil {
		log.Warn().Err(err).Str("query", q).Msg("embedding failed, falling back to lexical search")
		vec = nil
	}

	res, err := s.Store.SearchProjects(ctx, vec, q, k)
	if err != nil {
		return nil, err
	}
	return res, nil
}
