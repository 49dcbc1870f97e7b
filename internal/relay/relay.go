// Package relay answers a natural-language question about the portfolio. It
// classifies the question, ranks catalog projects when the question needs
// them, and writes the result to a stream.Encoder.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/folio/internal/ai"
	"github.com/seanblong/folio/internal/stream"
	"github.com/seanblong/folio/pkg/models"
)

// DefaultPersona is the system prompt used when no persona file is set.
const DefaultPersona = `You are the author of this portfolio, a software engineer. Your role is to assist potential employers and clients by answering questions about your background and projects.

INSTRUCTIONS:
1. When asked about projects, work or skills, use the available tools to fetch project details
2. Provide a concise 2-3 line summary for each project, as the full details will be displayed separately
3. Maintain a professional yet conversational tone
4. Focus on highlighting technical skills and achievements
5. If asked about experience, relate it to relevant projects

Be specific about your contributions and the technologies used in each project while keeping responses concise and engaging.`

// Service runs the relay pipeline. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	Classifier *Classifier
	Ranker     *Ranker
	Client     ai.Client
	Persona    string
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Options configures NewService.
type Options struct {
	Persona string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewService wires a classifier and a ranker around client and catalog.
func NewService(client ai.Client, catalog CatalogProvider, opts Options) (*Service, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Persona == "" {
		opts.Persona = DefaultPersona
	}
	ranker, err := NewRanker(catalog, client, opts.Timeout, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		Classifier: NewClassifier(client, opts.Timeout, opts.Logger),
		Ranker:     ranker,
		Client:     client,
		Persona:    opts.Persona,
		Timeout:    opts.Timeout,
		Logger:     opts.Logger,
	}, nil
}

// Relay answers query on enc. Errors returned are write failures on enc;
// model failures are reported to the reader as chunks instead.
func (s *Service) Relay(ctx context.Context, query string, enc *stream.Encoder) error {
	logger := s.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}

	conv := NewConversation(s.Persona)
	decision, conv, err := s.Classifier.Classify(ctx, conv, query)
	if err != nil {
		logger.Error().Err(err).Msg("classification failed")
	}
	logger.Info().Stringer("decision", decision.Kind).Msg("query classified")

	if decision.Kind == DirectAnswer {
		return enc.Encode(stream.MessageChunk(decision.Text))
	}
	return s.relayProjects(ctx, conv, decision.Hint, enc, logger)
}

func (s *Service) relayProjects(ctx context.Context, conv Conversation, hint string, enc *stream.Encoder, logger zerolog.Logger) error {
	sent := 0
	for rec, err := range s.Ranker.Rank(ctx, hint) {
		if err != nil {
			logger.Error().Err(err).Int("sent", sent).Msg("ranking failed")
			return enc.Encode(stream.ErrorChunk(rankingMessage(err)))
		}
		if err := enc.Encode(stream.ProjectChunk(rec)); err != nil {
			return err
		}
		conv = conv.With(ai.Message{Role: ai.RoleAssistant, Content: projectTurn(rec)})
		sent++
	}
	logger.Info().Int("projects", sent).Msg("projects streamed")

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	closing, err := s.Client.Chat(callCtx, conv.Messages(), nil)
	if err != nil {
		logger.Error().Err(err).Msg("closing remark failed")
		return enc.Encode(stream.ErrorChunk("Could not generate a summary for these projects."))
	}
	return enc.Encode(stream.MessageChunk(closing.Content))
}

func rankingMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Finding matching projects took too long. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	default:
		return "Failed to analyze query"
	}
}

// projectTurn renders rec the way it was sent on the wire.
func projectTurn(rec models.ProjectRecord) string {
	b, err := json.Marshal(map[string]any{"type": "project", "data": map[string]any{"project": rec}})
	if err != nil {
		return fmt.Sprintf("project %s: %s", rec.ID, rec.Title)
	}
	return string(b)
}
