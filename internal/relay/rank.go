package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/folio/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrSequenceConsumed is yielded when a ranked sequence is iterated twice.
var ErrSequenceConsumed = errors.New("ranked sequence already consumed")

// CatalogProvider returns every project with its skills, unranked.
type CatalogProvider interface {
	Catalog(ctx context.Context) ([]models.ProjectRecord, error)
}

// Generator is the slice of ai.Client the ranker needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

const rankingSchema = `{
  "type": "object",
  "required": ["projects"],
  "properties": {
    "projects": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "description": {"type": "string"},
          "github_url": {"type": ["string", "null"]},
          "live_url": {"type": ["string", "null"]},
          "relevance_score": {"type": "number"},
          "skills": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "id": {"type": ["string", "null"]},
                "name": {"type": "string"},
                "category": {"type": ["string", "null"]},
                "relevance_score": {"type": "number"}
              }
            }
          }
        }
      }
    }
  }
}`

// Ranker asks the model to select, rewrite and score catalog projects for a
// lookup hint.
type Ranker struct {
	Catalog CatalogProvider
	Model   Generator
	Timeout time.Duration
	Logger  zerolog.Logger

	schema *gojsonschema.Schema
}

// NewRanker creates a Ranker. A non-positive timeout selects DefaultTimeout.
func NewRanker(catalog CatalogProvider, model Generator, timeout time.Duration, logger zerolog.Logger) (*Ranker, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(rankingSchema))
	if err != nil {
		return nil, fmt.Errorf("compile ranking schema: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ranker{Catalog: catalog, Model: model, Timeout: timeout, Logger: logger, schema: schema}, nil
}

// Rank returns the relevant projects for hint in the order the model chose.
// Work starts on the first iteration. A failure is yielded once as the
// error of a zero record and ends the sequence. The sequence can be
// iterated once; later iterations yield ErrSequenceConsumed.
func (r *Ranker) Rank(ctx context.Context, hint string) iter.Seq2[models.ProjectRecord, error] {
	var used atomic.Bool
	return func(yield func(models.ProjectRecord, error) bool) {
		if used.Swap(true) {
			yield(models.ProjectRecord{}, ErrSequenceConsumed)
			return
		}
		records, err := r.rank(ctx, hint)
		if err != nil {
			yield(models.ProjectRecord{}, err)
			return
		}
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (r *Ranker) rank(ctx context.Context, hint string) ([]models.ProjectRecord, error) {
	catalog, err := r.Catalog.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := r.Model.GenerateJSON(callCtx, rankingPrompt(hint, catalog))
	if err != nil {
		return nil, fmt.Errorf("rank projects: %w", err)
	}
	r.Logger.Debug().Dur("took", time.Since(start)).Int("catalog", len(catalog)).Msg("ranking model answered")

	return r.parse(raw, catalog)
}

type rankedSkill struct {
	ID             *string  `json:"id"`
	Name           string   `json:"name"`
	Category       *string  `json:"category"`
	RelevanceScore *float64 `json:"relevance_score"`
}

type rankedProject struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	GithubURL      *string       `json:"github_url"`
	LiveURL        *string       `json:"live_url"`
	Skills         []rankedSkill `json:"skills"`
	RelevanceScore float64       `json:"relevance_score"`
}

// parse validates the model output and merges it with the catalog. Records
// whose id is not in the catalog are dropped.
func (r *Ranker) parse(raw string, catalog []models.ProjectRecord) ([]models.ProjectRecord, error) {
	doc := strings.TrimSpace(raw)
	if strings.HasPrefix(doc, "[") {
		doc = `{"projects":` + doc + `}`
	}

	result, err := r.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse ranking: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("parse ranking: %s", strings.Join(msgs, "; "))
	}

	var out struct {
		Projects []rankedProject `json:"projects"`
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, fmt.Errorf("parse ranking: %w", err)
	}

	byID := make(map[string]models.ProjectRecord, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	records := make([]models.ProjectRecord, 0, len(out.Projects))
	for _, rp := range out.Projects {
		base, ok := byID[rp.ID]
		if !ok {
			r.Logger.Warn().Str("id", rp.ID).Msg("ranking returned unknown project, dropping")
			continue
		}
		records = append(records, merge(base, rp))
	}
	return records, nil
}

func merge(base models.ProjectRecord, rp rankedProject) models.ProjectRecord {
	rec := models.ProjectRecord{
		ID:             base.ID,
		Title:          base.Title,
		Description:    base.Description,
		GithubURL:      base.GithubURL,
		LiveURL:        base.LiveURL,
		RelevanceScore: clamp(rp.RelevanceScore),
	}
	if t := strings.TrimSpace(rp.Title); t != "" {
		rec.Title = t
	}
	if d := strings.TrimSpace(rp.Description); d != "" {
		rec.Description = d
	}
	if rp.GithubURL != nil && validURL(*rp.GithubURL) {
		rec.GithubURL = *rp.GithubURL
	}
	if rp.LiveURL != nil && validURL(*rp.LiveURL) {
		rec.LiveURL = *rp.LiveURL
	}

	known := make(map[string]models.Skill, len(base.Skills))
	for _, s := range base.Skills {
		known[strings.ToLower(s.Name)] = s
	}
	rec.Skills = make([]models.Skill, 0, len(rp.Skills))
	for _, rs := range rp.Skills {
		name := strings.TrimSpace(rs.Name)
		if name == "" {
			continue
		}
		s := known[strings.ToLower(name)]
		s.Name = name
		if rs.ID != nil && *rs.ID != "" {
			s.ID = *rs.ID
		}
		if rs.Category != nil && *rs.Category != "" {
			s.Category = *rs.Category
		}
		s.RelevanceScore = 0
		if rs.RelevanceScore != nil {
			s.RelevanceScore = clamp(*rs.RelevanceScore)
		}
		rec.Skills = append(rec.Skills, s)
	}
	return rec
}

// validURL rejects the placeholders the model copies from the prompt.
func validURL(u string) bool {
	u = strings.TrimSpace(u)
	return u != "" && !strings.EqualFold(u, "N/A")
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func rankingPrompt(hint string, catalog []models.ProjectRecord) string {
	var b strings.Builder
	b.WriteString("Given a user query about projects and a list of projects with their skills, ")
	b.WriteString("analyze and return the most relevant projects with tailored descriptions.\n\n")
	fmt.Fprintf(&b, "User Query: %s\n\nProjects:\n", hint)
	for _, p := range catalog {
		names := make([]string, 0, len(p.Skills))
		for _, s := range p.Skills {
			names = append(names, s.Name)
		}
		fmt.Fprintf(&b, "\nID: %s\nTitle: %s\nDescription: %s\nSkills: %s\nURLs: %s | %s\n",
			p.ID, p.Title, p.Description, strings.Join(names, ", "), orNA(p.GithubURL), orNA(p.LiveURL))
	}
	b.WriteString(`
Instructions:
1. Analyze the query for key technologies, domains, or concepts
2. For each relevant project, tailor the description to emphasize aspects matching the query
3. Order skills by relevance to the query
4. Only include projects that are truly relevant to the query
5. Keep the project ids exactly as given

Return a JSON object of this shape:
{"projects": [{"id": "string", "title": "string", "description": "string",
  "github_url": "string", "live_url": "string",
  "skills": [{"id": "string", "name": "string", "category": "string", "relevance_score": 0.0}],
  "relevance_score": 0.0}]}

Keep descriptions concise but informative, list the most relevant projects first,
and score relevance from 0 to 1. Return {"projects": []} when nothing is relevant.
`)
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
