package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/folio/pkg/models"
)

// CatalogStore holds the portfolio projects queried by the relay.
type CatalogStore interface {
	Migrate(ctx context.Context, embedDim int) error
	Catalog(ctx context.Context) ([]models.ProjectRecord, error)
	UpsertProject(ctx context.Context, e models.CatalogEntry, searchVec []float32, contentHash string) error
	GetProjectHash(ctx context.Context, id string) (string, bool, error)
	SearchProjects(ctx context.Context, searchVec []float32, queryText string, k int) ([]models.SearchResult, error)
}

var skillNamespace = uuid.MustParse("6f1c2d1e-8a4b-4c1e-9a57-3f0b6d2e9c11")

// SkillID derives a stable id from a skill name so re-indexing never
// duplicates skills.
func SkillID(name string) string {
	return uuid.NewSHA1(skillNamespace, []byte(strings.ToLower(strings.TrimSpace(name)))).String()
}

// Catalog returns every project with its skills in authored order. Relevance
// scores are left at zero; catalog weights are not relevance.
func (s *Store) Catalog(ctx context.Context) ([]models.ProjectRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, COALESCE(github_url, ''), COALESCE(live_url, '')
		FROM projects
		ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ProjectRecord{}
	index := map[string]int{}
	for rows.Next() {
		var p models.ProjectRecord
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.GithubURL, &p.LiveURL); err != nil {
			return nil, err
		}
		p.Skills = []models.Skill{}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.pool.Query(ctx, `
		SELECT ps.project_id, sk.id, sk.name, sk.category
		FROM project_skills ps
		JOIN skills sk ON sk.id = ps.skill_id
		ORDER BY ps.project_id, ps.weight DESC, ps.position`)
	if err != nil {
		return nil, err
	}
	defer srows.Close()

	for srows.Next() {
		var projectID string
		var sk models.Skill
		if err := srows.Scan(&projectID, &sk.ID, &sk.Name, &sk.Category); err != nil {
			return nil, err
		}
		if i, ok := index[projectID]; ok {
			out[i].Skills = append(out[i].Skills, sk)
		}
	}
	return out, srows.Err()
}

// UpsertProject inserts or updates a project and replaces its skill links.
func (s *Store) UpsertProject(ctx context.Context, e models.CatalogEntry, searchVec []float32, contentHash string) error {
	var sv any
	if searchVec != nil {
		sv = pgvector.NewVector(searchVec)
	} else {
		sv = (*pgvector.Vector)(nil)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const q = `
			INSERT INTO projects (id, title, description, github_url, live_url, content_hash, search_vector)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				title         = EXCLUDED.title,
				description   = EXCLUDED.description,
				github_url    = EXCLUDED.github_url,
				live_url      = EXCLUDED.live_url,
				content_hash  = EXCLUDED.content_hash,
				search_vector = COALESCE(EXCLUDED.search_vector, projects.search_vector),
				updated_at    = now()`
		if _, err := tx.Exec(ctx, q, e.ID, e.Title, e.Description, e.GithubURL, e.LiveURL, contentHash, sv); err != nil {
			return fmt.Errorf("upsert project %s: %w", e.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM project_skills WHERE project_id = $1`, e.ID); err != nil {
			return err
		}
		for i, sk := range e.Skills {
			name := strings.TrimSpace(sk.Name)
			if name == "" {
				continue
			}
			id := SkillID(name)
			if _, err := tx.Exec(ctx, `
				INSERT INTO skills (id, name, category) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET
					category = COALESCE(NULLIF(EXCLUDED.category, ''), skills.category)`,
				id, name, sk.Category); err != nil {
				return fmt.Errorf("upsert skill %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO project_skills (project_id, skill_id, weight, position) VALUES ($1, $2, $3, $4)
				ON CONFLICT (project_id, skill_id) DO UPDATE SET weight = EXCLUDED.weight, position = EXCLUDED.position`,
				e.ID, id, sk.Weight, i); err != nil {
				return fmt.Errorf("link skill %s: %w", name, err)
			}
		}
		return nil
	})
}

// GetProjectHash returns the content hash recorded for a project.
func (s *Store) GetProjectHash(ctx context.Context, id string) (string, bool, error) {
	var h string
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(content_hash, '') FROM projects WHERE id = $1`, id).Scan(&h)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return h, true, nil
}

// SearchProjects ranks projects by embedding similarity blended with a
// lexical match on title and description. A nil vector searches lexically.
func (s *Store) SearchProjects(ctx context.Context, searchVec []float32, queryText string, k int) ([]models.SearchResult, error) {
	qtext := strings.TrimSpace(queryText)
	if qtext == "" {
		return []models.SearchResult{}, nil
	}
	if k <= 0 {
		k = 5
	}

	var sv any
	if len(searchVec) > 0 {
		sv = pgvector.NewVector(searchVec)
	} else {
		sv = (*pgvector.Vector)(nil)
	}

	const q = `
WITH q AS (
  SELECT $1::vector AS sv,
         plainto_tsquery('english', $2) AS tq,
         NULLIF($3, '') AS tri_term
),
cand AS (
  SELECT
    id, title, description, COALESCE(github_url, '') AS github_url, COALESCE(live_url, '') AS live_url,
    COALESCE(LEAST(GREATEST(1.0 - cosine_distance(search_vector, (SELECT sv FROM q)), 0), 1), 0) AS sem_sim,
    LEAST(GREATEST(ts_rank_cd(ts_fielded, (SELECT tq FROM q)), 0), 1) AS lex,
    COALESCE(similarity(lower(title), lower((SELECT tri_term FROM q))), 0) AS tri
  FROM projects
),
ranked AS (
  SELECT *,
         MAX(sem_sim) OVER() AS max_sem,
         MAX(lex)     OVER() AS max_lex,
         MAX(tri)     OVER() AS max_tri
  FROM cand
)
SELECT id, title, description, github_url, live_url,
  (
    0.75 * COALESCE(sem_sim / NULLIF(max_sem, 0), 0) +
    0.20 * COALESCE(lex     / NULLIF(max_lex, 0), 0) +
    0.05 * COALESCE(tri     / NULLIF(max_tri, 0), 0)
  ) AS score
FROM ranked
ORDER BY score DESC, title
LIMIT $4`

	rows, err := s.pool.Query(ctx, q, sv, qtext, longestToken(qtext), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var p models.ProjectRecord
		var score float64
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.GithubURL, &p.LiveURL, &score); err != nil {
			return nil, err
		}
		p.Skills = []models.Skill{}
		out = append(out, models.SearchResult{Project: p, Score: score})
	}
	return out, rows.Err()
}

var tokenRE = regexp.MustCompile(`[A-Za-z0-9._-]+`)

// longestToken extracts the longest alphanumeric token from the input string.
func longestToken(s string) string {
	longest := ""
	for _, t := range tokenRE.FindAllString(strings.ToLower(s), -1) {
		if len(t) > len(longest) {
			longest = t
		}
	}
	return longest
}
