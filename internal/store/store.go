package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, embedDim int) error {
	if embedDim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", embedDim)
	}
	q := `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS projects (
  id            TEXT PRIMARY KEY,
  title         TEXT NOT NULL,
  description   TEXT NOT NULL DEFAULT '',
  github_url    TEXT,
  live_url      TEXT,
  content_hash  TEXT,
  search_vector vector(%d),
  created_at    TIMESTAMP WITH TIME ZONE DEFAULT now(),
  updated_at    TIMESTAMP WITH TIME ZONE DEFAULT now(),
  ts_fielded    tsvector GENERATED ALWAYS AS (
    setweight(to_tsvector('english', coalesce(title,'')), 'A') ||
    setweight(to_tsvector('english', coalesce(description,'')), 'B')
  ) STORED
);

CREATE TABLE IF NOT EXISTS skills (
  id       TEXT PRIMARY KEY,
  name     TEXT NOT NULL UNIQUE,
  category TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS project_skills (
  project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  skill_id   TEXT NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
  weight     DOUBLE PRECISION NOT NULL DEFAULT 0,
  position   INT NOT NULL DEFAULT 0,
  PRIMARY KEY (project_id, skill_id)
);

CREATE INDEX IF NOT EXISTS projects_ts_fielded_gin
  ON projects USING GIN (ts_fielded);
CREATE INDEX IF NOT EXISTS projects_title_trgm
  ON projects USING GIN (lower(title) gin_trgm_ops);
CREATE INDEX IF NOT EXISTS projects_search_vector_idx
  ON projects USING ivfflat (search_vector vector_cosine_ops) WITH (lists = 100);

CREATE TABLE IF NOT EXISTS client_projects (
  id              TEXT PRIMARY KEY,
  name            TEXT NOT NULL,
  description     TEXT,
  design_link     TEXT,
  github_link     TEXT,
  status          TEXT NOT NULL DEFAULT 'planning',
  priority        TEXT NOT NULL DEFAULT 'medium',
  budget          DOUBLE PRECISION CHECK (budget IS NULL OR budget >= 0),
  organization_id TEXT,
  owner_id        TEXT,
  created_at      TIMESTAMP WITH TIME ZONE DEFAULT now(),
  updated_at      TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_files (
  id           TEXT PRIMARY KEY,
  project_id   TEXT NOT NULL REFERENCES client_projects(id) ON DELETE CASCADE,
  name         TEXT NOT NULL,
  size         BIGINT NOT NULL DEFAULT 0,
  type         TEXT NOT NULL DEFAULT '',
  storage_path TEXT NOT NULL,
  created_at   TIMESTAMP WITH TIME ZONE DEFAULT now(),
  updated_at   TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_updates (
  id         TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES client_projects(id) ON DELETE CASCADE,
  content    TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_issues (
  id                 TEXT PRIMARY KEY,
  project_id         TEXT NOT NULL REFERENCES client_projects(id) ON DELETE CASCADE,
  content            TEXT NOT NULL,
  status             TEXT NOT NULL DEFAULT 'open',
  resolution_notes   TEXT,
  client_input_notes TEXT,
  created_at         TIMESTAMP WITH TIME ZONE DEFAULT now(),
  updated_at         TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS project_files_project_idx ON project_files (project_id);
CREATE INDEX IF NOT EXISTS project_updates_project_idx ON project_updates (project_id);
CREATE INDEX IF NOT EXISTS project_issues_project_idx ON project_issues (project_id);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, embedDim))
	return err
}
