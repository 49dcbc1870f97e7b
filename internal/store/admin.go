package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/seanblong/folio/pkg/models"
)

// AdminStore persists client projects and their files, updates and issues.
type AdminStore interface {
	ListClientProjects(ctx context.Context, organizationID string) ([]models.ClientProject, error)
	GetClientProject(ctx context.Context, id string) (models.ClientProject, error)
	CreateClientProject(ctx context.Context, p models.ClientProject) (models.ClientProject, error)
	UpdateClientProject(ctx context.Context, p models.ClientProject) (models.ClientProject, error)
	DeleteClientProject(ctx context.Context, id string) error

	ListFiles(ctx context.Context, projectID string) ([]models.ProjectFile, error)
	GetFile(ctx context.Context, id string) (models.ProjectFile, error)
	CreateFile(ctx context.Context, f models.ProjectFile) (models.ProjectFile, error)
	DeleteFile(ctx context.Context, id string) error

	ListUpdates(ctx context.Context, projectID string) ([]models.ProjectUpdate, error)
	CreateUpdate(ctx context.Context, u models.ProjectUpdate) (models.ProjectUpdate, error)

	ListIssues(ctx context.Context, projectID string) ([]models.ProjectIssue, error)
	CreateIssue(ctx context.Context, i models.ProjectIssue) (models.ProjectIssue, error)
	UpdateIssueStatus(ctx context.Context, id, status, notes string, clientInput bool) (models.ProjectIssue, error)
}

const clientProjectCols = `id, name, COALESCE(description, ''), COALESCE(design_link, ''), COALESCE(github_link, ''),
	status, priority, budget, COALESCE(organization_id, ''), COALESCE(owner_id, ''), created_at, updated_at`

func scanClientProject(row pgx.Row) (models.ClientProject, error) {
	var p models.ClientProject
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DesignLink, &p.GithubLink,
		&p.Status, &p.Priority, &p.Budget, &p.OrganizationID, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	return p, notFound(err)
}

// ListClientProjects returns client projects, newest first. A non-empty
// organizationID keeps only that organization's projects.
func (s *Store) ListClientProjects(ctx context.Context, organizationID string) ([]models.ClientProject, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+clientProjectCols+` FROM client_projects
		WHERE $1::text = '' OR organization_id = $1::text
		ORDER BY created_at DESC`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ClientProject{}
	for rows.Next() {
		p, err := scanClientProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetClientProject(ctx context.Context, id string) (models.ClientProject, error) {
	return scanClientProject(s.pool.QueryRow(ctx, `SELECT `+clientProjectCols+` FROM client_projects WHERE id = $1`, id))
}

// CreateClientProject inserts p with a fresh id and returns the stored row.
func (s *Store) CreateClientProject(ctx context.Context, p models.ClientProject) (models.ClientProject, error) {
	p.ID = uuid.NewString()
	return scanClientProject(s.pool.QueryRow(ctx, `
		INSERT INTO client_projects (id, name, description, design_link, github_link, status, priority, budget, organization_id, owner_id)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
		RETURNING `+clientProjectCols,
		p.ID, p.Name, p.Description, p.DesignLink, p.GithubLink, p.Status, p.Priority, p.Budget, p.OrganizationID, p.OwnerID))
}

func (s *Store) UpdateClientProject(ctx context.Context, p models.ClientProject) (models.ClientProject, error) {
	return scanClientProject(s.pool.QueryRow(ctx, `
		UPDATE client_projects SET
			name = $2, description = NULLIF($3, ''), design_link = NULLIF($4, ''), github_link = NULLIF($5, ''),
			status = $6, priority = $7, budget = $8, organization_id = NULLIF($9, ''), owner_id = NULLIF($10, ''),
			updated_at = now()
		WHERE id = $1
		RETURNING `+clientProjectCols,
		p.ID, p.Name, p.Description, p.DesignLink, p.GithubLink, p.Status, p.Priority, p.Budget, p.OrganizationID, p.OwnerID))
}

func (s *Store) DeleteClientProject(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM client_projects WHERE id = $1`, id)
}

const fileCols = `id, project_id, name, size, type, storage_path, created_at, updated_at`

func scanFile(row pgx.Row) (models.ProjectFile, error) {
	var f models.ProjectFile
	err := row.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Size, &f.Type, &f.StoragePath, &f.CreatedAt, &f.UpdatedAt)
	return f, notFound(err)
}

// ListFiles returns the files of a project, newest first.
func (s *Store) ListFiles(ctx context.Context, projectID string) ([]models.ProjectFile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fileCols+` FROM project_files WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ProjectFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) GetFile(ctx context.Context, id string) (models.ProjectFile, error) {
	return scanFile(s.pool.QueryRow(ctx, `SELECT `+fileCols+` FROM project_files WHERE id = $1`, id))
}

func (s *Store) CreateFile(ctx context.Context, f models.ProjectFile) (models.ProjectFile, error) {
	f.ID = uuid.NewString()
	return scanFile(s.pool.QueryRow(ctx, `
		INSERT INTO project_files (id, project_id, name, size, type, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+fileCols,
		f.ID, f.ProjectID, f.Name, f.Size, f.Type, f.StoragePath))
}

func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM project_files WHERE id = $1`, id)
}

const updateCols = `id, project_id, content, created_at, updated_at`

func scanUpdate(row pgx.Row) (models.ProjectUpdate, error) {
	var u models.ProjectUpdate
	err := row.Scan(&u.ID, &u.ProjectID, &u.Content, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}

// ListUpdates returns the updates of a project, newest first.
func (s *Store) ListUpdates(ctx context.Context, projectID string) ([]models.ProjectUpdate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+updateCols+` FROM project_updates WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ProjectUpdate{}
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CreateUpdate(ctx context.Context, u models.ProjectUpdate) (models.ProjectUpdate, error) {
	u.ID = uuid.NewString()
	return scanUpdate(s.pool.QueryRow(ctx, `
		INSERT INTO project_updates (id, project_id, content) VALUES ($1, $2, $3)
		RETURNING `+updateCols,
		u.ID, u.ProjectID, u.Content))
}

const issueCols = `id, project_id, content, status, COALESCE(resolution_notes, ''), COALESCE(client_input_notes, ''), created_at, updated_at`

func scanIssue(row pgx.Row) (models.ProjectIssue, error) {
	var i models.ProjectIssue
	err := row.Scan(&i.ID, &i.ProjectID, &i.Content, &i.Status, &i.ResolutionNotes, &i.ClientInputNotes, &i.CreatedAt, &i.UpdatedAt)
	return i, notFound(err)
}

// ListIssues returns the issues of a project, newest first.
func (s *Store) ListIssues(ctx context.Context, projectID string) ([]models.ProjectIssue, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+issueCols+` FROM project_issues WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ProjectIssue{}
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// CreateIssue inserts a new issue in the open state.
func (s *Store) CreateIssue(ctx context.Context, i models.ProjectIssue) (models.ProjectIssue, error) {
	i.ID = uuid.NewString()
	return scanIssue(s.pool.QueryRow(ctx, `
		INSERT INTO project_issues (id, project_id, content, status) VALUES ($1, $2, $3, $4)
		RETURNING `+issueCols,
		i.ID, i.ProjectID, i.Content, models.IssueOpen))
}

// UpdateIssueStatus sets the status of an issue. Non-empty notes replace the
// client input notes when clientInput is set, and the resolution notes
// otherwise.
func (s *Store) UpdateIssueStatus(ctx context.Context, id, status, notes string, clientInput bool) (models.ProjectIssue, error) {
	col := "resolution_notes"
	if clientInput {
		col = "client_input_notes"
	}
	return scanIssue(s.pool.QueryRow(ctx, `
		UPDATE project_issues SET
			status = $2,
			`+col+` = COALESCE(NULLIF($3, ''), `+col+`),
			updated_at = now()
		WHERE id = $1
		RETURNING `+issueCols,
		id, status, notes))
}

func (s *Store) exec(ctx context.Context, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
