package models

import "time"

// Skill is a skill attached to a project. RelevanceScore is only meaningful
// for the query that produced it.
type Skill struct {
	ID             string  `json:"id"`
	Name           string  `json:"name" validate:"required"`
	Category       string  `json:"category"`
	RelevanceScore float64 `json:"relevance_score" validate:"gte=0,lte=1"`
}

// ProjectRecord is a portfolio project as exposed to an end user.
type ProjectRecord struct {
	ID             string  `json:"id" validate:"required"`
	Title          string  `json:"title" validate:"required"`
	Description    string  `json:"description"`
	GithubURL      string  `json:"github_url,omitempty"`
	LiveURL        string  `json:"live_url,omitempty"`
	Skills         []Skill `json:"skills" validate:"dive"`
	RelevanceScore float64 `json:"relevance_score" validate:"gte=0,lte=1"`
}

// CatalogSkill is a skill as authored in the catalog. Weight orders skills
// when no query is active and is never reported as a relevance score.
type CatalogSkill struct {
	Name     string  `yaml:"name" json:"name" validate:"required"`
	Category string  `yaml:"category" json:"category"`
	Weight   float64 `yaml:"weight" json:"weight" validate:"gte=0"`
}

// CatalogEntry is one project file loaded into the catalog.
type CatalogEntry struct {
	ID          string         `yaml:"id" json:"id" validate:"required"`
	Title       string         `yaml:"title" json:"title" validate:"required"`
	Description string         `yaml:"description" json:"description"`
	GithubURL   string         `yaml:"github_url" json:"github_url,omitempty" validate:"omitempty,url"`
	LiveURL     string         `yaml:"live_url" json:"live_url,omitempty" validate:"omitempty,url"`
	Skills      []CatalogSkill `yaml:"skills" json:"skills" validate:"dive"`
}

type SearchResult struct {
	Project ProjectRecord `json:"project"`
	Score   float64       `json:"score"`
}

// Client project status and priority values.
const (
	StatusPlanning   = "planning"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusCompleted  = "completed"
	StatusOnHold     = "on_hold"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Issue status values.
const (
	IssueOpen       = "open"
	IssueInProgress = "in_progress"
	IssueResolved   = "resolved"
	IssueException  = "exception"
)

type ClientProject struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	DesignLink     string    `json:"design_link,omitempty"`
	GithubLink     string    `json:"github_link,omitempty"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	Budget         *float64  `json:"budget,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	OwnerID        string    `json:"owner_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ProjectFile struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Type        string    `json:"type"`
	StoragePath string    `json:"storage_path"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProjectUpdate struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProjectIssue struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Content          string    `json:"content"`
	Status           string    `json:"status"`
	ResolutionNotes  string    `json:"resolution_notes,omitempty"`
	ClientInputNotes string    `json:"client_input_notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
