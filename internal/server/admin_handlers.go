package server

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/folio/internal/blob"
	"github.com/seanblong/folio/pkg/models"
)

// maxUploadBytes bounds multipart uploads held in memory; larger parts spill
// to temporary files.
const maxUploadBytes = 32 << 20

type clientProjectRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	Description    string   `json:"description"`
	DesignLink     string   `json:"design_link" validate:"omitempty,url"`
	GithubLink     string   `json:"github_link" validate:"omitempty,url"`
	Status         string   `json:"status" validate:"omitempty,oneof=planning in_progress review completed on_hold"`
	Priority       string   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Budget         *float64 `json:"budget" validate:"omitempty,gte=0"`
	OrganizationID string   `json:"organization_id"`
	OwnerID        string   `json:"owner_id"`
}

func (req clientProjectRequest) project(id string) models.ClientProject {
	p := models.ClientProject{
		ID:             id,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		DesignLink:     req.DesignLink,
		GithubLink:     req.GithubLink,
		Status:         req.Status,
		Priority:       req.Priority,
		Budget:         req.Budget,
		OrganizationID: req.OrganizationID,
		OwnerID:        req.OwnerID,
	}
	if p.Status == "" {
		p.Status = models.StatusPlanning
	}
	if p.Priority == "" {
		p.Priority = models.PriorityMedium
	}
	return p
}

type contentRequest struct {
	Content string `json:"content" validate:"required"`
}

type issueStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=open in_progress resolved exception"`
	Notes       string `json:"notes"`
	ClientInput bool   `json:"client_input"`
}

func (s *Server) handleListClientProjects(w http.ResponseWriter, r *http.Request) {
	org := strings.TrimSpace(r.URL.Query().Get("organization_id"))
	projects, err := s.cfg.Admin.ListClientProjects(r.Context(), org)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, projects)
}

func (s *Server) handleGetClientProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.cfg.Admin.GetClientProject(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, notFound(err, "project", id))
		return
	}
	s.jsonResponse(w, r, http.StatusOK, p)
}

func (s *Server) handleCreateClientProject(w http.ResponseWriter, r *http.Request) {
	var req clientProjectRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	p, err := s.cfg.Admin.CreateClientProject(r.Context(), req.project(""))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().Str("project_id", p.ID).Msg("client project created")
	s.jsonResponse(w, r, http.StatusCreated, p)
}

func (s *Server) handleUpdateClientProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req clientProjectRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	p, err := s.cfg.Admin.UpdateClientProject(r.Context(), req.project(id))
	if err != nil {
		s.errorResponse(w, r, notFound(err, "project", id))
		return
	}
	s.jsonResponse(w, r, http.StatusOK, p)
}

func (s *Server) handleDeleteClientProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.cfg.Admin.DeleteClientProject(r.Context(), id); err != nil {
		s.errorResponse(w, r, notFound(err, "project", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.cfg.Admin.ListFiles(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	for i := range files {
		files[i].URL = s.fileURL(files[i].StoragePath)
	}
	s.jsonResponse(w, r, http.StatusOK, files)
}

// handleUploadFile stores the multipart "file" part at <projectID>/<name>
// and records it. The object is removed again if the row cannot be written.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bucket == nil {
		s.errorResponse(w, r, &ErrUnavailable{Service: "storage"})
		return
	}
	projectID := r.PathValue("id")
	if _, err := s.cfg.Admin.GetClientProject(r.Context(), projectID); err != nil {
		s.errorResponse(w, r, notFound(err, "project", projectID))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, r, &ErrValidation{Field: "file", Message: "invalid multipart form"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, r, &ErrValidation{Field: "file", Message: "required"})
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		s.errorResponse(w, r, &ErrValidation{Field: "file", Message: "invalid file name"})
		return
	}
	key := blob.Key(projectID, name)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size, err := s.cfg.Bucket.Put(r.Context(), key, file, contentType)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	rec, err := s.cfg.Admin.CreateFile(r.Context(), models.ProjectFile{
		ProjectID:   projectID,
		Name:        name,
		Size:        size,
		Type:        contentType,
		StoragePath: key,
	})
	if err != nil {
		if derr := s.cfg.Bucket.Delete(r.Context(), key); derr != nil {
			hlog.FromRequest(r).Error().Err(derr).Str("key", key).Msg("failed to remove orphaned upload")
		}
		s.errorResponse(w, r, err)
		return
	}
	rec.URL = s.fileURL(rec.StoragePath)
	hlog.FromRequest(r).Info().Str("project_id", projectID).Str("key", key).Int64("size", size).Msg("file uploaded")
	s.jsonResponse(w, r, http.StatusCreated, rec)
}

// handleDeleteFile removes the stored object before the row so a failed
// removal leaves the file listed.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("fileID")
	f, err := s.cfg.Admin.GetFile(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, notFound(err, "file", id))
		return
	}
	if s.cfg.Bucket != nil {
		if err := s.cfg.Bucket.Delete(r.Context(), f.StoragePath); err != nil && !errors.Is(err, blob.ErrInvalidKey) {
			s.errorResponse(w, r, err)
			return
		}
	}
	if err := s.cfg.Admin.DeleteFile(r.Context(), id); err != nil {
		s.errorResponse(w, r, notFound(err, "file", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := s.cfg.Admin.ListUpdates(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, updates)
}

func (s *Server) handleCreateUpdate(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	var req contentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	u, err := s.cfg.Admin.CreateUpdate(r.Context(), models.ProjectUpdate{ProjectID: projectID, Content: req.Content})
	if err != nil {
		s.errorResponse(w, r, notFound(err, "project", projectID))
		return
	}
	s.jsonResponse(w, r, http.StatusCreated, u)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.cfg.Admin.ListIssues(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, issues)
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	var req contentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	i, err := s.cfg.Admin.CreateIssue(r.Context(), models.ProjectIssue{ProjectID: projectID, Content: req.Content})
	if err != nil {
		s.errorResponse(w, r, notFound(err, "project", projectID))
		return
	}
	s.jsonResponse(w, r, http.StatusCreated, i)
}

func (s *Server) handleUpdateIssueStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("issueID")
	var req issueStatusRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	i, err := s.cfg.Admin.UpdateIssueStatus(r.Context(), id, req.Status, strings.TrimSpace(req.Notes), req.ClientInput)
	if err != nil {
		s.errorResponse(w, r, notFound(err, "issue", id))
		return
	}
	s.jsonResponse(w, r, http.StatusOK, i)
}

func (s *Server) handleStorageStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"available": false}
	if s.cfg.Bucket == nil {
		resp["error"] = "storage not configured"
	} else if err := s.cfg.Bucket.Available(r.Context()); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("storage unavailable")
		resp["error"] = err.Error()
	} else {
		resp["available"] = true
	}
	s.jsonResponse(w, r, http.StatusOK, resp)
}

func (s *Server) fileURL(key string) string {
	if s.cfg.Bucket == nil || key == "" {
		return ""
	}
	return s.cfg.Bucket.URL(key)
}
