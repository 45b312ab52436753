package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/campaign"
	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/template"
)

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.campaigns.List(s.userID(r))
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c.ID = uuid.New().String()
	c.UserID = s.userID(r)
	c.Status = models.CampaignDraft
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := c.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.campaigns.Create(&c); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}
	s.sendJSON(w, http.StatusCreated, c)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleUpdateCampaign handles PUT /api/v1/campaigns/{id}. Only draft
// and paused campaigns accept definition changes.
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if existing == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if existing.Status != models.CampaignDraft && existing.Status != models.CampaignPaused {
		s.sendError(w, http.StatusConflict, "Only draft or paused campaigns can be edited")
		return
	}

	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	c.ID = id
	c.UserID = existing.UserID
	c.Status = existing.Status
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()

	if err := c.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.campaigns.Update(&c); err != nil {
		s.logger.Error("failed to update campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update campaign")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.campaigns.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete campaign")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Lifecycle handlers

// handleStartCampaign handles POST /api/v1/campaigns/{id}/start
func (s *Server) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.lifecycle.Start(r.Context(), chi.URLParam(r, "id"))
	s.sendLifecycleResult(w, c, err)
}

// handlePauseCampaign handles POST /api/v1/campaigns/{id}/pause
func (s *Server) handlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.lifecycle.Pause(r.Context(), chi.URLParam(r, "id"))
	s.sendLifecycleResult(w, c, err)
}

// handleResumeCampaign handles POST /api/v1/campaigns/{id}/resume
func (s *Server) handleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.lifecycle.Resume(r.Context(), chi.URLParam(r, "id"))
	s.sendLifecycleResult(w, c, err)
}

func (s *Server) sendLifecycleResult(w http.ResponseWriter, c *models.Campaign, err error) {
	if err != nil {
		var ite *campaign.InvalidStateTransitionError
		switch {
		case errors.As(err, &ite):
			s.sendError(w, http.StatusConflict, err.Error())
		case models.IsValidation(err):
			s.sendError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("campaign lifecycle operation failed", "error", err)
			s.sendError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleCampaignTasks handles GET /api/v1/campaigns/{id}/tasks
func (s *Server) handleCampaignTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListByCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to list campaign tasks", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}
	s.sendJSON(w, http.StatusOK, tasks)
}

// Preview

// PreviewRequest is the request body for POST /api/v1/campaigns/preview
type PreviewRequest struct {
	Subject   string `json:"subject"`
	Content   string `json:"content"`
	ContactID string `json:"contact_id,omitempty"`
}

// PreviewResponse is the rendered preview plus template diagnostics
type PreviewResponse struct {
	Subject    string                    `json:"subject"`
	Content    string                    `json:"content"`
	Validation template.ValidationResult `json:"validation"`
}

// handlePreview handles POST /api/v1/campaigns/preview. Without a
// contact_id the preview renders against a sample contact.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	contact := sampleContact()
	if req.ContactID != "" {
		found, err := s.contacts.GetByID(req.ContactID)
		if err != nil {
			s.logger.Error("failed to get contact", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to get contact")
			return
		}
		if found == nil {
			s.sendError(w, http.StatusNotFound, "Contact not found")
			return
		}
		contact = found
	}

	attrs := contact.Attributes()
	validation := template.Validate(req.Subject + " " + req.Content)
	s.sendJSON(w, http.StatusOK, PreviewResponse{
		Subject:    template.Render(req.Subject, attrs),
		Content:    template.Render(req.Content, attrs),
		Validation: validation,
	})
}

func sampleContact() *models.Contact {
	return &models.Contact{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane.doe@example.com",
		Company:   "Acme Inc",
		Phone:     "+1 555 0100",
	}
}
