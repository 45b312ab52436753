package api

import (
	"net/http"

	"github.com/mailerpro/mailerpro/internal/models"
)

// DashboardStats is the response for GET /api/v1/dashboard/stats
type DashboardStats struct {
	TotalContacts   int   `json:"total_contacts"`
	TotalCampaigns  int   `json:"total_campaigns"`
	ActiveCampaigns int   `json:"active_campaigns"`
	EmailsSent      int64 `json:"emails_sent"`
	EmailsPending   int64 `json:"emails_pending"`
	EmailsFailed    int64 `json:"emails_failed"`
}

// handleDashboardStats handles GET /api/v1/dashboard/stats
func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)

	contactCount, err := s.contacts.Count(userID)
	if err != nil {
		s.logger.Error("failed to count contacts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	campaignCount, err := s.campaigns.Count(userID)
	if err != nil {
		s.logger.Error("failed to count campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	sending, err := s.campaigns.ListByStatus(models.CampaignSending)
	if err != nil {
		s.logger.Error("failed to list sending campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	active := 0
	for _, c := range sending {
		if c.UserID == userID {
			active++
		}
	}

	taskStats, err := s.tasks.Stats(r.Context(), "")
	if err != nil {
		s.logger.Error("failed to get queue stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	s.sendJSON(w, http.StatusOK, DashboardStats{
		TotalContacts:   contactCount,
		TotalCampaigns:  campaignCount,
		ActiveCampaigns: active,
		EmailsSent:      taskStats.Sent,
		EmailsPending:   taskStats.Pending,
		EmailsFailed:    taskStats.Failed,
	})
}
