package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/deliverability"
	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/store"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string           `json:"status"`
	Uptime string           `json:"uptime"`
	Queue  *queue.TaskStats `json:"queue,omitempty"`
}

// defaultUser is used when the caller does not identify itself.
// Multi-tenant auth sits in front of this service.
const defaultUser = "default"

func (s *Server) userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUser
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, _ := s.tasks.Stats(r.Context(), "")

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).String(),
		Queue:  stats,
	})
}

// Contact handlers

// handleListContacts handles GET /api/v1/contacts
func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	filter := store.ContactFilter{
		UserID: s.userID(r),
		Search: r.URL.Query().Get("search"),
		Tag:    r.URL.Query().Get("tag"),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}

	list, err := s.contacts.List(filter)
	if err != nil {
		s.logger.Error("failed to list contacts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list contacts")
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

// handleCreateContact handles POST /api/v1/contacts
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var contact models.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	contact.ID = uuid.New().String()
	contact.UserID = s.userID(r)
	now := time.Now()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	if err := contact.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.contacts.Create(&contact); err != nil {
		if models.IsValidation(err) {
			s.sendError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to create contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create contact")
		return
	}
	s.sendJSON(w, http.StatusCreated, contact)
}

// handleImportContacts handles POST /api/v1/contacts/import. The body
// is the raw CSV stream.
func (s *Server) handleImportContacts(w http.ResponseWriter, r *http.Request) {
	result, err := s.importer.Import(r.Context(), s.userID(r), r.Body)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// handleGetContact handles GET /api/v1/contacts/{id}
func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	contact, err := s.contacts.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get contact")
		return
	}
	if contact == nil {
		s.sendError(w, http.StatusNotFound, "Contact not found")
		return
	}
	s.sendJSON(w, http.StatusOK, contact)
}

// handleUpdateContact handles PUT /api/v1/contacts/{id}
func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.contacts.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get contact")
		return
	}
	if existing == nil {
		s.sendError(w, http.StatusNotFound, "Contact not found")
		return
	}

	var contact models.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	contact.ID = id
	contact.UserID = existing.UserID
	contact.CreatedAt = existing.CreatedAt
	contact.UpdatedAt = time.Now()

	if err := contact.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.contacts.Update(&contact); err != nil {
		s.logger.Error("failed to update contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update contact")
		return
	}
	s.sendJSON(w, http.StatusOK, contact)
}

// handleDeleteContact handles DELETE /api/v1/contacts/{id}
func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := s.contacts.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete contact", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SMTP account handlers

// accountRequest carries the account fields plus the write-only
// credential; the stored model never serializes the password.
type accountRequest struct {
	models.SmtpAccount
	Password string `json:"password"`
}

// handleListAccounts handles GET /api/v1/smtp-accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.accounts.List(s.userID(r))
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

// handleCreateAccount handles POST /api/v1/smtp-accounts
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account := req.SmtpAccount
	account.Password = req.Password
	account.ID = uuid.New().String()
	account.UserID = s.userID(r)
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if err := account.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.accounts.Create(&account); err != nil {
		s.logger.Error("failed to create account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}
	s.sendJSON(w, http.StatusCreated, account)
}

// handleGetAccount handles GET /api/v1/smtp-accounts/{id}
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	if account == nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}
	s.sendJSON(w, http.StatusOK, account)
}

// handleUpdateAccount handles PUT /api/v1/smtp-accounts/{id}
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.accounts.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	if existing == nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	account := req.SmtpAccount
	account.ID = id
	account.UserID = existing.UserID
	account.SentToday = existing.SentToday
	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now()
	account.Password = req.Password
	if account.Password == "" {
		// Keep the stored credential when the client omits it.
		account.Password = existing.Password
	}

	if err := account.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.accounts.Update(&account); err != nil {
		s.logger.Error("failed to update account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update account")
		return
	}
	s.sendJSON(w, http.StatusOK, account)
}

// handleDeleteAccount handles DELETE /api/v1/smtp-accounts/{id}
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyResponse reports the deliverability posture of an account's
// sending domain.
type VerifyResponse struct {
	Verified bool                   `json:"verified"`
	Report   *deliverability.Report `json:"report"`
}

// handleVerifyAccount handles POST /api/v1/smtp-accounts/{id}/verify.
// It checks the sending domain's SPF, DKIM and DMARC records and
// persists the verdict on the account.
func (s *Server) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	if account == nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}

	domain, err := deliverability.DomainFromAddress(account.Username)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Account username is not a valid email address")
		return
	}

	selector := r.URL.Query().Get("selector")
	if selector == "" {
		selector = deliverability.DefaultSelector(account.Provider)
	}

	report, err := s.checker.CheckDomain(r.Context(), domain, selector)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	account.Verified = report.Passed
	if err := s.accounts.Update(account); err != nil {
		s.logger.Error("failed to update account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update account")
		return
	}

	s.sendJSON(w, http.StatusOK, VerifyResponse{Verified: account.Verified, Report: report})
}

// handleQueueStats handles GET /api/v1/queue
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tasks.Stats(r.Context(), "")
	if err != nil {
		s.logger.Error("failed to get queue stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get queue stats")
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
