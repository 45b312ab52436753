// Package api exposes the HTTP management surface: contacts, SMTP
// accounts, campaigns and their lifecycle operations, plus queue and
// dashboard introspection.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailerpro/mailerpro/internal/campaign"
	"github.com/mailerpro/mailerpro/internal/config"
	"github.com/mailerpro/mailerpro/internal/contacts"
	"github.com/mailerpro/mailerpro/internal/deliverability"
	"github.com/mailerpro/mailerpro/internal/metrics"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/store"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	contacts  *store.ContactRepository
	accounts  *store.AccountRepository
	campaigns *store.CampaignRepository
	tasks     queue.TaskQueue
	lifecycle *campaign.Service
	importer  *contacts.Importer
	checker   *deliverability.Checker

	config    *config.APIConfig
	logger    *slog.Logger
	startTime time.Time
}

// Deps bundles the server's collaborators.
type Deps struct {
	Contacts  *store.ContactRepository
	Accounts  *store.AccountRepository
	Campaigns *store.CampaignRepository
	Tasks     queue.TaskQueue
	Lifecycle *campaign.Service
	Importer  *contacts.Importer
	Checker   *deliverability.Checker
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		contacts:  deps.Contacts,
		accounts:  deps.Accounts,
		campaigns: deps.Campaigns,
		tasks:     deps.Tasks,
		lifecycle: deps.Lifecycle,
		importer:  deps.Importer,
		checker:   deps.Checker,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", s.handleListContacts)
			r.Post("/", s.handleCreateContact)
			r.Post("/import", s.handleImportContacts)
			r.Get("/{id}", s.handleGetContact)
			r.Put("/{id}", s.handleUpdateContact)
			r.Delete("/{id}", s.handleDeleteContact)
		})

		r.Route("/smtp-accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Put("/{id}", s.handleUpdateAccount)
			r.Delete("/{id}", s.handleDeleteAccount)
			r.Post("/{id}/verify", s.handleVerifyAccount)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Post("/preview", s.handlePreview)
			r.Get("/{id}", s.handleGetCampaign)
			r.Put("/{id}", s.handleUpdateCampaign)
			r.Delete("/{id}", s.handleDeleteCampaign)
			r.Post("/{id}/start", s.handleStartCampaign)
			r.Post("/{id}/pause", s.handlePauseCampaign)
			r.Post("/{id}/resume", s.handleResumeCampaign)
			r.Get("/{id}/tasks", s.handleCampaignTasks)
		})

		r.Get("/queue", s.handleQueueStats)
		r.Get("/dashboard/stats", s.handleDashboardStats)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the chi mux, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
