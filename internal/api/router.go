package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/api/handler"
	"github.com/bcnelson/agent-access-manager/internal/api/middleware"
	"github.com/bcnelson/agent-access-manager/internal/auth"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Options configures NewRouter.
type Options struct {
	Store        storage.Storage
	Services     *service.Services
	Logger       logrus.FieldLogger
	BootstrapKey string

	// OIDC login. Leave Sessions nil to disable it; API keys keep working.
	Authenticator auth.Authenticator
	States        *auth.StateStore
	Sessions      *auth.SessionManager
	LogoutURL     string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	svc := opts.Services

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := opts.Store.Ping(ctx); err != nil {
			logger.WithError(err).Warn("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	authn := middleware.Auth(opts.Store, opts.BootstrapKey, opts.Sessions, logger)

	r.Route("/auth", func(r chi.Router) {
		if opts.Sessions != nil && opts.Authenticator != nil {
			sessionHandler := handler.NewSessionHandler(opts.Authenticator, opts.States, opts.Sessions, opts.LogoutURL, logger)
			r.Get("/login", sessionHandler.Login)
			r.Get("/callback", sessionHandler.Callback)
			r.Post("/logout", sessionHandler.Logout)
		}
		r.With(authn).Get("/me", handler.Me)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(authn)

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(opts.Store, logger)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Users
		userHandler := handler.NewUserHandler(svc.Users, logger)
		r.Post("/users", userHandler.Create)
		r.Get("/users", userHandler.Lookup)
		r.Get("/users/{id}", userHandler.Get)

		// Direct agent assignments
		assignmentHandler := handler.NewAssignmentHandler(svc.Assignments, logger)
		r.Post("/assign", assignmentHandler.Assign)
		r.Post("/assign/bulk", assignmentHandler.AssignBulk)
		r.Post("/deactivate", assignmentHandler.Deactivate)
		r.Get("/assignments", assignmentHandler.List)
		r.Get("/selected-agents", assignmentHandler.Selected)

		// Group assignments
		groupAssignmentHandler := handler.NewGroupAssignmentHandler(svc.GroupAssignments, logger)
		r.Post("/assign/group", groupAssignmentHandler.AssignGroup)
		r.Post("/assign/groups", groupAssignmentHandler.AssignGroups)
		r.Post("/group-assignments", groupAssignmentHandler.Upsert)
		r.Get("/group-assignments", groupAssignmentHandler.List)
		r.Post("/group-assignments/deactivate", groupAssignmentHandler.Deactivate)

		// Self-service
		r.Patch("/my/group-assignment", groupAssignmentHandler.UpdateMine)
		r.Post("/my/group-assignment/extend", groupAssignmentHandler.ExtendMine)
		r.Post("/my/group-assignment/deactivate", groupAssignmentHandler.DeactivateMine)

		// Groups
		groupHandler := handler.NewGroupHandler(svc.Groups, svc.GroupAssignments, logger)
		r.Post("/groups", groupHandler.Create)
		r.Get("/groups", groupHandler.List)
		r.Post("/groups-with-agents", groupHandler.CreateWithAgents)
		r.Post("/groups-with-agents/assign", groupHandler.CreateWithAgentsAndAssign)
		r.Route("/groups/{id}", func(r chi.Router) {
			r.Get("/", groupHandler.Get)
			r.Patch("/", groupHandler.Update)
			r.Delete("/", groupHandler.Delete)

			r.Get("/agents", groupHandler.Members)
			r.Post("/agents", groupHandler.AddMembers)
			r.Delete("/agents", groupHandler.RemoveMembers)
			r.Put("/agents", groupHandler.ReplaceMembers)
		})
	})

	// Selection mirror
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(authn)

		selectionHandler := handler.NewSelectionHandler(svc.Selection, logger)
		mount := func(r chi.Router) {
			r.Get("/agents", selectionHandler.Get)
			r.Put("/agents", selectionHandler.Set)
			r.Patch("/agents", selectionHandler.Update)
			r.Delete("/agents", selectionHandler.Clear)
		}
		r.Route("/email/{email}", mount)
		r.Route("/{id}", mount)
	})

	return r
}
