package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/ardiwinata/qms-compliance/internal/approval"
	"github.com/ardiwinata/qms-compliance/internal/audits"
	"github.com/ardiwinata/qms-compliance/internal/auth"
	"github.com/ardiwinata/qms-compliance/internal/category"
	"github.com/ardiwinata/qms-compliance/internal/document"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	"github.com/ardiwinata/qms-compliance/internal/transport/middleware"
	"github.com/ardiwinata/qms-compliance/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth       *auth.Handler
	Category   *category.Handler
	Document   *document.Handler
	Approval   *approval.Handler
	Audit      *audits.Handler
	Permission *permission.Handler
	EventLog   *eventlog.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, perms *permission.Service, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.Recovery(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		// Everything below requires a valid access token.
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/users/me", h.Auth.Me)

			pr.Route("/categories", func(cr chi.Router) {
				cr.Get("/", h.Category.GetCategories)
				cr.Post("/", h.Category.CreateCategory)
				cr.Patch("/{id}/deactivate", h.Category.DeactivateCategory)
			})

			pr.Route("/documents", func(dr chi.Router) {
				dr.Post("/", h.Document.CreateDocument)
				dr.Get("/", h.Document.ListDocuments)
				dr.Get("/{id}", h.Document.GetDocument)
				dr.Post("/{id}/submit", h.Document.SubmitForApproval)
				dr.Patch("/{id}/archive", h.Document.ArchiveDocument)
				dr.Patch("/{id}/obsolete", h.Document.ObsoleteDocument)
				dr.Delete("/{id}", h.Document.DeleteDocument)
			})

			pr.Route("/approvals", func(ar chi.Router) {
				ar.Post("/", h.Approval.SubmitChain)
				ar.Get("/pending", h.Approval.ListPending)
				ar.Get("/{id}", h.Approval.GetChain)
				ar.Patch("/{id}/decide", h.Approval.Decide)
				ar.Patch("/{id}/cancel", h.Approval.CancelChain)
			})

			pr.Route("/audit-plans", func(ar chi.Router) {
				ar.Post("/", h.Audit.CreatePlan)
				ar.Get("/", h.Audit.ListPlans)
				ar.Get("/{id}", h.Audit.GetPlan)
				ar.Patch("/{id}/start", h.Audit.StartExecution)
				ar.Patch("/{id}/complete", h.Audit.CompleteExecution)
				ar.Post("/{id}/findings", h.Audit.RecordFinding)
				ar.Get("/{id}/findings", h.Audit.ListFindings)
			})

			pr.Route("/findings", func(fr chi.Router) {
				fr.Get("/{id}", h.Audit.GetFinding)
				fr.Post("/{id}/rectifications", h.Audit.SubmitRectification)
				fr.Get("/{id}/rectifications", h.Audit.ListRectifications)
				fr.Patch("/{id}/verify", h.Audit.VerifyRectification)
				fr.Patch("/{id}/reject", h.Audit.RejectRectification)
			})

			// Grant administration is gated up front; the engine re-checks
			// and logs every decision anyway.
			pr.Route("/permissions", func(gr chi.Router) {
				gr.Use(middleware.RequireAction(perms, permission.ActionGrant, permission.ResourcePermission, ""))
				gr.Post("/grants", h.Permission.GrantPermission)
				gr.Post("/grants/batch", h.Permission.BatchGrant)
				gr.Delete("/grants/{id}", h.Permission.RevokeGrant)
				gr.Get("/users/{userID}/grants", h.Permission.ListUserGrants)
			})

			pr.Route("/events", func(er chi.Router) {
				er.Get("/entity/{entityType}/{entityID}", h.EventLog.ListByEntity)
				er.Get("/actor/{actorID}", h.EventLog.ListByActor)
			})
		})
	})
}
