package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/clientpulse-platform/apps/api/internal/audit"
	"github.com/clientpulse-platform/apps/api/internal/config"
	"github.com/clientpulse-platform/apps/api/internal/handlers"
	"github.com/clientpulse-platform/apps/api/internal/httpx"
	"github.com/clientpulse-platform/apps/api/internal/middleware"
	"github.com/clientpulse-platform/apps/api/internal/store"
)

func NewRouter(cfg config.Config, st *store.Store, logger *slog.Logger) (http.Handler, error) {
	specPath := cfg.OpenAPISpecPath
	if specPath == "" {
		specPath = "openapi.yaml"
	}
	if _, err := os.Stat(specPath); err != nil {
		return nil, fmt.Errorf("openapi spec not found at %s: %w", specPath, err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.LimitBodyBytesWithOverrides(cfg.APIMaxBodyBytes, []middleware.BodyLimitOverride{
		{PathPrefix: "/imports", MaxBytes: cfg.ImportMaxFileBytes},
	}))

	api := chi.NewRouter()
	api.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get("X-Request-Id")
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	}))

	auditLogger := audit.NewLogger(st)
	h := handlers.NewServer(cfg, st, auditLogger, logger)

	authMW := middleware.AuthMiddleware{Store: st, CookieName: cfg.SessionCookieName}
	loginLimiter := middleware.NewLoginRateLimiter(10, time.Minute)
	importLimiter := middleware.NewIPRateLimiterWithMaxEntries(30, time.Minute, cfg.RateLimitMaxIPs)
	csrf := middleware.EnforceCSRF(cfg.CSRFEnforce)

	api.Group(func(public chi.Router) {
		public.With(loginLimiter.Middleware).Post("/auth/login", h.PostAuthLogin)
		public.Get("/health", h.GetHealth)
	})

	api.Group(func(protected chi.Router) {
		protected.Use(authMW.RequireAuth)
		protected.Get("/auth/me", h.GetAuthMe)
		protected.Get("/auth/csrf", h.GetAuthCsrf)
		protected.With(csrf).Post("/auth/logout", h.PostAuthLogout)

		protected.With(
			middleware.RequirePermission(st, "clients.read"),
		).Get("/clients", h.GetClients)
		protected.With(
			middleware.RequirePermission(st, "clients.read"),
		).Get("/clients/{clientKey}", func(w http.ResponseWriter, r *http.Request) {
			h.GetClientsClientKey(w, r, chi.URLParam(r, "clientKey"))
		})
		protected.With(
			middleware.RequirePermission(st, "clients.write"),
			csrf,
		).Put("/clients", h.PutClients)
		protected.With(
			middleware.RequirePermission(st, "clients.write"),
			csrf,
		).Delete("/clients/{clientKey}", func(w http.ResponseWriter, r *http.Request) {
			h.DeleteClientsClientKey(w, r, chi.URLParam(r, "clientKey"))
		})

		protected.With(
			middleware.RequirePermission(st, "dashboard.read"),
		).Get("/dashboard/summary", h.GetDashboardSummary)
		protected.With(
			middleware.RequirePermission(st, "dashboard.read"),
		).Get("/dashboard/renewals", h.GetDashboardRenewals)

		importGuard := importLimiter.Middleware("Too many import requests")
		protected.With(
			middleware.RequirePermission(st, "imports.run"),
			csrf,
			importGuard,
		).Post("/imports/inspect", h.PostImportsInspect)
		protected.With(
			middleware.RequirePermission(st, "imports.run"),
			csrf,
			importGuard,
		).Post("/imports/dry-run", h.PostImportsDryRun)
		protected.With(
			middleware.RequirePermission(st, "imports.run"),
			csrf,
			importGuard,
		).Post("/imports/apply", h.PostImportsApply)
		protected.With(
			middleware.RequirePermission(st, "imports.run"),
		).Get("/imports/template.csv", h.GetImportsTemplateCsv)
		protected.With(
			middleware.RequirePermission(st, "imports.run"),
		).Get("/imports/{importRunId}", withRunID(h.GetImportsImportRunId))
		protected.With(
			middleware.RequirePermission(st, "imports.run"),
		).Get("/imports/{importRunId}/errors.csv", withRunID(h.GetImportsImportRunIdErrorsCsv))
		protected.With(
			middleware.RequirePermission(st, "imports.run"),
		).Get("/imports/{importRunId}/report.json", withRunID(h.GetImportsImportRunIdReportJson))

		protected.With(
			middleware.RequirePermission(st, "clients.read"),
		).Get("/exports/clients.csv", h.GetExportsClientsCsv)
	})

	r.Mount("/api", api)
	return r, nil
}

func withRunID(handler func(http.ResponseWriter, *http.Request, uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "importRunId"))
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "importRunId must be a UUID", nil)
			return
		}
		handler(w, r, runID)
	}
}
