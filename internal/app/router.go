package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/relaycrm/api/internal/audit"
	"github.com/relaycrm/api/internal/config"
	"github.com/relaycrm/api/internal/handlers"
	"github.com/relaycrm/api/internal/httpx"
	"github.com/relaycrm/api/internal/middleware"
	"github.com/relaycrm/api/internal/store"
)

func NewRouter(cfg config.Config, st store.Store, logger *slog.Logger) (http.Handler, error) {
	specPath := filepath.Join("openapi.yaml")
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
		{PathPrefix: "/imports/", MaxBytes: cfg.ImportMaxFileBytes},
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
	exportLimiter := middleware.NewIPRateLimiterWithMaxEntries(30, time.Minute, cfg.RateLimitMaxIPs)

	api.Group(func(public chi.Router) {
		public.With(loginLimiter.Middleware).Post("/auth/login", h.PostAuthLogin)
		public.Get("/health", h.GetHealth)
	})

	api.Group(func(protected chi.Router) {
		protected.Use(authMW.RequireAuth)
		protected.Get("/auth/me", h.GetAuthMe)
		protected.Get("/auth/csrf", h.GetAuthCsrf)
		protected.With(middleware.EnforceCSRF(cfg.CSRFEnforce)).Post("/auth/logout", h.PostAuthLogout)

		protected.Get("/contacts", h.GetContacts)
		protected.Get("/leads", h.GetLeads)
		protected.Get("/deals", h.GetDeals)
		protected.Get("/deals/{dealId}/action-items", func(w http.ResponseWriter, r *http.Request) {
			h.GetDealActionItems(w, r, chi.URLParam(r, "dealId"))
		})

		protected.With(middleware.EnforceCSRF(cfg.CSRFEnforce)).Post("/contacts", h.PostContacts)
		protected.With(middleware.EnforceCSRF(cfg.CSRFEnforce)).Post("/leads", h.PostLeads)
		protected.With(middleware.EnforceCSRF(cfg.CSRFEnforce)).Post("/deals", h.PostDeals)

		protected.Get("/imports/templates/{entity}.csv", func(w http.ResponseWriter, r *http.Request) {
			h.GetImportsTemplatesEntityCsv(w, r, chi.URLParam(r, "entity"))
		})
		protected.With(
			middleware.RequireRole("manager"),
			middleware.EnforceCSRF(cfg.CSRFEnforce),
		).Post("/imports/{entity}", func(w http.ResponseWriter, r *http.Request) {
			h.PostImportsEntity(w, r, chi.URLParam(r, "entity"))
		})

		protected.With(exportLimiter.Middleware("Too many export requests")).
			Get("/exports/{entity}.csv", func(w http.ResponseWriter, r *http.Request) {
				h.GetExportsEntityCsv(w, r, chi.URLParam(r, "entity"))
			})
	})

	r.Mount("/api", api)
	return r, nil
}
