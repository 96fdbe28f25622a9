package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/relaycrm/api/internal/audit"
	"github.com/relaycrm/api/internal/auth"
	"github.com/relaycrm/api/internal/config"
	"github.com/relaycrm/api/internal/httpx"
	"github.com/relaycrm/api/internal/middleware"
	"github.com/relaycrm/api/internal/store"
)

type Server struct {
	Config config.Config
	Store  store.Store
	Audit  *audit.Logger
	Logger *slog.Logger
}

func NewServer(cfg config.Config, s store.Store, auditLogger *audit.Logger, logger *slog.Logger) *Server {
	return &Server{Config: cfg, Store: s, Audit: auditLogger, Logger: logger}
}

type loginRequest struct {
	Email    openapi_types.Email `json:"email"`
	Password string              `json:"password"`
}

type userPayload struct {
	ID          string              `json:"id"`
	Email       openapi_types.Email `json:"email"`
	DisplayName string              `json:"displayName"`
	FullName    string              `json:"fullName"`
	Role        string              `json:"role"`
}

type authSessionResponse struct {
	User userPayload `json:"user"`
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) PostAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}

	users, err := s.Store.Select(r.Context(), "users", store.Filter{
		FoldEq: map[string]string{"email": string(req.Email)},
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load user", nil)
		return
	}

	var matched store.Record
	for _, user := range users {
		if !user.Bool("is_active") {
			continue
		}
		ok, err := auth.VerifyPassword(req.Password, user.String("password_hash"))
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Password verification failed", nil)
			return
		}
		if ok {
			matched = user
			break
		}
	}

	if matched == nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
		return
	}

	if old, err := r.Cookie(s.Config.SessionCookieName); err == nil && old.Value != "" {
		_ = s.Store.Delete(r.Context(), "sessions", store.Filter{
			Eq: map[string]any{"token_hash": auth.HashToken(old.Value)},
		})
	}

	sessionToken, err := auth.GenerateToken()
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create session", nil)
		return
	}
	csrfToken, err := auth.GenerateToken()
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create CSRF token", nil)
		return
	}

	expiresAt := time.Now().Add(s.Config.SessionTTL)
	if _, err := s.Store.Insert(r.Context(), "sessions", store.Record{
		"user_id":    matched.ID(),
		"token_hash": auth.HashToken(sessionToken),
		"csrf_token": csrfToken,
		"expires_at": expiresAt.UTC(),
	}); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to save session", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		Expires:  expiresAt,
	})

	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     matched.ID(),
		Action:     "auth.login",
		EntityType: "session",
		RequestID:  middleware.RequestIDFromContext(r.Context()),
	})

	httpx.WriteJSON(w, http.StatusOK, authSessionResponse{User: mapUser(matched)})
}

func (s *Server) PostAuthLogout(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}

	if err := s.Store.Delete(r.Context(), "sessions", store.Filter{
		Eq: map[string]any{"id": actor.SessionID},
	}); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to revoke session", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		MaxAge:   -1,
	})

	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     actor.UserID,
		Action:     "auth.logout",
		EntityType: "session",
		RequestID:  middleware.RequestIDFromContext(r.Context()),
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetAuthMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authSessionResponse{User: userPayload{
		ID:          actor.UserID,
		Email:       openapi_types.Email(actor.Email),
		DisplayName: actor.DisplayName,
		FullName:    actor.FullName,
		Role:        actor.Role,
	}})
}

func (s *Server) GetAuthCsrf(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": actor.CSRFToken})
}

func mapUser(user store.Record) userPayload {
	return userPayload{
		ID:          user.ID(),
		Email:       openapi_types.Email(user.String("email")),
		DisplayName: user.String("display_name"),
		FullName:    user.String("full_name"),
		Role:        user.String("role"),
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (middleware.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
	}
	return actor, ok
}
