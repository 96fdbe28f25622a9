package middleware

import (
	"net/http"
	"time"

	"github.com/relaycrm/api/internal/auth"
	"github.com/relaycrm/api/internal/store"
)

type AuthMiddleware struct {
	Store      store.Store
	CookieName string
}

func (m AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.CookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		sessions, err := m.Store.Select(r.Context(), "sessions", store.Filter{
			Eq: map[string]any{"token_hash": auth.HashToken(cookie.Value)},
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load session", nil)
			return
		}
		if len(sessions) == 0 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Session is invalid", nil)
			return
		}
		session := sessions[0]

		expiresAt := session.Time("expires_at")
		if !expiresAt.After(time.Now()) {
			_ = m.Store.Delete(r.Context(), "sessions", store.Filter{Eq: map[string]any{"id": session.ID()}})
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Session has expired", nil)
			return
		}

		users, err := m.Store.Select(r.Context(), "users", store.Filter{
			Eq: map[string]any{"id": session.String("user_id")},
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load session", nil)
			return
		}
		if len(users) == 0 || !users[0].Bool("is_active") {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Session is invalid", nil)
			return
		}
		user := users[0]

		_ = m.Store.Update(r.Context(), "sessions", session.ID(), store.Record{
			"last_seen_at": time.Now().UTC(),
		})

		ctx := WithActor(r.Context(), Actor{
			SessionID:   session.ID(),
			UserID:      user.ID(),
			Email:       user.String("email"),
			DisplayName: user.String("display_name"),
			FullName:    user.String("full_name"),
			Role:        user.String("role"),
			CSRFToken:   session.String("csrf_token"),
			ExpiresAt:   expiresAt,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
