package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/guilddash/internal/auth"
	"github.com/dukerupert/guilddash/internal/metrics"
	"github.com/dukerupert/guilddash/internal/model"
	"github.com/dukerupert/guilddash/internal/session"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session"

type TokenVerifier interface {
	Verify(token string) (*session.Claims, error)
}

type AdminGuildLister interface {
	AdminGuilds(ctx context.Context, accessToken string) ([]model.Guild, error)
}

// RequireSession validates the session token and attaches its claims to the
// request context. The cookie takes precedence over an Authorization header.
func RequireSession(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				metrics.AuthRejectionsTotal.WithLabelValues("missing").Inc()
				writeError(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, session.ErrExpired) {
					reason = "expired"
				}
				metrics.AuthRejectionsTotal.WithLabelValues(reason).Inc()
				writeError(w, http.StatusUnauthorized, "Invalid session")
				return
			}

			ctx := auth.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireGuildAdmin checks that the {id} path value names a guild the caller
// administers. It must run after RequireSession.
func RequireGuildAdmin(lister AdminGuildLister, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guildID := r.PathValue("id")
			if guildID == "" {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}

			guilds, err := lister.AdminGuilds(r.Context(), auth.AccessToken(r.Context()))
			if err != nil {
				logger.Error("admin guild check", "guild_id", guildID, "user_id", auth.UserID(r.Context()), "error", err)
				writeError(w, http.StatusInternalServerError, "Failed to fetch guilds")
				return
			}

			for _, g := range guilds {
				if g.ID == guildID {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authz := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
