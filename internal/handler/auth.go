package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dukerupert/guilddash/internal/auth"
	"github.com/dukerupert/guilddash/internal/metrics"
	"github.com/dukerupert/guilddash/internal/middleware"
	"github.com/dukerupert/guilddash/internal/model"
	"github.com/dukerupert/guilddash/internal/session"
)

const (
	stateCookieName = "oauth_state"
	stateCookieAge  = 10 * 60
)

type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	CurrentUser(ctx context.Context, accessToken string) (*model.DiscordUser, error)
}

type SessionIssuer interface {
	Issue(c session.Claims) (string, error)
}

// CookieConfig controls the attributes of cookies set by the auth handler.
type CookieConfig struct {
	Domain string
	Secure bool
}

type AuthHandler struct {
	provider     OAuthProvider
	signer       SessionIssuer
	cookies      CookieConfig
	postLoginURL string
	logger       *slog.Logger
}

func NewAuthHandler(p OAuthProvider, s SessionIssuer, cookies CookieConfig, postLoginURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider:     p,
		signer:       s,
		cookies:      cookies,
		postLoginURL: postLoginURL,
		logger:       logger,
	}
}

// Login hands the browser the Discord authorize URL and pins a state value
// in a short-lived cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   stateCookieAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookies.Secure,
	})
	writeJSON(w, http.StatusOK, map[string]string{"url": h.provider.AuthCodeURL(state)})
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing code")
		return
	}

	if cookie, err := r.Cookie(stateCookieName); err == nil {
		h.clearCookie(w, stateCookieName)
		if cookie.Value != r.URL.Query().Get("state") {
			writeError(w, http.StatusBadRequest, "Invalid state")
			return
		}
	}

	tok, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	user, err := h.provider.CurrentUser(r.Context(), tok.AccessToken)
	if err != nil {
		h.logger.Error("fetch discord user", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	signed, err := h.signer.Issue(session.Claims{
		UserID:       user.ID,
		Username:     user.Username,
		Avatar:       user.Avatar,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	})
	if err != nil {
		h.logger.Error("issue session", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    signed,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   int(session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookies.Secure,
	})

	metrics.SessionsIssuedTotal.Inc()
	h.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, h.postLoginURL, http.StatusFound)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": model.DiscordUser{
			ID:       claims.UserID,
			Username: claims.Username,
			Avatar:   claims.Avatar,
		},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.SessionCookieName)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookies.Secure,
	})
}
