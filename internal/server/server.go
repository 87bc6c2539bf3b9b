package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/guilddash/internal/botstats"
	"github.com/dukerupert/guilddash/internal/config"
	"github.com/dukerupert/guilddash/internal/database"
	"github.com/dukerupert/guilddash/internal/discord"
	"github.com/dukerupert/guilddash/internal/handler"
	"github.com/dukerupert/guilddash/internal/metrics"
	"github.com/dukerupert/guilddash/internal/middleware"
	"github.com/dukerupert/guilddash/internal/session"
	"github.com/dukerupert/guilddash/internal/store"
)

const (
	rateLimitRequests = 500
	rateLimitWindow   = 15 * time.Minute
)

type Server struct {
	authH          *handler.AuthHandler
	guildH         *handler.GuildHandler
	healthH        *handler.HealthHandler
	signer         *session.Signer
	discord        *discord.Client
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	production     bool

	trustProxyHeaders bool
	logger            *slog.Logger
}

// New wires the HTTP API. httpClient is used for every outbound call to
// Discord and the bot; nil selects a client with the default timeout.
func New(cfg *config.Config, db *database.DB, httpClient *http.Client, logger *slog.Logger) (*Server, error) {
	signer, err := session.NewSigner(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("session signer: %w", err)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: discord.DefaultHTTPTimeout}
	}

	discordClient := discord.NewClient(discord.Config{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURI:  cfg.Discord.RedirectURI,
		BotToken:     cfg.Bot.Token,
		HTTPClient:   httpClient,
	})
	statsClient := botstats.NewClient(botstats.Config{
		APIURL:     cfg.Bot.APIURL,
		BotToken:   cfg.Bot.Token,
		HTTPClient: httpClient,
	})
	settingsStore := store.NewGuildSettingsStore(db)

	cookies := handler.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.IsProduction(),
	}

	return &Server{
		authH:          handler.NewAuthHandler(discordClient, signer, cookies, cfg.PostLoginRedirect, logger.With("component", "auth")),
		guildH:         handler.NewGuildHandler(discordClient, statsClient, settingsStore, logger.With("component", "guild")),
		healthH:        handler.NewHealthHandler(db, logger.With("component", "health")),
		signer:         signer,
		discord:        discordClient,
		rateLimiter:    middleware.NewRateLimiter(clockwork.NewRealClock()),
		allowedOrigins: cfg.CORS.AllowedOrigins,
		production:     cfg.IsProduction(),

		trustProxyHeaders: cfg.TrustProxyHeaders,
		logger:            logger,
	}, nil
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	route(outerMux, "GET /{$}", http.HandlerFunc(handler.Index))
	route(outerMux, "GET /api/health", http.HandlerFunc(s.healthH.Health))
	route(outerMux, "GET /api/auth/discord/login", http.HandlerFunc(s.authH.Login))
	route(outerMux, "GET /api/auth/discord/callback", http.HandlerFunc(s.authH.Callback))
	outerMux.Handle("GET /metrics", metrics.Handler())

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	requireSession := middleware.RequireSession(s.signer)
	outerMux.Handle("/api/", requireSession(protectedMux))

	var h http.Handler = outerMux
	h = middleware.RateLimit(s.rateLimiter, middleware.ClientIP(s.trustProxyHeaders), rateLimitRequests, rateLimitWindow)(h)
	h = middleware.CORS(s.allowedOrigins)(h)
	h = middleware.SecurityHeaders(s.production)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	route(mux, "GET /api/auth/me", http.HandlerFunc(s.authH.Me))
	route(mux, "POST /api/auth/logout", http.HandlerFunc(s.authH.Logout))

	route(mux, "GET /api/guilds", http.HandlerFunc(s.guildH.List))

	guildAdmin := middleware.RequireGuildAdmin(s.discord, s.logger.With("component", "guild_admin"))
	route(mux, "GET /api/guilds/{id}/stats", guildAdmin(http.HandlerFunc(s.guildH.Stats)))
	route(mux, "GET /api/guilds/{id}/settings", guildAdmin(http.HandlerFunc(s.guildH.GetSettings)))
	route(mux, "PUT /api/guilds/{id}/settings", guildAdmin(http.HandlerFunc(s.guildH.UpdateSettings)))
}

// route registers h under pattern with per-route request metrics.
func route(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, metrics.InstrumentRoute(pattern, h))
}
