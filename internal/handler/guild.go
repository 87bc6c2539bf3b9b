package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/dukerupert/guilddash/internal/auth"
	"github.com/dukerupert/guilddash/internal/discord"
	"github.com/dukerupert/guilddash/internal/model"
)

const (
	maxPrefixLen        = 10
	placeholderName     = "Servidor"
	uptimeUnavailable   = "—"
	uptimeError         = "Error"
	maxSnowflakeDigits  = 20
	maxSettingsBodySize = 4 << 10
)

type GuildProvider interface {
	AdminGuilds(ctx context.Context, accessToken string) ([]model.Guild, error)
	HasBotToken() bool
	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
}

type UptimeSource interface {
	Configured() bool
	Uptime(ctx context.Context) (string, error)
}

type SettingsStore interface {
	Get(ctx context.Context, guildID string) (*model.GuildSettings, error)
	Upsert(ctx context.Context, gs *model.GuildSettings) (*model.GuildSettings, error)
}

type GuildHandler struct {
	discord  GuildProvider
	uptime   UptimeSource
	settings SettingsStore
	logger   *slog.Logger
}

func NewGuildHandler(d GuildProvider, u UptimeSource, s SettingsStore, logger *slog.Logger) *GuildHandler {
	return &GuildHandler{discord: d, uptime: u, settings: s, logger: logger}
}

// List returns the guilds the caller administers.
func (h *GuildHandler) List(w http.ResponseWriter, r *http.Request) {
	guilds, err := h.discord.AdminGuilds(r.Context(), auth.AccessToken(r.Context()))
	if err != nil {
		h.logger.Error("list guilds", "user_id", auth.UserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch guilds")
		return
	}
	writeJSON(w, http.StatusOK, guilds)
}

func (h *GuildHandler) Stats(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("id")

	if !h.discord.HasBotToken() {
		writeJSON(w, http.StatusOK, model.GuildStats{
			Guild: model.GuildSummary{ID: guildID, Name: placeholderName},
			Stats: model.GuildCounts{Uptime: uptimeUnavailable},
		})
		return
	}

	var (
		guild    *discordgo.Guild
		channels []*discordgo.Channel
		uptime   = uptimeUnavailable
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		guild, err = h.discord.Guild(ctx, guildID)
		return err
	})
	g.Go(func() error {
		var err error
		channels, err = h.discord.GuildChannels(ctx, guildID)
		return err
	})
	if h.uptime != nil && h.uptime.Configured() {
		g.Go(func() error {
			u, err := h.uptime.Uptime(ctx)
			if err != nil {
				if !errors.Is(ctx.Err(), context.Canceled) {
					h.logger.Warn("fetch bot uptime", "guild_id", guildID, "error", err)
				}
				uptime = uptimeError
				return nil
			}
			uptime = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.Error("fetch guild stats", "guild_id", guildID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch guild stats")
		return
	}

	text, voice := discord.CountChannels(channels)
	summary := model.GuildSummary{ID: guild.ID, Name: guild.Name}
	if guild.Icon != "" {
		icon := guild.Icon
		summary.Icon = &icon
	}
	writeJSON(w, http.StatusOK, model.GuildStats{
		Guild: summary,
		Stats: model.GuildCounts{
			Members:       guild.ApproximateMemberCount,
			OnlineMembers: guild.ApproximatePresenceCount,
			Channels:      text + voice,
			TextChannels:  text,
			VoiceChannels: voice,
			Uptime:        uptime,
		},
	})
}

func (h *GuildHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("id")
	gs, err := h.settings.Get(r.Context(), guildID)
	if err != nil {
		h.logger.Error("get settings", "guild_id", guildID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

func (h *GuildHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("id")

	var req struct {
		Prefix       string          `json:"prefix"`
		LogChannelID json.RawMessage `json:"log_channel_id"`
		Language     string          `json:"language"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSettingsBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Snowflakes exceed float64 precision, so only the string form is accepted.
	var logChannelID string
	if len(req.LogChannelID) > 0 && !bytes.Equal(req.LogChannelID, []byte("null")) {
		if err := json.Unmarshal(req.LogChannelID, &logChannelID); err != nil {
			writeError(w, http.StatusBadRequest, "log_channel_id must be a string snowflake")
			return
		}
	}

	gs, err := normalizeSettings(guildID, req.Prefix, logChannelID, req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.settings.Upsert(r.Context(), gs)
	if err != nil {
		h.logger.Error("save settings", "guild_id", guildID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	h.logger.Info("settings updated", "guild_id", guildID, "user_id", auth.UserID(r.Context()))
	writeJSON(w, http.StatusOK, saved)
}

// normalizeSettings applies defaults to empty fields and validates the rest.
func normalizeSettings(guildID, prefix, logChannelID, lang string) (*model.GuildSettings, error) {
	gs := model.DefaultGuildSettings(guildID)

	if prefix = strings.TrimSpace(prefix); prefix != "" {
		if utf8.RuneCountInString(prefix) > maxPrefixLen {
			return nil, fmt.Errorf("prefix must be at most %d characters", maxPrefixLen)
		}
		if strings.IndexFunc(prefix, unicode.IsSpace) >= 0 {
			return nil, errors.New("prefix must not contain whitespace")
		}
		gs.Prefix = prefix
	}

	if logChannelID = strings.TrimSpace(logChannelID); logChannelID != "" {
		if !isSnowflake(logChannelID) {
			return nil, errors.New("log_channel_id must be a numeric channel id")
		}
		gs.LogChannelID = &logChannelID
	}

	if lang = strings.TrimSpace(lang); lang != "" {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("language %q is not a valid language tag", lang)
		}
		gs.Language = tag.String()
	}

	return gs, nil
}

func isSnowflake(s string) bool {
	if len(s) > maxSnowflakeDigits {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
