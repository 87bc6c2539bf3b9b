package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"

	"github.com/dukerupert/guilddash/internal/metrics"
	"github.com/dukerupert/guilddash/internal/model"
)

// DefaultHTTPTimeout bounds every call to Discord.
const DefaultHTTPTimeout = 10 * time.Second

// upstream labels Discord calls in metrics.
const upstream = "discord"

var ErrNoBotToken = errors.New("bot token not configured")

// Config holds the application's Discord credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BotToken     string

	// Endpoint overrides Discord's OAuth endpoints. Zero means Discord.
	Endpoint oauth2.Endpoint
	// HTTPClient is used for both OAuth and REST calls.
	HTTPClient *http.Client
}

// Client talks to Discord on behalf of a logged-in user (bearer token)
// or of the bot (bot token).
type Client struct {
	oauth      *oauth2.Config
	botToken   string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = Endpoint
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		botToken:   cfg.BotToken,
		httpClient: httpClient,
	}
}

// HasBotToken reports whether guild-level calls can be made.
func (c *Client) HasBotToken() bool {
	return c.botToken != ""
}

func (c *Client) session(authorization string) (*discordgo.Session, error) {
	s, err := discordgo.New(authorization)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Client = c.httpClient
	s.ShouldRetryOnRateLimit = false
	s.MaxRestRetries = 0
	return s, nil
}

// CurrentUser fetches the profile of the user owning accessToken.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*model.DiscordUser, error) {
	s, err := c.session("Bearer " + accessToken)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	u, err := s.User("@me", discordgo.WithContext(ctx))
	metrics.ObserveUpstream(upstream, "current_user", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}

	user := &model.DiscordUser{ID: u.ID, Username: u.Username}
	if u.Avatar != "" {
		avatar := u.Avatar
		user.Avatar = &avatar
	}
	return user, nil
}

// UserGuilds lists the guilds of the user owning accessToken. The raw
// endpoint is used so a malformed permissions value on one guild does not
// fail decoding of the whole list.
func (c *Client) UserGuilds(ctx context.Context, accessToken string) ([]model.Guild, error) {
	s, err := c.session("Bearer " + accessToken)
	if err != nil {
		return nil, err
	}

	endpoint := discordgo.EndpointUserGuilds("@me")
	start := time.Now()
	body, err := s.RequestWithBucketID(http.MethodGet, endpoint, nil, endpoint, discordgo.WithContext(ctx))
	metrics.ObserveUpstream(upstream, "user_guilds", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch user guilds: %w", err)
	}

	var guilds []model.Guild
	if err := json.Unmarshal(body, &guilds); err != nil {
		return nil, fmt.Errorf("decode user guilds: %w", err)
	}
	return guilds, nil
}

// AdminGuilds lists the user's guilds filtered to those where they hold
// the administrator permission.
func (c *Client) AdminGuilds(ctx context.Context, accessToken string) ([]model.Guild, error) {
	guilds, err := c.UserGuilds(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return FilterAdminGuilds(guilds), nil
}

// Guild fetches a guild with approximate member and presence counts.
func (c *Client) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if !c.HasBotToken() {
		return nil, ErrNoBotToken
	}
	s, err := c.session("Bot " + c.botToken)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	g, err := s.GuildWithCounts(guildID, discordgo.WithContext(ctx))
	metrics.ObserveUpstream(upstream, "guild", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return g, nil
}

// GuildChannels lists a guild's channels.
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	if !c.HasBotToken() {
		return nil, ErrNoBotToken
	}
	s, err := c.session("Bot " + c.botToken)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	channels, err := s.GuildChannels(guildID, discordgo.WithContext(ctx))
	metrics.ObserveUpstream(upstream, "guild_channels", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch channels for guild %s: %w", guildID, err)
	}
	return channels, nil
}

// CountChannels returns the number of text and voice channels.
func CountChannels(channels []*discordgo.Channel) (text, voice int) {
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		switch ch.Type {
		case discordgo.ChannelTypeGuildText:
			text++
		case discordgo.ChannelTypeGuildVoice:
			voice++
		}
	}
	return text, voice
}
