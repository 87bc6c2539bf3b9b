package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSecret is the development signing secret. Validate rejects it in production.
const DefaultSecret = "dev-secret"

// Config holds all application configuration.
type Config struct {
	Port         string `yaml:"port"`
	Environment  string `yaml:"environment"`
	JWTSecret    string `yaml:"jwt_secret"`
	CookieDomain string `yaml:"cookie_domain"`

	// PostLoginRedirect is where the OAuth callback sends the browser after login.
	PostLoginRedirect string `yaml:"post_login_redirect"`

	// TrustProxyHeaders keys rate limiting on CF-Connecting-IP/X-Forwarded-For.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Discord  DiscordConfig  `yaml:"discord"`
	Bot      BotConfig      `yaml:"bot"`
	CORS     CORSConfig     `yaml:"cors"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type DiscordConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

type BotConfig struct {
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the optional YAML file at path, overlays environment
// variables, and fills in defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the --config flag
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(&c.Port, "PORT")
	set(&c.Environment, "ENVIRONMENT")
	set(&c.JWTSecret, "JWT_SECRET")
	set(&c.CookieDomain, "COOKIE_DOMAIN")
	set(&c.PostLoginRedirect, "POST_LOGIN_REDIRECT")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Log.Format, "LOG_FORMAT")
	set(&c.Database.Driver, "DB_DRIVER")
	set(&c.Database.DSN, "DB_DSN")
	set(&c.Discord.ClientID, "DISCORD_CLIENT_ID")
	set(&c.Discord.ClientSecret, "DISCORD_CLIENT_SECRET")
	set(&c.Discord.RedirectURI, "DISCORD_REDIRECT_URI")
	set(&c.Bot.Token, "BOT_TOKEN")
	set(&c.Bot.APIURL, "BOT_API_URL")

	if v, ok := lookup("TRUST_PROXY_HEADERS"); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.TrustProxyHeaders = b
		}
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "3001"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.JWTSecret == "" {
		c.JWTSecret = DefaultSecret
	}
	if c.CookieDomain == "" {
		c.CookieDomain = "localhost"
	}
	if c.PostLoginRedirect == "" {
		c.PostLoginRedirect = "http://localhost:3000/dashboard/index.html"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "guilddash.db"
	}
	if c.Discord.RedirectURI == "" {
		c.Discord.RedirectURI = "http://localhost:" + c.Port + "/api/auth/discord/callback"
	}
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks the settings needed to serve traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.ClientID == "" {
		errs = append(errs, errors.New("DISCORD_CLIENT_ID is required"))
	}
	if c.Discord.ClientSecret == "" {
		errs = append(errs, errors.New("DISCORD_CLIENT_SECRET is required"))
	}
	if c.IsProduction() && c.JWTSecret == DefaultSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
