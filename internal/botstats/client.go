package botstats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/guilddash/internal/metrics"
)

var ErrNotConfigured = errors.New("bot stats endpoint not configured")

// Config points at the bot process's own stats endpoint.
type Config struct {
	APIURL     string
	BotToken   string
	HTTPClient *http.Client
}

type statsResponse struct {
	Uptime string `json:"uptime"`
}

// Client reads runtime stats from the bot.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Configured reports whether a stats endpoint is set.
func (c *Client) Configured() bool {
	return c.cfg.APIURL != ""
}

// Uptime returns the bot's human-readable uptime.
func (c *Client) Uptime(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/stats", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.cfg.BotToken != "" {
		req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)
	}

	start := time.Now()
	uptime, err := c.fetch(req)
	metrics.ObserveUpstream("bot", "stats", start, err)
	return uptime, err
}

func (c *Client) fetch(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stats request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stats: status %d", resp.StatusCode)
	}

	var sr statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return sr.Uptime, nil
}
