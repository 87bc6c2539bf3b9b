package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/dukerupert/guilddash/internal/metrics"
)

// Endpoint is Discord's OAuth2 authorization server. Client credentials
// are sent in the form body.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Scopes requested at login.
var Scopes = []string{"identify", "guilds"}

var ErrExchange = errors.New("oauth code exchange failed")

// AuthCodeURL returns the URL the browser should visit to log in.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for access and refresh tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	start := time.Now()
	tok, err := c.oauth.Exchange(ctx, code)
	metrics.ObserveUpstream(upstream, "token_exchange", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrExchange)
	}
	return tok, nil
}
