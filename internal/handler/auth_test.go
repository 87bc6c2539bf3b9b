package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/dukerupert/guilddash/internal/auth"
	"github.com/dukerupert/guilddash/internal/middleware"
	"github.com/dukerupert/guilddash/internal/model"
	"github.com/dukerupert/guilddash/internal/session"
)

const testPostLogin = "http://localhost:5173/dashboard"

type fakeOAuth struct {
	exchangeErr error
	userErr     error
	avatar      *string
	gotCode     string
	gotToken    string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://discord.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.gotCode = code
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "access-abc", RefreshToken: "refresh-xyz"}, nil
}

func (f *fakeOAuth) CurrentUser(ctx context.Context, accessToken string) (*model.DiscordUser, error) {
	f.gotToken = accessToken
	if f.userErr != nil {
		return nil, f.userErr
	}
	return &model.DiscordUser{ID: "42", Username: "alice", Avatar: f.avatar}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupAuthHandler(t *testing.T, p OAuthProvider) (*AuthHandler, *session.Signer) {
	t.Helper()
	signer, err := session.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	h := NewAuthHandler(p, signer, CookieConfig{Domain: "localhost"}, testPostLogin, discardLogger())
	return h, signer
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestLogin(t *testing.T) {
	h, _ := setupAuthHandler(t, &fakeOAuth{})

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest("GET", "/api/auth/discord/login", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	state := findCookie(rec, stateCookieName)
	if state == nil || state.Value == "" {
		t.Fatal("missing oauth_state cookie")
	}
	if !state.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}

	body := decodeMap(t, rec)
	u, err := url.Parse(body["url"].(string))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if got := u.Query().Get("state"); got != state.Value {
		t.Errorf("url state = %q, cookie state = %q", got, state.Value)
	}
}

func TestCallbackMissingCode(t *testing.T) {
	p := &fakeOAuth{}
	h, _ := setupAuthHandler(t, p)

	rec := httptest.NewRecorder()
	h.Callback(rec, httptest.NewRequest("GET", "/api/auth/discord/callback", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if p.gotCode != "" {
		t.Error("exchange should not be attempted without a code")
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	p := &fakeOAuth{}
	h, _ := setupAuthHandler(t, p)

	req := httptest.NewRequest("GET", "/api/auth/discord/callback?code=abc&state=wrong", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "expected"})
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if p.gotCode != "" {
		t.Error("exchange should not be attempted on state mismatch")
	}
}

func TestCallbackProviderFailure(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeOAuth
	}{
		{"exchange", &fakeOAuth{exchangeErr: errors.New("invalid_grant")}},
		{"user", &fakeOAuth{userErr: errors.New("401 unauthorized")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := setupAuthHandler(t, tt.p)

			rec := httptest.NewRecorder()
			h.Callback(rec, httptest.NewRequest("GET", "/api/auth/discord/callback?code=abc", nil))

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
			}
			if got := decodeMap(t, rec)["error"]; got != "Authentication failed" {
				t.Errorf("error = %v", got)
			}
			if findCookie(rec, middleware.SessionCookieName) != nil {
				t.Error("session cookie should not be set on failure")
			}
		})
	}
}

func TestCallbackSuccess(t *testing.T) {
	avatar := "a1b2"
	p := &fakeOAuth{avatar: &avatar}
	h, signer := setupAuthHandler(t, p)

	req := httptest.NewRequest("GET", "/api/auth/discord/callback?code=abc&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "s1"})
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != testPostLogin {
		t.Errorf("Location = %q, want %q", loc, testPostLogin)
	}
	if p.gotCode != "abc" || p.gotToken != "access-abc" {
		t.Errorf("provider saw code %q token %q", p.gotCode, p.gotToken)
	}

	c := findCookie(rec, middleware.SessionCookieName)
	if c == nil {
		t.Fatal("missing session cookie")
	}
	if !c.HttpOnly || c.Path != "/" || c.Domain != "localhost" || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie attributes: %+v", c)
	}
	if c.MaxAge != int(session.TTL.Seconds()) {
		t.Errorf("MaxAge = %d, want %d", c.MaxAge, int(session.TTL.Seconds()))
	}

	claims, err := signer.Verify(c.Value)
	if err != nil {
		t.Fatalf("verify issued session: %v", err)
	}
	if claims.UserID != "42" || claims.Username != "alice" || claims.Avatar == nil || *claims.Avatar != "a1b2" {
		t.Errorf("identity claims = %+v", claims)
	}
	if claims.AccessToken != "access-abc" || claims.RefreshToken != "refresh-xyz" {
		t.Errorf("token claims = %q/%q", claims.AccessToken, claims.RefreshToken)
	}

	if st := findCookie(rec, stateCookieName); st == nil || st.MaxAge >= 0 {
		t.Error("oauth_state cookie should be cleared")
	}
}

func TestMe(t *testing.T) {
	h, _ := setupAuthHandler(t, &fakeOAuth{})
	avatar := "a1b2"

	ctx := auth.WithClaims(context.Background(), &session.Claims{
		UserID: "42", Username: "alice", Avatar: &avatar, AccessToken: "secret-access",
	})
	req := httptest.NewRequest("GET", "/api/auth/me", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		User map[string]any `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User["id"] != "42" || body.User["username"] != "alice" || body.User["avatar"] != "a1b2" {
		t.Errorf("user = %v", body.User)
	}
	if len(body.User) != 3 {
		t.Errorf("user exposes extra fields: %v", body.User)
	}
}

func TestMeWithoutAvatar(t *testing.T) {
	h, _ := setupAuthHandler(t, &fakeOAuth{})

	ctx := auth.WithClaims(context.Background(), &session.Claims{UserID: "42", Username: "alice"})
	req := httptest.NewRequest("GET", "/api/auth/me", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"user":{"id":"42","username":"alice","avatar":null}}` {
		t.Errorf("body = %s", got)
	}
}

func TestLogout(t *testing.T) {
	h, _ := setupAuthHandler(t, &fakeOAuth{})

	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest("POST", "/api/auth/logout", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	c := findCookie(rec, middleware.SessionCookieName)
	if c == nil || c.MaxAge >= 0 || c.Domain != "localhost" {
		t.Errorf("session cookie not cleared: %+v", c)
	}
	if got := decodeMap(t, rec)["ok"]; got != true {
		t.Errorf("ok = %v, want true", got)
	}
}
