package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brightstay/brightstay-invites/internal/identity"
)

func newAuthHandler(t *testing.T) (*AuthHandler, identity.SessionRepo) {
	t.Helper()

	auth := identity.NewUserAuth(4)
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	parties := identity.NewMemoryPartyRepo()
	err = parties.Create(context.Background(), &identity.User{
		ID:           "host-1",
		Username:     "host",
		PasswordHash: hash,
		Role:         identity.RoleHost,
		TenantID:     "tenant-1",
		Status:       identity.UserActive,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	sessions := identity.NewMemorySessionRepo()
	return NewAuthHandler(parties, sessions, auth), sessions
}

func postLogin(t *testing.T, h *AuthHandler, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	return rec
}

func TestLoginSuccess(t *testing.T) {
	h, _ := newAuthHandler(t)

	rec := postLogin(t, h, "host", "pw")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Error("no session token in response")
	}
	if resp.User.Username != "host" || resp.User.TenantID != "tenant-1" {
		t.Errorf("user = %+v", resp.User)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
		t.Errorf("session cookie = %+v", cookie)
	}
}

func TestLoginFailures(t *testing.T) {
	h, _ := newAuthHandler(t)

	tests := []struct {
		name               string
		username, password string
		wantReason         string
	}{
		{"wrong password", "host", "nope", ReasonInvalidCredentials},
		{"unknown user", "ghost", "pw", ReasonInvalidCredentials},
		{"missing fields", "", "", ReasonMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postLogin(t, h, tt.username, tt.password)
			if rec.Code == http.StatusOK {
				t.Fatal("login succeeded")
			}
			var env ErrorEnvelope
			json.Unmarshal(rec.Body.Bytes(), &env)
			if env.Error.ReasonCode != tt.wantReason {
				t.Errorf("reason = %s, want %s", env.Error.ReasonCode, tt.wantReason)
			}
		})
	}
}

func TestCurrentUserAndLogout(t *testing.T) {
	h, sessions := newAuthHandler(t)

	rec := postLogin(t, h, "host", "pw")
	var resp LoginResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	h.GetCurrentUser(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d", rec.Code)
	}
	var view UserView
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.ID != "host-1" {
		t.Errorf("user id = %s", view.ID)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	h.Logout(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status = %d", rec.Code)
	}

	if _, err := sessions.Get(context.Background(), resp.Token); err == nil {
		t.Error("session survives logout")
	}
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if ExtractToken(req) != "" {
		t.Error("token extracted from bare request")
	}

	req.Header.Set("Authorization", "Bearer abc")
	if got := ExtractToken(req); got != "abc" {
		t.Errorf("header token = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "xyz"})
	if got := ExtractToken(req); got != "xyz" {
		t.Errorf("cookie token = %q", got)
	}
}
