package auth0

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_GetUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"auth0|1","email":"ops@acme.test","email_verified":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("unused")
	c.baseURL = srv.URL

	info, err := c.GetUserInfo(context.Background(), "good")
	if err != nil {
		t.Fatal(err)
	}
	if info.Sub != "auth0|1" || !info.EmailVerified {
		t.Errorf("unexpected user info %+v", info)
	}

	if _, err := c.GetUserInfo(context.Background(), "bad"); !errors.Is(err, ErrUserInfoFailed) {
		t.Errorf("expected ErrUserInfoFailed, got %v", err)
	}
}

func TestUserInfo_Owns(t *testing.T) {
	tests := []struct {
		name  string
		info  UserInfo
		email string
		ok    bool
	}{
		{"match", UserInfo{Email: "ops@acme.test", EmailVerified: true}, "ops@acme.test", true},
		{"case insensitive", UserInfo{Email: "Ops@Acme.test", EmailVerified: true}, "ops@acme.test", true},
		{"unverified", UserInfo{Email: "ops@acme.test"}, "ops@acme.test", false},
		{"other account", UserInfo{Email: "x@acme.test", EmailVerified: true}, "ops@acme.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Owns(tt.email)
			if (err == nil) != tt.ok {
				t.Errorf("Owns(%q) = %v", tt.email, err)
			}
		})
	}
}
