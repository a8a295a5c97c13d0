package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeValidate(_ context.Context, token string) (any, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &validator.ValidatedClaims{RegisteredClaims: validator.RegisteredClaims{Subject: "auth0|42"}}, nil
}

func TestValidate(t *testing.T) {
	r := gin.New()
	r.Use(Validate(fakeValidate, discardLogger()))
	r.GET("/me", func(c *gin.Context) {
		sub, ok := GetAuth0ID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, sub)
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing token", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"good token", "Bearer good", http.StatusOK, "auth0|42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.body) {
				t.Errorf("expected body to contain %q, got %s", tt.body, w.Body.String())
			}
		})
	}
}

func TestGetAuth0ID_NoClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := GetAuth0ID(c); ok {
		t.Error("expected no subject without validated claims")
	}
}

func TestLogging_RequestID(t *testing.T) {
	r := gin.New()
	r.Use(Logging(discardLogger()))
	r.GET("/ping", func(c *gin.Context) {
		if GetLogger(c) == slog.Default() {
			t.Error("expected a request scoped logger")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected the caller's request id, got %q", got)
	}
}

func TestMetrics_LabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(Metrics(reg))
	r.GET("/users/:userId", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/users/1", "/users/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/users/:userId", "200")); got < 2 {
		t.Errorf("expected at least 2 requests on the route, got %v", got)
	}
	if got := testutil.ToFloat64(httpRequestErrorsTotal.WithLabelValues("GET", "unmatched", "404", "client")); got < 1 {
		t.Errorf("expected the unmatched request to count as a client error, got %v", got)
	}
}
