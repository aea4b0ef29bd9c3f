package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sri0013/vnf-project/internal/api/middleware"
	"github.com/sri0013/vnf-project/internal/config"
)

func TestBuildCORSConfig_DefaultsToAllowlistWhenOriginsEmpty(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        nil,
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: false,
		},
	}

	got := buildCORSConfig(cfg)
	if got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want false", got.AllowAllOrigins)
	}
	if !got.AllowCredentials {
		t.Fatalf("AllowCredentials = %v, want true", got.AllowCredentials)
	}
	if len(got.AllowOrigins) != 2 {
		t.Fatalf("len(AllowOrigins) = %d, want 2", len(got.AllowOrigins))
	}
}

func TestBuildCORSConfig_StripsWildcardUnlessUnsafeFlagEnabled(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        []string{"*", "https://example.com"},
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: false,
		},
	}

	got := buildCORSConfig(cfg)
	if got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want false", got.AllowAllOrigins)
	}
	if len(got.AllowOrigins) != 1 || got.AllowOrigins[0] != "https://example.com" {
		t.Fatalf("AllowOrigins = %#v, want []string{\"https://example.com\"}", got.AllowOrigins)
	}
}

func TestBuildCORSConfig_UnsafeAllowAllDisablesCredentials(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        []string{"*"},
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: true,
		},
	}

	got := buildCORSConfig(cfg)
	if !got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want true", got.AllowAllOrigins)
	}
	if got.AllowCredentials {
		t.Fatalf("AllowCredentials = %v, want false", got.AllowCredentials)
	}
	if len(got.AllowOrigins) != 0 {
		t.Fatalf("AllowOrigins = %#v, want empty", got.AllowOrigins)
	}
}

func TestRouter_ServesOperationalEndpoints(t *testing.T) {
	app, err := Bootstrap(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer app.Shutdown()

	for _, path := range []string{"/metrics", "/openapi.yaml", "/log/level", "/autoscaler/status"} {
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("/metrics does not expose runtime collectors")
	}
}

func TestRouter_GuardsMutatingRoutesWhenKeyConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.JWTSigningKey = "router-test-signing-key"

	app, err := Bootstrap(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer app.Shutdown()

	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  cfg.Security.TokenTTL,
	}
	readOnly, _, err := middleware.GenerateToken(jwtCfg, "viewer", nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	writer, _, err := middleware.GenerateToken(jwtCfg, "operator", []string{middleware.ScopeFlowsWrite})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"reads stay public", http.MethodGet, "/flows", "", "", http.StatusOK},
		{"write without token", http.MethodPost, "/flows", `{"vnf_type":"firewall","instance_id":"x"}`, "", http.StatusUnauthorized},
		{"write without scope", http.MethodPost, "/flows", `{"vnf_type":"firewall","instance_id":"x"}`, readOnly, http.StatusForbidden},
		{"write with scope reaches handler", http.MethodPost, "/flows", `{"vnf_type":"firewall","instance_id":"x"}`, writer, http.StatusNotFound},
		{"log level needs admin", http.MethodPut, "/log/level", `{"level":"debug"}`, writer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			app.Router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d (body %s)", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}
