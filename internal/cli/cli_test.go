package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sri0013/vnf-project/internal/api/middleware"
)

type captured struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]interface{}
}

// fakeAPI records the last request and answers with status and reply.
func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSFCCreate(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusCreated, `{"primary":{"sfc_id":"sfc-1"}}`)

	out, err := run(t, srv, "--token", "tkn", "sfc", "create", "inbound_user_protection",
		"--direction", "inbound", "--priority", "7", "--attachments", "--duration", "90s", "--label", "tenant=acme")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/sfc", got.path)
	assert.Equal(t, "Bearer tkn", got.auth)
	assert.Equal(t, "inbound_user_protection", got.body["request_type"])

	meta, ok := got.body["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "inbound", meta["direction"])
	assert.EqualValues(t, 7, meta["priority"])
	assert.Equal(t, true, meta["has_attachments"])
	assert.EqualValues(t, 90, meta["service_duration_seconds"])
	assert.Equal(t, map[string]interface{}{"tenant": "acme"}, meta["labels"])

	assert.Contains(t, out, `"sfc_id": "sfc-1"`)
}

func TestSFCCreate_Classified(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusCreated, `{}`)

	_, err := run(t, srv, "sfc", "create", "--saas")
	require.NoError(t, err)
	_, hasType := got.body["request_type"]
	assert.False(t, hasType, "request type is left to the server")
	assert.Empty(t, got.auth)
}

func TestRequests(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		method string
		path   string
		query  string
		body   map[string]interface{}
	}{
		{"sfc list", []string{"sfc", "list", "--status", "ACTIVE", "--limit", "5"}, http.MethodGet, "/sfc", "limit=5&status=ACTIVE", nil},
		{"sfc get", []string{"sfc", "get", "sfc-1"}, http.MethodGet, "/sfc/sfc-1", "", nil},
		{"sfc delete", []string{"sfc", "delete", "sfc-1"}, http.MethodDelete, "/sfc/sfc-1", "", nil},
		{"sfc stats", []string{"sfc", "stats"}, http.MethodGet, "/sfc/stats", "", nil},
		{"flows list", []string{"flows", "list", "--vnf-type", "firewall"}, http.MethodGet, "/flows", "vnf_type=firewall", nil},
		{"flows add default priority", []string{"flows", "add", "firewall", "fw-1"}, http.MethodPost, "/flows", "",
			map[string]interface{}{"vnf_type": "firewall", "instance_id": "fw-1"}},
		{"flows add priority", []string{"flows", "add", "firewall", "fw-1", "--priority", "50"}, http.MethodPost, "/flows", "",
			map[string]interface{}{"vnf_type": "firewall", "instance_id": "fw-1", "priority": float64(50)}},
		{"flows delete", []string{"flows", "delete", "flow-1"}, http.MethodDelete, "/flows/flow-1", "", nil},
		{"instances list", []string{"instances", "list", "antivirus"}, http.MethodGet, "/vnf/antivirus/instances", "", nil},
		{"instances register", []string{"vnf", "register", "antivirus", "http://10.0.0.5:8080", "--id", "av-9"}, http.MethodPost, "/vnf/antivirus/instances", "",
			map[string]interface{}{"address": "http://10.0.0.5:8080", "id": "av-9"}},
		{"instances remove", []string{"instances", "remove", "antivirus", "av-9"}, http.MethodDelete, "/vnf/antivirus/instances/av-9", "", nil},
		{"instances next", []string{"instances", "next", "firewall"}, http.MethodGet, "/load-balance/firewall", "", nil},
		{"instances metrics", []string{"instances", "metrics", "firewall"}, http.MethodGet, "/vnf/firewall/metrics", "", nil},
		{"scale out", []string{"scale", "spamfilter", "out"}, http.MethodPost, "/vnf/spamfilter/scale", "",
			map[string]interface{}{"action": "scale_out"}},
		{"scale in", []string{"scale", "spamfilter", "in"}, http.MethodPost, "/vnf/spamfilter/scale", "",
			map[string]interface{}{"action": "scale_in"}},
		{"status", []string{"status"}, http.MethodGet, "/autoscaler/status", "", nil},
		{"health", []string{"health"}, http.MethodGet, "/health", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := fakeAPI(t, http.StatusOK, `{"ok":true}`)
			_, err := run(t, srv, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.method, got.method)
			assert.Equal(t, tt.path, got.path)
			assert.Equal(t, tt.query, got.query)
			assert.Equal(t, tt.body, got.body)
		})
	}
}

func TestScale_RejectsDirection(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{}`)
	_, err := run(t, srv, "scale", "firewall", "sideways")
	assert.Error(t, err)
	assert.Empty(t, got.method, "nothing is sent")
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusConflict, `{"code":"INSTANCE_IN_USE","message":"instance fw-1 is in use"}`)

	_, err := run(t, srv, "instances", "remove", "firewall", "fw-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "INSTANCE_IN_USE", apiErr.Code)
	assert.Contains(t, err.Error(), "instance fw-1 is in use")
}

func TestNoContent(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusNoContent, "")
	out, err := run(t, srv, "flows", "delete", "flow-1")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestOutputYAML(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{"total":2,"by_status":{"ACTIVE":2}}`)
	out, err := run(t, srv, "-o", "yaml", "sfc", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 2")
	assert.Contains(t, out, "ACTIVE: 2")
}

func TestToken(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetArgs([]string{"token", "--signing-key", "k", "--subject", "ops", "--scope", "sfc:write", "--scope", "vnf:write"})
	require.NoError(t, cmd.Execute())

	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))

	claims, err := middleware.JWTConfig{SigningKey: []byte("k"), Issuer: "vnf-orchestrator"}.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, []string{"sfc:write", "vnf:write"}, claims.Scopes)
}

func TestToken_RequiresKey(t *testing.T) {
	t.Setenv("SFCCTL_SIGNING_KEY", "")
	cmd := NewRootCommand(io.Discard)
	cmd.SetArgs([]string{"token"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "signing-key"))
}
