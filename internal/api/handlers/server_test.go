package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sri0013/vnf-project/internal/aggregator"
	"github.com/sri0013/vnf-project/internal/api/middleware"
	"github.com/sri0013/vnf-project/internal/autoscaler"
	"github.com/sri0013/vnf-project/internal/config"
	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/flowtable"
	"github.com/sri0013/vnf-project/internal/lifecycle"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
	"github.com/sri0013/vnf-project/internal/provider"
	"github.com/sri0013/vnf-project/internal/registry"
	"github.com/sri0013/vnf-project/internal/sfc"
	"github.com/sri0013/vnf-project/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

var testTypes = []domain.VNFType{
	domain.VNFFirewall,
	domain.VNFAntivirus,
	domain.VNFSpamFilter,
	domain.VNFContentFiltering,
	domain.VNFEncryptionGateway,
}

type testEnv struct {
	rt     *provider.SimulatedRuntime
	reg    *registry.Registry
	flows  *flowtable.Table
	mgr    *lifecycle.Manager
	agg    *aggregator.Aggregator
	chains *sfc.Engine
	scaler *autoscaler.Engine
	tasks  *taskQueue
	router *gin.Engine
}

// taskQueue runs detached work inline unless hold is set, in which case
// tasks wait in queued until the test runs them.
type taskQueue struct {
	mu     sync.Mutex
	hold   bool
	queued []worker.Task
}

func (q *taskQueue) SubmitDetached(_ string, task worker.Task) error {
	q.mu.Lock()
	if q.hold {
		q.queued = append(q.queued, task)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	task(context.Background())
	return nil
}

func (q *taskQueue) runQueued() {
	q.mu.Lock()
	tasks := q.queued
	q.queued = nil
	q.mu.Unlock()
	for _, task := range tasks {
		task(context.Background())
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func newTestEnv(t *testing.T, db Pinger) *testEnv {
	t.Helper()
	rt := provider.NewSimulatedRuntime(provider.SimulatedOptions{})
	reg := registry.New()
	flows := flowtable.NewTable(reg, nil)
	lb := flowtable.NewLoadBalancer(reg)
	mgr := lifecycle.NewManager(reg, flows, rt, rt, domain.NewEventDispatcher(), lifecycle.Config{
		HealthCheckTimeout: 200 * time.Millisecond,
		HealthPollInterval: 5 * time.Millisecond,
		ProbeTimeout:       50 * time.Millisecond,
		LatencyUpper:       1000,
	})
	agg := aggregator.New(reg, rt, nil, nil, aggregator.Config{Types: testTypes, WindowSize: 5})

	cat, err := sfc.NewCatalog(config.SFCConfig{
		RequestTypes: map[string]config.ChainConfig{
			"inbound_user_protection": {
				Chain:     []string{"firewall", "spamfilter", "antivirus", "content_filtering"},
				Direction: "inbound",
			},
			"auth_and_anti_spoof_enforcement": {
				Chain:     []string{"firewall", "spamfilter"},
				Direction: "bidirectional",
			},
		},
	}, testTypes)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	chains := sfc.NewEngine(cat, lb, mgr, flows, sfc.Config{
		DefaultPriority: 5,
		Known:           testTypes,
	}, sfc.Options{Store: store.NewMemoryStore()})
	mgr.SetGuard(chains)

	tasks := &taskQueue{}
	scaler := autoscaler.NewEngine(agg, mgr, reg, autoscaler.Config{
		Types:  testTypes,
		Bounds: func(domain.VNFType) (int, int) { return 1, 3 },
		Thresholds: autoscaler.Thresholds{
			CPUUpper: 80, CPULower: 30,
			MemoryUpper: 85, MemoryLower: 40,
			LatencyUpper: 1000, LatencyLower: 200,
		},
	}, autoscaler.Options{Pins: chains, Pending: chains.Pending, Detach: tasks})

	srv := NewServer(ServerDeps{
		Types:      testTypes,
		Runtime:    rt.Name(),
		Instances:  reg,
		Flows:      flows,
		Balancer:   lb,
		Lifecycle:  mgr,
		Autoscaler: scaler,
		Metrics:    agg,
		Chains:     chains,
		DB:         db,
	})

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	srv.RegisterRoutes(router, nil)

	return &testEnv{
		rt: rt, reg: reg, flows: flows, mgr: mgr, agg: agg,
		chains: chains, scaler: scaler, tasks: tasks, router: router,
	}
}

func (e *testEnv) provision(t *testing.T, vnfType domain.VNFType, n int) []domain.Instance {
	t.Helper()
	if _, err := e.mgr.Provision(context.Background(), vnfType, n); err != nil {
		t.Fatalf("provision %s: %v", vnfType, err)
	}
	return e.reg.ListActive(vnfType)
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v body=%s", err, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decode(t, w, &body)
	return body.Code
}
