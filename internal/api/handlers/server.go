// Package handlers implements the control-plane HTTP API.
//
// Handlers translate between JSON and the orchestration core. They attach
// errors with c.Error and leave rendering to middleware.ErrorHandler.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sri0013/vnf-project/internal/api/middleware"
	"github.com/sri0013/vnf-project/internal/autoscaler"
	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
	"github.com/sri0013/vnf-project/internal/sfc"
	"github.com/sri0013/vnf-project/internal/store"
)

// Instances is the read side of the instance registry.
type Instances interface {
	Get(id string) (domain.Instance, bool)
	List(vnfType domain.VNFType) []domain.Instance
	CountActive(vnfType domain.VNFType) int
	Counts(types []domain.VNFType) map[domain.VNFType]int
}

// Flows is the flow table.
type Flows interface {
	AddFlow(vnfType domain.VNFType, instanceID string, priority int) (domain.FlowRule, error)
	RemoveFlow(id string) bool
	List() []domain.FlowRule
}

// Balancer picks the next instance of a type.
type Balancer interface {
	Next(vnfType domain.VNFType) (domain.Instance, bool)
}

// Lifecycle adds and removes instances.
type Lifecycle interface {
	RegisterExternal(ctx context.Context, inst domain.Instance) (domain.Instance, error)
	ScaleIn(ctx context.Context, vnfType domain.VNFType, id string) (bool, error)
}

// Autoscaler runs manual scaling actions and reports its state.
type Autoscaler interface {
	TriggerAsync(ctx context.Context, vnfType domain.VNFType, decision autoscaler.Decision) error
	Status() []autoscaler.Status
}

// MetricsView exposes the aggregator's last results.
type MetricsView interface {
	Latest(vnfType domain.VNFType) (domain.AggregatedMetric, bool)
	Samples(vnfType domain.VNFType) map[string]domain.MetricSample
	History(vnfType domain.VNFType, metric domain.MetricName) []float64
}

// Chains is the SFC engine.
type Chains interface {
	Submit(ctx context.Context, meta domain.RequestMetadata, requestType domain.RequestType) (sfc.Result, error)
	Get(ctx context.Context, id string) (domain.SFCRecord, error)
	List(ctx context.Context, f store.Filter) ([]domain.SFCRecord, error)
	Cleanup(ctx context.Context, id string) error
	Stats() domain.SFCStats
	InUse(instanceID string) bool
}

// Detacher runs work that must outlive the request.
type Detacher interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// WorkerStats reports worker pool usage. *worker.Pools satisfies it.
type WorkerStats interface {
	Metrics() map[string]interface{}
}

// Pinger checks a backing service. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	types      []domain.VNFType
	known      map[domain.VNFType]struct{}
	runtime    string
	instances  Instances
	flows      Flows
	balancer   Balancer
	lifecycle  Lifecycle
	autoscaler Autoscaler
	metrics    MetricsView
	chains     Chains
	pools      Detacher
	workers    WorkerStats
	db         Pinger
	startedAt  time.Time
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Types      []domain.VNFType
	Runtime    string
	Instances  Instances
	Flows      Flows
	Balancer   Balancer
	Lifecycle  Lifecycle
	Autoscaler Autoscaler
	Metrics    MetricsView
	Chains     Chains
	Pools      Detacher
	// Workers is optional; when set, /health includes pool usage.
	Workers WorkerStats
	// DB is optional; when set, /health reports its reachability.
	DB Pinger
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	known := make(map[domain.VNFType]struct{}, len(deps.Types))
	for _, t := range deps.Types {
		known[t] = struct{}{}
	}
	return &Server{
		types:      deps.Types,
		known:      known,
		runtime:    deps.Runtime,
		instances:  deps.Instances,
		flows:      deps.Flows,
		balancer:   deps.Balancer,
		lifecycle:  deps.Lifecycle,
		autoscaler: deps.Autoscaler,
		metrics:    deps.Metrics,
		chains:     deps.Chains,
		pools:      deps.Pools,
		workers:    deps.Workers,
		db:         deps.DB,
		startedAt:  time.Now(),
	}
}

// Guard returns the middleware chain protecting a mutating route.
type Guard func(scope string) []gin.HandlerFunc

// RegisterRoutes mounts every API route on r. guard may be nil, which
// leaves mutating routes open.
func (s *Server) RegisterRoutes(r gin.IRoutes, guard Guard) {
	protect := func(scope string, h gin.HandlerFunc) []gin.HandlerFunc {
		if guard == nil {
			return []gin.HandlerFunc{h}
		}
		return append(guard(scope), h)
	}

	r.GET("/health", s.GetHealth)

	r.GET("/flows", s.ListFlows)
	r.POST("/flows", protect(middleware.ScopeFlowsWrite, s.CreateFlow)...)
	r.DELETE("/flows/:id", protect(middleware.ScopeFlowsWrite, s.DeleteFlow)...)

	r.GET("/vnf/:type/instances", s.ListInstances)
	r.POST("/vnf/:type/instances", protect(middleware.ScopeVNFWrite, s.RegisterInstance)...)
	r.DELETE("/vnf/:type/instances/:id", protect(middleware.ScopeVNFWrite, s.RemoveInstance)...)
	r.GET("/vnf/:type/metrics", s.GetVNFMetrics)
	r.POST("/vnf/:type/scale", protect(middleware.ScopeVNFWrite, s.ScaleVNF)...)
	r.GET("/load-balance/:type", s.NextInstance)

	r.GET("/sfc", s.ListSFCs)
	r.POST("/sfc", protect(middleware.ScopeSFCWrite, s.CreateSFC)...)
	r.GET("/sfc/stats", s.GetSFCStats)
	r.GET("/sfc/:id", s.GetSFC)
	r.DELETE("/sfc/:id", protect(middleware.ScopeSFCWrite, s.DeleteSFC)...)

	r.GET("/autoscaler/status", s.GetAutoscalerStatus)
}

// vnfTypeParam resolves the :type path parameter against the catalog.
func (s *Server) vnfTypeParam(c *gin.Context) (domain.VNFType, bool) {
	t := domain.VNFType(c.Param("type"))
	if _, ok := s.known[t]; !ok {
		_ = c.Error(apperrors.ErrUnknownVNFTypef(string(t)))
		return "", false
	}
	return t, true
}

// bindJSON decodes the body and reports a malformed one as a 400.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed, "malformed request body", http.StatusBadRequest))
		return false
	}
	return true
}
