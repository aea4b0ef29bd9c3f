package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/autoscaler"
	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
)

type registerInstanceRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type scaleRequest struct {
	Action string `json:"action"`
}

// Scale actions accepted by POST /vnf/{type}/scale.
const (
	ActionScaleOut = "scale_out"
	ActionScaleIn  = "scale_in"
)

// ListInstances handles GET /vnf/{type}/instances.
func (s *Server) ListInstances(c *gin.Context) {
	vnfType, ok := s.vnfTypeParam(c)
	if !ok {
		return
	}
	items := s.instances.List(vnfType)
	if items == nil {
		items = []domain.Instance{}
	}
	c.JSON(http.StatusOK, domain.InstanceList{
		VNFType: vnfType,
		Items:   items,
		Active:  s.instances.CountActive(vnfType),
	})
}

// RegisterInstance handles POST /vnf/{type}/instances. The instance is
// external: it is never terminated by the control plane.
func (s *Server) RegisterInstance(c *gin.Context) {
	vnfType, ok := s.vnfTypeParam(c)
	if !ok {
		return
	}
	var req registerInstanceRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Address == "" {
		_ = c.Error(apperrors.ErrInvalidRequestFieldf("address"))
		return
	}
	if req.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			_ = c.Error(err)
			return
		}
		req.ID = string(vnfType) + "-" + id.String()
	}

	inst, err := s.lifecycle.RegisterExternal(c.Request.Context(), domain.Instance{
		ID:      req.ID,
		VNFType: vnfType,
		Address: req.Address,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

// RemoveInstance handles DELETE /vnf/{type}/instances/{id}. The drain runs
// on the general pool; the response only confirms that it started.
func (s *Server) RemoveInstance(c *gin.Context) {
	vnfType, ok := s.vnfTypeParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	inst, found := s.instances.Get(id)
	if !found || inst.VNFType != vnfType {
		_ = c.Error(apperrors.ErrInstanceNotFoundf(id))
		return
	}
	if inst.Status == domain.InstanceDraining || inst.Status == domain.InstanceRemoved {
		c.JSON(http.StatusAccepted, gin.H{"instance_id": id, "status": inst.Status})
		return
	}
	if s.chains.InUse(id) {
		_ = c.Error(apperrors.ErrInstanceInUsef(id))
		return
	}

	task := func(ctx context.Context) {
		if _, err := s.lifecycle.ScaleIn(ctx, vnfType, id); err != nil {
			logger.Warn("Instance removal failed",
				zap.String("vnf_type", string(vnfType)),
				zap.String("instance_id", id),
				zap.Error(err),
			)
		}
	}
	if s.pools == nil {
		task(context.WithoutCancel(c.Request.Context()))
	} else if err := s.pools.SubmitDetached(worker.PoolGeneral, task); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInternalError, "removal could not be scheduled", http.StatusServiceUnavailable))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"instance_id": id, "status": domain.InstanceDraining})
}

// NextInstance handles GET /load-balance/{type}.
func (s *Server) NextInstance(c *gin.Context) {
	vnfType, ok := s.vnfTypeParam(c)
	if !ok {
		return
	}
	inst, found := s.balancer.Next(vnfType)
	if !found {
		_ = c.Error(apperrors.ErrNoCapacityf(string(vnfType)))
		return
	}
	c.JSON(http.StatusOK, inst)
}

// GetVNFMetrics handles GET /vnf/{type}/metrics.
func (s *Server) GetVNFMetrics(c *gin.Context) {
	vnfType, ok := s.vnfTypeParam(c)
	if !ok {
		return
	}

	history := make(map[domain.MetricName][]float64, len(domain.AllMetrics))
	for _, m := range domain.AllMetrics {
		history[m] = s.metrics.History(vnfType, m)
	}
	body := gin.H{
		"vnf_type":  vnfType,
		"instances": s.metrics.Samples(vnfType),
		"history":   history,
	}
	if agg, found := s.metrics.Latest(vnfType); found {
		body["aggregate"] = agg
	}
	c.JSON(http.StatusOK, body)
}

// ScaleVNF handles POST /vnf/{type}/scale. Bounds and the per-type in-flight
// guard are checked before answering; the action itself runs on the general
// pool, so a drain does not hold the request open.
func (s *Server) ScaleVNF(c *gin.Context) {
	vnfType, ok := s.vnfTypeParam(c)
	if !ok {
		return
	}
	var req scaleRequest
	if !bindJSON(c, &req) {
		return
	}

	var decision autoscaler.Decision
	switch req.Action {
	case ActionScaleOut:
		decision = autoscaler.DecisionScaleOut
	case ActionScaleIn:
		decision = autoscaler.DecisionScaleIn
	default:
		_ = c.Error(apperrors.ErrInvalidRequestFieldf("action"))
		return
	}

	if err := s.autoscaler.TriggerAsync(c.Request.Context(), vnfType, decision); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"vnf_type": vnfType,
		"action":   req.Action,
		"active":   s.instances.CountActive(vnfType),
	})
}

// GetAutoscalerStatus handles GET /autoscaler/status.
func (s *Server) GetAutoscalerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.autoscaler.Status()})
}
