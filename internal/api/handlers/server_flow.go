package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
)

type createFlowRequest struct {
	VNFType    string `json:"vnf_type"`
	InstanceID string `json:"instance_id"`
	Priority   *int   `json:"priority"`
}

type flowList struct {
	Items []domain.FlowRule `json:"items"`
	Total int               `json:"total"`
}

// ListFlows handles GET /flows. Optional filters: vnf_type, sfc_id.
func (s *Server) ListFlows(c *gin.Context) {
	vnfType := domain.VNFType(c.Query("vnf_type"))
	sfcID := c.Query("sfc_id")

	items := make([]domain.FlowRule, 0)
	for _, r := range s.flows.List() {
		if vnfType != "" && r.VNFType != vnfType {
			continue
		}
		if sfcID != "" && r.SFCID != sfcID {
			continue
		}
		items = append(items, r)
	}
	c.JSON(http.StatusOK, flowList{Items: items, Total: len(items)})
}

// CreateFlow handles POST /flows.
func (s *Server) CreateFlow(c *gin.Context) {
	var req createFlowRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.InstanceID == "" {
		_ = c.Error(apperrors.ErrInvalidRequestFieldf("instance_id"))
		return
	}
	vnfType := domain.VNFType(req.VNFType)
	if _, ok := s.known[vnfType]; !ok {
		_ = c.Error(apperrors.ErrUnknownVNFTypef(req.VNFType))
		return
	}
	priority := domain.DefaultFlowPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	rule, err := s.flows.AddFlow(vnfType, req.InstanceID, priority)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// DeleteFlow handles DELETE /flows/{id}.
func (s *Server) DeleteFlow(c *gin.Context) {
	id := c.Param("id")
	if !s.flows.RemoveFlow(id) {
		_ = c.Error(apperrors.ErrFlowNotFoundf(id))
		return
	}
	c.Status(http.StatusNoContent)
}
