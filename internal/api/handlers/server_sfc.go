package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/store"
)

type createSFCRequest struct {
	// RequestType is optional; when empty the request is classified from
	// Metadata.
	RequestType domain.RequestType     `json:"request_type"`
	Metadata    domain.RequestMetadata `json:"metadata"`
}

type sfcResponse struct {
	Primary            *domain.SFCInstance `json:"primary"`
	Complementary      *domain.SFCInstance `json:"complementary,omitempty"`
	ComplementaryError string              `json:"complementary_error,omitempty"`
}

type sfcList struct {
	Items []domain.SFCRecord `json:"items"`
	Total int                `json:"total"`
}

// CreateSFC handles POST /sfc. The call returns once every hop is
// allocated or the chain has been rolled back.
func (s *Server) CreateSFC(c *gin.Context) {
	var req createSFCRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.chains.Submit(c.Request.Context(), req.Metadata, req.RequestType)
	if err != nil {
		var appErr *apperrors.AppError
		if res.Primary != nil && errors.As(err, &appErr) {
			params := map[string]interface{}{"sfc_id": res.Primary.ID}
			for k, v := range appErr.Params {
				params[k] = v
			}
			appErr.Params = params
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sfcResponse{
		Primary:            res.Primary,
		Complementary:      res.Complementary,
		ComplementaryError: res.ComplementaryError,
	})
}

// ListSFCs handles GET /sfc. Optional filters: status, limit.
func (s *Server) ListSFCs(c *gin.Context) {
	f := store.Filter{Status: domain.SFCStatus(c.Query("status"))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			_ = c.Error(apperrors.ErrInvalidRequestFieldf("limit"))
			return
		}
		f.Limit = limit
	}

	recs, err := s.chains.List(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if recs == nil {
		recs = []domain.SFCRecord{}
	}
	c.JSON(http.StatusOK, sfcList{Items: recs, Total: len(recs)})
}

// GetSFC handles GET /sfc/{id}.
func (s *Server) GetSFC(c *gin.Context) {
	rec, err := s.chains.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteSFC handles DELETE /sfc/{id}. Deleting a finished chain returns
// its record unchanged.
func (s *Server) DeleteSFC(c *gin.Context) {
	// Cleanup must finish once started, even if the caller goes away.
	ctx := context.WithoutCancel(c.Request.Context())
	id := c.Param("id")
	if err := s.chains.Cleanup(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}
	rec, err := s.chains.Get(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetSFCStats handles GET /sfc/stats.
func (s *Server) GetSFCStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.chains.Stats())
}
