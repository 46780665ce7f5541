package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/services"
)

// listApprovals handles GET /api/v1/approvals?project=&status=&limit=.
func (s *Server) listApprovals(c *gin.Context) {
	project := c.Query("project")
	status := models.ApprovalStatus(c.Query("status"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortBadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	approvals, err := s.deps.Approvals.List(c.Request.Context(), project, status, limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[models.Approval]{Items: approvals, Count: len(approvals)})
}

// getApproval handles GET /api/v1/approvals/:id.
func (s *Server) getApproval(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortBadRequest(c, "id must be an integer")
		return
	}
	approval, err := s.deps.Approvals.GetByID(c.Request.Context(), id)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, approval)
}

// approvalPreview handles GET /api/v1/approvals/:id/preview.
func (s *Server) approvalPreview(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortBadRequest(c, "id must be an integer")
		return
	}
	approval, err := s.deps.Approvals.GetByID(c.Request.Context(), id)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, previewResponse{
		ID:      approval.ID,
		Preview: services.FormatPreview(approval),
	})
}

// approvalStats handles GET /api/v1/approvals/stats?project=.
func (s *Server) approvalStats(c *gin.Context) {
	stats, err := s.deps.Approvals.GetStats(c.Request.Context(), c.Query("project"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
