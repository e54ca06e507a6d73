package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/application/service"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
	"github.com/oakcrm/quote-approval/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvalService service.ApprovalService
	workflowService service.WorkflowService
	exportService   service.ExportService
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	approvalService service.ApprovalService,
	workflowService service.WorkflowService,
	exportService service.ExportService,
	logger Logger,
) *Handlers {
	return &Handlers{
		approvalService: approvalService,
		workflowService: workflowService,
		exportService:   exportService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// respondError maps domain error kinds onto HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, approval.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, approval.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, approval.ErrInvalidState), errors.Is(err, approval.ErrInvalidStep):
		status = http.StatusConflict
	case errors.Is(err, approval.ErrValidation):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var wf approval.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	created, err := h.workflowService.CreateWorkflow(c.Request.Context(), &wf)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// UpdateWorkflow handles PUT /api/v1/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	var wf approval.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	wf.ID = c.Param("id")

	updated, err := h.workflowService.UpdateWorkflow(c.Request.Context(), &wf)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	wf, err := h.workflowService.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	workflows, err := h.workflowService.ListWorkflows(c.Request.Context(), activeOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: workflows})
}

// SetActiveRequest is the body of PATCH /api/v1/workflows/:id/active
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetWorkflowActive handles PATCH /api/v1/workflows/:id/active
func (h *Handlers) SetWorkflowActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	wf, err := h.workflowService.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// MatchWorkflowsRequest holds query parameters for workflow matching
type MatchWorkflowsRequest struct {
	Amount   float64 `form:"amount"`
	Category string  `form:"category"`
}

// MatchWorkflows handles GET /api/v1/workflows/match
func (h *Handlers) MatchWorkflows(c *gin.Context) {
	var req MatchWorkflowsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	workflows, err := h.workflowService.FindApplicable(c.Request.Context(), req.Amount, req.Category)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: workflows})
}

// RequestApprovalRequest is the body of POST /api/v1/approvals
type RequestApprovalRequest struct {
	QuoteID     string     `json:"quote_id" binding:"required"`
	WorkflowID  string     `json:"workflow_id" binding:"required"`
	RequestedBy string     `json:"requested_by" binding:"required"`
	TotalAmount float64    `json:"total_amount"`
	Priority    string     `json:"priority"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// RequestApproval handles POST /api/v1/approvals
func (h *Handlers) RequestApproval(c *gin.Context) {
	var req RequestApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if err := utils.ValidateAmount(req.TotalAmount); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	if err := utils.ValidatePriority(req.Priority); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	a, err := h.approvalService.RequestApproval(c.Request.Context(), service.RequestInput{
		QuoteID:     req.QuoteID,
		WorkflowID:  req.WorkflowID,
		RequestedBy: req.RequestedBy,
		TotalAmount: req.TotalAmount,
		Priority:    req.Priority,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: a})
}

// GetApproval handles GET /api/v1/approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	a, err := h.approvalService.GetApproval(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: a})
}

// ListApprovalsRequest holds query parameters for listing approvals
type ListApprovalsRequest struct {
	Status  string `form:"status"`
	QuoteID string `form:"quote_id"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

// ListApprovals handles GET /api/v1/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	var req ListApprovalsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	approvals, err := h.approvalService.ListApprovals(c.Request.Context(), port.ApprovalFilter{
		Status:  approval.Status(req.Status),
		QuoteID: req.QuoteID,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: approvals})
}

// ListPendingApprovals handles GET /api/v1/approvals/pending
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	approverID := c.Query("approver_id")
	if approverID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "approver_id is required"})
		return
	}

	approvals, err := h.approvalService.ListPendingForApprover(c.Request.Context(), approverID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: approvals})
}

// RecordActionRequest is the body of POST /api/v1/approvals/:id/actions
type RecordActionRequest struct {
	StepID     string `json:"step_id" binding:"required"`
	ApproverID string `json:"approver_id" binding:"required"`
	Action     string `json:"action" binding:"required"`
	Comments   string `json:"comments"`
}

// RecordAction handles POST /api/v1/approvals/:id/actions
func (h *Handlers) RecordAction(c *gin.Context) {
	var req RecordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	a, err := h.approvalService.RecordAction(
		c.Request.Context(),
		c.Param("id"),
		req.StepID,
		req.ApproverID,
		approval.Decision(req.Action),
		utils.SanitizeString(req.Comments),
	)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: a})
}

// SkipStepRequest is the body of POST /api/v1/approvals/:id/steps/:step_id/skip
type SkipStepRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

// SkipStep handles POST /api/v1/approvals/:id/steps/:step_id/skip
func (h *Handlers) SkipStep(c *gin.Context) {
	var req SkipStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	a, err := h.approvalService.SkipStep(
		c.Request.Context(),
		c.Param("id"),
		c.Param("step_id"),
		req.ActorID,
		utils.SanitizeString(req.Reason),
	)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: a})
}

// CancelApprovalRequest is the body of POST /api/v1/approvals/:id/cancel
type CancelApprovalRequest struct {
	Reason      string `json:"reason" binding:"required"`
	CancelledBy string `json:"cancelled_by" binding:"required"`
}

// CancelApproval handles POST /api/v1/approvals/:id/cancel
func (h *Handlers) CancelApproval(c *gin.Context) {
	var req CancelApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	a, err := h.approvalService.CancelApproval(
		c.Request.Context(),
		c.Param("id"),
		utils.SanitizeString(req.Reason),
		req.CancelledBy,
	)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: a})
}

// ExportHistory handles GET /api/v1/approvals/:id/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	data, filename, err := h.exportService.ExportHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
