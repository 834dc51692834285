package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/catams-api/internal/dto"
	"github.com/noah-isme/catams-api/internal/service"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
	"github.com/noah-isme/catams-api/pkg/response"
)

// ApprovalHandler wires HTTP endpoints to the approval workflow service.
type ApprovalHandler struct {
	service *service.ApprovalService
}

// NewApprovalHandler creates a new handler.
func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: svc}
}

// PerformAction godoc
// @Summary Perform a workflow action
// @Description Execute one approval action (submit, approve, final approval, reject, request modification) on a timesheet
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Timesheet ID"
// @Param payload body dto.PerformActionRequest true "Action payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timesheets/{id}/actions [post]
func (h *ApprovalHandler) PerformAction(c *gin.Context) {
	var req dto.PerformActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action payload"))
		return
	}

	record, err := h.service.PerformAction(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// AllowedActions godoc
// @Summary List allowed actions
// @Description Report which workflow actions the caller may take on the timesheet right now
// @Tags Approvals
// @Produce json
// @Param id path string true "Timesheet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timesheets/{id}/actions [get]
func (h *ApprovalHandler) AllowedActions(c *gin.Context) {
	res, err := h.service.AllowedActions(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// History godoc
// @Summary Get the approval trail
// @Description Return the full ordered approval history of a timesheet, superseded records included
// @Tags Approvals
// @Produce json
// @Param id path string true "Timesheet ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timesheets/{id}/history [get]
func (h *ApprovalHandler) History(c *gin.Context) {
	trail, err := h.service.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, trail, nil)
}
