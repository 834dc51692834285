package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/service"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
	"github.com/noah-isme/catams-api/pkg/response"
)

// ExportHandler serves the timesheet register downloads.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Register godoc
// @Summary Export the timesheet register
// @Description Download the timesheet register as CSV or PDF
// @Tags Exports
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Comma-separated status filter"
// @Param course_id query string false "Course filter"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exports/timesheets [get]
func (h *ExportHandler) Register(c *gin.Context) {
	var statuses []models.TimesheetStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, models.TimesheetStatus(strings.TrimSpace(part)))
		}
	}
	courseID := c.Query("course_id")
	claims := claimsFromContext(c)
	stamp := time.Now().UTC().Format("20060102-150405")

	switch strings.ToLower(c.DefaultQuery("format", "csv")) {
	case "csv":
		payload, err := h.service.RegisterCSV(c.Request.Context(), statuses, courseID, claims)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=timesheet-register-%s.csv", stamp))
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.service.RegisterPDF(c.Request.Context(), statuses, courseID, claims)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=timesheet-register-%s.pdf", stamp))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}
