package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/catams-api/internal/dto"
	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/service"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
	"github.com/noah-isme/catams-api/pkg/response"
)

// TimesheetHandler wires HTTP endpoints to the timesheet lifecycle service.
type TimesheetHandler struct {
	service *service.TimesheetService
}

// NewTimesheetHandler creates a new handler.
func NewTimesheetHandler(svc *service.TimesheetService) *TimesheetHandler {
	return &TimesheetHandler{service: svc}
}

// Create godoc
// @Summary Lodge a timesheet
// @Description Create a new draft timesheet for a tutor, course and week
// @Tags Timesheets
// @Accept json
// @Produce json
// @Param payload body dto.CreateTimesheetRequest true "Timesheet payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timesheets [post]
func (h *TimesheetHandler) Create(c *gin.Context) {
	var req dto.CreateTimesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timesheet payload"))
		return
	}

	timesheet, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, timesheet)
}

// Get godoc
// @Summary Get a timesheet
// @Description Fetch one timesheet with its approval trail
// @Tags Timesheets
// @Produce json
// @Param id path string true "Timesheet ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timesheets/{id} [get]
func (h *TimesheetHandler) Get(c *gin.Context) {
	timesheet, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, timesheet, nil)
}

// List godoc
// @Summary List timesheets
// @Description List timesheets visible to the caller, filtered and paginated
// @Tags Timesheets
// @Produce json
// @Param tutor_id query string false "Tutor filter"
// @Param course_id query string false "Course filter"
// @Param status query string false "Comma-separated status filter"
// @Param week_start query string false "Week start date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timesheets [get]
func (h *TimesheetHandler) List(c *gin.Context) {
	query, err := parseTimesheetQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	timesheets, total, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	if pagination.Page < 1 {
		pagination.Page = 1
	}
	if pagination.PageSize <= 0 {
		pagination.PageSize = 20
	}
	response.JSON(c, http.StatusOK, timesheets, pagination)
}

// Update godoc
// @Summary Edit a timesheet
// @Description Edit an editable timesheet; editing a rejected or modification-requested claim resets it to draft
// @Tags Timesheets
// @Accept json
// @Produce json
// @Param id path string true "Timesheet ID"
// @Param payload body dto.UpdateTimesheetRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timesheets/{id} [put]
func (h *TimesheetHandler) Update(c *gin.Context) {
	var req dto.UpdateTimesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timesheet payload"))
		return
	}

	timesheet, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, timesheet, nil)
}

// Delete godoc
// @Summary Delete a draft timesheet
// @Description Delete a draft timesheet that has never entered the workflow
// @Tags Timesheets
// @Produce json
// @Param id path string true "Timesheet ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timesheets/{id} [delete]
func (h *TimesheetHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

func parseTimesheetQuery(c *gin.Context) (dto.TimesheetQuery, error) {
	query := dto.TimesheetQuery{
		TutorID:  c.Query("tutor_id"),
		CourseID: c.Query("course_id"),
	}

	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.TimesheetStatus(strings.TrimSpace(part))
			if !status.Valid() {
				return query, appErrors.Clone(appErrors.ErrValidation, "unknown status filter "+string(status))
			}
			query.Status = append(query.Status, status)
		}
	}
	if raw := c.Query("week_start"); raw != "" {
		weekStart, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "week_start must be formatted YYYY-MM-DD")
		}
		query.WeekStart = &weekStart
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "page must be an integer")
		}
		query.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "page_size must be an integer")
		}
		query.PageSize = size
	}
	return query, nil
}
