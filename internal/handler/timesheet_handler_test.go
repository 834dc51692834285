package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/service"
)

func listContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, rec
}

func TestTimesheetHandlerListRejectsUnknownStatus(t *testing.T) {
	handler := NewTimesheetHandler(service.NewTimesheetService(service.TimesheetServiceParams{}))

	c, rec := listContext("/timesheets?status=ARCHIVED")
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimesheetHandlerListRejectsBadWeekStart(t *testing.T) {
	handler := NewTimesheetHandler(service.NewTimesheetService(service.TimesheetServiceParams{}))

	c, rec := listContext("/timesheets?week_start=03-2026-02")
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseTimesheetQuery(t *testing.T) {
	c, _ := listContext("/timesheets?tutor_id=tutor-1&status=DRAFT,REJECTED&week_start=2026-03-02&page=2&page_size=10")

	query, err := parseTimesheetQuery(c)
	require.NoError(t, err)
	assert.Equal(t, "tutor-1", query.TutorID)
	assert.Equal(t, []models.TimesheetStatus{models.StatusDraft, models.StatusRejected}, query.Status)
	require.NotNil(t, query.WeekStart)
	assert.Equal(t, "2026-03-02", query.WeekStart.Format("2006-01-02"))
	assert.Equal(t, 2, query.Page)
	assert.Equal(t, 10, query.PageSize)
}
