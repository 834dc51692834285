package dto

import (
	"time"

	"github.com/noah-isme/catams-api/internal/models"
)

// CreateTimesheetRequest payload for lodging a new weekly claim.
type CreateTimesheetRequest struct {
	TutorID       string  `json:"tutorId" validate:"required"`
	CourseID      string  `json:"courseId" validate:"required"`
	WeekStartDate string  `json:"weekStartDate" validate:"required"` // YYYY-MM-DD, must be a Monday
	Hours         float64 `json:"hours" validate:"required"`
	HourlyRate    float64 `json:"hourlyRate" validate:"required"`
	Description   string  `json:"description" validate:"required"`
}

// UpdateTimesheetRequest payload for editing an editable claim. Saving an edit
// on a rejected or modification-requested timesheet resets it to draft.
type UpdateTimesheetRequest struct {
	Hours       float64 `json:"hours" validate:"required"`
	HourlyRate  float64 `json:"hourlyRate" validate:"required"`
	Description string  `json:"description" validate:"required"`
}

// PerformActionRequest captures an approval workflow action.
type PerformActionRequest struct {
	Action  models.ApprovalAction `json:"action" validate:"required"`
	Comment string                `json:"comment"`
}

// TimesheetQuery mirrors supported listing filters.
type TimesheetQuery struct {
	TutorID   string
	CourseID  string
	Status    []models.TimesheetStatus
	WeekStart *time.Time
	Page      int
	PageSize  int
}

// AllowedActionsResponse lists the actions the caller may take right now.
type AllowedActionsResponse struct {
	TimesheetID string                  `json:"timesheet_id"`
	Status      models.TimesheetStatus  `json:"status"`
	Actions     []models.ApprovalAction `json:"actions"`
}

// DashboardSummaryResponse is the per-role pending-queue summary.
type DashboardSummaryResponse struct {
	Role        models.UserRole                `json:"role"`
	Counts      map[models.TimesheetStatus]int `json:"counts"`
	Total       int                            `json:"total"`
	GeneratedAt time.Time                      `json:"generated_at"`
}
