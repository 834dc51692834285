package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/catams-api/internal/models"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

// Rules holds the configurable field-level bounds for timesheet claims. The
// zero value is unusable; construct via NewRules so defaults apply. Bounds are
// injected from configuration rather than read from a global holder.
type Rules struct {
	MinHours             float64
	MaxHours             float64
	MinHourlyRate        float64
	MaxHourlyRate        float64
	MaxDescriptionLength int
	Currency             string
}

// NewRules applies defaults for unset bounds.
func NewRules(r Rules) Rules {
	if r.MinHours <= 0 {
		r.MinHours = 0.1
	}
	if r.MaxHours <= 0 {
		r.MaxHours = 40.0
	}
	if r.MinHourlyRate <= 0 {
		r.MinHourlyRate = 0.01
	}
	if r.MaxHourlyRate <= 0 {
		r.MaxHourlyRate = 200.0
	}
	if r.MaxDescriptionLength <= 0 {
		r.MaxDescriptionLength = 1000
	}
	if r.Currency == "" {
		r.Currency = "AUD"
	}
	return r
}

// Validate re-checks the value-level invariants of a timesheet. It is applied
// on every create and update, independently of workflow legality.
func (r Rules) Validate(t *models.Timesheet) error {
	if t.TutorID == "" || t.CourseID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "tutorId and courseId are required")
	}
	if t.WeekStartDate.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "weekStartDate is required")
	}
	if t.WeekStartDate.Weekday() != time.Monday {
		return appErrors.Clone(appErrors.ErrValidation, "weekStartDate must be a Monday")
	}
	if t.Hours < r.MinHours || t.Hours > r.MaxHours {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("hours must be between %.2f and %.2f", r.MinHours, r.MaxHours))
	}
	if t.HourlyRate < r.MinHourlyRate || t.HourlyRate > r.MaxHourlyRate {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("hourlyRate must be between %.2f and %.2f", r.MinHourlyRate, r.MaxHourlyRate))
	}
	if t.Currency != "" && t.Currency != r.Currency {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported currency "+t.Currency)
	}
	if strings.TrimSpace(t.Description) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "description is required")
	}
	if len(t.Description) > r.MaxDescriptionLength {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("description exceeds %d characters", r.MaxDescriptionLength))
	}
	return nil
}

// BlankComment reports whether the comment fails the non-blank requirement.
func BlankComment(comment string) bool {
	return strings.TrimSpace(comment) == ""
}
