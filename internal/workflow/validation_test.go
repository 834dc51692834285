package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/catams-api/internal/models"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

func monday() time.Time {
	return time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
}

func validTimesheet() *models.Timesheet {
	return &models.Timesheet{
		TutorID:       "tutor-1",
		CourseID:      "course-1",
		WeekStartDate: monday(),
		Hours:         10,
		HourlyRate:    45.50,
		Description:   "Tutorials and marking",
	}
}

func TestRulesDefaults(t *testing.T) {
	r := NewRules(Rules{})
	require.Equal(t, 40.0, r.MaxHours)
	require.Equal(t, 200.0, r.MaxHourlyRate)
	require.Equal(t, 1000, r.MaxDescriptionLength)
	require.Equal(t, "AUD", r.Currency)
}

func TestRulesValidateAcceptsValidTimesheet(t *testing.T) {
	r := NewRules(Rules{})
	require.NoError(t, r.Validate(validTimesheet()))
}

func TestRulesValidateRejections(t *testing.T) {
	r := NewRules(Rules{})

	cases := map[string]func(*models.Timesheet){
		"hours above bound":     func(ts *models.Timesheet) { ts.Hours = 45.0 },
		"hours below bound":     func(ts *models.Timesheet) { ts.Hours = 0 },
		"rate above bound":      func(ts *models.Timesheet) { ts.HourlyRate = 500 },
		"rate below bound":      func(ts *models.Timesheet) { ts.HourlyRate = 0 },
		"week start not monday": func(ts *models.Timesheet) { ts.WeekStartDate = monday().AddDate(0, 0, 1) },
		"blank description":     func(ts *models.Timesheet) { ts.Description = "   " },
		"description too long":  func(ts *models.Timesheet) { ts.Description = strings.Repeat("x", 1001) },
		"missing tutor":         func(ts *models.Timesheet) { ts.TutorID = "" },
		"foreign currency":      func(ts *models.Timesheet) { ts.Currency = "USD" },
	}
	for name, mutate := range cases {
		ts := validTimesheet()
		mutate(ts)
		err := r.Validate(ts)
		require.Error(t, err, name)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, name)
	}
}

func TestBlankComment(t *testing.T) {
	require.True(t, BlankComment(""))
	require.True(t, BlankComment("  \t "))
	require.False(t, BlankComment("too few hours claimed"))
}
