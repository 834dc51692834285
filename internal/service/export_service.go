package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/repository"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
	"github.com/noah-isme/catams-api/pkg/export"
)

var registerHeaders = []string{"Timesheet ID", "Tutor", "Course", "Week Starting", "Hours", "Hourly Rate", "Total Pay", "Status"}

type exportStore interface {
	ListForExport(ctx context.Context, statuses []models.TimesheetStatus, courseID string) ([]repository.ExportRow, error)
}

// ExportService renders the timesheet register as CSV or PDF. HR and admins
// export across all courses; lecturers only their own.
type ExportService struct {
	timesheets exportStore
	courses    timesheetCourseStore
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	logger     *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(timesheets exportStore, courses timesheetCourseStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		timesheets: timesheets,
		courses:    courses,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
	}
}

// RegisterCSV renders the register as CSV.
func (s *ExportService) RegisterCSV(ctx context.Context, statuses []models.TimesheetStatus, courseID string, actor *models.JWTClaims) ([]byte, error) {
	dataset, err := s.dataset(ctx, statuses, courseID, actor)
	if err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(*dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
	}
	return payload, nil
}

// RegisterPDF renders the register as a tabular PDF.
func (s *ExportService) RegisterPDF(ctx context.Context, statuses []models.TimesheetStatus, courseID string, actor *models.JWTClaims) ([]byte, error) {
	dataset, err := s.dataset(ctx, statuses, courseID, actor)
	if err != nil {
		return nil, err
	}
	payload, err := s.pdf.Render(*dataset, "Timesheet Register")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
	}
	return payload, nil
}

func (s *ExportService) dataset(ctx context.Context, statuses []models.TimesheetStatus, courseID string, actor *models.JWTClaims) (*export.Dataset, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	for _, status := range statuses {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter "+string(status))
		}
	}

	switch actor.Role {
	case models.RoleHR, models.RoleAdmin:
	case models.RoleLecturer:
		if courseID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "lecturers must export one of their courses")
		}
		course, err := s.courses.FindByID(ctx, courseID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course not found")
		}
		if course.LecturerID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "lecturer is not assigned to this course")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, string(actor.Role)+" may not export the register")
	}

	rows, err := s.timesheets.ListForExport(ctx, statuses, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export rows")
	}

	dataset := &export.Dataset{Headers: registerHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Timesheet ID":  row.TimesheetID,
			"Tutor":         row.TutorName,
			"Course":        row.CourseCode,
			"Week Starting": row.WeekStart.Format("2006-01-02"),
			"Hours":         strconv.FormatFloat(row.Hours, 'f', 1, 64),
			"Hourly Rate":   fmt.Sprintf("%.2f", row.HourlyRate),
			"Total Pay":     fmt.Sprintf("%.2f", row.TotalPay),
			"Status":        row.Status,
		})
	}
	return dataset, nil
}
