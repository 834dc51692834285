package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/catams-api/internal/models"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

type courseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
}

// CourseService manages course offerings and lecturer assignments.
type CourseService struct {
	courses   courseStore
	users     timesheetUserStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the service.
func NewCourseService(courses courseStore, users timesheetUserStore, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{courses: courses, users: users, validator: validate, logger: logger}
}

// CreateCourseRequest is the payload for registering a course offering.
type CreateCourseRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	LecturerID string `json:"lecturerId" validate:"required"`
}

// Create registers a course offering. Admin only.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest, actor *models.JWTClaims) (*models.Course, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may register courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	lecturer, err := s.users.FindByID(ctx, req.LecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lecturer")
	}
	if lecturer.Role != models.RoleLecturer || !lecturer.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "courses must be assigned to an active lecturer")
	}

	course := &models.Course{
		Code:       req.Code,
		Name:       req.Name,
		LecturerID: req.LecturerID,
		Active:     true,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Course, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns courses. Lecturers are scoped to their own offerings.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter, actor *models.JWTClaims) ([]models.Course, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleLecturer {
		filter.LecturerID = actor.UserID
	}
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, total, nil
}
