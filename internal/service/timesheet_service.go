package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/catams-api/internal/dto"
	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/repository"
	"github.com/noah-isme/catams-api/internal/workflow"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

type timesheetStore interface {
	Create(ctx context.Context, timesheet *models.Timesheet) error
	GetByID(ctx context.Context, id string) (*models.Timesheet, error)
	GetWithApprovals(ctx context.Context, id string) (*models.Timesheet, error)
	List(ctx context.Context, filter models.TimesheetFilter) ([]models.Timesheet, int, error)
	UpdateFields(ctx context.Context, params repository.UpdateFieldsParams) error
	Delete(ctx context.Context, id string) error
}

type timesheetCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type timesheetUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// TimesheetService owns the timesheet lifecycle outside the approval
// workflow: creation, owner edits (including the draft reset), listing with
// role scoping, and deletion of untouched drafts.
type TimesheetService struct {
	timesheets timesheetStore
	courses    timesheetCourseStore
	users      timesheetUserStore
	rules      workflow.Rules
	validator  *validator.Validate
	audit      auditLogger
	dashboards dashboardInvalidator
	logger     *zap.Logger
	now        func() time.Time
}

// TimesheetServiceParams groups constructor dependencies.
type TimesheetServiceParams struct {
	Timesheets timesheetStore
	Courses    timesheetCourseStore
	Users      timesheetUserStore
	Rules      workflow.Rules
	Validator  *validator.Validate
	Audit      auditLogger
	Dashboards dashboardInvalidator
	Logger     *zap.Logger
}

// NewTimesheetService constructs the service.
func NewTimesheetService(params TimesheetServiceParams) *TimesheetService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &TimesheetService{
		timesheets: params.Timesheets,
		courses:    params.Courses,
		users:      params.Users,
		rules:      workflow.NewRules(params.Rules),
		validator:  validate,
		audit:      params.Audit,
		dashboards: params.Dashboards,
		logger:     logger,
		now:        time.Now,
	}
}

// Create lodges a new draft timesheet. Tutors may only lodge for themselves;
// lecturers and admins may lodge on behalf of a tutor for courses they manage.
func (s *TimesheetService) Create(ctx context.Context, req dto.CreateTimesheetRequest, actor *models.JWTClaims) (*models.Timesheet, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timesheet payload")
	}

	weekStart, err := time.ParseInLocation("2006-01-02", req.WeekStartDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekStartDate must be formatted YYYY-MM-DD")
	}

	switch actor.Role {
	case models.RoleTutor:
		if req.TutorID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "tutors may only lodge their own timesheets")
		}
	case models.RoleLecturer, models.RoleAdmin:
		// lecturer course assignment is verified below
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, string(actor.Role)+" may not lodge timesheets")
	}

	tutor, err := s.users.FindByID(ctx, req.TutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve tutor")
	}
	if tutor.Role != models.RoleTutor || !tutor.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timesheets can only be lodged for active tutors")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not active")
	}
	if actor.Role == models.RoleLecturer && course.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lecturer is not assigned to this course")
	}

	timesheet := &models.Timesheet{
		TutorID:       req.TutorID,
		CourseID:      req.CourseID,
		WeekStartDate: weekStart,
		Hours:         req.Hours,
		HourlyRate:    req.HourlyRate,
		Currency:      s.rules.Currency,
		Description:   req.Description,
		Status:        models.StatusDraft,
		CreatedBy:     actor.UserID,
	}
	if err := s.rules.Validate(timesheet); err != nil {
		return nil, err
	}
	if err := s.timesheets.Create(ctx, timesheet); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionTimesheetCreate, timesheet.ID)
	s.invalidate(ctx)
	return timesheet, nil
}

// Get returns a timesheet with its approval trail, scoped to the caller.
func (s *TimesheetService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Timesheet, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	timesheet, err := s.timesheets.GetWithApprovals(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timesheet")
	}
	if err := s.scopeRead(ctx, timesheet, actor); err != nil {
		return nil, err
	}
	return timesheet, nil
}

// List returns timesheets visible to the caller: tutors see their own,
// lecturers see their courses, HR and admins see everything.
func (s *TimesheetService) List(ctx context.Context, query dto.TimesheetQuery, actor *models.JWTClaims) ([]models.Timesheet, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}

	filter := models.TimesheetFilter{
		TutorID:   query.TutorID,
		CourseID:  query.CourseID,
		Status:    query.Status,
		WeekStart: query.WeekStart,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}

	switch actor.Role {
	case models.RoleTutor:
		filter.TutorID = actor.UserID
	case models.RoleLecturer:
		if filter.CourseID == "" {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "lecturers must filter by one of their courses")
		}
		course, err := s.courses.FindByID(ctx, filter.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, 0, appErrors.Clone(appErrors.ErrValidation, "course not found")
			}
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course")
		}
		if course.LecturerID != actor.UserID {
			return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "lecturer is not assigned to this course")
		}
	case models.RoleHR, models.RoleAdmin:
		// unrestricted
	default:
		return nil, 0, appErrors.ErrForbidden
	}

	return s.timesheets.List(ctx, filter)
}

// Update edits an editable timesheet. An edit on a rejected or
// modification-requested claim resets it to draft and supersedes the trail;
// the full history stays queryable.
func (s *TimesheetService) Update(ctx context.Context, id string, req dto.UpdateTimesheetRequest, actor *models.JWTClaims) (*models.Timesheet, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timesheet payload")
	}

	timesheet, err := s.timesheets.GetWithApprovals(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timesheet")
	}
	if err := s.scopeWrite(timesheet, actor); err != nil {
		return nil, err
	}
	if !timesheet.IsEditable() {
		return nil, appErrors.Clone(appErrors.ErrNotEditable,
			"timesheet in status "+string(timesheet.Status)+" cannot be edited")
	}

	now := s.now().UTC()
	expectedVersion := timesheet.Version
	resetting := timesheet.Status != models.StatusDraft

	timesheet.Hours = req.Hours
	timesheet.HourlyRate = req.HourlyRate
	timesheet.Description = req.Description
	if err := s.rules.Validate(timesheet); err != nil {
		return nil, err
	}
	if resetting {
		if err := timesheet.ResetToDraft(now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset timesheet")
		}
	} else {
		timesheet.UpdatedAt = now
	}

	err = s.timesheets.UpdateFields(ctx, repository.UpdateFieldsParams{
		TimesheetID:     timesheet.ID,
		ExpectedVersion: expectedVersion,
		Hours:           timesheet.Hours,
		HourlyRate:      timesheet.HourlyRate,
		Description:     timesheet.Description,
		Status:          timesheet.Status,
		UpdatedAt:       now,
		SupersedeTrail:  resetting,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "timesheet was modified concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timesheet")
	}
	timesheet.Version = expectedVersion + 1

	s.emitAudit(ctx, actor.UserID, models.AuditActionTimesheetUpdate, timesheet.ID)
	s.invalidate(ctx)
	return timesheet, nil
}

// Delete removes a draft timesheet that has never entered the workflow.
func (s *TimesheetService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	timesheet, err := s.timesheets.GetWithApprovals(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timesheet")
	}
	if err := s.scopeWrite(timesheet, actor); err != nil {
		return err
	}
	if !timesheet.CanDelete() {
		return appErrors.Clone(appErrors.ErrNotEditable,
			"only draft timesheets with no approval history can be deleted")
	}
	if err := s.timesheets.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timesheet")
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionTimesheetDelete, id)
	s.invalidate(ctx)
	return nil
}

func (s *TimesheetService) scopeRead(ctx context.Context, timesheet *models.Timesheet, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleTutor:
		if timesheet.TutorID != actor.UserID {
			return appErrors.ErrForbidden
		}
	case models.RoleLecturer:
		course, err := s.courses.FindByID(ctx, timesheet.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrForbidden
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course")
		}
		if course.LecturerID != actor.UserID {
			return appErrors.ErrForbidden
		}
	case models.RoleHR, models.RoleAdmin:
	default:
		return appErrors.ErrForbidden
	}
	return nil
}

// scopeWrite restricts edits and deletes to the owning tutor, with admin
// override for corrections.
func (s *TimesheetService) scopeWrite(timesheet *models.Timesheet, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleTutor:
		if timesheet.TutorID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the owning tutor may modify this timesheet")
		}
	case models.RoleAdmin:
	default:
		return appErrors.Clone(appErrors.ErrForbidden, string(actor.Role)+" may not modify timesheets")
	}
	return nil
}

func (s *TimesheetService) emitAudit(ctx context.Context, userID, action, timesheetID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "timesheet",
		ResourceID: &timesheetID,
		IPAddress:  "system",
		UserAgent:  "timesheet-service",
	}); err != nil {
		s.logger.Warn("failed to persist timesheet audit log", zap.Error(err))
	}
}

func (s *TimesheetService) invalidate(ctx context.Context) {
	if s.dashboards != nil {
		s.dashboards.InvalidateSummaries(ctx)
	}
}
