package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/catams-api/internal/dto"
	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/repository"
	"github.com/noah-isme/catams-api/internal/workflow"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

// SystemComment is attached to the system-attributed follow-up record created
// by the dual-approval auto-transition.
const SystemComment = "Automatically queued for HR review after dual approval"

type approvalTimesheetStore interface {
	GetWithApprovals(ctx context.Context, id string) (*models.Timesheet, error)
	CommitTransition(ctx context.Context, params repository.CommitTransitionParams) error
}

type approvalIdentityStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type approvalCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// TransitionEvent describes a committed transition for downstream consumers.
type TransitionEvent struct {
	TimesheetID string
	TutorID     string
	CourseID    string
	Action      models.ApprovalAction
	ActorID     string
	NewStatus   models.TimesheetStatus
	At          time.Time
}

// TransitionNotifier fans a committed transition out to interested parties.
// Failures must not affect the already-committed transaction.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, event TransitionEvent)
}

type transitionObserver interface {
	ObserveTransition(action, toStatus string)
}

type dashboardInvalidator interface {
	InvalidateSummaries(ctx context.Context)
}

// ApprovalService is the single entry point for workflow actions: it resolves
// the actor, gates the action by role and ownership, executes the transition
// through the aggregate, and commits status plus audit records atomically.
type ApprovalService struct {
	timesheets approvalTimesheetStore
	users      approvalIdentityStore
	courses    approvalCourseStore
	table      *workflow.Table
	audit      auditLogger
	notifier   TransitionNotifier
	metrics    transitionObserver
	dashboards dashboardInvalidator
	logger     *zap.Logger
	now        func() time.Time
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ApprovalServiceParams groups constructor dependencies.
type ApprovalServiceParams struct {
	Timesheets approvalTimesheetStore
	Users      approvalIdentityStore
	Courses    approvalCourseStore
	Table      *workflow.Table
	Audit      auditLogger
	Notifier   TransitionNotifier
	Metrics    transitionObserver
	Dashboards dashboardInvalidator
	Logger     *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(params ApprovalServiceParams) *ApprovalService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	table := params.Table
	if table == nil {
		table = workflow.NewTable()
	}
	return &ApprovalService{
		timesheets: params.Timesheets,
		users:      params.Users,
		courses:    params.Courses,
		table:      table,
		audit:      params.Audit,
		notifier:   params.Notifier,
		metrics:    params.Metrics,
		dashboards: params.Dashboards,
		logger:     logger,
		now:        time.Now,
	}
}

// PerformAction executes one workflow action against a timesheet and returns
// the primary approval record. When the transition lands on the dual-approval
// state the system follow-up hop into the HR queue commits in the same
// transaction; only the primary record is returned.
func (s *ApprovalService) PerformAction(ctx context.Context, timesheetID string, req dto.PerformActionRequest, actor *models.JWTClaims) (*models.ApprovalRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !req.Action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown approval action")
	}

	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "actor is not a known user")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve actor")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "actor account is inactive")
	}

	timesheet, err := s.timesheets.GetWithApprovals(ctx, timesheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timesheet")
	}

	// Role gating and status legality are independent checks; the permission
	// failure is reported before the transition is even attempted.
	if err := s.authorize(ctx, user, timesheet, req.Action); err != nil {
		return nil, err
	}

	if s.table.CommentRequired(req.Action) && workflow.BlankComment(req.Comment) {
		return nil, appErrors.Clone(appErrors.ErrMissingComment,
			string(req.Action)+" requires a non-blank comment")
	}

	target, err := s.table.TargetStatus(timesheet.Status, req.Action)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expectedVersion := timesheet.Version

	primary := models.ApprovalRecord{
		ID:             uuid.NewString(),
		TimesheetID:    timesheet.ID,
		ApproverID:     user.ID,
		Action:         req.Action,
		PreviousStatus: timesheet.Status,
		NewStatus:      target,
		Comment:        optionalComment(req.Comment),
		CreatedAt:      now,
	}
	if err := timesheet.ApplyTransition(primary); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}
	records := []models.ApprovalRecord{*timesheet.LastApproval()}

	// The only multi-hop transition: full dual-party approval immediately
	// queues the timesheet for HR review, attributed to the same actor.
	if followUp, ok := s.table.AutoFollowUp(timesheet.Status); ok {
		system := models.ApprovalRecord{
			ID:             uuid.NewString(),
			TimesheetID:    timesheet.ID,
			ApproverID:     user.ID,
			Action:         req.Action,
			PreviousStatus: timesheet.Status,
			NewStatus:      followUp,
			Comment:        optionalComment(SystemComment),
			CreatedAt:      now,
		}
		if err := timesheet.ApplyTransition(system); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply follow-up transition")
		}
		records = append(records, *timesheet.LastApproval())
	}

	commit := repository.CommitTransitionParams{
		TimesheetID:     timesheet.ID,
		ExpectedVersion: expectedVersion,
		NewStatus:       timesheet.Status,
		UpdatedAt:       now,
		Records:         records,
	}
	if err := s.timesheets.CommitTransition(ctx, commit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "timesheet was modified concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transition")
	}
	timesheet.Version = expectedVersion + 1

	s.afterCommit(ctx, user, timesheet, records)
	return &records[0], nil
}

// AllowedActions reports which actions the actor may take on the timesheet
// right now, combining status legality, role gating and ownership.
func (s *ApprovalService) AllowedActions(ctx context.Context, timesheetID string, actor *models.JWTClaims) (*dto.AllowedActionsResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	timesheet, err := s.timesheets.GetWithApprovals(ctx, timesheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timesheet")
	}
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil || !user.Active {
		return &dto.AllowedActionsResponse{TimesheetID: timesheet.ID, Status: timesheet.Status}, nil
	}

	candidates := s.table.AllowedActions(timesheet.Status, user.Role)
	actions := make([]models.ApprovalAction, 0, len(candidates))
	for _, action := range candidates {
		if err := s.authorize(ctx, user, timesheet, action); err == nil {
			actions = append(actions, action)
		}
	}
	return &dto.AllowedActionsResponse{
		TimesheetID: timesheet.ID,
		Status:      timesheet.Status,
		Actions:     actions,
	}, nil
}

// History returns the ordered approval trail.
func (s *ApprovalService) History(ctx context.Context, timesheetID string, actor *models.JWTClaims) ([]models.ApprovalRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	timesheet, err := s.timesheets.GetWithApprovals(ctx, timesheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timesheet")
	}
	if actor.Role == models.RoleTutor && timesheet.TutorID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return timesheet.Approvals, nil
}

// authorize enforces role gating plus the ownership rules tying the actor to
// this specific timesheet or course. Admins override course assignment; HR
// operates across courses for its gated actions.
func (s *ApprovalService) authorize(ctx context.Context, user *models.User, timesheet *models.Timesheet, action models.ApprovalAction) error {
	if !s.table.RoleAllowed(user.Role, action) {
		return appErrors.Clone(appErrors.ErrForbidden,
			string(user.Role)+" may not perform "+string(action))
	}

	switch user.Role {
	case models.RoleTutor:
		if timesheet.TutorID != user.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the owning tutor may act on this timesheet")
		}
	case models.RoleLecturer:
		course, err := s.courses.FindByID(ctx, timesheet.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		if course.LecturerID != user.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "lecturer is not assigned to this course")
		}
	case models.RoleHR, models.RoleAdmin:
		// no ownership constraint
	default:
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *ApprovalService) afterCommit(ctx context.Context, user *models.User, timesheet *models.Timesheet, records []models.ApprovalRecord) {
	for _, rec := range records {
		if s.metrics != nil {
			s.metrics.ObserveTransition(string(rec.Action), string(rec.NewStatus))
		}
	}
	if s.dashboards != nil {
		s.dashboards.InvalidateSummaries(ctx)
	}
	if s.notifier != nil {
		last := records[len(records)-1]
		s.notifier.NotifyTransition(ctx, TransitionEvent{
			TimesheetID: timesheet.ID,
			TutorID:     timesheet.TutorID,
			CourseID:    timesheet.CourseID,
			Action:      records[0].Action,
			ActorID:     user.ID,
			NewStatus:   last.NewStatus,
			At:          last.CreatedAt,
		})
	}
	if s.audit != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"action":     records[0].Action,
			"new_status": timesheet.Status,
			"records":    len(records),
		})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &user.ID,
			Action:     models.AuditActionApprovalDecision,
			Resource:   "timesheet",
			ResourceID: &timesheet.ID,
			NewValues:  payload,
			IPAddress:  "system",
			UserAgent:  "approval-service",
		}); err != nil {
			s.logger.Warn("failed to persist approval audit log", zap.Error(err))
		}
	}
}

func optionalComment(value string) *string {
	if workflow.BlankComment(value) {
		return nil
	}
	v := value
	return &v
}
