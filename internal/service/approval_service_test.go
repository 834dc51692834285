package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/catams-api/internal/dto"
	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/repository"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

type stubTimesheetStore struct {
	timesheet *models.Timesheet
	getErr    error
	commitErr error
	commits   []repository.CommitTransitionParams

	creates    []*models.Timesheet
	createErr  error
	updates    []repository.UpdateFieldsParams
	updateErr  error
	deletes    []string
	deleteErr  error
	listResult []models.Timesheet
	listTotal  int
	listFilter models.TimesheetFilter
}

func (s *stubTimesheetStore) Create(ctx context.Context, timesheet *models.Timesheet) error {
	if s.createErr != nil {
		return s.createErr
	}
	if timesheet.ID == "" {
		timesheet.ID = "ts-new"
	}
	timesheet.Status = models.StatusDraft
	timesheet.Version = 1
	s.creates = append(s.creates, timesheet)
	return nil
}

func (s *stubTimesheetStore) GetByID(ctx context.Context, id string) (*models.Timesheet, error) {
	return s.GetWithApprovals(ctx, id)
}

func (s *stubTimesheetStore) GetWithApprovals(ctx context.Context, id string) (*models.Timesheet, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.timesheet == nil || s.timesheet.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.timesheet
	copied.Approvals = append([]models.ApprovalRecord(nil), s.timesheet.Approvals...)
	return &copied, nil
}

func (s *stubTimesheetStore) List(ctx context.Context, filter models.TimesheetFilter) ([]models.Timesheet, int, error) {
	s.listFilter = filter
	return s.listResult, s.listTotal, nil
}

func (s *stubTimesheetStore) CommitTransition(ctx context.Context, params repository.CommitTransitionParams) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits = append(s.commits, params)
	s.timesheet.Status = params.NewStatus
	s.timesheet.Version = params.ExpectedVersion + 1
	s.timesheet.Approvals = append(s.timesheet.Approvals, params.Records...)
	return nil
}

func (s *stubTimesheetStore) UpdateFields(ctx context.Context, params repository.UpdateFieldsParams) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, params)
	return nil
}

func (s *stubTimesheetStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, id)
	return nil
}

type stubUserStore struct {
	users map[string]*models.User
}

func (s *stubUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type stubCourseStore struct {
	courses map[string]*models.Course
}

func (s *stubCourseStore) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

type stubAudit struct {
	logs []*models.AuditLog
	err  error
}

func (s *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, log)
	return nil
}

type stubNotifier struct {
	events []TransitionEvent
}

func (s *stubNotifier) NotifyTransition(ctx context.Context, event TransitionEvent) {
	s.events = append(s.events, event)
}

type stubInvalidator struct {
	calls int
}

func (s *stubInvalidator) InvalidateSummaries(ctx context.Context) { s.calls++ }

func approvalFixture() (*stubTimesheetStore, *stubUserStore, *stubCourseStore) {
	timesheets := &stubTimesheetStore{
		timesheet: &models.Timesheet{
			ID:            "ts-1",
			TutorID:       "tutor-1",
			CourseID:      "course-1",
			WeekStartDate: time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
			Hours:         10,
			HourlyRate:    45,
			Currency:      "AUD",
			Description:   "Tutorials and marking",
			Status:        models.StatusDraft,
			CreatedBy:     "tutor-1",
			Version:       1,
		},
	}
	users := &stubUserStore{users: map[string]*models.User{
		"tutor-1":  {ID: "tutor-1", Role: models.RoleTutor, Active: true},
		"tutor-2":  {ID: "tutor-2", Role: models.RoleTutor, Active: true},
		"lect-1":   {ID: "lect-1", Role: models.RoleLecturer, Active: true},
		"lect-2":   {ID: "lect-2", Role: models.RoleLecturer, Active: true},
		"hr-1":     {ID: "hr-1", Role: models.RoleHR, Active: true},
		"admin-1":  {ID: "admin-1", Role: models.RoleAdmin, Active: true},
		"ghost-1":  {ID: "ghost-1", Role: models.RoleTutor, Active: false},
	}}
	courses := &stubCourseStore{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Code: "COMP1511", LecturerID: "lect-1", Active: true},
	}}
	return timesheets, users, courses
}

func newApprovalService(timesheets *stubTimesheetStore, users *stubUserStore, courses *stubCourseStore) (*ApprovalService, *stubNotifier, *stubAudit, *stubInvalidator) {
	notifier := &stubNotifier{}
	audit := &stubAudit{}
	invalidator := &stubInvalidator{}
	svc := NewApprovalService(ApprovalServiceParams{
		Timesheets: timesheets,
		Users:      users,
		Courses:    courses,
		Audit:      audit,
		Notifier:   notifier,
		Dashboards: invalidator,
	})
	return svc, notifier, audit, invalidator
}

func claims(userID string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role}
}

func TestPerformActionSubmit(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, notifier, audit, invalidator := newApprovalService(timesheets, users, courses)

	rec, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionSubmitForApproval}, claims("tutor-1", models.RoleTutor))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, rec.PreviousStatus)
	assert.Equal(t, models.StatusPendingTutorReview, rec.NewStatus)
	assert.True(t, rec.IsActive)
	assert.Nil(t, rec.Comment)

	require.Len(t, timesheets.commits, 1)
	assert.Equal(t, 1, timesheets.commits[0].ExpectedVersion)
	assert.Equal(t, models.StatusPendingTutorReview, timesheets.timesheet.Status)
	assert.Equal(t, 2, timesheets.timesheet.Version)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.StatusPendingTutorReview, notifier.events[0].NewStatus)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionApprovalDecision, audit.logs[0].Action)
	assert.Equal(t, 1, invalidator.calls)
}

func TestPerformActionDualApprovalAutoQueuesForHR(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusApprovedByTutor
	timesheets.timesheet.Version = 3
	svc, notifier, _, _ := newApprovalService(timesheets, users, courses)

	rec, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionApprove}, claims("lect-1", models.RoleLecturer))
	require.NoError(t, err)

	// The returned record is the lecturer's approval, not the system hop.
	assert.Equal(t, models.StatusApprovedByTutor, rec.PreviousStatus)
	assert.Equal(t, models.StatusApprovedByLecturerAndTutor, rec.NewStatus)

	require.Len(t, timesheets.commits, 1)
	commit := timesheets.commits[0]
	require.Len(t, commit.Records, 2)
	assert.Equal(t, models.StatusPendingHRReview, commit.NewStatus)

	system := commit.Records[1]
	assert.Equal(t, models.StatusApprovedByLecturerAndTutor, system.PreviousStatus)
	assert.Equal(t, models.StatusPendingHRReview, system.NewStatus)
	assert.Equal(t, "lect-1", system.ApproverID)
	require.NotNil(t, system.Comment)
	assert.Equal(t, SystemComment, *system.Comment)
	assert.Equal(t, commit.Records[0].CreatedAt, system.CreatedAt)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.StatusPendingHRReview, notifier.events[0].NewStatus)
}

func TestPerformActionFinalApprovalFastPath(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusApprovedByTutor
	timesheets.timesheet.Version = 3
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	rec, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionFinalApproval}, claims("hr-1", models.RoleHR))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalConfirmed, rec.NewStatus)
	require.Len(t, timesheets.commits, 1)
	require.Len(t, timesheets.commits[0].Records, 1)
}

func TestPerformActionRejectRequiresComment(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusPendingTutorReview
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionReject, Comment: "   "}, claims("hr-1", models.RoleHR))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingComment.Code, appErrors.FromError(err).Code)
	assert.Empty(t, timesheets.commits)
}

func TestPerformActionRequestModificationRequiresComment(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusPendingTutorReview
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionRequestModification}, claims("lect-1", models.RoleLecturer))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingComment.Code, appErrors.FromError(err).Code)
}

func TestPerformActionInvalidTransitionLeavesStateUntouched(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusFinalConfirmed
	timesheets.timesheet.Version = 6
	svc, notifier, audit, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionReject, Comment: "too late"}, claims("admin-1", models.RoleAdmin))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, timesheets.commits)
	assert.Empty(t, notifier.events)
	assert.Empty(t, audit.logs)
	assert.Equal(t, models.StatusFinalConfirmed, timesheets.timesheet.Status)
	assert.Equal(t, 6, timesheets.timesheet.Version)
}

func TestPerformActionForbiddenForUnassignedLecturer(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusPendingTutorReview
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionApprove}, claims("lect-2", models.RoleLecturer))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, timesheets.commits)
}

func TestPerformActionForbiddenForNonOwningTutor(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionSubmitForApproval}, claims("tutor-2", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestPerformActionTutorMayNotApprove(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusPendingTutorReview
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionApprove}, claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestPerformActionInactiveActorForbidden(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionSubmitForApproval}, claims("ghost-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestPerformActionVersionConflict(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.commitErr = sql.ErrNoRows
	svc, notifier, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionSubmitForApproval}, claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, notifier.events)
}

func TestPerformActionCommitFailureSuppressesSideEffects(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusApprovedByTutor
	timesheets.commitErr = errors.New("connection reset")
	svc, notifier, audit, invalidator := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: models.ActionApprove}, claims("lect-1", models.RoleLecturer))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, notifier.events)
	assert.Empty(t, audit.logs)
	assert.Equal(t, 0, invalidator.calls)
}

func TestPerformActionUnknownTimesheet(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-missing",
		dto.PerformActionRequest{Action: models.ActionSubmitForApproval}, claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPerformActionUnknownAction(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	_, err := svc.PerformAction(context.Background(), "ts-1",
		dto.PerformActionRequest{Action: "ESCALATE"}, claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAllowedActions(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusPendingTutorReview
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	res, err := svc.AllowedActions(context.Background(), "ts-1", claims("lect-1", models.RoleLecturer))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingTutorReview, res.Status)
	assert.ElementsMatch(t, []models.ApprovalAction{
		models.ActionApprove, models.ActionReject, models.ActionRequestModification,
	}, res.Actions)

	res, err = svc.AllowedActions(context.Background(), "ts-1", claims("lect-2", models.RoleLecturer))
	require.NoError(t, err)
	assert.Empty(t, res.Actions)

	res, err = svc.AllowedActions(context.Background(), "ts-1", claims("tutor-1", models.RoleTutor))
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
}

func TestHistoryScopedForTutors(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	comment := "approved"
	timesheets.timesheet.Approvals = []models.ApprovalRecord{
		{ID: "ar-1", TimesheetID: "ts-1", Action: models.ActionSubmitForApproval, IsActive: true},
		{ID: "ar-2", TimesheetID: "ts-1", Action: models.ActionApprove, Comment: &comment, IsActive: true},
	}
	svc, _, _, _ := newApprovalService(timesheets, users, courses)

	trail, err := svc.History(context.Background(), "ts-1", claims("tutor-1", models.RoleTutor))
	require.NoError(t, err)
	assert.Len(t, trail, 2)

	_, err = svc.History(context.Background(), "ts-1", claims("tutor-2", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
