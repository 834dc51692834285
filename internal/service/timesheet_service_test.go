package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/catams-api/internal/dto"
	"github.com/noah-isme/catams-api/internal/models"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

func newTimesheetService(timesheets *stubTimesheetStore, users *stubUserStore, courses *stubCourseStore) (*TimesheetService, *stubAudit, *stubInvalidator) {
	audit := &stubAudit{}
	invalidator := &stubInvalidator{}
	svc := NewTimesheetService(TimesheetServiceParams{
		Timesheets: timesheets,
		Courses:    courses,
		Users:      users,
		Audit:      audit,
		Dashboards: invalidator,
	})
	return svc, audit, invalidator
}

func validCreateRequest() dto.CreateTimesheetRequest {
	return dto.CreateTimesheetRequest{
		TutorID:       "tutor-1",
		CourseID:      "course-1",
		WeekStartDate: "2026-03-02",
		Hours:         10,
		HourlyRate:    45,
		Description:   "Tutorials and marking",
	}
}

func TestCreateTimesheetAsTutor(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, audit, invalidator := newTimesheetService(timesheets, users, courses)

	created, err := svc.Create(context.Background(), validCreateRequest(), claims("tutor-1", models.RoleTutor))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "AUD", created.Currency)
	assert.Equal(t, "tutor-1", created.CreatedBy)
	assert.Equal(t, time.Monday, created.WeekStartDate.Weekday())
	require.Len(t, timesheets.creates, 1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTimesheetCreate, audit.logs[0].Action)
	assert.Equal(t, 1, invalidator.calls)
}

func TestCreateTimesheetTutorCannotLodgeForOthers(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	req := validCreateRequest()
	req.TutorID = "tutor-2"
	_, err := svc.Create(context.Background(), req, claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, timesheets.creates)
}

func TestCreateTimesheetLecturerMustOwnCourse(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	_, err := svc.Create(context.Background(), validCreateRequest(), claims("lect-2", models.RoleLecturer))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), validCreateRequest(), claims("lect-1", models.RoleLecturer))
	require.NoError(t, err)
}

func TestCreateTimesheetRejectsNonMondayWeekStart(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	req := validCreateRequest()
	req.WeekStartDate = "2026-03-03"
	_, err := svc.Create(context.Background(), req, claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateTimesheetRejectsUnknownTutor(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	req := validCreateRequest()
	req.TutorID = "nobody"
	_, err := svc.Create(context.Background(), req, claims("admin-1", models.RoleAdmin))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateTimesheetDraftKeepsTrailIntact(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	updated, err := svc.Update(context.Background(), "ts-1",
		dto.UpdateTimesheetRequest{Hours: 12, HourlyRate: 48, Description: "Extended tutorials"},
		claims("tutor-1", models.RoleTutor))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, updated.Status)
	assert.Equal(t, 2, updated.Version)
	require.Len(t, timesheets.updates, 1)
	assert.False(t, timesheets.updates[0].SupersedeTrail)
}

func TestUpdateTimesheetRejectedResetsToDraftAndSupersedesTrail(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	comment := "insufficient detail"
	timesheets.timesheet.Status = models.StatusRejected
	timesheets.timesheet.Version = 3
	timesheets.timesheet.Approvals = []models.ApprovalRecord{
		{ID: "ar-1", TimesheetID: "ts-1", Action: models.ActionSubmitForApproval,
			PreviousStatus: models.StatusDraft, NewStatus: models.StatusPendingTutorReview, IsActive: true},
		{ID: "ar-2", TimesheetID: "ts-1", Action: models.ActionReject, Comment: &comment,
			PreviousStatus: models.StatusPendingTutorReview, NewStatus: models.StatusRejected, IsActive: true},
	}
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	updated, err := svc.Update(context.Background(), "ts-1",
		dto.UpdateTimesheetRequest{Hours: 8, HourlyRate: 45, Description: "Revised with detail"},
		claims("tutor-1", models.RoleTutor))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, updated.Status)
	assert.Empty(t, updated.ActiveApprovals())
	assert.Len(t, updated.Approvals, 2)
	require.Len(t, timesheets.updates, 1)
	assert.True(t, timesheets.updates[0].SupersedeTrail)
	assert.Equal(t, models.StatusDraft, timesheets.updates[0].Status)
	assert.Equal(t, 3, timesheets.updates[0].ExpectedVersion)
}

func TestUpdateTimesheetNotEditableMidWorkflow(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Status = models.StatusPendingHRReview
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	_, err := svc.Update(context.Background(), "ts-1",
		dto.UpdateTimesheetRequest{Hours: 8, HourlyRate: 45, Description: "Too late"},
		claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEditable.Code, appErrors.FromError(err).Code)
	assert.Empty(t, timesheets.updates)
}

func TestUpdateTimesheetOnlyOwnerOrAdmin(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	req := dto.UpdateTimesheetRequest{Hours: 8, HourlyRate: 45, Description: "Edit"}
	_, err := svc.Update(context.Background(), "ts-1", req, claims("tutor-2", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), "ts-1", req, claims("lect-1", models.RoleLecturer))
	require.Error(t, err)

	_, err = svc.Update(context.Background(), "ts-1", req, claims("admin-1", models.RoleAdmin))
	require.NoError(t, err)
}

func TestUpdateTimesheetConcurrentEditConflict(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.updateErr = sql.ErrNoRows
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	_, err := svc.Update(context.Background(), "ts-1",
		dto.UpdateTimesheetRequest{Hours: 8, HourlyRate: 45, Description: "Edit"},
		claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDeleteTimesheetDraftOnly(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, audit, _ := newTimesheetService(timesheets, users, courses)

	require.NoError(t, svc.Delete(context.Background(), "ts-1", claims("tutor-1", models.RoleTutor)))
	assert.Equal(t, []string{"ts-1"}, timesheets.deletes)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTimesheetDelete, audit.logs[0].Action)
}

func TestDeleteTimesheetRefusedOnceTrailExists(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	timesheets.timesheet.Approvals = []models.ApprovalRecord{
		{ID: "ar-1", TimesheetID: "ts-1", Action: models.ActionSubmitForApproval,
			PreviousStatus: models.StatusDraft, NewStatus: models.StatusPendingTutorReview, IsActive: false},
	}
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	err := svc.Delete(context.Background(), "ts-1", claims("tutor-1", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEditable.Code, appErrors.FromError(err).Code)
	assert.Empty(t, timesheets.deletes)
}

func TestListTimesheetsScopesTutorToSelf(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	_, _, err := svc.List(context.Background(), dto.TimesheetQuery{TutorID: "tutor-2"}, claims("tutor-1", models.RoleTutor))
	require.NoError(t, err)
	assert.Equal(t, "tutor-1", timesheets.listFilter.TutorID)
}

func TestListTimesheetsLecturerRequiresOwnedCourse(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	_, _, err := svc.List(context.Background(), dto.TimesheetQuery{}, claims("lect-1", models.RoleLecturer))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = svc.List(context.Background(), dto.TimesheetQuery{CourseID: "course-1"}, claims("lect-2", models.RoleLecturer))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, _, err = svc.List(context.Background(), dto.TimesheetQuery{CourseID: "course-1"}, claims("lect-1", models.RoleLecturer))
	require.NoError(t, err)
}

func TestGetTimesheetScoped(t *testing.T) {
	timesheets, users, courses := approvalFixture()
	svc, _, _ := newTimesheetService(timesheets, users, courses)

	_, err := svc.Get(context.Background(), "ts-1", claims("tutor-2", models.RoleTutor))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	found, err := svc.Get(context.Background(), "ts-1", claims("hr-1", models.RoleHR))
	require.NoError(t, err)
	assert.Equal(t, "ts-1", found.ID)
}
