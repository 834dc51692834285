package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseTimesheet() *Timesheet {
	return &Timesheet{
		ID:            "ts-1",
		TutorID:       "tutor-1",
		CourseID:      "course-1",
		WeekStartDate: time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		Hours:         12,
		HourlyRate:    48,
		Description:   "Tutorials",
		Status:        StatusDraft,
	}
}

func record(id string, action ApprovalAction, prev, next TimesheetStatus, at time.Time) ApprovalRecord {
	return ApprovalRecord{
		ID:             id,
		ApproverID:     "actor-1",
		Action:         action,
		PreviousStatus: prev,
		NewStatus:      next,
		CreatedAt:      at,
	}
}

func TestApplyTransitionAppendsAndMovesStatus(t *testing.T) {
	ts := baseTimesheet()
	now := time.Now().UTC()

	err := ts.ApplyTransition(record("a1", ActionSubmitForApproval, StatusDraft, StatusPendingTutorReview, now))
	require.NoError(t, err)
	require.Equal(t, StatusPendingTutorReview, ts.Status)
	require.Len(t, ts.Approvals, 1)
	require.Equal(t, "ts-1", ts.Approvals[0].TimesheetID)
	require.True(t, ts.Approvals[0].IsActive)
	require.Equal(t, now, ts.UpdatedAt)
}

func TestApplyTransitionRejectsStaleOrigin(t *testing.T) {
	ts := baseTimesheet()
	err := ts.ApplyTransition(record("a1", ActionApprove, StatusPendingTutorReview, StatusApprovedByTutor, time.Now()))
	require.Error(t, err)
	require.Equal(t, StatusDraft, ts.Status)
	require.Empty(t, ts.Approvals)
}

func TestApplyTransitionRejectsNonMonotonicTimestamp(t *testing.T) {
	ts := baseTimesheet()
	now := time.Now().UTC()
	require.NoError(t, ts.ApplyTransition(record("a1", ActionSubmitForApproval, StatusDraft, StatusPendingTutorReview, now)))

	err := ts.ApplyTransition(record("a2", ActionApprove, StatusPendingTutorReview, StatusApprovedByTutor, now.Add(-time.Minute)))
	require.Error(t, err)
	require.Len(t, ts.Approvals, 1)
	require.Equal(t, StatusPendingTutorReview, ts.Status)
}

func TestReplayInvariantHolds(t *testing.T) {
	ts := baseTimesheet()
	now := time.Now().UTC()
	require.NoError(t, ts.ApplyTransition(record("a1", ActionSubmitForApproval, StatusDraft, StatusPendingTutorReview, now)))
	require.NoError(t, ts.ApplyTransition(record("a2", ActionApprove, StatusPendingTutorReview, StatusApprovedByTutor, now.Add(time.Second))))
	require.NoError(t, ts.ApplyTransition(record("a3", ActionApprove, StatusApprovedByTutor, StatusApprovedByLecturerAndTutor, now.Add(2*time.Second))))
	require.NoError(t, ts.ApplyTransition(record("a4", ActionApprove, StatusApprovedByLecturerAndTutor, StatusPendingHRReview, now.Add(2*time.Second))))

	require.NoError(t, ts.CheckReplayInvariant())

	replayed, err := ts.ReplayStatus()
	require.NoError(t, err)
	require.Equal(t, StatusPendingHRReview, replayed)
}

func TestReplayDetectsBrokenChain(t *testing.T) {
	ts := baseTimesheet()
	ts.Status = StatusApprovedByTutor
	ts.Approvals = []ApprovalRecord{
		{ID: "a1", Action: ActionSubmitForApproval, PreviousStatus: StatusDraft, NewStatus: StatusPendingTutorReview, IsActive: true},
		{ID: "a2", Action: ActionApprove, PreviousStatus: StatusApprovedByTutor, NewStatus: StatusApprovedByLecturerAndTutor, IsActive: true},
	}
	require.Error(t, ts.CheckReplayInvariant())
}

func TestResetToDraftSupersedesTrail(t *testing.T) {
	ts := baseTimesheet()
	now := time.Now().UTC()
	require.NoError(t, ts.ApplyTransition(record("a1", ActionSubmitForApproval, StatusDraft, StatusPendingTutorReview, now)))
	comment := "hours look wrong"
	rec := record("a2", ActionReject, StatusPendingTutorReview, StatusRejected, now.Add(time.Second))
	rec.Comment = &comment
	require.NoError(t, ts.ApplyTransition(rec))

	require.True(t, ts.IsEditable())
	require.NoError(t, ts.ResetToDraft(now.Add(2*time.Second)))
	require.Equal(t, StatusDraft, ts.Status)
	require.Len(t, ts.Approvals, 2, "full trail retained for audit")
	require.Empty(t, ts.ActiveApprovals())
	require.NoError(t, ts.CheckReplayInvariant())
}

func TestResetToDraftRejectedOutsideEditableStates(t *testing.T) {
	ts := baseTimesheet()
	ts.Status = StatusPendingTutorReview
	require.Error(t, ts.ResetToDraft(time.Now()))

	ts.Status = StatusFinalConfirmed
	require.Error(t, ts.ResetToDraft(time.Now()))
}

func TestEditabilityAndDeletion(t *testing.T) {
	ts := baseTimesheet()
	require.True(t, ts.IsEditable())
	require.True(t, ts.CanDelete())

	now := time.Now().UTC()
	require.NoError(t, ts.ApplyTransition(record("a1", ActionSubmitForApproval, StatusDraft, StatusPendingTutorReview, now)))
	require.False(t, ts.IsEditable())
	require.False(t, ts.CanDelete())

	ts.Status = StatusModificationRequested
	require.True(t, ts.IsEditable())
	require.False(t, ts.CanDelete(), "trail already exists")
}

func TestTotalPay(t *testing.T) {
	ts := baseTimesheet()
	require.InDelta(t, 576.0, ts.TotalPay(), 0.0001)
}
