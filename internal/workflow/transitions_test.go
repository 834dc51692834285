package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/catams-api/internal/models"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

var allStatuses = []models.TimesheetStatus{
	models.StatusDraft,
	models.StatusPendingTutorReview,
	models.StatusApprovedByTutor,
	models.StatusApprovedByLecturerAndTutor,
	models.StatusPendingHRReview,
	models.StatusFinalConfirmed,
	models.StatusRejected,
	models.StatusModificationRequested,
}

var allActions = []models.ApprovalAction{
	models.ActionSubmitForApproval,
	models.ActionApprove,
	models.ActionFinalApproval,
	models.ActionReject,
	models.ActionRequestModification,
}

func TestTableHappyPath(t *testing.T) {
	table := NewTable()

	next, err := table.TargetStatus(models.StatusDraft, models.ActionSubmitForApproval)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingTutorReview, next)

	next, err = table.TargetStatus(next, models.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, models.StatusApprovedByTutor, next)

	next, err = table.TargetStatus(next, models.ActionFinalApproval)
	require.NoError(t, err)
	require.Equal(t, models.StatusFinalConfirmed, next)
}

func TestTableDualApprovalPath(t *testing.T) {
	table := NewTable()

	next, err := table.TargetStatus(models.StatusApprovedByTutor, models.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, models.StatusApprovedByLecturerAndTutor, next)

	follow, ok := table.AutoFollowUp(next)
	require.True(t, ok)
	require.Equal(t, models.StatusPendingHRReview, follow)
	require.True(t, table.CanTransition(next, models.ActionApprove, follow))

	next, err = table.TargetStatus(follow, models.ActionFinalApproval)
	require.NoError(t, err)
	require.Equal(t, models.StatusFinalConfirmed, next)
}

func TestTableIsTotalOverStatusActionPairs(t *testing.T) {
	table := NewTable()
	for _, status := range allStatuses {
		for _, action := range allActions {
			next, err := table.TargetStatus(status, action)
			if err != nil {
				appErr := appErrors.FromError(err)
				require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code,
					"unexpected error code for %s+%s", status, action)
				continue
			}
			require.True(t, next.Valid(), "%s+%s produced invalid status", status, action)
			require.True(t, table.CanTransition(status, action, next))
		}
	}
}

func TestTableFinalConfirmedHasNoOutgoingActions(t *testing.T) {
	table := NewTable()
	for _, action := range allActions {
		_, err := table.TargetStatus(models.StatusFinalConfirmed, action)
		require.Error(t, err, "expected %s to be rejected from FINAL_CONFIRMED", action)
	}
}

func TestTableRejectsUnknownInput(t *testing.T) {
	table := NewTable()

	_, err := table.TargetStatus(models.StatusDraft, models.ApprovalAction("DELETE"))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = table.TargetStatus(models.TimesheetStatus("ARCHIVED"), models.ActionApprove)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRoleGating(t *testing.T) {
	table := NewTable()

	require.True(t, table.RoleAllowed(models.RoleTutor, models.ActionSubmitForApproval))
	require.False(t, table.RoleAllowed(models.RoleLecturer, models.ActionSubmitForApproval))
	require.False(t, table.RoleAllowed(models.RoleTutor, models.ActionApprove))
	require.True(t, table.RoleAllowed(models.RoleLecturer, models.ActionApprove))
	require.True(t, table.RoleAllowed(models.RoleAdmin, models.ActionApprove))
	require.False(t, table.RoleAllowed(models.RoleHR, models.ActionApprove))
	require.True(t, table.RoleAllowed(models.RoleHR, models.ActionFinalApproval))
	require.True(t, table.RoleAllowed(models.RoleHR, models.ActionReject))
	require.False(t, table.RoleAllowed(models.RoleHR, models.ActionRequestModification))
}

func TestCommentRequirement(t *testing.T) {
	table := NewTable()

	require.True(t, table.CommentRequired(models.ActionReject))
	require.True(t, table.CommentRequired(models.ActionRequestModification))
	require.False(t, table.CommentRequired(models.ActionSubmitForApproval))
	require.False(t, table.CommentRequired(models.ActionApprove))
	require.False(t, table.CommentRequired(models.ActionFinalApproval))
}

func TestAllowedActions(t *testing.T) {
	table := NewTable()

	require.Equal(t,
		[]models.ApprovalAction{models.ActionSubmitForApproval},
		table.AllowedActions(models.StatusDraft, models.RoleTutor))

	require.Equal(t,
		[]models.ApprovalAction{models.ActionApprove, models.ActionReject, models.ActionRequestModification},
		table.AllowedActions(models.StatusPendingTutorReview, models.RoleLecturer))

	require.Equal(t,
		[]models.ApprovalAction{models.ActionFinalApproval, models.ActionReject},
		table.AllowedActions(models.StatusPendingHRReview, models.RoleHR))

	require.Empty(t, table.AllowedActions(models.StatusFinalConfirmed, models.RoleAdmin))
	require.Empty(t, table.AllowedActions(models.StatusPendingTutorReview, models.RoleTutor))
}
