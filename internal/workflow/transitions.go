// Package workflow holds the pure decision logic for the timesheet approval
// state machine: the transition table, the role-gating table, and the
// field-level business rules. Everything here is immutable after construction
// and safe for unsynchronised concurrent reads.
package workflow

import (
	"github.com/noah-isme/catams-api/internal/models"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

type transitionKey struct {
	status models.TimesheetStatus
	action models.ApprovalAction
}

// Table maps (current status, action) to the next status and records which
// roles may invoke which actions. Status legality and role gating are
// independent checks; both must pass before a transition commits.
type Table struct {
	transitions     map[transitionKey]models.TimesheetStatus
	roleGate        map[models.ApprovalAction]map[models.UserRole]struct{}
	commentRequired map[models.ApprovalAction]bool
	autoFollowUp    map[models.TimesheetStatus]models.TimesheetStatus
}

// NewTable builds the default approval workflow table.
func NewTable() *Table {
	t := &Table{
		transitions: map[transitionKey]models.TimesheetStatus{
			{models.StatusDraft, models.ActionSubmitForApproval}: models.StatusPendingTutorReview,

			{models.StatusPendingTutorReview, models.ActionApprove}:             models.StatusApprovedByTutor,
			{models.StatusPendingTutorReview, models.ActionReject}:              models.StatusRejected,
			{models.StatusPendingTutorReview, models.ActionRequestModification}: models.StatusModificationRequested,

			{models.StatusApprovedByTutor, models.ActionApprove}:             models.StatusApprovedByLecturerAndTutor,
			{models.StatusApprovedByTutor, models.ActionFinalApproval}:       models.StatusFinalConfirmed,
			{models.StatusApprovedByTutor, models.ActionReject}:              models.StatusRejected,
			{models.StatusApprovedByTutor, models.ActionRequestModification}: models.StatusModificationRequested,

			{models.StatusApprovedByLecturerAndTutor, models.ActionApprove}:             models.StatusPendingHRReview,
			{models.StatusApprovedByLecturerAndTutor, models.ActionRequestModification}: models.StatusModificationRequested,

			{models.StatusPendingHRReview, models.ActionFinalApproval}: models.StatusFinalConfirmed,
			{models.StatusPendingHRReview, models.ActionReject}:        models.StatusRejected,
		},
		roleGate: map[models.ApprovalAction]map[models.UserRole]struct{}{
			models.ActionSubmitForApproval:   roleSet(models.RoleTutor),
			models.ActionApprove:             roleSet(models.RoleLecturer, models.RoleAdmin),
			models.ActionRequestModification: roleSet(models.RoleLecturer, models.RoleAdmin),
			models.ActionReject:              roleSet(models.RoleLecturer, models.RoleHR, models.RoleAdmin),
			models.ActionFinalApproval:       roleSet(models.RoleLecturer, models.RoleHR, models.RoleAdmin),
		},
		commentRequired: map[models.ApprovalAction]bool{
			models.ActionReject:              true,
			models.ActionRequestModification: true,
		},
		// Reaching full dual-party approval immediately queues the timesheet
		// for HR review. This is the only multi-hop transition in the system.
		autoFollowUp: map[models.TimesheetStatus]models.TimesheetStatus{
			models.StatusApprovedByLecturerAndTutor: models.StatusPendingHRReview,
		},
	}
	return t
}

func roleSet(roles ...models.UserRole) map[models.UserRole]struct{} {
	set := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// TargetStatus resolves the next status for (current, action). The table is
// total: every pair not explicitly listed yields INVALID_TRANSITION.
func (t *Table) TargetStatus(current models.TimesheetStatus, action models.ApprovalAction) (models.TimesheetStatus, error) {
	if !action.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown approval action")
	}
	if !current.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown timesheet status")
	}
	next, ok := t.transitions[transitionKey{current, action}]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrInvalidTransition,
			string(action)+" is not allowed while the timesheet is "+string(current))
	}
	return next, nil
}

// CanTransition reports whether (previous, action, next) is a legal recorded
// transition. Used to validate approval trails on load.
func (t *Table) CanTransition(previous models.TimesheetStatus, action models.ApprovalAction, next models.TimesheetStatus) bool {
	target, ok := t.transitions[transitionKey{previous, action}]
	return ok && target == next
}

// RoleAllowed reports whether the role may invoke the action at all,
// independent of the current status and of course/timesheet ownership.
func (t *Table) RoleAllowed(role models.UserRole, action models.ApprovalAction) bool {
	gate, ok := t.roleGate[action]
	if !ok {
		return false
	}
	_, ok = gate[role]
	return ok
}

// CommentRequired reports whether the action demands a non-blank comment.
func (t *Table) CommentRequired(action models.ApprovalAction) bool {
	return t.commentRequired[action]
}

// AllowedActions returns the actions legal from the status that the role may
// invoke, in a stable order.
func (t *Table) AllowedActions(status models.TimesheetStatus, role models.UserRole) []models.ApprovalAction {
	order := []models.ApprovalAction{
		models.ActionSubmitForApproval,
		models.ActionApprove,
		models.ActionFinalApproval,
		models.ActionReject,
		models.ActionRequestModification,
	}
	var allowed []models.ApprovalAction
	for _, action := range order {
		if _, ok := t.transitions[transitionKey{status, action}]; !ok {
			continue
		}
		if !t.RoleAllowed(role, action) {
			continue
		}
		allowed = append(allowed, action)
	}
	return allowed
}

// AutoFollowUp reports the system-attributed follow-up status for states that
// auto-advance after a primary transition, if any.
func (t *Table) AutoFollowUp(status models.TimesheetStatus) (models.TimesheetStatus, bool) {
	next, ok := t.autoFollowUp[status]
	return next, ok
}
