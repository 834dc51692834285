package models

import (
	"fmt"
	"time"
)

// TimesheetStatus captures workflow states for a casual timesheet claim.
type TimesheetStatus string

const (
	StatusDraft                      TimesheetStatus = "DRAFT"
	StatusPendingTutorReview         TimesheetStatus = "PENDING_TUTOR_REVIEW"
	StatusApprovedByTutor            TimesheetStatus = "APPROVED_BY_TUTOR"
	StatusApprovedByLecturerAndTutor TimesheetStatus = "APPROVED_BY_LECTURER_AND_TUTOR"
	StatusPendingHRReview            TimesheetStatus = "PENDING_HR_REVIEW"
	StatusFinalConfirmed             TimesheetStatus = "FINAL_CONFIRMED"
	StatusRejected                   TimesheetStatus = "REJECTED"
	StatusModificationRequested      TimesheetStatus = "MODIFICATION_REQUESTED"
)

// Valid reports whether the status is part of the closed set.
func (s TimesheetStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingTutorReview, StatusApprovedByTutor,
		StatusApprovedByLecturerAndTutor, StatusPendingHRReview,
		StatusFinalConfirmed, StatusRejected, StatusModificationRequested:
		return true
	}
	return false
}

// ApprovalAction enumerates the caller-initiated workflow actions.
type ApprovalAction string

const (
	ActionSubmitForApproval   ApprovalAction = "SUBMIT_FOR_APPROVAL"
	ActionApprove             ApprovalAction = "APPROVE"
	ActionFinalApproval       ApprovalAction = "FINAL_APPROVAL"
	ActionReject              ApprovalAction = "REJECT"
	ActionRequestModification ApprovalAction = "REQUEST_MODIFICATION"
)

// Valid reports whether the action is part of the closed set.
func (a ApprovalAction) Valid() bool {
	switch a {
	case ActionSubmitForApproval, ActionApprove, ActionFinalApproval,
		ActionReject, ActionRequestModification:
		return true
	}
	return false
}

// ApprovalRecord is one immutable audit entry in a timesheet's approval trail.
// Records are created exactly once when a transition commits and are never
// mutated afterwards; is_active flips to false only when the whole trail is
// superseded by an owner edit-reset.
type ApprovalRecord struct {
	ID             string          `db:"id" json:"id"`
	TimesheetID    string          `db:"timesheet_id" json:"timesheet_id"`
	ApproverID     string          `db:"approver_id" json:"approver_id"`
	Action         ApprovalAction  `db:"action" json:"action"`
	PreviousStatus TimesheetStatus `db:"previous_status" json:"previous_status"`
	NewStatus      TimesheetStatus `db:"new_status" json:"new_status"`
	Comment        *string         `db:"comment" json:"comment,omitempty"`
	IsActive       bool            `db:"is_active" json:"is_active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Timesheet is the aggregate root for one tutor/course/week work claim. It
// owns its approval trail: status only ever changes through ApplyTransition
// or ResetToDraft, which keep the trail and the status consistent.
type Timesheet struct {
	ID            string          `db:"id" json:"id"`
	TutorID       string          `db:"tutor_id" json:"tutor_id"`
	CourseID      string          `db:"course_id" json:"course_id"`
	WeekStartDate time.Time       `db:"week_start_date" json:"week_start_date"`
	Hours         float64         `db:"hours" json:"hours"`
	HourlyRate    float64         `db:"hourly_rate" json:"hourly_rate"`
	Currency      string          `db:"currency" json:"currency"`
	Description   string          `db:"description" json:"description"`
	Status        TimesheetStatus `db:"status" json:"status"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	Version       int             `db:"version" json:"version"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	Approvals []ApprovalRecord `db:"-" json:"approvals,omitempty"`
}

// TotalPay returns the claimed amount for the week.
func (t *Timesheet) TotalPay() float64 {
	return t.Hours * t.HourlyRate
}

// IsEditable reports whether field edits (hours/rate/description) are
// permitted. Rejected and modification-requested timesheets are editable by
// the owner; saving an edit resets them to DRAFT.
func (t *Timesheet) IsEditable() bool {
	switch t.Status {
	case StatusDraft, StatusRejected, StatusModificationRequested:
		return true
	}
	return false
}

// CanDelete reports whether physical deletion is still allowed. A timesheet
// that has left the initial state keeps its audit trail forever.
func (t *Timesheet) CanDelete() bool {
	return t.Status == StatusDraft && len(t.Approvals) == 0
}

// ActiveApprovals returns the non-superseded portion of the trail in order.
func (t *Timesheet) ActiveApprovals() []ApprovalRecord {
	active := make([]ApprovalRecord, 0, len(t.Approvals))
	for _, rec := range t.Approvals {
		if rec.IsActive {
			active = append(active, rec)
		}
	}
	return active
}

// LastApproval returns the most recent trail entry, or nil when empty.
func (t *Timesheet) LastApproval() *ApprovalRecord {
	if len(t.Approvals) == 0 {
		return nil
	}
	return &t.Approvals[len(t.Approvals)-1]
}

// ApplyTransition appends an approval record and moves the status, as one
// in-memory operation. The record must start from the current status and its
// timestamp must not precede the last trail entry.
func (t *Timesheet) ApplyTransition(rec ApprovalRecord) error {
	if rec.PreviousStatus != t.Status {
		return fmt.Errorf("transition starts from %s but timesheet is %s", rec.PreviousStatus, t.Status)
	}
	if !rec.NewStatus.Valid() {
		return fmt.Errorf("unknown target status %q", rec.NewStatus)
	}
	if last := t.LastApproval(); last != nil && rec.CreatedAt.Before(last.CreatedAt) {
		return fmt.Errorf("approval timestamp %s precedes trail head %s", rec.CreatedAt, last.CreatedAt)
	}
	rec.TimesheetID = t.ID
	rec.IsActive = true
	t.Approvals = append(t.Approvals, rec)
	t.Status = rec.NewStatus
	t.UpdatedAt = rec.CreatedAt
	return nil
}

// ResetToDraft is the field-level owner operation that returns a rejected or
// modification-requested timesheet to DRAFT. It is not an Action: no record is
// appended; the existing trail is superseded instead so that replaying the
// active records still reproduces the current status.
func (t *Timesheet) ResetToDraft(now time.Time) error {
	if t.Status != StatusRejected && t.Status != StatusModificationRequested {
		return fmt.Errorf("cannot reset %s timesheet to draft", t.Status)
	}
	for i := range t.Approvals {
		t.Approvals[i].IsActive = false
	}
	t.Status = StatusDraft
	t.UpdatedAt = now
	return nil
}

// ReplayStatus folds the active approval trail from DRAFT and returns the
// resulting status. The trail is inconsistent if any link does not chain.
func (t *Timesheet) ReplayStatus() (TimesheetStatus, error) {
	status := StatusDraft
	for _, rec := range t.ActiveApprovals() {
		if rec.PreviousStatus != status {
			return "", fmt.Errorf("approval %s expects previous status %s, replay reached %s", rec.ID, rec.PreviousStatus, status)
		}
		status = rec.NewStatus
	}
	return status, nil
}

// CheckReplayInvariant verifies that the active trail replays to the current
// status exactly.
func (t *Timesheet) CheckReplayInvariant() error {
	replayed, err := t.ReplayStatus()
	if err != nil {
		return err
	}
	if replayed != t.Status {
		return fmt.Errorf("trail replays to %s but status is %s", replayed, t.Status)
	}
	return nil
}

// TimesheetFilter constrains listing queries.
type TimesheetFilter struct {
	TutorID   string
	CourseID  string
	Status    []TimesheetStatus
	WeekStart *time.Time
	Page      int
	PageSize  int
}
