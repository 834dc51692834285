package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/catams-api/internal/models"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

const pqUniqueViolation = "23505"

const timesheetColumns = `id, tutor_id, course_id, week_start_date, hours, hourly_rate, currency, description, status, created_by, version, created_at, updated_at`

const approvalColumns = `id, timesheet_id, approver_id, action, previous_status, new_status, comment, is_active, created_at`

// TimesheetRepository persists timesheet aggregates and their approval trails.
type TimesheetRepository struct {
	db *sqlx.DB
}

// NewTimesheetRepository constructs the repository.
func NewTimesheetRepository(db *sqlx.DB) *TimesheetRepository {
	return &TimesheetRepository{db: db}
}

// Create inserts a new timesheet row. A unique constraint on
// (tutor_id, course_id, week_start_date) guarantees one claim per week.
func (r *TimesheetRepository) Create(ctx context.Context, timesheet *models.Timesheet) error {
	if timesheet.ID == "" {
		timesheet.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timesheet.CreatedAt.IsZero() {
		timesheet.CreatedAt = now
	}
	timesheet.UpdatedAt = now
	if timesheet.Status == "" {
		timesheet.Status = models.StatusDraft
	}
	if timesheet.Version == 0 {
		timesheet.Version = 1
	}

	const query = `INSERT INTO timesheets
	(id, tutor_id, course_id, week_start_date, hours, hourly_rate, currency, description, status, created_by, version, created_at, updated_at)
	VALUES (:id, :tutor_id, :course_id, :week_start_date, :hours, :hourly_rate, :currency, :description, :status, :created_by, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, timesheet); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return appErrors.Clone(appErrors.ErrConflict, "a timesheet already exists for this tutor, course and week")
		}
		return fmt.Errorf("create timesheet: %w", err)
	}
	return nil
}

// GetByID fetches a timesheet without its approval trail.
func (r *TimesheetRepository) GetByID(ctx context.Context, id string) (*models.Timesheet, error) {
	query := fmt.Sprintf(`SELECT %s FROM timesheets WHERE id = $1 LIMIT 1`, timesheetColumns)
	var timesheet models.Timesheet
	if err := r.db.GetContext(ctx, &timesheet, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find timesheet by id: %w", err)
	}
	return &timesheet, nil
}

// ListApprovals returns the full approval trail in commit order.
func (r *TimesheetRepository) ListApprovals(ctx context.Context, timesheetID string) ([]models.ApprovalRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_records WHERE timesheet_id = $1 ORDER BY created_at ASC, id ASC`, approvalColumns)
	var records []models.ApprovalRecord
	if err := r.db.SelectContext(ctx, &records, query, timesheetID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return records, nil
}

// GetWithApprovals loads the aggregate including its ordered trail.
func (r *TimesheetRepository) GetWithApprovals(ctx context.Context, id string) (*models.Timesheet, error) {
	timesheet, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	approvals, err := r.ListApprovals(ctx, id)
	if err != nil {
		return nil, err
	}
	timesheet.Approvals = approvals
	return timesheet, nil
}

// List returns timesheets matching the filter with total count.
func (r *TimesheetRepository) List(ctx context.Context, filter models.TimesheetFilter) ([]models.Timesheet, int, error) {
	baseQuery := `FROM timesheets WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.WeekStart != nil {
		conditions = append(conditions, fmt.Sprintf("week_start_date = $%d", len(args)+1))
		args = append(args, *filter.WeekStart)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY week_start_date DESC, created_at DESC LIMIT %d OFFSET %d",
		timesheetColumns, baseQuery, pageSize, offset)

	var timesheets []models.Timesheet
	if err := r.db.SelectContext(ctx, &timesheets, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list timesheets: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count timesheets: %w", err)
	}

	return timesheets, total, nil
}

// CommitTransitionParams carries one atomic status commit: the status update
// guarded by the expected version plus every approval record the transition
// produced (two when the auto follow-up fires).
type CommitTransitionParams struct {
	TimesheetID     string
	ExpectedVersion int
	NewStatus       models.TimesheetStatus
	UpdatedAt       time.Time
	Records         []models.ApprovalRecord
}

// CommitTransition applies a status change and appends its approval records in
// a single transaction. Returns sql.ErrNoRows when the version check fails so
// callers can surface an optimistic-concurrency conflict.
func (r *TimesheetRepository) CommitTransition(ctx context.Context, params CommitTransitionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE timesheets SET status = $1, updated_at = $2, version = version + 1
	WHERE id = $3 AND version = $4`
	result, err := tx.ExecContext(ctx, update, params.NewStatus, params.UpdatedAt, params.TimesheetID, params.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update timesheet status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	const insert = `INSERT INTO approval_records
	(id, timesheet_id, approver_id, action, previous_status, new_status, comment, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, rec := range params.Records {
		if _, err := tx.ExecContext(ctx, insert,
			rec.ID, rec.TimesheetID, rec.ApproverID, rec.Action,
			rec.PreviousStatus, rec.NewStatus, rec.Comment, rec.IsActive, rec.CreatedAt); err != nil {
			return fmt.Errorf("append approval record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// UpdateFieldsParams carries an owner edit. SupersedeTrail is set when the
// edit resets a rejected or modification-requested timesheet back to draft.
type UpdateFieldsParams struct {
	TimesheetID     string
	ExpectedVersion int
	Hours           float64
	HourlyRate      float64
	Description     string
	Status          models.TimesheetStatus
	UpdatedAt       time.Time
	SupersedeTrail  bool
}

// UpdateFields applies a field edit (and the optional draft reset) in one
// transaction guarded by the expected version.
func (r *TimesheetRepository) UpdateFields(ctx context.Context, params UpdateFieldsParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin edit tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE timesheets SET hours = $1, hourly_rate = $2, description = $3, status = $4, updated_at = $5, version = version + 1
	WHERE id = $6 AND version = $7`
	result, err := tx.ExecContext(ctx, update,
		params.Hours, params.HourlyRate, params.Description, params.Status,
		params.UpdatedAt, params.TimesheetID, params.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update timesheet fields: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("edit rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if params.SupersedeTrail {
		const supersede = `UPDATE approval_records SET is_active = false WHERE timesheet_id = $1`
		if _, err := tx.ExecContext(ctx, supersede, params.TimesheetID); err != nil {
			return fmt.Errorf("supersede approval trail: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edit: %w", err)
	}
	return nil
}

// Delete removes a timesheet and its approval records. Callers must have
// verified CanDelete; the trail delete is belt-and-braces orphan removal.
func (r *TimesheetRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM approval_records WHERE timesheet_id = $1`, id); err != nil {
		return fmt.Errorf("delete approval records: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM timesheets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timesheet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// StatusCount is one dashboard bucket.
type StatusCount struct {
	Status models.TimesheetStatus `db:"status"`
	Count  int                    `db:"count"`
}

// CountByStatusForTutor aggregates a tutor's timesheets per status.
func (r *TimesheetRepository) CountByStatusForTutor(ctx context.Context, tutorID string) ([]StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM timesheets WHERE tutor_id = $1 GROUP BY status`
	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, tutorID); err != nil {
		return nil, fmt.Errorf("count timesheets for tutor: %w", err)
	}
	return counts, nil
}

// CountByStatusForLecturer aggregates timesheets per status across the
// lecturer's assigned courses.
func (r *TimesheetRepository) CountByStatusForLecturer(ctx context.Context, lecturerID string) ([]StatusCount, error) {
	const query = `SELECT t.status, COUNT(*) AS count FROM timesheets t
	JOIN courses c ON c.id = t.course_id
	WHERE c.lecturer_id = $1 GROUP BY t.status`
	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, lecturerID); err != nil {
		return nil, fmt.Errorf("count timesheets for lecturer: %w", err)
	}
	return counts, nil
}

// CountByStatus aggregates all timesheets per status (HR/admin scope).
func (r *TimesheetRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM timesheets GROUP BY status`
	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count timesheets: %w", err)
	}
	return counts, nil
}

// ExportRow is one line of the timesheet register export.
type ExportRow struct {
	TimesheetID string    `db:"timesheet_id"`
	TutorName   string    `db:"tutor_name"`
	CourseCode  string    `db:"course_code"`
	WeekStart   time.Time `db:"week_start_date"`
	Hours       float64   `db:"hours"`
	HourlyRate  float64   `db:"hourly_rate"`
	TotalPay    float64   `db:"total_pay"`
	Status      string    `db:"status"`
}

// ListForExport returns register rows for the given statuses joined with
// tutor and course details.
func (r *TimesheetRepository) ListForExport(ctx context.Context, statuses []models.TimesheetStatus, courseID string) ([]ExportRow, error) {
	var conditions []string
	var args []interface{}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if courseID != "" {
		args = append(args, courseID)
		conditions = append(conditions, fmt.Sprintf("t.course_id = $%d", len(args)))
	}

	query := `SELECT t.id AS timesheet_id, u.full_name AS tutor_name, c.code AS course_code,
	t.week_start_date, t.hours, t.hourly_rate, t.hours * t.hourly_rate AS total_pay, t.status
	FROM timesheets t
	JOIN users u ON u.id = t.tutor_id
	JOIN courses c ON c.id = t.course_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.code ASC, t.week_start_date ASC"

	var rows []ExportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list timesheets for export: %w", err)
	}
	return rows, nil
}
