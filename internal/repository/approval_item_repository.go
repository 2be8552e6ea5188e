package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-clearance-api/internal/models"
)

const approvalItemColumns = `ai.id, ai.student_id, ai.entity_kind, ai.entity_id, ai.semester, ai.status,
       ai.submission_type, ai.file_refs, ai.link_url, ai.checklist_answers, ai.notes, ai.remarks,
       ai.approver_ref, ai.version, ai.rejection_count, ai.requested_at, ai.decided_at, ai.updated_at,
       COALESCE(s.name, d.name, '') AS entity_name`

const approvalItemJoins = ` FROM approval_items ai
	LEFT JOIN clearance_subjects s ON ai.entity_kind = 'subject' AND s.id = ai.entity_id
	LEFT JOIN clearance_departments d ON ai.entity_kind = 'department' AND d.id = ai.entity_id`

type approvalItemRow struct {
	ID               string         `db:"id"`
	StudentID        string         `db:"student_id"`
	EntityKind       string         `db:"entity_kind"`
	EntityID         string         `db:"entity_id"`
	EntityName       string         `db:"entity_name"`
	Semester         string         `db:"semester"`
	Status           string         `db:"status"`
	SubmissionType   sql.NullString `db:"submission_type"`
	FileRefs         pq.StringArray `db:"file_refs"`
	LinkURL          sql.NullString `db:"link_url"`
	ChecklistAnswers pq.BoolArray   `db:"checklist_answers"`
	Notes            sql.NullString `db:"notes"`
	Remarks          sql.NullString `db:"remarks"`
	ApproverRef      sql.NullString `db:"approver_ref"`
	Version          int64          `db:"version"`
	RejectionCount   int            `db:"rejection_count"`
	RequestedAt      sql.NullTime   `db:"requested_at"`
	DecidedAt        sql.NullTime   `db:"decided_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r approvalItemRow) toModel() models.ApprovalItem {
	item := models.ApprovalItem{
		ID:             r.ID,
		StudentID:      r.StudentID,
		EntityKind:     models.EntityKind(r.EntityKind),
		EntityID:       r.EntityID,
		EntityName:     r.EntityName,
		Semester:       models.Semester(r.Semester),
		Status:         models.ApprovalStatus(r.Status),
		Remarks:        nullableString(r.Remarks),
		ApproverRef:    nullableString(r.ApproverRef),
		Version:        r.Version,
		RejectionCount: r.RejectionCount,
		RequestedAt:    nullableTime(r.RequestedAt),
		DecidedAt:      nullableTime(r.DecidedAt),
		UpdatedAt:      r.UpdatedAt,
	}
	if r.SubmissionType.Valid {
		item.Submission = models.JoinSubmission(models.SubmissionParts{
			Type:     models.RequirementType(r.SubmissionType.String),
			FileRefs: []string(r.FileRefs),
			Notes:    r.Notes.String,
			URL:      r.LinkURL.String,
			Answers:  []bool(r.ChecklistAnswers),
		})
	}
	return item
}

// ApprovalItemRepository persists approval items.
type ApprovalItemRepository struct {
	db *sqlx.DB
}

// NewApprovalItemRepository constructs the repository.
func NewApprovalItemRepository(db *sqlx.DB) *ApprovalItemRepository {
	return &ApprovalItemRepository{db: db}
}

// ListByStudent returns every item of a student for the semester, subjects first.
func (r *ApprovalItemRepository) ListByStudent(ctx context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error) {
	query := "SELECT " + approvalItemColumns + approvalItemJoins +
		" WHERE ai.student_id = $1 AND ai.semester = $2 ORDER BY ai.entity_kind DESC, entity_name ASC, ai.entity_id ASC"
	var rows []approvalItemRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, semester); err != nil {
		return nil, fmt.Errorf("list approval items: %w", err)
	}
	items := make([]models.ApprovalItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toModel())
	}
	return items, nil
}

// GetByID fetches one item.
func (r *ApprovalItemRepository) GetByID(ctx context.Context, id string) (*models.ApprovalItem, error) {
	query := "SELECT " + approvalItemColumns + approvalItemJoins + " WHERE ai.id = $1"
	var row approvalItemRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	item := row.toModel()
	return &item, nil
}

// GetByKey fetches one item by identity.
func (r *ApprovalItemRepository) GetByKey(ctx context.Context, key models.ItemKey) (*models.ApprovalItem, error) {
	query := "SELECT " + approvalItemColumns + approvalItemJoins +
		" WHERE ai.student_id = $1 AND ai.entity_kind = $2 AND ai.entity_id = $3 AND ai.semester = $4"
	var row approvalItemRow
	if err := r.db.GetContext(ctx, &row, query, key.StudentID, key.EntityKind, key.EntityID, key.Semester); err != nil {
		return nil, err
	}
	item := row.toModel()
	return &item, nil
}

// EnsurePending creates Pending items for entities the student does not have an item for yet.
// Existing items are never touched.
func (r *ApprovalItemRepository) EnsurePending(ctx context.Context, studentID string, semester models.Semester, entities []models.ClearanceEntity) error {
	if len(entities) == 0 {
		return nil
	}
	builder := strings.Builder{}
	builder.WriteString(`INSERT INTO approval_items
	(id, student_id, entity_kind, entity_id, semester, status, version, rejection_count, updated_at) VALUES `)
	now := time.Now().UTC()
	args := make([]interface{}, 0, len(entities)*9)
	for i, entity := range entities {
		if i > 0 {
			builder.WriteString(", ")
		}
		base := len(args)
		builder.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, uuid.NewString(), studentID, entity.Kind, entity.ID, semester, models.ApprovalPending, 0, 0, now)
	}
	builder.WriteString(" ON CONFLICT (student_id, entity_kind, entity_id, semester) DO NOTHING")
	if _, err := r.db.ExecContext(ctx, builder.String(), args...); err != nil {
		return fmt.Errorf("ensure approval items: %w", err)
	}
	return nil
}

type approvalItemUpdate struct {
	approvalItemRow
	ExpectedVersion int64 `db:"expected_version"`
}

// Update persists a transitioned item. The write only succeeds when the stored version still
// equals expectedVersion; otherwise sql.ErrNoRows is returned.
func (r *ApprovalItemRepository) Update(ctx context.Context, item *models.ApprovalItem, expectedVersion int64) error {
	parts := models.SplitSubmission(item.Submission)
	params := approvalItemUpdate{
		approvalItemRow: approvalItemRow{
			ID:               item.ID,
			Status:           string(item.Status),
			SubmissionType:   sql.NullString{String: string(parts.Type), Valid: parts.Type != ""},
			FileRefs:         pq.StringArray(parts.FileRefs),
			LinkURL:          sql.NullString{String: parts.URL, Valid: parts.URL != ""},
			ChecklistAnswers: pq.BoolArray(parts.Answers),
			Notes:            sql.NullString{String: parts.Notes, Valid: parts.Notes != ""},
			Remarks:          toNullString(item.Remarks),
			ApproverRef:      toNullString(item.ApproverRef),
			Version:          item.Version,
			RejectionCount:   item.RejectionCount,
			RequestedAt:      toNullTime(item.RequestedAt),
			DecidedAt:        toNullTime(item.DecidedAt),
			UpdatedAt:        item.UpdatedAt,
		},
		ExpectedVersion: expectedVersion,
	}
	const query = `UPDATE approval_items SET
	status = :status, submission_type = :submission_type, file_refs = :file_refs, link_url = :link_url,
	checklist_answers = :checklist_answers, notes = :notes, remarks = :remarks, approver_ref = :approver_ref,
	version = :version, rejection_count = :rejection_count, requested_at = :requested_at,
	decided_at = :decided_at, updated_at = :updated_at
	WHERE id = :id AND version = :expected_version`
	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update approval item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval item update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func toNullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func toNullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
