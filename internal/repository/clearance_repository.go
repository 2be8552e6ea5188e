package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-clearance-api/internal/models"
)

type clearanceRow struct {
	ID            string         `db:"id"`
	StudentID     string         `db:"student_id"`
	StudentName   string         `db:"student_name"`
	Semester      string         `db:"semester"`
	SchoolYear    string         `db:"school_year"`
	StoredStatus  sql.NullString `db:"stored_status"`
	DerivedStatus string         `db:"derived_status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r clearanceRow) toModel() *models.AggregateClearance {
	record := &models.AggregateClearance{
		ID:          r.ID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Semester:    models.Semester(r.Semester),
		SchoolYear:  r.SchoolYear,
		Status:      models.ClearanceStatus(r.DerivedStatus),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.StoredStatus.Valid && r.StoredStatus.String != "" {
		status := models.ClearanceStatus(r.StoredStatus.String)
		record.StoredStatus = &status
		record.Status = status
	}
	return record
}

// ClearanceRepository persists aggregate clearance records.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs the repository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

// Get returns the record for the student and semester or sql.ErrNoRows when none was created.
func (r *ClearanceRepository) Get(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, error) {
	const query = `SELECT id, student_id, student_name, semester, school_year, stored_status, derived_status, created_at, updated_at
	FROM student_clearances WHERE student_id = $1 AND semester = $2`
	var row clearanceRow
	if err := r.db.GetContext(ctx, &row, query, studentID, semester); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// Create inserts a record, leaving an existing one for the same student and semester intact.
// The returned bool is false when the record already existed.
func (r *ClearanceRepository) Create(ctx context.Context, record *models.AggregateClearance) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = models.ClearancePending
	}
	row := clearanceRow{
		ID:            record.ID,
		StudentID:     record.StudentID,
		StudentName:   record.StudentName,
		Semester:      string(record.Semester),
		SchoolYear:    record.SchoolYear,
		DerivedStatus: string(record.Status),
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
	const query = `INSERT INTO student_clearances
	(id, student_id, student_name, semester, school_year, stored_status, derived_status, created_at, updated_at)
	VALUES (:id, :student_id, :student_name, :semester, :school_year, :stored_status, :derived_status, :created_at, :updated_at)
	ON CONFLICT (student_id, semester) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return false, fmt.Errorf("create clearance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check clearance insert rows: %w", err)
	}
	return rows > 0, nil
}

// UpdateDerivedStatus stores the status computed from the item set.
func (r *ClearanceRepository) UpdateDerivedStatus(ctx context.Context, studentID string, semester models.Semester, status models.ClearanceStatus) error {
	const query = `UPDATE student_clearances SET derived_status = $1, updated_at = $2 WHERE student_id = $3 AND semester = $4`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), studentID, semester)
	if err != nil {
		return fmt.Errorf("update clearance status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check clearance update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
