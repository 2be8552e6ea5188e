package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-clearance-api/internal/models"
)

const visibleEntitiesQuery = `SELECT 'subject' AS kind, id, name, approver_id, approver_name, signature_ref, requirements
	FROM clearance_subjects WHERE active = TRUE AND semester = $1
	UNION ALL
	SELECT 'department' AS kind, id, name, approver_id, approver_name, signature_ref, requirements
	FROM clearance_departments WHERE active = TRUE
	ORDER BY kind DESC, name ASC`

// EntityRepository reads the subjects and departments that take part in clearances.
// Managing them is done by the administration screens.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository constructs the repository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// ListVisible returns the entities a student must clear for the semester.
func (r *EntityRepository) ListVisible(ctx context.Context, semester models.Semester) ([]models.ClearanceEntity, error) {
	var entities []models.ClearanceEntity
	if err := r.db.SelectContext(ctx, &entities, visibleEntitiesQuery, semester); err != nil {
		return nil, fmt.Errorf("list clearance entities: %w", err)
	}
	return entities, nil
}

// Get returns one subject or department.
func (r *EntityRepository) Get(ctx context.Context, kind models.EntityKind, id string) (*models.ClearanceEntity, error) {
	table := "clearance_subjects"
	if kind == models.EntityDepartment {
		table = "clearance_departments"
	}
	query := fmt.Sprintf(`SELECT '%s' AS kind, id, name, approver_id, approver_name, signature_ref, requirements
	FROM %s WHERE id = $1`, kind, table)
	var entity models.ClearanceEntity
	if err := r.db.GetContext(ctx, &entity, query, id); err != nil {
		return nil, err
	}
	return &entity, nil
}
