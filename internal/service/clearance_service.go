package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/jobs"
)

// JobTypeRefreshAggregate recomputes and stores the derived status of one clearance.
const JobTypeRefreshAggregate = "clearance.refresh"

type clearanceStore interface {
	Get(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, error)
	Create(ctx context.Context, record *models.AggregateClearance) (bool, error)
	UpdateDerivedStatus(ctx context.Context, studentID string, semester models.Semester, status models.ClearanceStatus) error
}

type approvalItemStore interface {
	ListByStudent(ctx context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error)
	GetByID(ctx context.Context, id string) (*models.ApprovalItem, error)
	GetByKey(ctx context.Context, key models.ItemKey) (*models.ApprovalItem, error)
	EnsurePending(ctx context.Context, studentID string, semester models.Semester, entities []models.ClearanceEntity) error
	Update(ctx context.Context, item *models.ApprovalItem, expectedVersion int64) error
}

type entityStore interface {
	ListVisible(ctx context.Context, semester models.Semester) ([]models.ClearanceEntity, error)
	Get(ctx context.Context, kind models.EntityKind, id string) (*models.ClearanceEntity, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RefreshRequest is the payload of an aggregate refresh job.
type RefreshRequest struct {
	StudentID string
	Semester  models.Semester
}

// ClearanceService serves aggregate clearance records and their approval items.
type ClearanceService struct {
	records   clearanceStore
	items     approvalItemStore
	entities  entityStore
	audit     auditWriter
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// ClearanceServiceOption configures the service.
type ClearanceServiceOption func(*ClearanceService)

// WithClearanceCache serves aggregates through the cache for the given TTL.
func WithClearanceCache(cache *CacheService, ttl time.Duration) ClearanceServiceOption {
	return func(s *ClearanceService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithClearanceAudit records administrative actions.
func WithClearanceAudit(audit auditWriter) ClearanceServiceOption {
	return func(s *ClearanceService) {
		s.audit = audit
	}
}

// NewClearanceService constructs the service.
func NewClearanceService(records clearanceStore, items approvalItemStore, entities entityStore, validate *validator.Validate, logger *zap.Logger, opts ...ClearanceServiceOption) *ClearanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ClearanceService{records: records, items: items, entities: entities, validator: validate, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// FetchAggregate returns the student's clearance for the semester with its items split by kind.
func (s *ClearanceService) FetchAggregate(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, error) {
	record, _, err := s.FetchAggregateView(ctx, studentID, semester)
	return record, err
}

// FetchAggregateView is FetchAggregate that also reports whether the cached view was served.
func (s *ClearanceService) FetchAggregateView(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, bool, error) {
	if cached, hit := s.cache.GetAggregate(ctx, studentID, semester); hit {
		return cached, true, nil
	}

	record, err := s.loadRecord(ctx, studentID, semester)
	if err != nil {
		return nil, false, err
	}
	items, err := s.loadItems(ctx, studentID, semester)
	if err != nil {
		return nil, false, err
	}
	record.SetItems(items)
	s.cache.SetAggregate(ctx, record, s.cacheTTL)
	return record, false, nil
}

// FetchApprovalItems returns the current items of a clearance. Items for visible entities
// that have none yet are created as Pending first.
func (s *ClearanceService) FetchApprovalItems(ctx context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error) {
	if _, err := s.loadRecord(ctx, studentID, semester); err != nil {
		return nil, err
	}
	return s.loadItems(ctx, studentID, semester)
}

// Descriptors returns the resolved requirement of every entity the student must clear.
func (s *ClearanceService) Descriptors(ctx context.Context, studentID string, semester models.Semester) ([]models.EntityRequirement, error) {
	if _, err := s.loadRecord(ctx, studentID, semester); err != nil {
		return nil, err
	}
	entities, err := s.entities.ListVisible(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance entities")
	}
	result := make([]models.EntityRequirement, 0, len(entities))
	for _, entity := range entities {
		result = append(result, models.EntityRequirement{
			EntityKind:   entity.Kind,
			EntityID:     entity.ID,
			EntityName:   entity.Name,
			ApproverName: entity.ApproverName,
			Descriptor:   ResolveRequirement(entity.RawRequirement),
		})
	}
	return result, nil
}

// CreateAggregate opens a clearance record. Creating an existing record returns it unchanged
// with created set to false.
func (s *ClearanceService) CreateAggregate(ctx context.Context, req dto.CreateClearanceRequest, actor *models.JWTClaims) (*models.AggregateClearance, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clearance payload")
	}
	semester, ok := models.ParseSemester(req.Semester)
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "semester must be 1st or 2nd")
	}
	studentID := strings.TrimSpace(req.StudentID)
	record := &models.AggregateClearance{
		StudentID:   studentID,
		StudentName: strings.TrimSpace(req.StudentName),
		Semester:    semester,
		SchoolYear:  strings.TrimSpace(req.SchoolYear),
		Status:      models.ClearancePending,
	}
	created, err := s.records.Create(ctx, record)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clearance")
	}
	if created {
		s.emitAudit(ctx, actor, record.ID)
	}
	if err := s.cache.InvalidateClearance(ctx, studentID, semester); err != nil {
		s.logger.Warn("failed to invalidate clearance cache", zap.String("student_id", studentID), zap.Error(err))
	}

	stored, err := s.loadRecord(ctx, studentID, semester)
	if err != nil {
		return nil, false, err
	}
	items, err := s.loadItems(ctx, studentID, semester)
	if err != nil {
		return nil, false, err
	}
	stored.SetItems(items)
	return stored, created, nil
}

// RefreshAggregate recomputes the derived status from the current items, stores it and drops
// the cached view.
func (s *ClearanceService) RefreshAggregate(ctx context.Context, studentID string, semester models.Semester) error {
	items, err := s.items.ListByStudent(ctx, studentID, semester)
	if err != nil {
		return err
	}
	status := models.DeriveClearanceStatus(items)
	if err := s.records.UpdateDerivedStatus(ctx, studentID, semester, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("refresh skipped, clearance not created", zap.String("student_id", studentID), zap.String("semester", string(semester)))
			return nil
		}
		return err
	}
	if err := s.cache.InvalidateClearance(ctx, studentID, semester); err != nil {
		return err
	}
	s.logger.Debug("clearance refreshed",
		zap.String("student_id", studentID),
		zap.String("semester", string(semester)),
		zap.String("status", string(status)))
	return nil
}

// RefreshHandler adapts RefreshAggregate to the job queue.
func (s *ClearanceService) RefreshHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		req, ok := job.Payload.(RefreshRequest)
		if !ok {
			return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
		}
		return s.RefreshAggregate(ctx, req.StudentID, req.Semester)
	}
}

func (s *ClearanceService) loadRecord(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, error) {
	record, err := s.records.Get(ctx, studentID, semester)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrClearanceNotCreated
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	return record, nil
}

func (s *ClearanceService) loadItems(ctx context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error) {
	items, err := s.items.ListByStudent(ctx, studentID, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval items")
	}
	entities, err := s.entities.ListVisible(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance entities")
	}
	missing := missingEntities(items, entities)
	if len(missing) == 0 {
		return items, nil
	}
	if err := s.items.EnsurePending(ctx, studentID, semester, missing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval items")
	}
	items, err = s.items.ListByStudent(ctx, studentID, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval items")
	}
	return items, nil
}

func (s *ClearanceService) emitAudit(ctx context.Context, actor *models.JWTClaims, recordID string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     models.AuditActionClearanceCreate,
		Resource:   "student_clearance",
		ResourceID: &recordID,
		IPAddress:  "system",
		UserAgent:  "clearance-service",
	}
	if actor != nil {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func missingEntities(items []models.ApprovalItem, entities []models.ClearanceEntity) []models.ClearanceEntity {
	held := make(map[string]struct{}, len(items))
	for _, item := range items {
		held[string(item.EntityKind)+":"+item.EntityID] = struct{}{}
	}
	var missing []models.ClearanceEntity
	for _, entity := range entities {
		if _, ok := held[string(entity.Kind)+":"+entity.ID]; !ok {
			missing = append(missing, entity)
		}
	}
	return missing
}
