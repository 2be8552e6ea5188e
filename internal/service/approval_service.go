package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/events"
	"github.com/noah-isme/sma-clearance-api/pkg/jobs"
)

type statusPublisher interface {
	Publish(event events.StatusChanged)
}

type jobScheduler interface {
	Enqueue(job jobs.Job) error
}

// ApprovalService runs submissions and approver decisions through the state machine and
// persists the outcome.
type ApprovalService struct {
	records   clearanceStore
	items     approvalItemStore
	entities  entityStore
	audit     auditWriter
	events    statusPublisher
	refresh   jobScheduler
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalAudit records every transition.
func WithApprovalAudit(audit auditWriter) ApprovalServiceOption {
	return func(s *ApprovalService) { s.audit = audit }
}

// WithApprovalEvents publishes status changes.
func WithApprovalEvents(publisher statusPublisher) ApprovalServiceOption {
	return func(s *ApprovalService) { s.events = publisher }
}

// WithApprovalRefresh schedules aggregate refreshes after transitions.
func WithApprovalRefresh(scheduler jobScheduler) ApprovalServiceOption {
	return func(s *ApprovalService) { s.refresh = scheduler }
}

// WithApprovalCache invalidates cached aggregate views after transitions.
func WithApprovalCache(cache *CacheService) ApprovalServiceOption {
	return func(s *ApprovalService) { s.cache = cache }
}

// WithApprovalMetrics counts transitions.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) { s.metrics = metrics }
}

// WithApprovalClock overrides the time source.
func WithApprovalClock(now func() time.Time) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewApprovalService constructs the service.
func NewApprovalService(records clearanceStore, items approvalItemStore, entities entityStore, validate *validator.Validate, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		records:   records,
		items:     items,
		entities:  entities,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Validate checks a submission against the entity's requirement without changing anything.
func (s *ApprovalService) Validate(ctx context.Context, key models.ItemKey, submission models.Submission) (ValidationResult, error) {
	entity, err := s.loadEntity(ctx, key.EntityKind, key.EntityID)
	if err != nil {
		return ValidationResult{}, err
	}
	return ValidateSubmission(ResolveRequirement(entity.RawRequirement), submission), nil
}

// SubmitApproval validates the submission and moves the item to Requested. Requests on items
// that are already Requested or Approved change nothing and report changed as false.
func (s *ApprovalService) SubmitApproval(ctx context.Context, key models.ItemKey, submission models.Submission, actor *models.JWTClaims) (*models.ApprovalItem, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() && actor.UserID != key.StudentID {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "only the student can request approval")
	}
	if _, err := s.records.Get(ctx, key.StudentID, key.Semester); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.ErrClearanceNotCreated
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	entity, err := s.loadEntity(ctx, key.EntityKind, key.EntityID)
	if err != nil {
		return nil, false, err
	}
	item, err := s.ensureItem(ctx, key, entity)
	if err != nil {
		return nil, false, err
	}
	if !CanRequest(item.Status) {
		return item, false, nil
	}

	result := ValidateSubmission(ResolveRequirement(entity.RawRequirement), submission)
	if !result.OK {
		return nil, false, appErrors.Clone(appErrors.ErrSubmissionInvalid, result.Reason)
	}

	previous := *item
	if !RequestApproval(item, submission, s.now()) {
		return item, false, nil
	}
	if err := s.persist(ctx, item, previous.Version); err != nil {
		return nil, false, err
	}
	s.afterTransition(ctx, previous, item, actor, models.AuditActionApprovalRequest)
	return item, true, nil
}

// RespondApproval applies an approver decision. Only the entity's approver or an administrator
// may respond. Decisions on items that are not Requested change nothing.
func (s *ApprovalService) RespondApproval(ctx context.Context, itemID string, req dto.RespondApprovalRequest, approver *models.JWTClaims) (*models.ApprovalItem, bool, error) {
	if approver == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	if !approver.IsApprover() {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "only approvers can respond")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	decision, ok := ParseDecision(req.Decision)
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "decision must be Approved or Rejected")
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "approval item not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval item")
	}
	entity, err := s.loadEntity(ctx, item.EntityKind, item.EntityID)
	if err != nil {
		return nil, false, err
	}
	if !approver.IsAdmin() && entity.ApproverID != approver.UserID {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "not the approver of this item")
	}

	previous := *item
	changed, err := RespondApproval(item, decision, approver.UserID, req.Remarks, s.now())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return item, false, nil
	}
	if err := s.persist(ctx, item, previous.Version); err != nil {
		return nil, false, err
	}
	action := models.AuditActionApprovalApprove
	if item.Status == models.ApprovalRejected {
		action = models.AuditActionApprovalReject
	}
	s.afterTransition(ctx, previous, item, approver, action)
	return item, true, nil
}

func (s *ApprovalService) loadEntity(ctx context.Context, kind models.EntityKind, id string) (*models.ClearanceEntity, error) {
	entity, err := s.entities.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject or department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject or department")
	}
	return entity, nil
}

func (s *ApprovalService) ensureItem(ctx context.Context, key models.ItemKey, entity *models.ClearanceEntity) (*models.ApprovalItem, error) {
	item, err := s.items.GetByKey(ctx, key)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval item")
	}
	if err := s.items.EnsurePending(ctx, key.StudentID, key.Semester, []models.ClearanceEntity{*entity}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval item")
	}
	item, err = s.items.GetByKey(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval item")
	}
	return item, nil
}

func (s *ApprovalService) persist(ctx context.Context, item *models.ApprovalItem, expectedVersion int64) error {
	if err := s.items.Update(ctx, item, expectedVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "approval item was changed by someone else, reload and try again")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update approval item")
	}
	return nil
}

func (s *ApprovalService) afterTransition(ctx context.Context, previous models.ApprovalItem, item *models.ApprovalItem, actor *models.JWTClaims, action string) {
	s.metrics.RecordTransition(string(item.EntityKind), string(previous.Status), string(item.Status))
	s.emitAudit(ctx, previous, item, actor, action)

	if s.events != nil {
		s.events.Publish(events.StatusChanged{
			StudentID: item.StudentID,
			Semester:  string(item.Semester),
			EntityIDs: []string{item.EntityID},
		})
	}
	if err := s.cache.InvalidateClearance(ctx, item.StudentID, item.Semester); err != nil {
		s.logger.Warn("failed to invalidate clearance cache", zap.String("student_id", item.StudentID), zap.Error(err))
	}
	if s.refresh != nil {
		job := jobs.Job{
			ID:      item.ID,
			Type:    JobTypeRefreshAggregate,
			Key:     item.StudentID + "/" + string(item.Semester),
			Payload: RefreshRequest{StudentID: item.StudentID, Semester: item.Semester},
		}
		if err := s.refresh.Enqueue(job); err != nil {
			s.logger.Warn("failed to schedule clearance refresh", zap.String("student_id", item.StudentID), zap.Error(err))
		}
	}

	s.logger.Info("approval item transitioned",
		zap.String("item_id", item.ID),
		zap.String("key", item.Key().String()),
		zap.String("from", string(previous.Status)),
		zap.String("to", string(item.Status)))
}

func (s *ApprovalService) emitAudit(ctx context.Context, previous models.ApprovalItem, item *models.ApprovalItem, actor *models.JWTClaims, action string) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(auditSnapshot(previous))
	newValues, _ := json.Marshal(auditSnapshot(*item))
	itemID := item.ID
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "approval_item",
		ResourceID: &itemID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if actor != nil {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

type itemAuditSnapshot struct {
	Status         models.ApprovalStatus `json:"status"`
	Remarks        *string               `json:"remarks,omitempty"`
	ApproverRef    *string               `json:"approverRef,omitempty"`
	RejectionCount int                   `json:"rejectionCount"`
	Version        int64                 `json:"version"`
}

func auditSnapshot(item models.ApprovalItem) itemAuditSnapshot {
	return itemAuditSnapshot{
		Status:         item.Status,
		Remarks:        item.Remarks,
		ApproverRef:    item.ApproverRef,
		RejectionCount: item.RejectionCount,
		Version:        item.Version,
	}
}
