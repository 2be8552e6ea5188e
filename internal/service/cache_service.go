package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// bump the version when the cached AggregateClearance shape changes
const clearanceCacheVersion = "v1"

func clearanceCacheKey(studentID string, semester models.Semester) string {
	return fmt.Sprintf("clearance:%s:%s:%s", clearanceCacheVersion, studentID, semester)
}

// CacheService keeps the aggregate clearance views served to polling clients. Every approval
// transition invalidates the view of its clearance, so the TTL only bounds staleness after
// writes made outside this service.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// GetAggregate returns the cached view, reporting false on a miss or a failing cache.
func (s *CacheService) GetAggregate(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, bool) {
	if !s.Enabled() {
		return nil, false
	}
	key := clearanceCacheKey(studentID, semester)
	start := time.Now()
	var record models.AggregateClearance
	err := s.repo.Get(ctx, key, &record)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("clearance cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return &record, true
}

// SetAggregate stores the view. A failing cache is logged and otherwise ignored.
func (s *CacheService) SetAggregate(ctx context.Context, record *models.AggregateClearance, ttl time.Duration) {
	if !s.Enabled() || record == nil {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	key := clearanceCacheKey(record.StudentID, record.Semester)
	start := time.Now()
	err := s.repo.Set(ctx, key, record, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("clearance cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateClearance drops the cached aggregate view of one student and semester.
func (s *CacheService) InvalidateClearance(ctx context.Context, studentID string, semester models.Semester) error {
	if !s.Enabled() {
		return nil
	}
	key := clearanceCacheKey(studentID, semester)
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.Warn("clearance cache invalidate failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
