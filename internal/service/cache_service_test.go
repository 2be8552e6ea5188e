package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

type memoryCache struct {
	values  map[string][]byte
	failGet error
}

func newMemoryCache() *memoryCache { return &memoryCache{values: map[string][]byte{}} }

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	if m.failGet != nil {
		return m.failGet
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestCacheServiceAggregateRoundTrip(t *testing.T) {
	repo := newMemoryCache()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	_, hit := svc.GetAggregate(ctx, "stu-1", models.SemesterFirst)
	require.False(t, hit)

	record := sampleRecord()
	record.SetItems([]models.ApprovalItem{{
		ID: "i-1", StudentID: "stu-1", EntityKind: models.EntityDepartment, EntityID: "library",
		Semester: models.SemesterFirst, Status: models.ApprovalRequested,
		Submission: models.ChecklistSubmission{Answers: []bool{true, false}},
	}})
	svc.SetAggregate(ctx, &record, 0)

	cached, hit := svc.GetAggregate(ctx, "stu-1", models.SemesterFirst)
	require.True(t, hit)
	require.Equal(t, models.ChecklistSubmission{Answers: []bool{true, false}}, cached.DepartmentItems[0].Submission)
	require.Equal(t, uint64(1), metrics.Snapshot().CacheHits)

	require.NoError(t, svc.InvalidateClearance(ctx, "stu-1", models.SemesterFirst))
	_, hit = svc.GetAggregate(ctx, "stu-1", models.SemesterFirst)
	require.False(t, hit)
}

func TestCacheServiceTreatsFailuresAsMiss(t *testing.T) {
	repo := newMemoryCache()
	repo.failGet = errors.New("connection refused")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	_, hit := svc.GetAggregate(context.Background(), "stu-1", models.SemesterFirst)
	require.False(t, hit)

	disabled := NewCacheService(repo, nil, time.Minute, nil, false)
	require.False(t, disabled.Enabled())
	require.NoError(t, disabled.InvalidateClearance(context.Background(), "stu-1", models.SemesterFirst))

	var none *CacheService
	_, hit = none.GetAggregate(context.Background(), "stu-1", models.SemesterFirst)
	require.False(t, hit)
}
