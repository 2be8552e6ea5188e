package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/pkg/events"
	"github.com/noah-isme/sma-clearance-api/pkg/jobs"
)

type clearanceStoreStub struct {
	mu      sync.Mutex
	records map[string]*models.AggregateClearance
	status  map[string]models.ClearanceStatus
}

func newClearanceStoreStub(records ...models.AggregateClearance) *clearanceStoreStub {
	stub := &clearanceStoreStub{records: map[string]*models.AggregateClearance{}, status: map[string]models.ClearanceStatus{}}
	for i := range records {
		record := records[i]
		stub.records[record.StudentID+"/"+string(record.Semester)] = &record
	}
	return stub
}

func (s *clearanceStoreStub) Get(_ context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[studentID+"/"+string(semester)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *record
	return &clone, nil
}

func (s *clearanceStoreStub) Create(_ context.Context, record *models.AggregateClearance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := record.StudentID + "/" + string(record.Semester)
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	record.ID = uuid.NewString()
	clone := *record
	s.records[key] = &clone
	return true, nil
}

func (s *clearanceStoreStub) UpdateDerivedStatus(_ context.Context, studentID string, semester models.Semester, status models.ClearanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := studentID + "/" + string(semester)
	record, ok := s.records[key]
	if !ok {
		return sql.ErrNoRows
	}
	record.Status = status
	s.status[key] = status
	return nil
}

type itemStoreStub struct {
	mu        sync.Mutex
	items     map[string]*models.ApprovalItem
	ensureErr error
	updates   int
}

func newItemStoreStub(items ...models.ApprovalItem) *itemStoreStub {
	stub := &itemStoreStub{items: map[string]*models.ApprovalItem{}}
	for i := range items {
		item := items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		stub.items[item.ID] = &item
	}
	return stub
}

func (s *itemStoreStub) ListByStudent(_ context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.ApprovalItem
	for _, item := range s.items {
		if item.StudentID == studentID && item.Semester == semester {
			result = append(result, *item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EntityKind != result[j].EntityKind {
			return result[i].EntityKind > result[j].EntityKind
		}
		return result[i].EntityID < result[j].EntityID
	})
	return result, nil
}

func (s *itemStoreStub) GetByID(_ context.Context, id string) (*models.ApprovalItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (s *itemStoreStub) GetByKey(_ context.Context, key models.ItemKey) (*models.ApprovalItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.Key() == key {
			clone := *item
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *itemStoreStub) EnsurePending(_ context.Context, studentID string, semester models.Semester, entities []models.ClearanceEntity) error {
	if s.ensureErr != nil {
		return s.ensureErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entity := range entities {
		key := models.ItemKey{StudentID: studentID, EntityKind: entity.Kind, EntityID: entity.ID, Semester: semester}
		exists := false
		for _, item := range s.items {
			if item.Key() == key {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		id := uuid.NewString()
		s.items[id] = &models.ApprovalItem{
			ID:         id,
			StudentID:  studentID,
			EntityKind: entity.Kind,
			EntityID:   entity.ID,
			EntityName: entity.Name,
			Semester:   semester,
			Status:     models.ApprovalPending,
		}
	}
	return nil
}

func (s *itemStoreStub) Update(_ context.Context, item *models.ApprovalItem, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[item.ID]
	if !ok || stored.Version != expectedVersion {
		return sql.ErrNoRows
	}
	clone := *item
	s.items[item.ID] = &clone
	s.updates++
	return nil
}

func (s *itemStoreStub) bump(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].Version++
}

type entityStoreStub struct {
	entities []models.ClearanceEntity
}

func (s *entityStoreStub) ListVisible(_ context.Context, _ models.Semester) ([]models.ClearanceEntity, error) {
	return append([]models.ClearanceEntity(nil), s.entities...), nil
}

func (s *entityStoreStub) Get(_ context.Context, kind models.EntityKind, id string) (*models.ClearanceEntity, error) {
	for _, entity := range s.entities {
		if entity.Kind == kind && entity.ID == id {
			clone := entity
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

type publisherRecorder struct {
	mu     sync.Mutex
	events []events.StatusChanged
}

func (p *publisherRecorder) Publish(event events.StatusChanged) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

type schedulerRecorder struct {
	jobs []jobs.Job
}

func (s *schedulerRecorder) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func sampleEntities() []models.ClearanceEntity {
	signature := "signatures/reyes.png"
	return []models.ClearanceEntity{
		{Kind: models.EntitySubject, ID: "math", Name: "Mathematics", ApproverID: "teacher-1", ApproverName: "Mr. Reyes", SignatureRef: &signature, RawRequirement: `{"type":"link","instructions":"Share your portfolio"}`},
		{Kind: models.EntitySubject, ID: "science", Name: "Science", ApproverID: "teacher-2", ApproverName: "Ms. Santos", RawRequirement: `{"type":"checklist","checklist":["A","B","C"]}`},
		{Kind: models.EntityDepartment, ID: "library", Name: "Library", ApproverID: "staff-1", ApproverName: "Ms. Lim", RawRequirement: "Return all borrowed books"},
	}
}

func sampleRecord() models.AggregateClearance {
	return models.AggregateClearance{ID: "clr-1", StudentID: "stu-1", StudentName: "Ana Cruz", Semester: models.SemesterFirst, SchoolYear: "2025-2026", Status: models.ClearancePending}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func approverClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}
