package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/middleware"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

type clearanceServiceFake struct {
	record       *models.AggregateClearance
	created      bool
	hit          bool
	err          error
	items        []models.ApprovalItem
	descriptors  []models.EntityRequirement
	lastStudent  string
	lastSemester models.Semester
}

func (f *clearanceServiceFake) CreateAggregate(_ context.Context, req dto.CreateClearanceRequest, _ *models.JWTClaims) (*models.AggregateClearance, bool, error) {
	f.lastStudent = req.StudentID
	return f.record, f.created, f.err
}

func (f *clearanceServiceFake) FetchAggregateView(_ context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, bool, error) {
	f.lastStudent, f.lastSemester = studentID, semester
	return f.record, f.hit, f.err
}

func (f *clearanceServiceFake) FetchApprovalItems(_ context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error) {
	f.lastStudent, f.lastSemester = studentID, semester
	return f.items, f.err
}

func (f *clearanceServiceFake) Descriptors(_ context.Context, studentID string, semester models.Semester) ([]models.EntityRequirement, error) {
	f.lastStudent, f.lastSemester = studentID, semester
	return f.descriptors, f.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func TestClearanceHandlerCreateReportsCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &clearanceServiceFake{record: &models.AggregateClearance{ID: "rec-1", StudentID: "stu-1"}, created: true}
	handler := NewClearanceHandler(fake)

	payload, _ := json.Marshal(dto.CreateClearanceRequest{StudentID: "stu-1", StudentName: "Ana", Semester: "1st", SchoolYear: "2024-2025"})
	c, w := newGinContext(http.MethodPost, "/clearances", payload)
	c.Set(middleware.ContextUserKey, studentClaims("stu-1"))

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	require.Equal(t, true, meta["created"])
}

func TestClearanceHandlerCreateExistingReturnsOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &clearanceServiceFake{record: &models.AggregateClearance{ID: "rec-1", StudentID: "stu-1"}}
	handler := NewClearanceHandler(fake)

	payload, _ := json.Marshal(dto.CreateClearanceRequest{StudentID: "stu-1", StudentName: "Ana", Semester: "1st", SchoolYear: "2024-2025"})
	c, w := newGinContext(http.MethodPost, "/clearances", payload)
	c.Set(middleware.ContextUserKey, studentClaims("stu-1"))

	handler.Create(c)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	require.Equal(t, false, meta["created"])
}

func TestClearanceHandlerCreateRejectsOtherStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &clearanceServiceFake{}
	handler := NewClearanceHandler(fake)

	payload, _ := json.Marshal(dto.CreateClearanceRequest{StudentID: "stu-2", StudentName: "Ben", Semester: "1st", SchoolYear: "2024-2025"})
	c, w := newGinContext(http.MethodPost, "/clearances", payload)
	c.Set(middleware.ContextUserKey, studentClaims("stu-1"))

	handler.Create(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, fake.lastStudent)
}

func TestClearanceHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewClearanceHandler(&clearanceServiceFake{})
	c, w := newGinContext(http.MethodPost, "/clearances", []byte(`{}`))

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClearanceHandlerGetSetsCacheMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &clearanceServiceFake{record: &models.AggregateClearance{ID: "rec-1", StudentID: "stu-1"}, hit: true}
	handler := NewClearanceHandler(fake)

	c, w := newGinContext(http.MethodGet, "/clearances/stu-1/2", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "stu-1"}, {Key: "semester", Value: "2"}}

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.SemesterSecond, fake.lastSemester)
	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	require.Equal(t, true, meta["cache_hit"])
}

func TestClearanceHandlerGetRejectsBadSemester(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewClearanceHandler(&clearanceServiceFake{})

	c, w := newGinContext(http.MethodGet, "/clearances/stu-1/3rd", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "stu-1"}, {Key: "semester", Value: "3rd"}}

	handler.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearanceHandlerGetNotCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewClearanceHandler(&clearanceServiceFake{err: appErrors.ErrClearanceNotCreated})

	c, w := newGinContext(http.MethodGet, "/clearances/stu-1/1st", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "stu-1"}, {Key: "semester", Value: "1st"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decodeEnvelope(t, w)["error"].(map[string]interface{})
	require.Equal(t, "CLEARANCE_NOT_CREATED", body["code"])
}

func TestClearanceHandlerItemsAndRequirements(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &clearanceServiceFake{
		items: []models.ApprovalItem{{ID: "i-1", StudentID: "stu-1", EntityKind: models.EntitySubject, EntityID: "math", Semester: models.SemesterFirst, Status: models.ApprovalPending}},
		descriptors: []models.EntityRequirement{{
			EntityKind: models.EntitySubject,
			EntityID:   "math",
			Descriptor: models.RequirementDescriptor{Type: models.RequirementLink},
		}},
	}
	handler := NewClearanceHandler(fake)
	params := gin.Params{{Key: "studentId", Value: "stu-1"}, {Key: "semester", Value: "1st"}}

	c, w := newGinContext(http.MethodGet, "/clearances/stu-1/1st/items", nil)
	c.Params = params
	handler.Items(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeEnvelope(t, w)["data"], 1)

	c, w = newGinContext(http.MethodGet, "/clearances/stu-1/1st/requirements", nil)
	c.Params = params
	handler.Requirements(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeEnvelope(t, w)["data"], 1)
}
