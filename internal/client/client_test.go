package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, payload map[string]interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(payload))
}

func TestFetchApprovalItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/clearances/stu-1/1st/items", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeEnvelope(t, w, http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{{
				"id": "i-1", "studentId": "stu-1", "entityKind": "subject", "entityId": "math",
				"semester": "1st", "status": "Requested", "version": 2,
				"submission": map[string]interface{}{"type": "link", "url": "https://example.com/work"},
			}},
		})
	}))
	defer server.Close()

	items, err := New(server.URL+"/api/v1/", "tok").FetchApprovalItems(context.Background(), "stu-1", models.SemesterFirst)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, models.ApprovalRequested, items[0].Status)
	require.Equal(t, models.LinkSubmission{URL: "https://example.com/work"}, items[0].Submission)
}

func TestFetchApprovalItemsDecodesErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(t, w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]interface{}{"code": "CLEARANCE_NOT_CREATED", "message": "clearance not yet created", "status": 404},
		})
	}))
	defer server.Close()

	_, err := New(server.URL, "").FetchApprovalItems(context.Background(), "stu-1", models.SemesterSecond)
	require.ErrorIs(t, err, appErrors.ErrClearanceNotCreated)
}

func TestFetchApprovalItemsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url, "").FetchApprovalItems(context.Background(), "stu-1", models.SemesterFirst)
	require.ErrorIs(t, err, appErrors.ErrUnavailable)
}

func TestSubmitApprovalSendsTaggedSubmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/clearances/stu-1/1st/items/department/library/request", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"submission":{"type":"checklist","answers":[true,true]}}`, string(raw))
		writeEnvelope(t, w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"id": "i-3", "studentId": "stu-1", "entityKind": "department", "entityId": "library", "semester": "1st", "status": "Requested"},
			"meta": map[string]interface{}{"changed": true},
		})
	}))
	defer server.Close()

	key := models.ItemKey{StudentID: "stu-1", EntityKind: models.EntityDepartment, EntityID: "library", Semester: models.SemesterFirst}
	item, changed, err := New(server.URL, "").SubmitApproval(context.Background(), key, models.ChecklistSubmission{Answers: []bool{true, true}})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.ApprovalRequested, item.Status)
}

func TestValidateSubmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/clearances/stu-1/1st/items/subject/math/validate", r.URL.Path)
		writeEnvelope(t, w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"ok": false, "reason": "a valid http(s) link is required"},
		})
	}))
	defer server.Close()

	key := models.ItemKey{StudentID: "stu-1", EntityKind: models.EntitySubject, EntityID: "math", Semester: models.SemesterFirst}
	result, err := New(server.URL, "").ValidateSubmission(context.Background(), key, models.LinkSubmission{URL: "nope"})
	require.NoError(t, err)
	require.False(t, result.OK)
	require.NotEmpty(t, result.Reason)
}

func TestNonEnvelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, "").FetchAggregate(context.Background(), "stu-1", models.SemesterFirst)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusBadGateway, appErr.Status)
}
