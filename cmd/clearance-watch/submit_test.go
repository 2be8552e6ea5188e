package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

type apiStub struct {
	items      []models.ApprovalItem
	validation dto.ValidationResponse
	result     *models.ApprovalItem
	changed    bool
	submits    int
}

func (s *apiStub) FetchApprovalItems(context.Context, string, models.Semester) ([]models.ApprovalItem, error) {
	return append([]models.ApprovalItem(nil), s.items...), nil
}

func (s *apiStub) ValidateSubmission(context.Context, models.ItemKey, models.Submission) (dto.ValidationResponse, error) {
	return s.validation, nil
}

func (s *apiStub) SubmitApproval(context.Context, models.ItemKey, models.Submission) (*models.ApprovalItem, bool, error) {
	s.submits++
	return s.result, s.changed, nil
}

func watchItem(status models.ApprovalStatus, version int64) models.ApprovalItem {
	return models.ApprovalItem{
		ID: "item-math", StudentID: "stu-1", EntityKind: models.EntitySubject, EntityID: "math",
		Semester: models.SemesterFirst, Status: status, Version: version,
	}
}

func mathItemKey() models.ItemKey {
	return models.ItemKey{StudentID: "stu-1", EntityKind: models.EntitySubject, EntityID: "math", Semester: models.SemesterFirst}
}

func TestBuildSubmission(t *testing.T) {
	sub, err := buildSubmission("LINK", " https://drive.example.com/x ", nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, models.LinkSubmission{URL: "https://drive.example.com/x"}, sub)

	sub, err = buildSubmission("file", "", []string{"uploads/a.pdf"}, "", nil)
	require.NoError(t, err)
	require.Equal(t, models.FileSubmission{FileRefs: []string{"uploads/a.pdf"}}, sub)

	sub, err = buildSubmission("checklist", "", nil, "", []bool{true, false})
	require.NoError(t, err)
	require.Equal(t, models.ChecklistSubmission{Answers: []bool{true, false}}, sub)

	_, err = buildSubmission("checklist", "", nil, "", nil)
	require.Error(t, err)

	sub, err = buildSubmission("text", "", []string{"f"}, "see attached", nil)
	require.NoError(t, err)
	require.Equal(t, models.TextSubmission{FileRefs: []string{"f"}, Notes: "see attached"}, sub)
}

func TestSubmitAndTrackAppliesAcceptedRequest(t *testing.T) {
	requested := watchItem(models.ApprovalRequested, 1)
	api := &apiStub{
		items:      []models.ApprovalItem{watchItem(models.ApprovalPending, 0)},
		validation: dto.ValidationResponse{OK: true},
		result:     &requested,
		changed:    true,
	}
	reconciler, hub, _ := newReconciler(zap.NewNop())
	sub := hub.Subscribe(4)
	defer hub.Unsubscribe(sub)

	ctx := context.Background()
	_, err := reconciler.Poll(ctx, api, "stu-1", models.SemesterFirst)
	require.NoError(t, err)
	<-sub.Events
	inFlight := reconciler.BeginPoll()

	item, changed, err := submitAndTrack(ctx, api, reconciler, mathItemKey(), models.LinkSubmission{URL: "https://x.io"})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.ApprovalRequested, item.Status)

	event := <-sub.Events
	require.Equal(t, []string{"math"}, event.EntityIDs)
	_, ok := reconciler.Draft(mathItemKey())
	require.False(t, ok)

	// the poll dispatched before the submit still says Pending
	changedKeys, applied := reconciler.ApplySnapshot(inFlight, []models.ApprovalItem{watchItem(models.ApprovalPending, 1)})
	require.True(t, applied)
	require.Empty(t, changedKeys)
	require.Equal(t, models.ApprovalRequested, reconciler.Items()[0].Status)
}

func TestSubmitAndTrackKeepsDraftWhenInvalid(t *testing.T) {
	api := &apiStub{validation: dto.ValidationResponse{Reason: "a link is required"}}
	reconciler, _, _ := newReconciler(zap.NewNop())

	draft := models.LinkSubmission{URL: ""}
	_, _, err := submitAndTrack(context.Background(), api, reconciler, mathItemKey(), draft)
	require.ErrorIs(t, err, appErrors.ErrSubmissionInvalid)
	require.Zero(t, api.submits)

	kept, ok := reconciler.Draft(mathItemKey())
	require.True(t, ok)
	require.Equal(t, draft, kept)
}

func TestSubmitAndTrackUnchangedClearsDraft(t *testing.T) {
	approved := watchItem(models.ApprovalApproved, 3)
	api := &apiStub{validation: dto.ValidationResponse{OK: true}, result: &approved}
	reconciler, _, _ := newReconciler(zap.NewNop())

	item, changed, err := submitAndTrack(context.Background(), api, reconciler, mathItemKey(), models.LinkSubmission{URL: "https://x.io"})
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, models.ApprovalApproved, item.Status)
	_, ok := reconciler.Draft(mathItemKey())
	require.False(t, ok)
	require.Empty(t, reconciler.Items())
}
