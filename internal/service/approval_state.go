package service

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

// Decision is an approver's answer to a request.
type Decision string

const (
	DecisionApprove Decision = "Approved"
	DecisionReject  Decision = "Rejected"
)

// ParseDecision accepts the status names and the verbs used by approver UIs.
func ParseDecision(raw string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "approve":
		return DecisionApprove, true
	case "rejected", "reject":
		return DecisionReject, true
	default:
		return "", false
	}
}

// CanRequest reports whether a request-approval action would change the item.
func CanRequest(status models.ApprovalStatus) bool {
	return status == models.ApprovalPending || status == models.ApprovalRejected
}

// RequestApproval moves Pending or Rejected items to Requested and stores the submission.
// Remarks from an earlier rejection stay on the item. Requested and Approved items are left
// untouched and false is returned.
func RequestApproval(item *models.ApprovalItem, submission models.Submission, now time.Time) bool {
	if item == nil || !CanRequest(item.Status) {
		return false
	}
	item.Status = models.ApprovalRequested
	item.Submission = submission
	item.RequestedAt = &now
	item.DecidedAt = nil
	item.Version++
	item.UpdatedAt = now
	return true
}

// RespondApproval applies an approver decision to a Requested item. Items in any other state
// are left untouched and false is returned. Rejections require remarks.
func RespondApproval(item *models.ApprovalItem, decision Decision, approverRef, remarks string, now time.Time) (bool, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return false, appErrors.Clone(appErrors.ErrValidation, "decision must be Approved or Rejected")
	}
	if decision == DecisionReject && strings.TrimSpace(remarks) == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "remarks are required when rejecting")
	}
	if item == nil || item.Status != models.ApprovalRequested {
		return false, nil
	}

	ref := approverRef
	item.ApproverRef = &ref
	item.DecidedAt = &now
	item.UpdatedAt = now
	item.Version++
	if decision == DecisionApprove {
		item.Status = models.ApprovalApproved
		return true, nil
	}
	note := strings.TrimSpace(remarks)
	item.Status = models.ApprovalRejected
	item.Remarks = &note
	item.RejectionCount++
	return true, nil
}
