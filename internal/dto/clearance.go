package dto

import (
	"encoding/json"
	"time"
)

// CreateClearanceRequest opens a clearance record for a student and semester.
type CreateClearanceRequest struct {
	StudentID   string `json:"studentId" validate:"required"`
	StudentName string `json:"studentName" validate:"required,max=200"`
	Semester    string `json:"semester" validate:"required"`
	SchoolYear  string `json:"schoolYear" validate:"required,max=20"`
}

// SubmissionRequest carries a tagged submission, e.g. {"submission":{"type":"link","url":"https://..."}}.
type SubmissionRequest struct {
	Submission json.RawMessage `json:"submission" validate:"required"`
}

// RespondApprovalRequest is an approver decision.
type RespondApprovalRequest struct {
	Decision string `json:"decision" validate:"required,oneof=Approved Rejected approved rejected approve reject"`
	Remarks  string `json:"remarks" validate:"max=1000"`
}

// ValidationResponse mirrors the validator result so clients can gate the request action.
type ValidationResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// ExportResponse points at a freshly exported document.
type ExportResponse struct {
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
