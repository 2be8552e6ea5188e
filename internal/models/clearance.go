package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Semester identifies the half of the school year a clearance belongs to.
type Semester string

const (
	SemesterFirst  Semester = "1st"
	SemesterSecond Semester = "2nd"
)

// ParseSemester accepts the canonical names plus the plain numbers used in URLs.
func ParseSemester(raw string) (Semester, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1st", "1", "first":
		return SemesterFirst, true
	case "2nd", "2", "second":
		return SemesterSecond, true
	default:
		return "", false
	}
}

// EntityKind tags whether an approval item belongs to a subject or a department.
type EntityKind string

const (
	EntitySubject    EntityKind = "subject"
	EntityDepartment EntityKind = "department"
)

// ParseEntityKind accepts singular and plural spellings.
func ParseEntityKind(raw string) (EntityKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "subject", "subjects":
		return EntitySubject, true
	case "department", "departments":
		return EntityDepartment, true
	default:
		return "", false
	}
}

// ApprovalStatus is the lifecycle state of one approval item.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "Pending"
	ApprovalRequested ApprovalStatus = "Requested"
	ApprovalApproved  ApprovalStatus = "Approved"
	ApprovalRejected  ApprovalStatus = "Rejected"
)

// Valid reports whether the status is one of the four lifecycle states.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalRequested, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// ItemKey is the identity of an approval item. At most one item exists per key.
type ItemKey struct {
	StudentID  string     `json:"studentId"`
	EntityKind EntityKind `json:"entityKind"`
	EntityID   string     `json:"entityId"`
	Semester   Semester   `json:"semester"`
}

// String renders the key for logs and cache keys.
func (k ItemKey) String() string {
	return string(k.EntityKind) + ":" + k.EntityID + "@" + k.StudentID + "/" + string(k.Semester)
}

// ApprovalItem is one subject or department sign-off for one student and semester.
type ApprovalItem struct {
	ID             string         `json:"id"`
	StudentID      string         `json:"studentId"`
	EntityKind     EntityKind     `json:"entityKind"`
	EntityID       string         `json:"entityId"`
	EntityName     string         `json:"entityName,omitempty"`
	Semester       Semester       `json:"semester"`
	Status         ApprovalStatus `json:"status"`
	Submission     Submission     `json:"-"`
	Remarks        *string        `json:"remarks,omitempty"`
	ApproverRef    *string        `json:"approverRef,omitempty"`
	Version        int64          `json:"version"`
	RejectionCount int            `json:"rejectionCount"`
	RequestedAt    *time.Time     `json:"requestedAt,omitempty"`
	DecidedAt      *time.Time     `json:"decidedAt,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Key returns the identity of the item.
func (i ApprovalItem) Key() ItemKey {
	return ItemKey{StudentID: i.StudentID, EntityKind: i.EntityKind, EntityID: i.EntityID, Semester: i.Semester}
}

// UnderReEvaluation reports a resubmission that follows an earlier rejection.
func (i ApprovalItem) UnderReEvaluation() bool {
	return i.Status == ApprovalRequested && i.RejectionCount > 0
}

type approvalItemJSON ApprovalItem

// MarshalJSON includes the tagged submission payload.
func (i ApprovalItem) MarshalJSON() ([]byte, error) {
	submission, err := MarshalSubmission(i.Submission)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		approvalItemJSON
		Submission json.RawMessage `json:"submission"`
	}{approvalItemJSON: approvalItemJSON(i), Submission: submission})
}

// UnmarshalJSON decodes the tagged submission payload.
func (i *ApprovalItem) UnmarshalJSON(data []byte) error {
	var wire struct {
		approvalItemJSON
		Submission json.RawMessage `json:"submission"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	submission, err := DecodeSubmission(wire.Submission)
	if err != nil {
		return err
	}
	*i = ApprovalItem(wire.approvalItemJSON)
	i.Submission = submission
	return nil
}

// ClearanceEntity is a subject or department as seen by the clearance workflow.
type ClearanceEntity struct {
	Kind           EntityKind `db:"kind" json:"kind"`
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	ApproverID     string     `db:"approver_id" json:"approverId"`
	ApproverName   string     `db:"approver_name" json:"approverName"`
	SignatureRef   *string    `db:"signature_ref" json:"signatureRef,omitempty"`
	RawRequirement string     `db:"requirements" json:"-"`
}

// ClearanceStatus is the overall status of a student's semester clearance.
type ClearanceStatus string

const (
	ClearancePending      ClearanceStatus = "Pending"
	ClearanceCleared      ClearanceStatus = "Cleared"
	ClearanceRejected     ClearanceStatus = "Rejected"
	ClearanceReEvaluation ClearanceStatus = "Re-evaluation"
)

// AggregateClearance is the per student, per semester container of approval items.
type AggregateClearance struct {
	ID              string           `json:"id"`
	StudentID       string           `json:"studentId"`
	StudentName     string           `json:"studentName"`
	Semester        Semester         `json:"semester"`
	SchoolYear      string           `json:"schoolYear"`
	Status          ClearanceStatus  `json:"status"`
	StoredStatus    *ClearanceStatus `json:"storedStatus,omitempty"`
	SubjectItems    []ApprovalItem   `json:"subjectItems"`
	DepartmentItems []ApprovalItem   `json:"departmentItems"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Items returns subject items followed by department items.
func (a *AggregateClearance) Items() []ApprovalItem {
	items := make([]ApprovalItem, 0, len(a.SubjectItems)+len(a.DepartmentItems))
	items = append(items, a.SubjectItems...)
	return append(items, a.DepartmentItems...)
}

// SetItems splits items by entity kind and refreshes the derived status.
func (a *AggregateClearance) SetItems(items []ApprovalItem) {
	a.SubjectItems = make([]ApprovalItem, 0)
	a.DepartmentItems = make([]ApprovalItem, 0)
	for _, item := range items {
		if item.EntityKind == EntityDepartment {
			a.DepartmentItems = append(a.DepartmentItems, item)
		} else {
			a.SubjectItems = append(a.SubjectItems, item)
		}
	}
	if a.StoredStatus != nil {
		a.Status = *a.StoredStatus
		return
	}
	a.Status = DeriveClearanceStatus(items)
}

// Complete reports whether every item has been approved.
func (a *AggregateClearance) Complete() bool {
	return DeriveClearanceStatus(a.Items()) == ClearanceCleared
}

// DeriveClearanceStatus computes the overall status from the item set.
func DeriveClearanceStatus(items []ApprovalItem) ClearanceStatus {
	if len(items) == 0 {
		return ClearancePending
	}
	approved := 0
	reEvaluation := false
	for _, item := range items {
		switch item.Status {
		case ApprovalRejected:
			return ClearanceRejected
		case ApprovalApproved:
			approved++
		}
		if item.UnderReEvaluation() {
			reEvaluation = true
		}
	}
	if approved == len(items) {
		return ClearanceCleared
	}
	if reEvaluation {
		return ClearanceReEvaluation
	}
	return ClearancePending
}
