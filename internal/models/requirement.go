package models

import "strings"

// RequirementType enumerates what a subject or department asks the student to submit.
type RequirementType string

const (
	RequirementText      RequirementType = "text"
	RequirementLink      RequirementType = "link"
	RequirementFile      RequirementType = "file"
	RequirementChecklist RequirementType = "checklist"
	RequirementOther     RequirementType = "other"
)

// ParseRequirementType maps a stored type name onto a known type. Unknown names fall back to text.
func ParseRequirementType(raw string) RequirementType {
	switch RequirementType(strings.ToLower(strings.TrimSpace(raw))) {
	case RequirementLink:
		return RequirementLink
	case RequirementFile:
		return RequirementFile
	case RequirementChecklist:
		return RequirementChecklist
	case RequirementOther:
		return RequirementOther
	default:
		return RequirementText
	}
}

// RequirementDescriptor is the typed specification attached to a subject or department.
// Checklist is populated only when Type is RequirementChecklist and is never empty in that case.
type RequirementDescriptor struct {
	Type         RequirementType `json:"type"`
	Instructions string          `json:"instructions"`
	Checklist    []string        `json:"checklist,omitempty"`
}

// EntityRequirement pairs a resolved descriptor with the entity it belongs to.
type EntityRequirement struct {
	EntityKind   EntityKind            `json:"entityKind"`
	EntityID     string                `json:"entityId"`
	EntityName   string                `json:"entityName"`
	ApproverName string                `json:"approverName,omitempty"`
	Descriptor   RequirementDescriptor `json:"descriptor"`
}
