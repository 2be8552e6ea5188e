package models

import (
	"encoding/json"
	"fmt"
)

// Submission is the payload a student attaches when requesting approval. The concrete type
// always matches the RequirementType of the descriptor it answers.
type Submission interface {
	Kind() RequirementType
	isSubmission()
}

// TextSubmission answers a free-form requirement with files and optional notes.
type TextSubmission struct {
	FileRefs []string `json:"fileRefs"`
	Notes    string   `json:"notes,omitempty"`
}

// LinkSubmission answers a link requirement with a single URL.
type LinkSubmission struct {
	URL string `json:"url"`
}

// FileSubmission answers a file requirement with one or more file references.
type FileSubmission struct {
	FileRefs []string `json:"fileRefs"`
}

// ChecklistSubmission holds one answer per checklist label, in descriptor order.
type ChecklistSubmission struct {
	Answers []bool `json:"answers"`
}

// OtherSubmission behaves like TextSubmission for requirements outside the known types.
type OtherSubmission struct {
	FileRefs []string `json:"fileRefs"`
	Notes    string   `json:"notes,omitempty"`
}

func (TextSubmission) Kind() RequirementType      { return RequirementText }
func (LinkSubmission) Kind() RequirementType      { return RequirementLink }
func (FileSubmission) Kind() RequirementType      { return RequirementFile }
func (ChecklistSubmission) Kind() RequirementType { return RequirementChecklist }
func (OtherSubmission) Kind() RequirementType     { return RequirementOther }

func (TextSubmission) isSubmission()      {}
func (LinkSubmission) isSubmission()      {}
func (FileSubmission) isSubmission()      {}
func (ChecklistSubmission) isSubmission() {}
func (OtherSubmission) isSubmission()     {}

type submissionEnvelope struct {
	Type     RequirementType `json:"type"`
	FileRefs []string        `json:"fileRefs,omitempty"`
	Notes    string          `json:"notes,omitempty"`
	URL      string          `json:"url,omitempty"`
	Answers  []bool          `json:"answers,omitempty"`
}

// MarshalSubmission encodes a submission with its type tag. A nil submission encodes as null.
func MarshalSubmission(s Submission) ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	parts := SplitSubmission(s)
	return json.Marshal(submissionEnvelope{
		Type:     parts.Type,
		FileRefs: parts.FileRefs,
		Notes:    parts.Notes,
		URL:      parts.URL,
		Answers:  parts.Answers,
	})
}

// DecodeSubmission reads a tagged submission. Unlike descriptors, unknown tags are rejected.
func DecodeSubmission(raw []byte) (Submission, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env submissionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	switch env.Type {
	case RequirementText, RequirementLink, RequirementFile, RequirementChecklist, RequirementOther:
	default:
		return nil, fmt.Errorf("decode submission: unknown type %q", env.Type)
	}
	return JoinSubmission(SubmissionParts{
		Type:     env.Type,
		FileRefs: env.FileRefs,
		Notes:    env.Notes,
		URL:      env.URL,
		Answers:  env.Answers,
	}), nil
}

// SubmissionParts is the flattened form of a submission used for storage.
type SubmissionParts struct {
	Type     RequirementType
	FileRefs []string
	Notes    string
	URL      string
	Answers  []bool
}

// SplitSubmission flattens a submission into its storable parts.
func SplitSubmission(s Submission) SubmissionParts {
	switch v := s.(type) {
	case TextSubmission:
		return SubmissionParts{Type: RequirementText, FileRefs: v.FileRefs, Notes: v.Notes}
	case *TextSubmission:
		return SplitSubmission(*v)
	case LinkSubmission:
		return SubmissionParts{Type: RequirementLink, URL: v.URL}
	case *LinkSubmission:
		return SplitSubmission(*v)
	case FileSubmission:
		return SubmissionParts{Type: RequirementFile, FileRefs: v.FileRefs}
	case *FileSubmission:
		return SplitSubmission(*v)
	case ChecklistSubmission:
		return SubmissionParts{Type: RequirementChecklist, Answers: v.Answers}
	case *ChecklistSubmission:
		return SplitSubmission(*v)
	case OtherSubmission:
		return SubmissionParts{Type: RequirementOther, FileRefs: v.FileRefs, Notes: v.Notes}
	case *OtherSubmission:
		return SplitSubmission(*v)
	default:
		return SubmissionParts{}
	}
}

// JoinSubmission rebuilds a submission from stored parts. An empty type yields nil.
func JoinSubmission(p SubmissionParts) Submission {
	switch p.Type {
	case RequirementText:
		return TextSubmission{FileRefs: p.FileRefs, Notes: p.Notes}
	case RequirementLink:
		return LinkSubmission{URL: p.URL}
	case RequirementFile:
		return FileSubmission{FileRefs: p.FileRefs}
	case RequirementChecklist:
		return ChecklistSubmission{Answers: p.Answers}
	case RequirementOther:
		return OtherSubmission{FileRefs: p.FileRefs, Notes: p.Notes}
	default:
		return nil
	}
}
