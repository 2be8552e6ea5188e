package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-clearance-api/internal/models"
)

var linkValidator = validator.New()

// validLink accepts absolute http(s) URLs with a host and no whitespace.
func validLink(link string) bool {
	if strings.IndexFunc(link, unicode.IsSpace) >= 0 {
		return false
	}
	return linkValidator.Var(link, "required,http_url") == nil
}

// ValidationResult tells the caller whether the request action may be enabled.
type ValidationResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func pass() ValidationResult { return ValidationResult{OK: true} }

func fail(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Reason: fmt.Sprintf(format, args...)}
}

// ValidateSubmission checks a candidate submission against the requirement it answers.
func ValidateSubmission(d models.RequirementDescriptor, s models.Submission) ValidationResult {
	if s == nil {
		return fail("a %s submission is required", d.Type)
	}
	parts := models.SplitSubmission(s)
	if parts.Type != d.Type {
		return fail("requirement expects a %s submission, got %s", d.Type, parts.Type)
	}

	switch d.Type {
	case models.RequirementLink:
		link := strings.TrimSpace(parts.URL)
		if link == "" {
			return fail("a link is required")
		}
		if !validLink(link) {
			return fail("link must start with http:// or https://")
		}
		return pass()
	case models.RequirementChecklist:
		if len(parts.Answers) != len(d.Checklist) {
			return fail("expected %d checklist answers, got %d", len(d.Checklist), len(parts.Answers))
		}
		for _, checked := range parts.Answers {
			if checked {
				return pass()
			}
		}
		return fail("check at least one checklist item")
	default:
		for _, ref := range parts.FileRefs {
			if strings.TrimSpace(ref) != "" {
				return pass()
			}
		}
		return fail("attach at least one file")
	}
}
