package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/sma-clearance-api/internal/models"
)

type storedRequirement struct {
	Type         *string  `json:"type"`
	Instructions *string  `json:"instructions"`
	Checklist    []string `json:"checklist"`
}

// ResolveRequirement decodes the raw requirement stored on a subject or department.
// It never fails: anything that is not a JSON object is treated as legacy free-form
// instructions of type text.
func ResolveRequirement(raw string) models.RequirementDescriptor {
	trimmed := strings.TrimSpace(raw)
	legacy := models.RequirementDescriptor{Type: models.RequirementText, Instructions: raw}
	if !strings.HasPrefix(trimmed, "{") {
		return legacy
	}

	var stored storedRequirement
	if err := json.Unmarshal([]byte(trimmed), &stored); err != nil {
		return legacy
	}

	descriptor := models.RequirementDescriptor{Type: models.RequirementText}
	if stored.Type != nil {
		descriptor.Type = models.ParseRequirementType(*stored.Type)
	}
	if stored.Instructions != nil {
		descriptor.Instructions = *stored.Instructions
	}
	if descriptor.Type == models.RequirementChecklist {
		labels := make([]string, 0, len(stored.Checklist))
		for _, label := range stored.Checklist {
			if strings.TrimSpace(label) != "" {
				labels = append(labels, label)
			}
		}
		if len(labels) == 0 {
			descriptor.Type = models.RequirementText
		} else {
			descriptor.Checklist = labels
		}
	}
	return descriptor
}

// EncodeRequirement produces the stored form of a descriptor.
func EncodeRequirement(d models.RequirementDescriptor) (string, error) {
	if d.Type == "" {
		d.Type = models.RequirementText
	}
	if d.Type == models.RequirementChecklist && len(d.Checklist) == 0 {
		return "", fmt.Errorf("checklist requirement needs at least one item")
	}
	for i, label := range d.Checklist {
		if strings.TrimSpace(label) == "" {
			return "", fmt.Errorf("checklist item %d has no label", i+1)
		}
	}
	if d.Type != models.RequirementChecklist {
		d.Checklist = nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode requirement: %w", err)
	}
	return string(payload), nil
}
