package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-clearance-api/internal/middleware"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func semesterParam(c *gin.Context) (models.Semester, error) {
	semester, ok := models.ParseSemester(c.Param("semester"))
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "semester must be 1st or 2nd")
	}
	return semester, nil
}

func itemKeyParams(c *gin.Context) (models.ItemKey, error) {
	semester, err := semesterParam(c)
	if err != nil {
		return models.ItemKey{}, err
	}
	kind, ok := models.ParseEntityKind(c.Param("kind"))
	if !ok {
		return models.ItemKey{}, appErrors.Clone(appErrors.ErrValidation, "kind must be subject or department")
	}
	entityID := c.Param("entityId")
	if entityID == "" {
		return models.ItemKey{}, appErrors.Clone(appErrors.ErrValidation, "entityId required")
	}
	return models.ItemKey{
		StudentID:  c.Param(middleware.SelfParam),
		EntityKind: kind,
		EntityID:   entityID,
		Semester:   semester,
	}, nil
}
