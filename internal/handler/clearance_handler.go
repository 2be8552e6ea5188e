package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/middleware"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/response"
)

type clearanceService interface {
	CreateAggregate(ctx context.Context, req dto.CreateClearanceRequest, actor *models.JWTClaims) (*models.AggregateClearance, bool, error)
	FetchAggregateView(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, bool, error)
	FetchApprovalItems(ctx context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error)
	Descriptors(ctx context.Context, studentID string, semester models.Semester) ([]models.EntityRequirement, error)
}

// ClearanceHandler exposes clearance record endpoints.
type ClearanceHandler struct {
	service clearanceService
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(service clearanceService) *ClearanceHandler {
	return &ClearanceHandler{service: service}
}

// Create godoc
// @Summary Open a clearance record
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.CreateClearanceRequest true "Clearance payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /clearances [post]
func (h *ClearanceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateClearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !claims.IsAdmin() && strings.TrimSpace(req.StudentID) != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students can only open their own clearance"))
		return
	}
	record, created, err := h.service.CreateAggregate(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(c, status, record, middleware.SetMeta(c, middleware.MetaCreated, created))
}

// Get godoc
// @Summary Aggregate clearance record
// @Tags Clearance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Success 200 {object} response.Envelope
// @Router /clearances/{studentId}/{semester} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	record, hit, err := h.service.FetchAggregateView(c.Request.Context(), c.Param(middleware.SelfParam), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, record, middleware.ExtractMeta(c))
}

// Items godoc
// @Summary Approval items of a clearance
// @Tags Clearance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Success 200 {object} response.Envelope
// @Router /clearances/{studentId}/{semester}/items [get]
func (h *ClearanceHandler) Items(c *gin.Context) {
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.FetchApprovalItems(c.Request.Context(), c.Param(middleware.SelfParam), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// Requirements godoc
// @Summary Resolved requirement descriptors for each entity
// @Tags Clearance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Success 200 {object} response.Envelope
// @Router /clearances/{studentId}/{semester}/requirements [get]
func (h *ClearanceHandler) Requirements(c *gin.Context) {
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	descriptors, err := h.service.Descriptors(c.Request.Context(), c.Param(middleware.SelfParam), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, descriptors)
}
