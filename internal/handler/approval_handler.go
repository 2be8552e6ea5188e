package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/middleware"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/internal/service"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/response"
)

type approvalService interface {
	Validate(ctx context.Context, key models.ItemKey, submission models.Submission) (service.ValidationResult, error)
	SubmitApproval(ctx context.Context, key models.ItemKey, submission models.Submission, actor *models.JWTClaims) (*models.ApprovalItem, bool, error)
	RespondApproval(ctx context.Context, itemID string, req dto.RespondApprovalRequest, approver *models.JWTClaims) (*models.ApprovalItem, bool, error)
}

// ApprovalHandler exposes the request and respond actions on approval items.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Validate godoc
// @Summary Check a submission without requesting approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Param kind path string true "subject or department"
// @Param entityId path string true "Entity ID"
// @Param payload body dto.SubmissionRequest true "Submission"
// @Success 200 {object} response.Envelope
// @Router /clearances/{studentId}/{semester}/items/{kind}/{entityId}/validate [post]
func (h *ApprovalHandler) Validate(c *gin.Context) {
	key, submission, ok := h.bindSubmission(c)
	if !ok {
		return
	}
	result, err := h.service.Validate(c.Request.Context(), key, submission)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ValidationResponse{OK: result.OK, Reason: result.Reason})
}

// Request godoc
// @Summary Request approval for an item
// @Tags Approvals
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Param kind path string true "subject or department"
// @Param entityId path string true "Entity ID"
// @Param payload body dto.SubmissionRequest true "Submission"
// @Success 200 {object} response.Envelope
// @Router /clearances/{studentId}/{semester}/items/{kind}/{entityId}/request [post]
func (h *ApprovalHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	key, submission, ok := h.bindSubmission(c)
	if !ok {
		return
	}
	item, changed, err := h.service.SubmitApproval(c.Request.Context(), key, submission, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, changedMeta(c, changed))
}

// Respond godoc
// @Summary Approve or reject a requested item
// @Tags Approvals
// @Accept json
// @Produce json
// @Param itemId path string true "Approval item ID"
// @Param payload body dto.RespondApprovalRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /approvals/{itemId}/respond [post]
func (h *ApprovalHandler) Respond(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RespondApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, changed, err := h.service.RespondApproval(c.Request.Context(), c.Param("itemId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, changedMeta(c, changed))
}

func (h *ApprovalHandler) bindSubmission(c *gin.Context) (models.ItemKey, models.Submission, bool) {
	key, err := itemKeyParams(c)
	if err != nil {
		response.Error(c, err)
		return models.ItemKey{}, nil, false
	}
	var req dto.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return models.ItemKey{}, nil, false
	}
	submission, err := models.DecodeSubmission(req.Submission)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission"))
		return models.ItemKey{}, nil, false
	}
	return key, submission, true
}

func changedMeta(c *gin.Context, changed bool) map[string]interface{} {
	return middleware.SetMeta(c, middleware.MetaChanged, changed)
}
