package handler

import (
	"context"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/middleware"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/internal/service"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/export"
	"github.com/noah-isme/sma-clearance-api/pkg/response"
)

type documentService interface {
	Render(ctx context.Context, studentID string, semester models.Semester, layout export.Layout) (*service.RenderedFile, error)
	Export(ctx context.Context, studentID string, semester models.Semester) (*service.ExportResult, error)
	Roster(ctx context.Context, studentID string, semester models.Semester, format string) (*service.RenderedFile, error)
	ResolveDownload(token string) (*os.File, string, error)
}

// DocumentHandler serves printable clearance documents and exports.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Document godoc
// @Summary Render the clearance document
// @Tags Documents
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Param layout query string false "compact or detailed (default)"
// @Success 200 {file} binary
// @Router /clearances/{studentId}/{semester}/document [get]
func (h *DocumentHandler) Document(c *gin.Context) {
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	layout, ok := export.ParseLayout(c.Query("layout"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "layout must be compact or detailed"))
		return
	}
	file, err := h.service.Render(c.Request.Context(), c.Param(middleware.SelfParam), semester, layout)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeFile(c, file, "inline")
}

// Export godoc
// @Summary Export the clearance as a stored PDF behind a signed link
// @Tags Documents
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clearances/{studentId}/{semester}/export [post]
func (h *DocumentHandler) Export(c *gin.Context) {
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Export(c.Request.Context(), c.Param(middleware.SelfParam), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ExportResponse{Filename: result.Filename, URL: result.URL, ExpiresAt: result.ExpiresAt})
}

// Roster godoc
// @Summary Tabular listing of the approval items
// @Tags Documents
// @Produce octet-stream
// @Param studentId path string true "Student ID"
// @Param semester path string true "Semester (1st or 2nd)"
// @Param format query string false "csv (default), xlsx or pdf"
// @Success 200 {file} binary
// @Router /clearances/{studentId}/{semester}/roster [get]
func (h *DocumentHandler) Roster(c *gin.Context) {
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.Roster(c.Request.Context(), c.Param(middleware.SelfParam), semester, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeFile(c, file, "attachment")
}

// Download godoc
// @Summary Download an exported clearance via signed token
// @Tags Documents
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.service.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	response.Stream(c, "application/pdf", name, "attachment", info.Size(), file)
}

func writeFile(c *gin.Context, file *service.RenderedFile, disposition string) {
	response.Bytes(c, file.ContentType, file.Filename, disposition, file.Data)
}
